package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API       APIConfig
	Provider  ProviderConfig
	Webhook   WebhookConfig
	Image     ImageConfig
	Telemetry TelemetryConfig
}

type APIConfig struct {
	Host            string
	Port            int
	Debug           bool
	AllowedOrigins  []string
	MaxRequestBytes int64
}

func (a APIConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

type ProviderConfig struct {
	Kind string
}

type WebhookConfig struct {
	URL           string
	APIKey        string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

type ImageConfig struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

type TelemetryConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		API: APIConfig{
			Host:            env("HOST", "0.0.0.0"),
			Port:            envInt("PORT", 8000),
			Debug:           envBool("DEBUG", false),
			AllowedOrigins:  envList("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
			MaxRequestBytes: int64(envInt("MAX_REQUEST_BYTES", 25<<20)),
		},
		Provider: ProviderConfig{
			Kind: env("AI_PROVIDER", "n8n"),
		},
		Webhook: WebhookConfig{
			URL:           env("N8N_WEBHOOK_URL", "http://localhost:5678/webhook/earthworm"),
			APIKey:        env("N8N_API_KEY", ""),
			Timeout:       envDuration("WEBHOOK_TIMEOUT", 60*time.Second),
			HealthTimeout: envDuration("WEBHOOK_HEALTH_TIMEOUT", 5*time.Second),
		},
		Image: ImageConfig{
			MaxWidth:  envInt("MAX_IMAGE_WIDTH", 1920),
			MaxHeight: envInt("MAX_IMAGE_HEIGHT", 1080),
			Quality:   envInt("IMAGE_QUALITY", 85),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  env("OTEL_SERVICE_NAME", "earthworm-api"),
			Exporter:     env("TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// envDuration accepts Go duration strings ("90s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	return fallback
}

func envList(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(env(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
