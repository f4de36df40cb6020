package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/dunamismax/earthworm/internal/domain"
	"github.com/dunamismax/earthworm/internal/id"
	"github.com/dunamismax/earthworm/internal/provider"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultVersion      = "1.0.0"
	DefaultMaxBodyBytes = 25 << 20

	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeNotImplemented     = "NOT_IMPLEMENTED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
)

type Options struct {
	Registry       *provider.Registry
	ProviderKind   provider.Kind
	Debug          bool
	Version        string
	AllowedOrigins []string
	MaxBodyBytes   int64
	Tracer         trace.Tracer
}

type Server struct {
	logger       *log.Logger
	registry     *provider.Registry
	providerKind provider.Kind
	debug        bool
	version      string
	maxBodyBytes int64
	metrics      *metrics
	tracer       trace.Tracer
	router       *chi.Mux
	now          func() time.Time
}

func NewServer(logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.Registry == nil {
		opts.Registry = provider.NewRegistry(nil)
	}
	if opts.ProviderKind == "" {
		opts.ProviderKind = provider.KindN8N
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		logger:       logger,
		registry:     opts.Registry,
		providerKind: opts.ProviderKind,
		debug:        opts.Debug,
		version:      opts.Version,
		maxBodyBytes: opts.MaxBodyBytes,
		metrics:      newMetrics(),
		tracer:       opts.Tracer,
		router:       chi.NewRouter(),
		now:          time.Now,
	}

	s.router.Use(chiMiddleware.RequestID)
	s.router.Use(chiMiddleware.RealIP)
	s.router.Use(withRequestID)
	s.router.Use(s.metrics.withHTTPMetrics)
	s.router.Use(s.withTracing)
	s.router.Use(s.withRecovery)
	s.router.Use(withCORS(opts.AllowedOrigins))

	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Get("/", s.handleHealth)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Post("/chat", s.handleChat)
	s.router.Post("/chat/test", s.handleChatTest)
	s.router.Get("/provider/{kind}", s.handleProvider)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.metricsHandler())

	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not Found", CodeNotFound)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})
}

// withRequestID makes chi's request id visible to outbound calls and echoes
// it back to the client.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := chiMiddleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = id.New()
		}
		w.Header().Set(chiMiddleware.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(id.WithRequestID(r.Context(), requestID)))
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Printf("panic recovered request_id=%s method=%s path=%s err=%v\n%s",
				chiMiddleware.GetReqID(r.Context()), r.Method, r.URL.Path, rec, debug.Stack())
			s.writeError(w, http.StatusInternalServerError,
				"An unexpected error occurred. Please try again later.", CodeInternalError)
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail, code string) {
	writeJSON(w, status, domain.NewErrorResponse(detail, code, s.now()))
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, into any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err := decoder.Decode(into); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
