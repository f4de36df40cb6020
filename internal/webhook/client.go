package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/dunamismax/earthworm/internal/domain"
	"github.com/dunamismax/earthworm/internal/id"
	"github.com/dunamismax/earthworm/internal/pipeline"
	"github.com/dunamismax/earthworm/internal/provider"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderRequestID = "X-Request-ID"

	TransportJSON      = "json"
	TransportMultipart = "multipart"

	maxResponseBytes = 8 << 20
)

type Config struct {
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

type ImageNormalizer interface {
	NormalizeBase64(ctx context.Context, payload string) (string, error)
}

// Client forwards chat requests to a workflow webhook and turns its reply into text.
type Client struct {
	httpClient    *http.Client
	endpoint      string
	apiKey        string
	timeout       time.Duration
	healthTimeout time.Duration
	normalizer    ImageNormalizer
	logger        *log.Logger
	tracer        trace.Tracer
}

var _ provider.Provider = (*Client)(nil)

func NewClient(cfg Config, normalizer ImageNormalizer, logger *log.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Client{
		httpClient:    &http.Client{},
		endpoint:      strings.TrimSpace(cfg.Endpoint),
		apiKey:        strings.TrimSpace(cfg.APIKey),
		timeout:       timeout,
		healthTimeout: healthTimeout,
		normalizer:    normalizer,
		logger:        logger,
		tracer:        otel.Tracer("earthworm/webhook"),
	}
}

func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	image := pipeline.StripDataURI(req.ImageBase64)
	audio := pipeline.StripDataURI(req.AudioBase64)
	if image != "" {
		image = c.prepareImage(ctx, req.SessionID, image)
	}

	transport := TransportJSON
	if audio != "" {
		transport = TransportMultipart
	}

	ctx, span := c.tracer.Start(ctx, "webhook.chat", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("webhook.transport", transport),
		attribute.String("chat.language", req.Language),
		attribute.Bool("chat.has_image", image != ""),
		attribute.Bool("chat.has_audio", audio != ""),
	)
	defer span.End()

	var (
		body        []byte
		contentType string
		err         error
	)
	switch transport {
	case TransportMultipart:
		body, contentType, err = encodeMultipart(req, image, audio)
	default:
		body, contentType, err = encodeJSON(req, image)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode payload")
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &provider.TransportError{Kind: provider.FailureOther, Cause: fmt.Errorf("build webhook request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, id.FromContext(ctx))
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		transportErr := classifyTransportError(err)
		span.RecordError(transportErr)
		span.SetStatus(codes.Error, string(transportErr.Kind))
		c.logger.Printf("webhook call failed session_id=%s transport=%s kind=%s err=%v", req.SessionID, transport, transportErr.Kind, err)
		return "", transportErr
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		transportErr := classifyTransportError(err)
		span.RecordError(transportErr)
		span.SetStatus(codes.Error, "read response")
		return "", transportErr
	}

	oversized := len(raw) > maxResponseBytes
	if oversized {
		raw = raw[:maxResponseBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &provider.TransportError{
			Kind:       provider.FailureStatus,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
		span.SetStatus(codes.Error, "unexpected status")
		c.logger.Printf("webhook returned status=%d session_id=%s", resp.StatusCode, req.SessionID)
		return "", statusErr
	}

	// A truncated body must never reach ExtractReply.
	if oversized {
		sizeErr := &provider.TransportError{
			Kind:  provider.FailureOther,
			Cause: fmt.Errorf("webhook reply exceeds %d bytes", maxResponseBytes),
		}
		span.RecordError(sizeErr)
		span.SetStatus(codes.Error, "reply too large")
		c.logger.Printf("webhook reply too large session_id=%s limit=%d", req.SessionID, maxResponseBytes)
		return "", sizeErr
	}

	span.SetStatus(codes.Ok, "replied")
	return ExtractReply(raw), nil
}

// HealthCheck reports whether the endpoint answers at all. Webhooks often reject
// GET with a 4xx, which still counts as reachable.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode < http.StatusInternalServerError
}

// prepareImage never fails the request: when normalization is impossible the
// original payload is forwarded untouched.
func (c *Client) prepareImage(ctx context.Context, sessionID, image string) string {
	if c.normalizer == nil {
		return image
	}

	normalized, err := c.normalizer.NormalizeBase64(ctx, image)
	if err != nil {
		c.logger.Printf("image normalization failed session_id=%s err=%v; forwarding original", sessionID, err)
		return image
	}
	return normalized
}

type jsonPayload struct {
	Text        *string `json:"text"`
	ImageBase64 *string `json:"image_base64"`
	SessionID   string  `json:"session_id"`
	Language    string  `json:"language"`
	HasImage    bool    `json:"has_image"`
	HasAudio    bool    `json:"has_audio"`
}

func encodeJSON(req domain.ChatRequest, image string) ([]byte, string, error) {
	payload := jsonPayload{
		Text:      req.Text,
		SessionID: req.SessionID,
		Language:  req.Language,
		HasImage:  image != "",
	}
	if image != "" {
		payload.ImageBase64 = &image
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal webhook payload: %w", err)
	}
	return body, "application/json", nil
}

func classifyTransportError(err error) *provider.TransportError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &provider.TransportError{Kind: provider.FailureTimeout, Cause: err}
	}

	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	if errors.Is(err, syscall.ECONNREFUSED) || errors.As(err, &dnsErr) || (errors.As(err, &opErr) && opErr.Op == "dial") {
		return &provider.TransportError{Kind: provider.FailureUnreachable, Cause: err}
	}

	return &provider.TransportError{Kind: provider.FailureOther, Cause: err}
}
