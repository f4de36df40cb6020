package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/earthworm/internal/domain"
	"github.com/dunamismax/earthworm/internal/id"
	"github.com/dunamismax/earthworm/internal/provider"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu        sync.Mutex
	reply     string
	err       error
	healthy   bool
	panicMsg  string
	calls     int
	lastReq   domain.ChatRequest
	requestID string
}

func (p *fakeProvider) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	p.calls++
	p.lastReq = req
	p.requestID = id.FromContext(ctx)
	return p.reply, p.err
}

func (p *fakeProvider) HealthCheck(context.Context) bool {
	return p.healthy
}

func newTestServer(t *testing.T, fake *fakeProvider, opts Options) *Server {
	t.Helper()

	if opts.Registry == nil {
		opts.Registry = provider.NewRegistry(map[provider.Kind]provider.Factory{
			provider.KindN8N:  func() (provider.Provider, error) { return fake, nil },
			provider.KindMock: func() (provider.Provider, error) { return provider.Mock{}, nil },
		})
	}
	s := NewServer(nil, opts)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.UTC) }
	return s
}

func doRequest(t *testing.T, s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, Options{})

	rec := doRequest(t, s, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthReportsProviderReachability(t *testing.T) {
	for _, path := range []string{"/", "/health"} {
		for _, healthy := range []bool{true, false} {
			t.Run(fmt.Sprintf("%s healthy=%t", path, healthy), func(t *testing.T) {
				s := newTestServer(t, &fakeProvider{healthy: healthy}, Options{Version: "2.0.0"})

				rec := doRequest(t, s, http.MethodGet, path, "", nil)
				require.Equal(t, http.StatusOK, rec.Code)

				body := decodeBody[domain.HealthResponse](t, rec)
				assert.Equal(t, "healthy", body.Status)
				assert.Equal(t, "2.0.0", body.Version)
				assert.Equal(t, healthy, body.N8NConnected)
				assert.Equal(t, "2026-03-01T09:30:00.123456", body.Timestamp)
			})
		}
	}
}

func TestHealthWhenProviderCannotBeBuilt(t *testing.T) {
	registry := provider.NewRegistry(map[provider.Kind]provider.Factory{
		provider.KindN8N: func() (provider.Provider, error) { return nil, errors.New("boom") },
	})
	s := newTestServer(t, nil, Options{Registry: registry})

	rec := doRequest(t, s, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[domain.HealthResponse](t, rec).N8NConnected)
}

func TestChatForwardsToProvider(t *testing.T) {
	fake := &fakeProvider{reply: "Use neem oil on the leaves."}
	s := newTestServer(t, fake, Options{})

	rec := doRequest(t, s, http.MethodPost, "/chat",
		`{"text":"aphids on my chilli","session_id":"s-1","image_base64":"data:image/png;base64,AAAA","unknown":"ignored"}`,
		map[string]string{"X-Request-Id": "req-42"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[domain.ChatResponse](t, rec)
	assert.Equal(t, "Use neem oil on the leaves.", body.Response)
	assert.Equal(t, "s-1", body.SessionID)
	assert.Equal(t, "2026-03-01T09:30:00.123456", body.Timestamp)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, "aphids on my chilli", fake.lastReq.TextValue())
	assert.Equal(t, domain.LanguageEnglish, fake.lastReq.Language)
	assert.Equal(t, "data:image/png;base64,AAAA", fake.lastReq.ImageBase64)
	assert.Equal(t, "req-42", fake.requestID)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}

func TestChatAcceptsMissingText(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	s := newTestServer(t, fake, Options{})

	rec := doRequest(t, s, http.MethodPost, "/chat", `{"text":null,"session_id":"s-2","language":"TA"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, fake.lastReq.Text)
	assert.Equal(t, domain.LanguageTamil, fake.lastReq.Language)
}

func TestChatRejectsInvalidRequests(t *testing.T) {
	cases := map[string]string{
		"malformed json":   `{"session_id":`,
		"missing session":  `{"text":"hi"}`,
		"blank session":    `{"text":"hi","session_id":"   "}`,
		"unknown language": `{"text":"hi","session_id":"s","language":"fr"}`,
		"trailing values":  `{"session_id":"s"}{"session_id":"t"}`,
		"too large":        `{"session_id":"s","text":"` + strings.Repeat("x", 512) + `"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fake := &fakeProvider{}
			s := newTestServer(t, fake, Options{MaxBodyBytes: 256})

			rec := doRequest(t, s, http.MethodPost, "/chat", body, nil)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			errBody := decodeBody[domain.ErrorResponse](t, rec)
			assert.Equal(t, CodeInvalidRequest, errBody.ErrorCode)
			assert.NotEmpty(t, errBody.Detail)
			assert.Zero(t, fake.calls)
		})
	}
}

func TestChatMapsProviderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"timeout", &provider.TransportError{Kind: provider.FailureTimeout}, http.StatusGatewayTimeout, CodeGatewayTimeout},
		{"unreachable", &provider.TransportError{Kind: provider.FailureUnreachable}, http.StatusServiceUnavailable, CodeServiceUnavailable},
		{"bad status", &provider.TransportError{Kind: provider.FailureStatus, StatusCode: 502, Body: "bad gateway"}, http.StatusServiceUnavailable, CodeServiceUnavailable},
		{"wrapped transport", fmt.Errorf("bridge: %w", &provider.TransportError{Kind: provider.FailureOther}), http.StatusServiceUnavailable, CodeServiceUnavailable},
		{"invalid payload", fmt.Errorf("%w: audio: illegal base64", provider.ErrInvalidPayload), http.StatusBadRequest, CodeInvalidRequest},
		{"unexpected", errors.New("nil map"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, &fakeProvider{err: tc.err}, Options{})

			rec := doRequest(t, s, http.MethodPost, "/chat", `{"text":"hi","session_id":"s"}`, nil)

			require.Equal(t, tc.status, rec.Code)
			body := decodeBody[domain.ErrorResponse](t, rec)
			assert.Equal(t, tc.code, body.ErrorCode)
			assert.NotContains(t, body.Detail, "bad gateway")
		})
	}
}

func TestChatTestModeDoesNotCallProvider(t *testing.T) {
	fake := &fakeProvider{}
	s := newTestServer(t, fake, Options{})

	rec := doRequest(t, s, http.MethodPost, "/chat/test", `{"text":"hello","session_id":"s-3"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[domain.ChatResponse](t, rec)
	assert.Contains(t, body.Response, "Test Mode")
	assert.Contains(t, body.Response, "'hello'")
	assert.Equal(t, "s-3", body.SessionID)

	rec = doRequest(t, s, http.MethodPost, "/chat/test", `{"text":"வணக்கம்","session_id":"s-3","language":"ta"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody[domain.ChatResponse](t, rec).Response, "சோதனை முறை")

	assert.Zero(t, fake.calls)
}

func TestProviderEndpoint(t *testing.T) {
	t.Run("forbidden outside debug", func(t *testing.T) {
		s := newTestServer(t, &fakeProvider{}, Options{})
		rec := doRequest(t, s, http.MethodGet, "/provider/mock", "", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	s := newTestServer(t, &fakeProvider{healthy: false}, Options{Debug: true})

	rec := doRequest(t, s, http.MethodGet, "/provider/mock", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"provider":"mock","healthy":true,"message":"Resolved mock provider"}`, rec.Body.String())

	rec = doRequest(t, s, http.MethodGet, "/provider/N8N", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[map[string]any](t, rec)["healthy"].(bool))

	rec = doRequest(t, s, http.MethodGet, "/provider/openai", "", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/provider/carrier-pigeon", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPanicsBecomeJSONErrors(t *testing.T) {
	s := newTestServer(t, &fakeProvider{panicMsg: "kaboom"}, Options{})

	rec := doRequest(t, s, http.MethodPost, "/chat", `{"session_id":"s"}`, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[domain.ErrorResponse](t, rec)
	assert.Equal(t, CodeInternalError, body.ErrorCode)
	assert.NotContains(t, body.Detail, "kaboom")
	assert.Zero(t, testutil.ToFloat64(s.metrics.activeChats))
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, Options{AllowedOrigins: []string{"http://localhost:5173"}})

	rec := doRequest(t, s, http.MethodGet, "/healthz", "", map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = doRequest(t, s, http.MethodGet, "/healthz", "", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doRequest(t, s, http.MethodOptions, "/chat", "", map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	s := newTestServer(t, &fakeProvider{}, Options{})

	rec := doRequest(t, s, http.MethodGet, "/nope", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeBody[domain.ErrorResponse](t, rec).ErrorCode)
}

func TestMetricsExposeChatOutcomes(t *testing.T) {
	s := newTestServer(t, &fakeProvider{reply: "ok"}, Options{})

	doRequest(t, s, http.MethodPost, "/chat", `{"session_id":"s"}`, nil)
	rec := doRequest(t, s, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `earthworm_chat_requests_total{outcome="ok",provider="n8n"} 1`)
	assert.Contains(t, rec.Body.String(), `earthworm_api_requests_total{method="POST",route="/chat",status="200"} 1`)
}

func TestClassifyChatError(t *testing.T) {
	status, code, detail, outcome := classifyChatError(&provider.TransportError{Kind: provider.FailureTimeout})
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, CodeGatewayTimeout, code)
	assert.Contains(t, detail, "too long")
	assert.Equal(t, outcomeTimeout, outcome)
}
