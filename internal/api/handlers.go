package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/earthworm/internal/domain"
	"github.com/dunamismax/earthworm/internal/provider"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

var testModeReplies = map[string]string{
	domain.LanguageEnglish: "🧪 Test Mode: Received your message '%s'. The backend is working! Connect n8n for real AI responses.",
	domain.LanguageTamil:   "🧪 சோதனை முறை: உங்கள் செய்தியைப் பெற்றேன் '%s'. பின்தளம் வேலை செய்கிறது! உண்மையான AI பதில்களுக்கு n8n ஐ இணைக்கவும்.",
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealth always answers 200; upstream reachability is reported in the body.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := false
	if p, err := s.registry.Get(s.providerKind); err != nil {
		s.logger.Printf("health probe skipped provider=%s err=%v", s.providerKind, err)
	} else {
		connected = p.HealthCheck(r.Context())
	}

	writeJSON(w, http.StatusOK, domain.HealthResponse{
		Status:       "healthy",
		Timestamp:    domain.FormatTimestamp(s.now()),
		Version:      s.version,
		N8NConnected: connected,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChatRequest(w, r)
	if !ok {
		return
	}
	requestID := chiMiddleware.GetReqID(r.Context())
	s.logger.Printf("chat request received request_id=%s session_id=%s language=%s has_image=%t has_audio=%t",
		requestID, req.SessionID, req.Language, req.ImageBase64 != "", req.AudioBase64 != "")

	p, err := s.registry.Get(s.providerKind)
	if err != nil {
		s.logger.Printf("resolve provider failed provider=%s err=%v", s.providerKind, err)
		s.writeError(w, http.StatusInternalServerError, "An error occurred while processing your request.", CodeInternalError)
		return
	}

	start := time.Now()
	reply, err := s.callProvider(r, p, req)
	elapsed := time.Since(start)

	if err != nil {
		status, code, detail, outcome := classifyChatError(err)
		s.metrics.observeChat(s.providerKind.String(), outcome, elapsed)
		s.logger.Printf("chat failed request_id=%s session_id=%s status=%d err=%v", requestID, req.SessionID, status, err)
		s.writeError(w, status, detail, code)
		return
	}

	s.metrics.observeChat(s.providerKind.String(), outcomeOK, elapsed)
	s.logger.Printf("chat response sent request_id=%s session_id=%s elapsed=%s", requestID, req.SessionID, elapsed.Round(time.Millisecond))
	writeJSON(w, http.StatusOK, domain.NewChatResponse(reply, req.SessionID, s.now()))
}

// callProvider keeps the in-flight gauge balanced even when the provider panics.
func (s *Server) callProvider(r *http.Request, p provider.Provider, req domain.ChatRequest) (string, error) {
	s.metrics.activeChats.Inc()
	defer s.metrics.activeChats.Dec()
	return p.Chat(r.Context(), req)
}

func (s *Server) handleChatTest(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChatRequest(w, r)
	if !ok {
		return
	}

	reply := provider.MockReply(testModeReplies, req.Language, req.TextValue())
	writeJSON(w, http.StatusOK, domain.NewChatResponse(reply, req.SessionID, s.now()))
}

// handleProvider resolves and probes a provider without changing the one
// /chat uses. Debug builds only.
func (s *Server) handleProvider(w http.ResponseWriter, r *http.Request) {
	if !s.debug {
		s.writeError(w, http.StatusForbidden, "Provider switching only available in debug mode", CodeForbidden)
		return
	}

	kind, err := provider.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidRequest)
		return
	}

	p, err := s.registry.Get(kind)
	switch {
	case errors.Is(err, provider.ErrUnsupportedKind):
		s.writeError(w, http.StatusNotImplemented, fmt.Sprintf("Provider %s is not implemented", kind), CodeNotImplemented)
		return
	case err != nil:
		s.logger.Printf("resolve provider failed provider=%s err=%v", kind, err)
		s.writeError(w, http.StatusInternalServerError, "An error occurred while processing your request.", CodeInternalError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider": kind.String(),
		"healthy":  p.HealthCheck(r.Context()),
		"message":  fmt.Sprintf("Resolved %s provider", kind),
	})
}

func (s *Server) readChatRequest(w http.ResponseWriter, r *http.Request) (domain.ChatRequest, bool) {
	var req domain.ChatRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidRequest)
		return domain.ChatRequest{}, false
	}

	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidRequest)
		return domain.ChatRequest{}, false
	}
	return req, true
}

// classifyChatError maps a provider failure to status, error code, client
// facing detail and metrics outcome. Transport details stay in the logs.
func classifyChatError(err error) (int, string, string, string) {
	if errors.Is(err, provider.ErrInvalidPayload) {
		return http.StatusBadRequest, CodeInvalidRequest, err.Error(), outcomeInvalid
	}

	if te, ok := provider.AsTransportError(err); ok {
		if te.Kind == provider.FailureTimeout {
			return http.StatusGatewayTimeout, CodeGatewayTimeout,
				"The AI service took too long to respond. Please try again.", outcomeTimeout
		}
		return http.StatusServiceUnavailable, CodeServiceUnavailable,
			"AI service is temporarily unavailable. Please try again later.", outcomeUnavailable
	}

	return http.StatusInternalServerError, CodeInternalError,
		"An error occurred while processing your request.", outcomeError
}
