package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	LanguageEnglish = "en"
	LanguageTamil   = "ta"

	// TimestampLayout matches the ISO format the web client already parses.
	TimestampLayout = "2006-01-02T15:04:05.000000"
)

type ChatRequest struct {
	Text        *string `json:"text"`
	ImageBase64 string  `json:"image_base64,omitempty"`
	AudioBase64 string  `json:"audio_file,omitempty"`
	SessionID   string  `json:"session_id"`
	Language    string  `json:"language,omitempty"`
}

type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	Version      string `json:"version"`
	N8NConnected bool   `json:"n8n_connected"`
}

type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
	Timestamp string `json:"timestamp"`
}

// TextValue returns the request text, or "" when the client sent none.
func (r ChatRequest) TextValue() string {
	if r.Text == nil {
		return ""
	}
	return *r.Text
}

func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session_id is required")
	}
	switch r.Language {
	case LanguageEnglish, LanguageTamil:
		return nil
	case "":
		return errors.New("language is required")
	default:
		return fmt.Errorf("unsupported language: %s", r.Language)
	}
}

// WithDefaults fills the fields the client is allowed to omit.
func (r ChatRequest) WithDefaults() ChatRequest {
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	if r.Language == "" {
		r.Language = LanguageEnglish
	}
	return r
}

func NewChatResponse(response, sessionID string, now time.Time) ChatResponse {
	return ChatResponse{
		Response:  response,
		SessionID: sessionID,
		Timestamp: FormatTimestamp(now),
	}
}

func NewErrorResponse(detail, code string, now time.Time) ErrorResponse {
	return ErrorResponse{
		Detail:    detail,
		ErrorCode: code,
		Timestamp: FormatTimestamp(now),
	}
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
