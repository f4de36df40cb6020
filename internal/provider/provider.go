package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/earthworm/internal/domain"
)

type Kind string

const (
	KindN8N    Kind = "n8n"
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
	KindMock   Kind = "mock"
)

// Provider is the contract every chat backend implements.
type Provider interface {
	Chat(ctx context.Context, req domain.ChatRequest) (string, error)
	HealthCheck(ctx context.Context) bool
}

func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case KindN8N, KindOpenAI, KindGemini, KindMock:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown provider type: %q", raw)
	}
}

func (k Kind) String() string {
	return string(k)
}
