package provider

import (
	"context"
	"fmt"

	"github.com/dunamismax/earthworm/internal/domain"
)

var mockReplies = map[string]string{
	domain.LanguageEnglish: "Mock response: I received your message '%s'. The backend is working correctly!",
	domain.LanguageTamil:   "மாக் பதில்: உங்கள் செய்தியைப் பெற்றேன் '%s'. பின்தளம் சரியாக வேலை செய்கிறது!",
}

// Mock answers without any upstream call.
type Mock struct{}

func (Mock) Chat(_ context.Context, req domain.ChatRequest) (string, error) {
	return MockReply(mockReplies, req.Language, req.TextValue()), nil
}

func (Mock) HealthCheck(context.Context) bool {
	return true
}

// MockReply formats the template for language, falling back to English.
func MockReply(templates map[string]string, language, text string) string {
	tmpl, ok := templates[language]
	if !ok {
		tmpl = templates[domain.LanguageEnglish]
	}
	return fmt.Sprintf(tmpl, text)
}
