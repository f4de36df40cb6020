package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedKind = errors.New("unsupported provider type")
	ErrInvalidPayload  = errors.New("invalid chat payload")
)

type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureUnreachable FailureKind = "unreachable"
	FailureStatus      FailureKind = "status"
	FailureOther       FailureKind = "other"
)

// TransportError reports a failed exchange with an upstream provider.
type TransportError struct {
	Kind       FailureKind
	StatusCode int
	Body       string
	Cause      error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}

	switch e.Kind {
	case FailureTimeout:
		return "request to webhook timed out: the AI service may be busy"
	case FailureUnreachable:
		return "could not connect to webhook: check that the workflow endpoint is running"
	case FailureStatus:
		return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
	default:
		if e.Cause != nil {
			return "error communicating with webhook: " + e.Cause.Error()
		}
		return "error communicating with webhook"
	}
}

func (e *TransportError) Unwrap() error { return e.Cause }

func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

func IsTimeout(err error) bool {
	te, ok := AsTransportError(err)
	return ok && te.Kind == FailureTimeout
}
