package chatapi

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/antoniostano/chatdesk/internal/session"
)

// Transport sends a message plus prior history to a chat backend and returns
// the reply text.
type Transport interface {
	Reply(ctx context.Context, message string, history []session.Turn) (string, error)
}

// Config controls transport construction.
type Config struct {
	Mode    string
	URL     string
	Timeout time.Duration
}

const (
	ModeAuto = "auto"
	ModeHTTP = "http"
	ModeMock = "mock"
)

func NewTransport(cfg Config) (Transport, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = ModeAuto
	}

	switch mode {
	case ModeAuto:
		if strings.TrimSpace(cfg.URL) != "" {
			return NewHTTPTransport(cfg.URL, cfg.Timeout), nil
		}
		return NewMockTransport(), nil
	case ModeHTTP:
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("chat endpoint url is required for http mode")
		}
		return NewHTTPTransport(cfg.URL, cfg.Timeout), nil
	case ModeMock:
		return NewMockTransport(), nil
	default:
		return nil, errors.Errorf("unsupported chat transport mode %q", cfg.Mode)
	}
}

// Describe names the transport for logs and status endpoints.
func Describe(t Transport) string {
	switch v := t.(type) {
	case *HTTPTransport:
		return "http " + v.URL()
	case *MockTransport:
		return "mock"
	default:
		return "custom"
	}
}
