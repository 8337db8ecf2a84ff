package chatapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/chatdesk/internal/session"
)

// MockTransport provides deterministic local replies when no endpoint is configured.
type MockTransport struct{}

func NewMockTransport() *MockTransport { return &MockTransport{} }

func (t *MockTransport) Reply(ctx context.Context, message string, history []session.Turn) (string, error) {
	select {
	case <-ctx.Done():
		return "", &TransportError{Code: CodeCanceled, Err: ctx.Err()}
	default:
	}
	return buildMockReply(message, history), nil
}

func buildMockReply(message string, history []session.Turn) string {
	base := strings.TrimSpace(message)
	if base == "" {
		base = "(nothing)"
	}

	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleUser {
			last = strings.TrimSpace(history[i].Text)
			break
		}
	}
	if last == "" {
		return fmt.Sprintf("I heard you: %s", base)
	}
	return fmt.Sprintf("I heard you: %s\nEarlier you said: %s", base, last)
}
