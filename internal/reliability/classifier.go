package reliability

import (
	"context"
	"errors"

	"github.com/antoniostano/chatdesk/internal/chatapi"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassifyTransportError maps a chat transport error to its failure code and
// whether retrying the same request could succeed. The controller never
// retries; retryable only feeds error_event payloads and metrics.
func ClassifyTransportError(err error) (code string, retryable bool) {
	if err == nil {
		return "", false
	}
	var te *chatapi.TransportError
	if errors.As(err, &te) {
		switch te.Code {
		case chatapi.CodeHTTPStatus:
			return te.Code, IsRetryableHTTPStatus(te.Status)
		case chatapi.CodeConnectFailed, chatapi.CodeTimeout:
			return te.Code, true
		default:
			return te.Code, false
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return chatapi.CodeCanceled, false
	case errors.Is(err, context.DeadlineExceeded):
		return chatapi.CodeTimeout, true
	default:
		return "unknown", false
	}
}
