package chatapi

import "fmt"

// Failure codes reported by transports.
const (
	CodeConnectFailed = "connect_failed"
	CodeTimeout       = "timeout"
	CodeHTTPStatus    = "http_status"
	CodeMalformedBody = "malformed_body"
	CodeCanceled      = "canceled"
)

// TransportError is the single failure kind of a chat transport. Code tells
// the subcases apart for logs and metrics only; callers treat them alike.
type TransportError struct {
	Code   string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("chat transport %s (status %d): %v", e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("chat transport %s: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
