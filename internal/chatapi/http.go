package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/antoniostano/chatdesk/internal/session"
)

const maxResponseBytes = 4 << 20

// HTTPTransport posts chat requests to a remote JSON endpoint.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport builds a transport for url. A zero timeout leaves requests
// unbounded.
func NewHTTPTransport(url string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (t *HTTPTransport) URL() string { return t.url }

func (t *HTTPTransport) Reply(ctx context.Context, message string, history []session.Turn) (string, error) {
	payload, err := json.Marshal(NewChatRequest(message, history))
	if err != nil {
		return "", &TransportError{Code: CodeMalformedBody, Err: errors.Wrap(err, "marshal request")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return "", &TransportError{Code: CodeConnectFailed, Err: errors.Wrap(err, "create request")}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return "", &TransportError{Code: doErrorCode(err), Err: errors.Wrap(err, "send request")}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &TransportError{
			Code:   CodeHTTPStatus,
			Status: res.StatusCode,
			Err:    errors.Errorf("unexpected status: %s", strings.TrimSpace(string(body))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return "", &TransportError{Code: doErrorCode(err), Err: errors.Wrap(err, "read response")}
	}
	return decodeReply(body)
}

func decodeReply(body []byte) (string, error) {
	var out struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &TransportError{Code: CodeMalformedBody, Err: errors.Wrap(err, "decode response")}
	}
	if out.Response == nil {
		return "", &TransportError{Code: CodeMalformedBody, Err: errors.New("response field missing")}
	}
	return *out.Response, nil
}

func doErrorCode(err error) string {
	if errors.Is(err, context.Canceled) {
		return CodeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	return CodeConnectFailed
}
