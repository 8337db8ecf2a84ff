package reliability

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/antoniostano/chatdesk/internal/chatapi"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryableHTTPStatus(tc.code), "status %d", tc.code)
	}
}

func TestClassifyTransportError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"nil", nil, "", false},
		{"refused", &chatapi.TransportError{Code: chatapi.CodeConnectFailed, Err: errors.New("refused")}, chatapi.CodeConnectFailed, true},
		{"timeout", &chatapi.TransportError{Code: chatapi.CodeTimeout, Err: context.DeadlineExceeded}, chatapi.CodeTimeout, true},
		{"503", &chatapi.TransportError{Code: chatapi.CodeHTTPStatus, Status: 503}, chatapi.CodeHTTPStatus, true},
		{"400", &chatapi.TransportError{Code: chatapi.CodeHTTPStatus, Status: 400}, chatapi.CodeHTTPStatus, false},
		{"malformed", &chatapi.TransportError{Code: chatapi.CodeMalformedBody}, chatapi.CodeMalformedBody, false},
		{"wrapped", pkgerrors.Wrap(&chatapi.TransportError{Code: chatapi.CodeTimeout}, "reply"), chatapi.CodeTimeout, true},
		{"bare canceled", context.Canceled, chatapi.CodeCanceled, false},
		{"bare deadline", context.DeadlineExceeded, chatapi.CodeTimeout, true},
		{"other", errors.New("boom"), "unknown", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, retryable := ClassifyTransportError(tc.err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.retryable, retryable)
		})
	}
}
