package chatapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransportAutoFallsBackToMockWithoutURL(t *testing.T) {
	tr, err := NewTransport(Config{Mode: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "mock", Describe(tr))

	reply, err := tr.Reply(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "I heard you: hello", reply)
}

func TestNewTransportAutoPrefersHTTP(t *testing.T) {
	tr, err := NewTransport(Config{Mode: "", URL: " http://127.0.0.1:8000/chat "})
	require.NoError(t, err)
	assert.Equal(t, "http http://127.0.0.1:8000/chat", Describe(tr))
}

func TestNewTransportHTTPRequiresURL(t *testing.T) {
	_, err := NewTransport(Config{Mode: "http"})
	assert.Error(t, err)
}

func TestNewTransportRejectsUnknownMode(t *testing.T) {
	_, err := NewTransport(Config{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestMockTransportHonoursCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockTransport().Reply(ctx, "hello", nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeCanceled, te.Code)
	assert.ErrorIs(t, err, context.Canceled)
}
