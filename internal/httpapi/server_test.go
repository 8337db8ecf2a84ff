package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/chatdesk/internal/archive"
	"github.com/antoniostano/chatdesk/internal/chat"
	"github.com/antoniostano/chatdesk/internal/chatapi"
	"github.com/antoniostano/chatdesk/internal/config"
	"github.com/antoniostano/chatdesk/internal/dialogue"
	"github.com/antoniostano/chatdesk/internal/observability"
	"github.com/antoniostano/chatdesk/internal/session"
)

type testServer struct {
	*httptest.Server
	sessions *session.Manager
	store    *archive.InMemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		SubmitPolicy:             dialogue.PolicyReject,
	}
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", time.Now().UnixNano()))
	store := archive.NewInMemoryStore()
	archiver := chat.NewArchiver(store, metrics, 64)
	orch := chat.NewOrchestrator(sessions, chatapi.NewMockTransport(), archiver, metrics, cfg.SubmitPolicy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = archiver.Run(ctx)
	}()

	srv := New(cfg, sessions, orch, metrics, Options{
		UI:        config.DefaultUISettings(),
		Archive:   store,
		Transport: "mock",
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return &testServer{Server: ts, sessions: sessions, store: store}
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	res, err := http.Post(ts.URL+"/v1/chat/session", "application/json", strings.NewReader(`{"user_id":"user-1"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var created session.CreateResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, session.StatusActive, created.Status)
	assert.Equal(t, int64(120000), created.InactivityTTLMS)
	return created.SessionID
}

func (ts *testServer) dial(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/session/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == want {
			return msg
		}
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestCreateAndEndSession(t *testing.T) {
	ts := newTestServer(t)
	sessionID := ts.createSession(t)

	endRes, err := http.Post(ts.URL+"/v1/chat/session/"+sessionID+"/end", "application/json", nil)
	require.NoError(t, err)
	defer endRes.Body.Close()
	assert.Equal(t, http.StatusOK, endRes.StatusCode)

	var ended session.Session
	require.NoError(t, json.NewDecoder(endRes.Body).Decode(&ended))
	assert.Equal(t, session.StatusEnded, ended.Status)

	missing, err := http.Post(ts.URL+"/v1/chat/session/nope/end", "application/json", nil)
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestCreateSessionWithoutBodyDefaultsUser(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Post(ts.URL+"/v1/chat/session", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var created session.CreateResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	assert.Equal(t, "anonymous", created.UserID)
}

func TestCreateSessionRejectsInvalidJSON(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Post(ts.URL+"/v1/chat/session", "application/json", strings.NewReader(`{"user_id":`))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUIRoutes(t *testing.T) {
	ts := newTestServer(t)
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	rootRes, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	defer rootRes.Body.Close()
	assert.Equal(t, http.StatusTemporaryRedirect, rootRes.StatusCode)
	assert.Equal(t, "/ui/", rootRes.Header.Get("Location"))

	uiRes, err := http.Get(ts.URL + "/ui/")
	require.NoError(t, err)
	defer uiRes.Body.Close()
	assert.Equal(t, http.StatusOK, uiRes.StatusCode)
	body, err := io.ReadAll(uiRes.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `id="chat-box"`)

	jsRes, err := http.Get(ts.URL + "/ui/app.js")
	require.NoError(t, err)
	defer jsRes.Body.Close()
	assert.Equal(t, http.StatusOK, jsRes.StatusCode)
}

func TestWebClientKeepsUnsentText(t *testing.T) {
	data, err := embeddedStatic.ReadFile("static/app.js")
	require.NoError(t, err)
	js := string(data)

	// The composer is cleared only after the socket accepted the message,
	// and a rejected or dropped submission puts the text back.
	assert.Contains(t, js, "if (submit(text)) {\n      input.value = '';")
	assert.Contains(t, js, "msg.code === 'submit_rejected' || msg.code === 'submit_dropped'")
	assert.Contains(t, js, "restoreInput();")
}

func TestHealthReadyAndSettings(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &health))
	assert.Equal(t, "mock", health["transport"])
	assert.Equal(t, "reject", health["submit_policy"])

	var ready map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/readyz", &ready))
	assert.Equal(t, "ready", ready["status"])

	var settings uiSettingsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/ui/settings", &settings))
	assert.Equal(t, config.DefaultUISettings().Welcome, settings.Welcome)
	assert.Len(t, settings.Suggestions, 3)

	var perf observability.TurnStageSnapshot
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/perf/latency", &perf))

	metricsRes, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metricsRes.Body.Close()
	assert.Equal(t, http.StatusOK, metricsRes.StatusCode)
}

func TestWebsocketConversationAndTranscript(t *testing.T) {
	ts := newTestServer(t)
	sessionID := ts.createSession(t)
	conn := ts.dial(t, sessionID)

	readUntil(t, conn, "system_event")
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":       "client_submit",
		"session_id": sessionID,
		"text":       "What is my balance?",
	}))

	user := readUntil(t, conn, "turn_rendered")
	assert.Equal(t, "user", user["role"])
	busy := readUntil(t, conn, "busy_state")
	assert.Equal(t, true, busy["busy"])
	model := readUntil(t, conn, "turn_rendered")
	assert.Equal(t, "model", model["role"])
	assert.Equal(t, "I heard you: What is my balance?", model["text"])

	var transcript session.TranscriptResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/chat/session/"+sessionID+"/transcript", &transcript))
	require.Len(t, transcript.Turns, 2)
	assert.Equal(t, session.RoleUser, transcript.Turns[0].Role)
	assert.Equal(t, session.RoleModel, transcript.Turns[1].Role)

	require.Eventually(t, func() bool {
		var payload struct {
			Turns []archive.TurnRecord `json:"turns"`
		}
		getJSON(t, ts.URL+"/v1/chat/session/"+sessionID+"/archive", &payload)
		return len(payload.Turns) == 2
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":       "client_control",
		"session_id": sessionID,
		"action":     "clear",
	}))
	readUntil(t, conn, "transcript_cleared")

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/chat/session/"+sessionID+"/transcript", &transcript))
	assert.Empty(t, transcript.Turns)
}

func TestWebsocketInvalidMessageGetsErrorEvent(t *testing.T) {
	ts := newTestServer(t)
	sessionID := ts.createSession(t)
	conn := ts.dial(t, sessionID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"client_audio_chunk"}`)))
	errEvent := readUntil(t, conn, "error_event")
	assert.Equal(t, "invalid_client_message", errEvent["code"])
}

func TestClearRoute(t *testing.T) {
	ts := newTestServer(t)
	sessionID := ts.createSession(t)
	history, err := ts.sessions.History(sessionID)
	require.NoError(t, err)
	history.Append(session.Turn{Role: session.RoleUser, Text: "A"})

	res, err := http.Post(ts.URL+"/v1/chat/session/"+sessionID+"/clear", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var sess session.Session
	require.NoError(t, json.NewDecoder(res.Body).Decode(&sess))
	assert.Equal(t, 1, sess.ClearCount)
	assert.Equal(t, 0, sess.TurnCount)
	assert.Equal(t, 0, history.Len())

	missing, err := http.Post(ts.URL+"/v1/chat/session/nope/clear", "application/json", nil)
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSessionRoutesRejectUnknownSessions(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/v1/chat/session/nope/transcript", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/v1/chat/session/ws", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/v1/chat/session/ws?session_id=nope", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/v1/chat/session/x/archive?limit=-1", nil))
}

func TestWebsocketRefusesEndedSession(t *testing.T) {
	ts := newTestServer(t)
	sessionID := ts.createSession(t)
	_, err := ts.sessions.End(sessionID)
	require.NoError(t, err)

	assert.Equal(t, http.StatusGone, getJSON(t, ts.URL+"/v1/chat/session/ws?session_id="+sessionID, nil))
}

func TestClearRouteRefusesEndedSession(t *testing.T) {
	ts := newTestServer(t)
	sessionID := ts.createSession(t)

	end, err := http.Post(ts.URL+"/v1/chat/session/"+sessionID+"/end", "application/json", nil)
	require.NoError(t, err)
	end.Body.Close()
	require.Equal(t, http.StatusOK, end.StatusCode)

	res, err := http.Post(ts.URL+"/v1/chat/session/"+sessionID+"/clear", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusGone, res.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "session_ended", body.Code)
}

func TestCheckOriginRejectsForeignBrowser(t *testing.T) {
	ts := newTestServer(t)
	sessionID := ts.createSession(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/session/ws?session_id=" + sessionID
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
