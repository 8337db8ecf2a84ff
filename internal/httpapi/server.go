package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/chatdesk/internal/archive"
	"github.com/antoniostano/chatdesk/internal/config"
	"github.com/antoniostano/chatdesk/internal/observability"
	"github.com/antoniostano/chatdesk/internal/protocol"
	"github.com/antoniostano/chatdesk/internal/session"
)

type Orchestrator interface {
	RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
	Clear(sessionID string) error
	Forget(sessionID string)
}

// Options carries the optional collaborators of the server.
type Options struct {
	UI        config.UISettings
	Archive   archive.Store
	Transport string
}

type Server struct {
	cfg          config.Config
	sessions     *session.Manager
	orchestrator Orchestrator
	metrics      *observability.Metrics
	opts         Options
	upgrader     websocket.Upgrader
	static       http.Handler
}

func New(cfg config.Config, sessions *session.Manager, orchestrator Orchestrator, metrics *observability.Metrics, opts Options) *Server {
	return &Server{
		cfg:          cfg,
		sessions:     sessions,
		orchestrator: orchestrator,
		metrics:      metrics,
		opts:         opts,
		static:       newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a session unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/ui/settings", s.handleUISettings)

	r.Post("/v1/chat/session", s.handleCreateSession)
	r.Get("/v1/chat/session/ws", s.handleSessionWS)
	r.Post("/v1/chat/session/{id}/end", s.handleEndSession)
	r.Post("/v1/chat/session/{id}/clear", s.handleClearSession)
	r.Get("/v1/chat/session/{id}/transcript", s.handleTranscript)
	r.Get("/v1/chat/session/{id}/archive", s.handleArchive)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"transport":       s.opts.Transport,
		"submit_policy":   string(s.cfg.SubmitPolicy),
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.orchestrator == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"transport": s.opts.Transport,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	sess := s.sessions.Create(req.UserID)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	log.Info().Str("session_id", sess.ID).Str("user_id", sess.UserID).Msg("chat session created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if s.orchestrator != nil {
		s.orchestrator.Forget(id)
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}
	if err := s.orchestrator.Clear(id); err != nil {
		if errors.Is(err, session.ErrEnded) {
			respondError(w, http.StatusGone, "session_ended", err.Error())
			return
		}
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	history, err := s.sessions.History(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, session.TranscriptResponse{
		SessionID: id,
		Status:    sess.Status,
		Turns:     history.All(),
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if s.opts.Archive == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "archive not configured")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.opts.Archive.SessionTurns(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive_unavailable", err.Error())
		return
	}
	if records == nil {
		records = []archive.TurnRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"turns":      records,
	})
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusGone, "session_ended", "session has ended")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	logger := log.With().Str("session_id", sessionID).Logger()
	logger.Debug().Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		if err := s.orchestrator.RunConnection(ctx, sess, inbound, outbound); err != nil {
			logger.Warn().Err(err).Msg("connection ended with error")
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.SessionEvents.WithLabelValues("ws_write_error").Inc()
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout()))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "queued")
			default:
				// Writes stay single-threaded; drop when the queue is saturated.
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "drop_full")
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	logger.Debug().Msg("websocket disconnected")
}

// readTimeout bounds how long an idle socket is kept open. It follows the
// session inactivity timeout so the janitor and the socket agree.
func (s *Server) readTimeout() time.Duration {
	if s.cfg.SessionInactivityTimeout > 0 {
		return s.cfg.SessionInactivityTimeout
	}
	return 10 * time.Minute
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return "", false
	}
	return id, true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientSubmit:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.TurnRendered:
		return m.Type, true
	case protocol.BusyState:
		return m.Type, true
	case protocol.TranscriptCleared:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
