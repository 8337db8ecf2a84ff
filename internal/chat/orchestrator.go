// Package chat runs browser conversations: one dialogue controller per chat
// session, shared by every websocket connection attached to that session.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/chatdesk/internal/dialogue"
	"github.com/antoniostano/chatdesk/internal/observability"
	"github.com/antoniostano/chatdesk/internal/protocol"
	"github.com/antoniostano/chatdesk/internal/reliability"
	"github.com/antoniostano/chatdesk/internal/session"
)

const criticalSendTimeout = 600 * time.Millisecond

type conversation struct {
	controller *dialogue.Controller
	fanout     *fanout
	history    *session.History
}

type Orchestrator struct {
	sessions  *session.Manager
	transport dialogue.Transport
	archiver  *Archiver
	metrics   *observability.Metrics
	policy    dialogue.SubmitPolicy

	mu            sync.Mutex
	conversations map[string]*conversation
}

func NewOrchestrator(
	sessions *session.Manager,
	transport dialogue.Transport,
	archiver *Archiver,
	metrics *observability.Metrics,
	policy dialogue.SubmitPolicy,
) *Orchestrator {
	return &Orchestrator{
		sessions:      sessions,
		transport:     transport,
		archiver:      archiver,
		metrics:       metrics,
		policy:        policy,
		conversations: make(map[string]*conversation),
	}
}

// RunConnection attaches one websocket connection to the session's
// conversation until ctx is done or inbound is closed. Submissions run on
// their own goroutine so a clear can arrive while a reply is pending, and
// they outlive the connection so the reply lands in the transcript.
func (o *Orchestrator) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	conv, err := o.conversation(s)
	if err != nil {
		o.send(outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: s.ID,
			Code:      sessionErrorCode(err),
			Source:    "gateway",
			Detail:    err.Error(),
		})
		return err
	}

	detach := conv.fanout.attach(conv.history, func(msg any) { o.send(outbound, msg) })
	defer detach()

	o.send(outbound, protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: s.ID,
		Code:      "session_ready",
		Detail:    string(o.policy),
	})

	logger := log.With().Str("session_id", s.ID).Logger()
	submitCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-inbound:
			if !ok {
				return nil
			}
			_ = o.sessions.Touch(s.ID)

			switch msg := raw.(type) {
			case protocol.ClientSubmit:
				go func(text string) {
					outcome := conv.controller.Submit(submitCtx, text)
					o.recordOutcome(outbound, s.ID, outcome)
				}(msg.Text)
			case protocol.ClientControl:
				if msg.Action != protocol.ActionClear {
					o.send(outbound, protocol.ErrorEvent{
						Type:      protocol.TypeErrorEvent,
						SessionID: s.ID,
						Code:      "unsupported_action",
						Source:    "gateway",
						Detail:    msg.Action,
					})
					continue
				}
				conv.controller.Clear()
			default:
				logger.Debug().Msgf("ignoring inbound message %T", raw)
			}
		}
	}
}

// Clear empties the transcript of an active session, whether or not a
// connection is attached. Ended sessions return session.ErrEnded.
func (o *Orchestrator) Clear(sessionID string) error {
	s, err := o.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	conv, err := o.conversation(s)
	if err != nil {
		return err
	}
	conv.controller.Clear()
	return nil
}

// Forget drops the conversation of an ended or expired session. Attached
// connections keep their controller until they disconnect.
func (o *Orchestrator) Forget(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.conversations, sessionID)
}

func (o *Orchestrator) conversation(s *session.Session) (*conversation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if conv, ok := o.conversations[s.ID]; ok {
		return conv, nil
	}

	// Only active sessions get a conversation; an ended one has already been
	// forgotten and nothing would remove a new entry again.
	current, err := o.sessions.Get(s.ID)
	if err != nil {
		return nil, err
	}
	if current.Status != session.StatusActive {
		return nil, session.ErrEnded
	}

	history, err := o.sessions.History(s.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "history for session %s", s.ID)
	}
	fan := newFanout(s.ID)
	conv := &conversation{
		fanout:  fan,
		history: history,
	}
	conv.controller = dialogue.New(history, o.transport, fan,
		dialogue.WithPolicy(o.policy),
		dialogue.WithHooks(o.hooks(s, fan)),
		dialogue.WithLogger(log.With().Str("session_id", s.ID).Logger()),
	)
	o.conversations[s.ID] = conv
	return conv, nil
}

func sessionErrorCode(err error) string {
	if errors.Is(err, session.ErrEnded) {
		return "session_ended"
	}
	return "session_not_found"
}

func (o *Orchestrator) hooks(s *session.Session, fan *fanout) dialogue.Hooks {
	sessionID, userID := s.ID, s.UserID
	return dialogue.Hooks{
		OnTurn: func(turn session.Turn, synthetic bool) {
			o.metrics.ObserveTurn(string(turn.Role), synthetic)
			o.archiver.Enqueue(sessionID, userID, turn, synthetic)
		},
		OnReply: func(latency time.Duration, err error) {
			o.metrics.ObserveReplyLatency(latency)
			if err == nil {
				o.metrics.ObserveTurnStage(observability.StageReply, latency)
				return
			}
			code, retryable := reliability.ClassifyTransportError(err)
			o.metrics.ObserveTurnStage(observability.StageFailure, latency)
			o.metrics.ObserveTransportError(code)
			fan.Broadcast(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      code,
				Source:    "chat_transport",
				Retryable: retryable,
				Detail:    err.Error(),
			})
		},
		OnClear: func() {
			o.metrics.ObserveTurnIndicator("transcript_cleared")
			o.metrics.SessionEvents.WithLabelValues("cleared").Inc()
			_ = o.sessions.MarkCleared(sessionID)
		},
	}
}

func (o *Orchestrator) recordOutcome(outbound chan<- any, sessionID string, outcome dialogue.Outcome) {
	o.metrics.ObserveSubmitOutcome(string(outcome))
	switch outcome {
	case dialogue.OutcomeRejected, dialogue.OutcomeDropped, dialogue.OutcomeStale:
		o.metrics.ObserveTurnIndicator("submit_" + string(outcome))
		o.send(outbound, protocol.SystemEvent{
			Type:      protocol.TypeSystemEvent,
			SessionID: sessionID,
			Code:      "submit_" + string(outcome),
		})
	}
}

func (o *Orchestrator) send(outbound chan<- any, msg any) {
	msgType, critical := outboundMessageMeta(msg)
	record := func(result string) {
		o.metrics.ObserveOutboundMessage(msgType, result)
	}

	if !critical {
		select {
		case outbound <- msg:
			record("delivered")
		default:
			record("dropped")
			o.metrics.SessionEvents.WithLabelValues("outbound_drop").Inc()
		}
		return
	}

	timer := time.NewTimer(criticalSendTimeout)
	defer timer.Stop()
	select {
	case outbound <- msg:
		record("delivered")
	case <-timer.C:
		record("timeout")
		o.metrics.SessionEvents.WithLabelValues("outbound_timeout_critical").Inc()
		o.metrics.SessionEvents.WithLabelValues("outbound_drop").Inc()
	}
}

// outboundMessageMeta reports the envelope type and whether it must not be
// dropped under backpressure. Transcript changes are critical; diagnostics
// are not.
func outboundMessageMeta(msg any) (msgType string, critical bool) {
	switch m := msg.(type) {
	case protocol.TurnRendered:
		return string(m.Type), true
	case protocol.BusyState:
		return string(m.Type), true
	case protocol.TranscriptCleared:
		return string(m.Type), true
	case protocol.SystemEvent:
		return string(m.Type), !strings.HasPrefix(m.Code, "submit_")
	case protocol.ErrorEvent:
		return string(m.Type), false
	default:
		return "", false
	}
}
