package chat

import (
	"sync"

	"github.com/antoniostano/chatdesk/internal/protocol"
	"github.com/antoniostano/chatdesk/internal/render"
	"github.com/antoniostano/chatdesk/internal/session"
)

type sink struct {
	send func(msg any)
	// last turn delivered by the attach replay; it may still be rendered live
	skip string
}

// fanout is the presenter of one conversation. It turns controller
// notifications into protocol envelopes for every attached connection.
type fanout struct {
	sessionID string

	mu    sync.Mutex
	sinks map[int]*sink
	next  int
	busy  bool
}

func newFanout(sessionID string) *fanout {
	return &fanout{sessionID: sessionID, sinks: make(map[int]*sink)}
}

func (f *fanout) Render(turn session.Turn) {
	msg := protocol.TurnRendered{
		Type:      protocol.TypeTurnRendered,
		SessionID: f.sessionID,
		TurnID:    turn.ID,
		Role:      string(turn.Role),
		Text:      turn.Text,
		HTML:      render.Turn(turn),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sinks {
		skip := s.skip != "" && s.skip == turn.ID
		s.skip = ""
		if skip {
			continue
		}
		s.send(msg)
	}
}

func (f *fanout) SetBusy(busy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = busy
	f.broadcastLocked(protocol.BusyState{
		Type:      protocol.TypeBusyState,
		SessionID: f.sessionID,
		Busy:      busy,
	})
}

func (f *fanout) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sinks {
		s.skip = ""
	}
	f.broadcastLocked(protocol.TranscriptCleared{
		Type:      protocol.TypeTranscriptCleared,
		SessionID: f.sessionID,
	})
}

// Broadcast sends an envelope that is not a presenter notification.
func (f *fanout) Broadcast(msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcastLocked(msg)
}

func (f *fanout) broadcastLocked(msg any) {
	for _, s := range f.sinks {
		s.send(msg)
	}
}

// attach replays the transcript and current busy state to send, then
// registers it for live notifications. A render that races with the replay
// is delivered once.
func (f *fanout) attach(history *session.History, send func(msg any)) (detach func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	turns := history.All()
	s := &sink{send: send}
	for _, turn := range turns {
		send(protocol.TurnRendered{
			Type:      protocol.TypeTurnRendered,
			SessionID: f.sessionID,
			TurnID:    turn.ID,
			Role:      string(turn.Role),
			Text:      turn.Text,
			HTML:      render.Turn(turn),
			Replay:    true,
		})
		s.skip = turn.ID
	}
	send(protocol.BusyState{
		Type:      protocol.TypeBusyState,
		SessionID: f.sessionID,
		Busy:      f.busy,
	})

	id := f.next
	f.next++
	f.sinks[id] = s
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.sinks, id)
	}
}

func (f *fanout) attached() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}
