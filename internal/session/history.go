package session

import "sync"

// Role tags the speaker of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one utterance in the dialogue. Turns are values and never mutated
// after they are appended.
type Turn struct {
	ID   string `json:"turn_id,omitempty"`
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// History is the ordered turn log of one conversation. Insertion order is
// conversational order; turns are only ever appended or cleared all at once.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(turn Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// All returns a copy of the turns in order.
func (h *History) All() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
