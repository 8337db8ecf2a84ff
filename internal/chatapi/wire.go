package chatapi

import "github.com/antoniostano/chatdesk/internal/session"

// ChatRequest is the body posted to the remote chat endpoint.
type ChatRequest struct {
	Message string         `json:"message"`
	History []HistoryEntry `json:"history"`
}

// HistoryEntry carries one prior turn. Text travels as a single-element parts list.
type HistoryEntry struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// ChatResponse is the body returned by the remote chat endpoint.
type ChatResponse struct {
	Response string `json:"response"`
	Role     string `json:"role,omitempty"`
}

func NewChatRequest(message string, history []session.Turn) ChatRequest {
	entries := make([]HistoryEntry, 0, len(history))
	for _, t := range history {
		entries = append(entries, HistoryEntry{
			Role:  string(t.Role),
			Parts: []string{t.Text},
		})
	}
	return ChatRequest{Message: message, History: entries}
}

// Turns converts wire history back into turns. Unknown roles are treated as model.
func (r ChatRequest) Turns() []session.Turn {
	out := make([]session.Turn, 0, len(r.History))
	for _, h := range r.History {
		role := session.RoleModel
		if h.Role == string(session.RoleUser) {
			role = session.RoleUser
		}
		text := ""
		if len(h.Parts) > 0 {
			text = h.Parts[0]
		}
		out = append(out, session.Turn{Role: role, Text: text})
	}
	return out
}
