// Package archive keeps a best-effort audit log of chat turns. It is
// write-mostly and never used to restore a live transcript.
package archive

import (
	"context"
	"time"
)

// TurnRecord is one archived user or model turn.
type TurnRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Synthetic   bool      `json:"synthetic"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	// SessionTurns returns up to limit of the most recent turns of a session
	// in chronological order. limit <= 0 means all.
	SessionTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	Close() error
}
