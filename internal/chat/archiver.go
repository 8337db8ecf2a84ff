package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/chatdesk/internal/archive"
	"github.com/antoniostano/chatdesk/internal/observability"
	"github.com/antoniostano/chatdesk/internal/policy"
	"github.com/antoniostano/chatdesk/internal/session"
)

const archiveWriteTimeout = 3 * time.Second

// Archiver writes redacted turns to the archive store from a single
// goroutine, in the order they were enqueued. Enqueue never blocks; turns
// are dropped when the queue is full.
type Archiver struct {
	store   archive.Store
	metrics *observability.Metrics
	queue   chan archive.TurnRecord
}

func NewArchiver(store archive.Store, metrics *observability.Metrics, size int) *Archiver {
	if size <= 0 {
		size = 1024
	}
	return &Archiver{
		store:   store,
		metrics: metrics,
		queue:   make(chan archive.TurnRecord, size),
	}
}

func (a *Archiver) Enqueue(sessionID, userID string, turn session.Turn, synthetic bool) {
	if a == nil || a.store == nil {
		return
	}
	content, redacted := policy.RedactPII(turn.Text)
	record := archive.TurnRecord{
		ID:          turn.ID,
		SessionID:   sessionID,
		UserID:      userID,
		Role:        string(turn.Role),
		Content:     content,
		Synthetic:   synthetic,
		PIIRedacted: redacted,
		CreatedAt:   time.Now().UTC(),
	}
	select {
	case a.queue <- record:
	default:
		a.metrics.ArchiveErrors.Inc()
		log.Warn().Str("session_id", sessionID).Msg("archive queue full, dropping turn")
	}
}

// Run drains the queue until ctx is done, then flushes what is left.
func (a *Archiver) Run(ctx context.Context) error {
	if a == nil || a.store == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case record := <-a.queue:
			a.write(ctx, record)
		case <-ctx.Done():
			for {
				select {
				case record := <-a.queue:
					a.write(context.WithoutCancel(ctx), record)
				default:
					return nil
				}
			}
		}
	}
}

func (a *Archiver) write(ctx context.Context, record archive.TurnRecord) {
	ctx, cancel := context.WithTimeout(ctx, archiveWriteTimeout)
	defer cancel()
	if err := a.store.SaveTurn(ctx, record); err != nil {
		a.metrics.ArchiveErrors.Inc()
		log.Warn().
			Err(err).
			Str("session_id", record.SessionID).
			Str("turn_id", record.ID).
			Msg("archive turn failed")
	}
}
