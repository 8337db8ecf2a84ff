package archive

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PostgresStore archives turns in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		synthetic BOOLEAN NOT NULL DEFAULT FALSE,
		pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
		seq BIGSERIAL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_chat_turns_session_seq ON chat_turns (session_id, seq);`,
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "init schema failed on %q", stmt)
		}
	}
	return nil
}

func (s *PostgresStore) SaveTurn(ctx context.Context, record TurnRecord) error {
	fillDefaults(&record)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_turns (id, session_id, user_id, role, content, synthetic, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID,
		record.SessionID,
		record.UserID,
		record.Role,
		record.Content,
		record.Synthetic,
		record.PIIRedacted,
		record.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "save turn")
	}
	return nil
}

func (s *PostgresStore) SessionTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	// LIMIT ALL when limit is NULL.
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, user_id, role, content, synthetic, pii_redacted, created_at
		 FROM chat_turns WHERE session_id=$1 ORDER BY seq DESC LIMIT $2`,
		sessionID,
		lim,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query session turns")
	}
	defer rows.Close()

	var items []TurnRecord
	for rows.Next() {
		var r TurnRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.Role, &r.Content, &r.Synthetic, &r.PIIRedacted, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan turn row")
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate turn rows")
	}

	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
