package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreSessionTurns(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveTurn(ctx, TurnRecord{SessionID: "s1", Role: "user", Content: text}))
	}
	require.NoError(t, s.SaveTurn(ctx, TurnRecord{SessionID: "s2", Role: "user", Content: "other"}))

	all, err := s.SessionTurns(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Content)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].CreatedAt.IsZero())

	last, err := s.SessionTurns(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0].Content)
	assert.Equal(t, "c", last[1].Content)

	none, err := s.SessionTurns(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.SaveTurn(ctx, TurnRecord{SessionID: "s1", Content: "a"}))

	got, err := s.SessionTurns(ctx, "s1", 0)
	require.NoError(t, err)
	got[0].Content = "mutated"

	again, err := s.SessionTurns(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Content)
}

func TestNewStoreWithoutDatabaseURLIsInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "  ")
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, s)
	assert.NoError(t, s.Close())
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	url := os.Getenv("CHATDESK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHATDESK_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer s.Close()

	sessionID := uuid.NewString()
	require.NoError(t, s.SaveTurn(ctx, TurnRecord{SessionID: sessionID, Role: "user", Content: "hello"}))
	require.NoError(t, s.SaveTurn(ctx, TurnRecord{SessionID: sessionID, Role: "model", Content: "hi", Synthetic: true}))

	turns, err := s.SessionTurns(ctx, sessionID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].Content)
	assert.True(t, turns[1].Synthetic)
}
