package memory

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetention_Validation(t *testing.T) {
	store := newTestStore(t)

	_, err := NewRetention(store, RetentionConfig{MaxAge: 0}, zerolog.Nop())
	assert.Error(t, err)

	r, err := NewRetention(store, RetentionConfig{MaxAge: time.Hour}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "@daily", r.cfg.Schedule)
}

func TestRetention_RunOnce(t *testing.T) {
	store := newTestStore(t)

	stale := FileRecord{
		Path:       "/sessions/stale.jsonl",
		Source:     SourceConversation,
		SessionKey: "stale",
		UpdatedAt:  time.Now().Add(-48 * time.Hour).UnixMilli(),
	}
	fresh := FileRecord{
		Path:       "/sessions/fresh.jsonl",
		Source:     SourceConversation,
		SessionKey: "fresh",
		UpdatedAt:  time.Now().UnixMilli(),
	}
	note := FileRecord{Path: "/ws/MEMORY.md", Source: SourceNotes, UpdatedAt: 1}

	_, err := store.AppendChunk(stale, "old talk", nil, "")
	require.NoError(t, err)
	_, err = store.AppendChunk(fresh, "new talk", nil, "")
	require.NoError(t, err)
	require.NoError(t, store.ReplaceFileChunks(note, []string{"ancient note"}, nil))

	r, err := NewRetention(store, RetentionConfig{MaxAge: 24 * time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	pruned, err := r.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	chunks, err := store.ChunksBySources([]Source{SourceConversation})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new talk", chunks[0].Content)

	// Notes are outside retention's remit no matter how old.
	rec, err := store.FileByPath("/ws/MEMORY.md")
	require.NoError(t, err)
	assert.NotNil(t, rec)

	// Idempotent.
	pruned, err = r.RunOnce()
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestRetention_StartRejectsBadSchedule(t *testing.T) {
	store := newTestStore(t)

	r, err := NewRetention(store, RetentionConfig{Schedule: "not a schedule", MaxAge: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, r.Start())
}
