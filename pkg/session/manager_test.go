package session

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New("", zerolog.Nop())
	assert.Error(t, err)
}

func TestAppendAndReadBack(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AppendMessage("s1", Message{Role: "user", Content: "hello"}))
	require.NoError(t, m.AppendMessage("s1", Message{Role: "assistant", Content: "hi there"}))

	messages, err := m.Messages("s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.False(t, messages[0].Timestamp.IsZero())
}

func TestMessages_MissingSessionIsEmpty(t *testing.T) {
	m := newTestManager(t)
	messages, err := m.Messages("never-written")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestAppendMessage_PartsContent(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AppendMessage("s1", Message{
		Role: "user",
		Content: []any{
			map[string]any{"type": "text", "text": "see attachment"},
		},
		Metadata: map[string]any{"channel": "gateway"},
	}))

	messages, err := m.Messages("s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)

	parts, ok := messages[0].Content.([]any)
	require.True(t, ok)
	require.Len(t, parts, 1)
	assert.Equal(t, "gateway", messages[0].Metadata["channel"])
}

func TestSubscribe_NotifiesOnAppend(t *testing.T) {
	m := newTestManager(t)

	var mu sync.Mutex
	var events []AppendEvent
	m.Subscribe(func(event AppendEvent) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	require.NoError(t, m.AppendMessage("s1", Message{Role: "user", Content: "hello"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "s1", events[0].SessionKey)
	assert.Equal(t, m.SessionPath("s1"), events[0].SessionFile)
	assert.Equal(t, "hello", events[0].Message.Content)
}

func TestAppendMessage_RejectsUnsafeKeys(t *testing.T) {
	m := newTestManager(t)

	for _, key := range []string{"", "../escape", "a/b", "a\\b", "nul\x00byte"} {
		assert.Error(t, m.AppendMessage(key, Message{Role: "user", Content: "x"}), "key %q", key)
	}
}

func TestAppendMessage_ConcurrentSameSession(t *testing.T) {
	m := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, m.AppendMessage("s1", Message{Role: "user", Content: "msg"}))
		}()
	}
	wg.Wait()

	messages, err := m.Messages("s1")
	require.NoError(t, err)
	assert.Len(t, messages, 20)
}

func TestAppendMessage_PreservesGivenTimestamp(t *testing.T) {
	m := newTestManager(t)
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.AppendMessage("s1", Message{Role: "user", Content: "x", Timestamp: ts}))

	messages, err := m.Messages("s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].Timestamp.Equal(ts))
}

func TestNewSessionKey_UniqueAndValid(t *testing.T) {
	a := NewSessionKey()
	b := NewSessionKey()
	assert.NotEqual(t, a, b)
	assert.NoError(t, validateSessionKey(a))
}
