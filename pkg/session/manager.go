// Package session persists conversation transcripts as JSONL files and
// publishes a message-append event stream that downstream consumers (the
// memory ingest queue) subscribe to.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/naralabs/nara/internal/observability"
	"github.com/rs/zerolog"
)

// Message is a single conversation turn.
type Message struct {
	Role      string         `json:"role"`
	Content   any            `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AppendEvent is delivered to listeners for every appended message.
type AppendEvent struct {
	SessionKey  string
	SessionFile string
	Message     Message
}

// Listener receives append events. Listeners must not block; slow consumers
// should hand off to their own queue.
type Listener func(AppendEvent)

// Manager manages conversation persistence using JSONL files, one per
// session key.
type Manager struct {
	sessionsDir string
	logger      zerolog.Logger

	locksMu    sync.Mutex
	writeLocks map[string]*sync.Mutex

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New creates a session manager rooted at sessionsDir.
func New(sessionsDir string, logger zerolog.Logger) (*Manager, error) {
	observability.EnsureRegistered()

	if sessionsDir == "" {
		return nil, fmt.Errorf("sessions directory is required")
	}
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &Manager{
		sessionsDir: sessionsDir,
		logger:      logger.With().Str("component", "session").Logger(),
		writeLocks:  make(map[string]*sync.Mutex),
	}, nil
}

// NewSessionKey returns a fresh unique session key.
func NewSessionKey() string {
	return uuid.New().String()
}

// Subscribe registers a listener for append events.
func (m *Manager) Subscribe(listener Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// SessionPath returns the transcript file path for a session key.
func (m *Manager) SessionPath(sessionKey string) string {
	return filepath.Join(m.sessionsDir, sessionKey+".jsonl")
}

// AppendMessage appends a message to the session transcript and notifies
// listeners. Writes to the same session are serialized.
func (m *Manager) AppendMessage(sessionKey string, msg Message) error {
	if err := validateSessionKey(sessionKey); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	lock := m.lockFor(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	path := m.SessionPath(sessionKey)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	observability.RecordSessionAppend()
	m.notify(AppendEvent{SessionKey: sessionKey, SessionFile: path, Message: msg})
	return nil
}

// Messages loads the full transcript for a session. A missing transcript is
// an empty session.
func (m *Manager) Messages(sessionKey string) ([]Message, error) {
	if err := validateSessionKey(sessionKey); err != nil {
		return nil, err
	}

	file, err := os.Open(m.SessionPath(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var messages []Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode transcript line: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, scanner.Err()
}

func (m *Manager) lockFor(sessionKey string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.writeLocks[sessionKey]
	if !ok {
		lock = &sync.Mutex{}
		m.writeLocks[sessionKey] = lock
	}
	return lock
}

func (m *Manager) notify(event AppendEvent) {
	m.listenersMu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}

func validateSessionKey(sessionKey string) error {
	if sessionKey == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(sessionKey, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(sessionKey, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(sessionKey, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}
