package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/naralabs/nara/internal/tracing"
)

// TranscriptMessage is one appended conversation message to ingest.
// Content may be a bare string or a list of message parts.
type TranscriptMessage struct {
	SessionKey  string
	SessionFile string
	Content     any
}

// ExtractMessageText flattens a message payload to plain text. A bare string
// is returned as-is; a parts list contributes each part's "text" field and
// non-text parts contribute nothing.
func ExtractMessageText(content any) string {
	switch payload := content.(type) {
	case string:
		return payload
	case []any:
		var parts []string
		for _, item := range payload {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// recordTranscript appends one chunk for a conversation message. Transcript
// files only grow; there is no replace step and the sync engine never diffs
// them against the filesystem.
func (s *Service) recordTranscript(ctx context.Context, msg TranscriptMessage) error {
	ctx, span := tracing.StartSpan(ctx, "nara.memory", "memory.record_transcript")
	defer span.End()

	if msg.SessionFile == "" {
		return fmt.Errorf("session file is required")
	}

	text := strings.TrimSpace(ExtractMessageText(msg.Content))
	if text == "" {
		return nil
	}

	var embedding []float32
	if s.vectorsActive() {
		vectors, err := s.provider.Embed(ctx, []string{text})
		if err != nil {
			return fmt.Errorf("failed to embed transcript message: %w", err)
		}
		if len(vectors) > 0 {
			embedding = vectors[0]
		}
	}

	index, err := s.store.AppendChunk(FileRecord{
		Path:       msg.SessionFile,
		Source:     SourceConversation,
		SessionKey: msg.SessionKey,
		UpdatedAt:  time.Now().UnixMilli(),
	}, text, embedding, "")
	if err != nil {
		return err
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("session_key", msg.SessionKey).
		Int("chunk_index", index).
		Msg("Transcript message indexed")
	return nil
}
