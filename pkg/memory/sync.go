package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/naralabs/nara/internal/observability"
	"github.com/naralabs/nara/internal/tracing"
)

// longTermFileName is the canonical long-term memory file, matched
// case-insensitively at the workspace root.
const longTermFileName = "MEMORY.md"

// memoryDirName holds daily notes under the workspace root.
const memoryDirName = "memory"

// notePaths is the result of one corpus discovery pass. LongTerm is threaded
// into the search filter step rather than cached on the service, so
// concurrent searches each see the set their own sync pass discovered.
type notePaths struct {
	// All discovered note files, resolved, in discovery order.
	All []string
	// LongTerm marks which resolved paths are long-term memory files.
	LongTerm map[string]bool
}

// EnsureNoteDirs creates the workspace and daily-note directories.
func EnsureNoteDirs(workspace string) error {
	if workspace == "" {
		return fmt.Errorf("workspace path is required")
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(workspace, memoryDirName), 0o755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}
	return nil
}

// discoverNotes enumerates the note corpus: workspace-root entries whose name
// equals the long-term file name case-insensitively, plus every markdown file
// directly under the memory directory. Paths are resolved through symlinks
// and deduplicated so an aliased file is indexed once.
func discoverNotes(workspace string) (notePaths, error) {
	paths := notePaths{LongTerm: make(map[string]bool)}
	seen := make(map[string]bool)

	rootEntries, err := os.ReadDir(workspace)
	if err != nil {
		return paths, fmt.Errorf("failed to read workspace: %w", err)
	}
	for _, entry := range rootEntries {
		if entry.IsDir() || !strings.EqualFold(entry.Name(), longTermFileName) {
			continue
		}
		resolved, err := filepath.EvalSymlinks(filepath.Join(workspace, entry.Name()))
		if err != nil {
			continue
		}
		if !seen[resolved] {
			seen[resolved] = true
			paths.All = append(paths.All, resolved)
		}
		paths.LongTerm[resolved] = true
	}

	memoryDir := filepath.Join(workspace, memoryDirName)
	dirEntries, err := os.ReadDir(memoryDir)
	if err != nil {
		// A missing daily-note directory is an empty corpus, not an error.
		if os.IsNotExist(err) {
			return paths, nil
		}
		return paths, fmt.Errorf("failed to read memory directory: %w", err)
	}
	for _, entry := range dirEntries {
		if entry.IsDir() || !isMarkdown(entry.Name()) {
			continue
		}
		resolved, err := filepath.EvalSymlinks(filepath.Join(memoryDir, entry.Name()))
		if err != nil {
			continue
		}
		if info, err := os.Stat(resolved); err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !seen[resolved] {
			seen[resolved] = true
			paths.All = append(paths.All, resolved)
		}
	}

	return paths, nil
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	default:
		return false
	}
}

// syncNotes reconciles the note corpus with the index store and returns the
// discovered paths. Change detection is mtime equality only: a file rewritten
// without touching its mtime is not re-indexed.
func (s *Service) syncNotes(ctx context.Context) (notePaths, error) {
	ctx, span := tracing.StartSpan(ctx, "nara.memory", "memory.sync")
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()
	defer func() { observability.RecordMemorySync(time.Since(start)) }()

	paths, err := discoverNotes(s.cfg.Workspace)
	if err != nil {
		return paths, err
	}

	discovered := make(map[string]bool, len(paths.All))
	for _, p := range paths.All {
		discovered[p] = true
	}

	// Drop note rows whose file vanished from the corpus.
	indexed, err := s.store.FilesBySource(SourceNotes)
	if err != nil {
		return paths, err
	}
	for _, file := range indexed {
		if discovered[file.Path] {
			continue
		}
		if err := s.store.DeleteFile(file.Path); err != nil {
			return paths, err
		}
		logger.Debug().Str("path", file.Path).Msg("Pruned deleted note file")
	}

	indexedCount := 0
	for _, path := range paths.All {
		changed, err := s.syncNoteFile(ctx, path)
		if err != nil {
			return paths, err
		}
		if changed {
			indexedCount++
		}
	}

	if indexedCount > 0 {
		logger.Debug().
			Int("files_indexed", indexedCount).
			Int("files_total", len(paths.All)).
			Dur("duration", time.Since(start)).
			Msg("Note sync completed")
	}

	if chunks, err := s.store.CountChunks(); err == nil {
		observability.SetMemoryChunks(chunks)
	}

	return paths, nil
}

// syncNoteFile re-indexes one note file unless its mtime is unchanged.
// Unreadable files are skipped, not errors.
func (s *Service) syncNoteFile(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	updatedAt := info.ModTime().UnixMilli()

	existing, err := s.store.FileByPath(path)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.UpdatedAt == updatedAt {
		return false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}

	chunks := ChunkText(string(content), DefaultChunkTokens, DefaultChunkOverlap)

	var embeddings [][]float32
	if len(chunks) > 0 && s.vectorsActive() {
		embeddings, err = s.provider.Embed(ctx, chunks)
		if err != nil {
			return false, fmt.Errorf("failed to embed %s: %w", path, err)
		}
	}

	err = s.store.ReplaceFileChunks(FileRecord{
		Path:      path,
		Source:    SourceNotes,
		UpdatedAt: updatedAt,
	}, chunks, embeddings)
	if err != nil {
		return false, err
	}
	return true, nil
}

// vectorsActive reports whether embedding calls should happen at all.
func (s *Service) vectorsActive() bool {
	return s.cfg.VectorWeight > 0 && s.provider.Name() != providerNone
}
