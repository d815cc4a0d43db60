package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// FileRecord is one indexed file. Path is unique across the store.
type FileRecord struct {
	ID         int64
	Path       string
	Source     Source
	SessionKey string
	UpdatedAt  int64 // mtime (notes) or ingestion time (transcripts), unix ms
}

// ChunkRecord is one indexed chunk, joined with its owning file.
type ChunkRecord struct {
	ID         int64
	FileID     int64
	Path       string
	Source     Source
	SessionKey string
	Index      int
	Content    string
	Embedding  []float32
	Metadata   string
}

// Store is the relational persistence layer for files and chunks.
// All multi-step mutations run inside a single transaction.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

const schema = `
	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		session_key TEXT,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_source ON files(source);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		embedding_dim INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE,
		UNIQUE (file_id, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);
`

// OpenStore opens (creating if needed) the index store at dbPath.
func OpenStore(dbPath string, logger zerolog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps readers unblocked while a sync pass writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "memory-store").Logger(),
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FileByPath returns the file record for path, or nil if none exists.
func (s *Store) FileByPath(path string) (*FileRecord, error) {
	row := s.db.QueryRow(
		"SELECT id, path, source, session_key, updated_at FROM files WHERE path = ?",
		path,
	)
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FilesBySource lists all file records with the given source.
func (s *Store) FilesBySource(source Source) ([]FileRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, path, source, session_key, updated_at FROM files WHERE source = ?",
		source.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *rec)
	}
	return files, rows.Err()
}

// DeleteFile removes a file row; chunks cascade.
func (s *Store) DeleteFile(path string) error {
	_, err := s.db.Exec("DELETE FROM files WHERE path = ?", path)
	return err
}

// ReplaceFileChunks upserts the file row and replaces its chunk set in one
// transaction. embeddings may be nil (no vectors) or must match len(contents).
func (s *Store) ReplaceFileChunks(file FileRecord, contents []string, embeddings [][]float32) error {
	if embeddings != nil && len(embeddings) != len(contents) {
		return fmt.Errorf("embedding count %d does not match chunk count %d", len(embeddings), len(contents))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	fileID, err := upsertFile(tx, file)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", fileID); err != nil {
		return err
	}

	for i, content := range contents {
		var embedding []float32
		if embeddings != nil {
			embedding = embeddings[i]
		}
		if err := insertChunk(tx, fileID, i, content, embedding, ""); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AppendChunk upserts the file row and appends one chunk at the next index,
// in one transaction. Returns the index assigned to the new chunk.
func (s *Store) AppendChunk(file FileRecord, content string, embedding []float32, metadata string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	fileID, err := upsertFile(tx, file)
	if err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM chunks WHERE file_id = ?", fileID).Scan(&count); err != nil {
		return 0, err
	}

	if err := insertChunk(tx, fileID, count, content, embedding, metadata); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// ChunksBySources loads every chunk owned by a file with one of the given
// sources, joined with the owning file's path and session key.
func (s *Store) ChunksBySources(sources []Source) ([]ChunkRecord, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(sources))
	args := make([]any, len(sources))
	for i, src := range sources {
		placeholders[i] = "?"
		args[i] = src.String()
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.file_id, f.path, f.source, COALESCE(f.session_key, ''),
		       c.chunk_index, c.content, c.embedding, COALESCE(c.metadata, '')
		FROM chunks c
		JOIN files f ON c.file_id = f.id
		WHERE f.source IN (%s)
		ORDER BY f.path, c.chunk_index`,
		strings.Join(placeholders, ","),
	)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var (
			rec       ChunkRecord
			sourceStr string
			embedding sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.FileID, &rec.Path, &sourceStr, &rec.SessionKey,
			&rec.Index, &rec.Content, &embedding, &rec.Metadata); err != nil {
			return nil, err
		}
		source, err := ParseSource(sourceStr)
		if err != nil {
			return nil, err
		}
		rec.Source = source
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &rec.Embedding); err != nil {
				return nil, fmt.Errorf("failed to decode embedding for chunk %d: %w", rec.ID, err)
			}
		}
		chunks = append(chunks, rec)
	}
	return chunks, rows.Err()
}

// CountFiles returns the number of file rows.
func (s *Store) CountFiles() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&n)
	return n, err
}

// CountChunks returns the number of chunk rows.
func (s *Store) CountChunks() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// PruneConversationsBefore deletes transcript files (and, via cascade, their
// chunks) whose last ingestion happened before cutoff. The sync engine never
// touches transcripts, so retention is the only pruning path for them.
func (s *Store) PruneConversationsBefore(cutoff int64) (int, error) {
	res, err := s.db.Exec(
		"DELETE FROM files WHERE source = ? AND updated_at < ?",
		SourceConversation.String(), cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*FileRecord, error) {
	var (
		rec        FileRecord
		sourceStr  string
		sessionKey sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Path, &sourceStr, &sessionKey, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	source, err := ParseSource(sourceStr)
	if err != nil {
		return nil, err
	}
	rec.Source = source
	rec.SessionKey = sessionKey.String
	return &rec, nil
}

func upsertFile(tx *sql.Tx, file FileRecord) (int64, error) {
	var sessionKey any
	if file.SessionKey != "" {
		sessionKey = file.SessionKey
	}

	_, err := tx.Exec(`
		INSERT INTO files (path, source, session_key, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source = excluded.source,
			session_key = excluded.session_key,
			updated_at = excluded.updated_at`,
		file.Path, file.Source.String(), sessionKey, file.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}

	var fileID int64
	if err := tx.QueryRow("SELECT id FROM files WHERE path = ?", file.Path).Scan(&fileID); err != nil {
		return 0, err
	}
	return fileID, nil
}

func insertChunk(tx *sql.Tx, fileID int64, index int, content string, embedding []float32, metadata string) error {
	var (
		embeddingJSON any
		dim           int
	)
	if len(embedding) > 0 {
		data, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		embeddingJSON = string(data)
		dim = len(embedding)
	}

	var meta any
	if metadata != "" {
		meta = metadata
	}

	_, err := tx.Exec(`
		INSERT INTO chunks (file_id, chunk_index, content, embedding, embedding_dim, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fileID, index, content, embeddingJSON, dim, meta,
	)
	return err
}
