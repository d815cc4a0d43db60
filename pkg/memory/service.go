package memory

import (
	"context"
	"errors"
	"time"

	"github.com/naralabs/nara/internal/observability"
	"github.com/naralabs/nara/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Config wires a memory Service.
type Config struct {
	// Workspace is the note-corpus root (long-term file + memory directory).
	Workspace string
	// DBPath locates the index store file.
	DBPath string

	// Enabled gates search entirely; a disabled service returns empty results.
	Enabled bool
	// SessionMemory gates transcript indexing and the conversation source.
	SessionMemory bool
	// Sources lists the corpora search may draw from.
	Sources []Source
	// MainSessionKey marks the primary conversation; other sessions do not
	// see long-term note chunks.
	MainSessionKey string
	// CrossSession is the default for surfacing other sessions' transcripts.
	CrossSession bool

	VectorWeight        float64
	TextWeight          float64
	MinScore            float64
	MaxResults          int
	CandidateMultiplier int

	// QueueSize bounds the transcript ingest queue; 0 disables the worker.
	QueueSize int

	Provider Provider
	Logger   zerolog.Logger
}

// SearchOptions scopes one query.
type SearchOptions struct {
	// SessionKey attributes the query to a conversation. Empty means the
	// query is operator-issued and treated as the main conversation.
	SessionKey string
	// CrossSession overrides the service default when non-nil.
	CrossSession *bool
}

// Service orchestrates sync, ingestion and hybrid retrieval over the index
// store, and applies the isolation policy between conversations and
// long-term notes.
type Service struct {
	cfg      Config
	store    *Store
	provider Provider
	logger   zerolog.Logger
	queue    *ingestQueue
	watcher  *Watcher
}

// NewService opens the index store and builds the service. The embedding
// provider must already be resolved; pass NoneProvider to run lexical-only.
func NewService(cfg Config) (*Service, error) {
	if cfg.Workspace == "" {
		return nil, errors.New("workspace path is required")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Provider == nil {
		cfg.Provider = NoneProvider{}
	}
	if cfg.MainSessionKey == "" {
		cfg.MainSessionKey = "main"
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = []Source{SourceNotes, SourceConversation}
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.CandidateMultiplier == 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}
	cfg.VectorWeight, cfg.TextWeight = NormalizeWeights(cfg.VectorWeight, cfg.TextWeight)

	store, err := OpenStore(cfg.DBPath, cfg.Logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		provider: cfg.Provider,
		logger:   cfg.Logger.With().Str("component", "memory").Logger(),
	}

	if cfg.QueueSize > 0 {
		s.queue = newIngestQueue(s, cfg.QueueSize)
	}

	return s, nil
}

// Sync runs one note-corpus reconciliation pass outside of a search.
func (s *Service) Sync(ctx context.Context) error {
	if err := EnsureNoteDirs(s.cfg.Workspace); err != nil {
		return err
	}
	_, err := s.syncNotes(ctx)
	return err
}

// Store exposes the underlying index store for maintenance paths.
func (s *Service) Store() *Store {
	return s.store
}

// Close stops background work and closes the store.
func (s *Service) Close() error {
	if s.queue != nil {
		s.queue.close()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	return s.store.Close()
}

// Search syncs the note corpus, loads candidate chunks for the active
// sources, applies isolation filters and ranks the survivors. Results are
// ordered by descending score and bounded by the configured limit.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error) {
	if !s.cfg.Enabled {
		return []Hit{}, nil
	}

	ctx, span := tracing.StartSpan(ctx, "nara.memory", "memory.search",
		attribute.String("session_key", opts.SessionKey),
	)
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordMemorySearch(time.Since(start)) }()

	if err := EnsureNoteDirs(s.cfg.Workspace); err != nil {
		return nil, err
	}

	// Freshness over cost: every query pays for a sync pass so results never
	// trail the filesystem. The mtime fast path keeps a quiet corpus cheap.
	notes, err := s.syncNotes(ctx)
	if err != nil {
		return nil, err
	}

	chunks, err := s.store.ChunksBySources(s.activeSources())
	if err != nil {
		return nil, err
	}

	chunks = s.applyIsolation(chunks, opts, notes.LongTerm)

	var queryEmbedding []float32
	if s.vectorsActive() {
		vectors, err := s.provider.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		if len(vectors) > 0 {
			queryEmbedding = vectors[0]
		}
	}

	hits := HybridSearch(query, queryEmbedding, chunks, SearchConfig{
		VectorWeight:        s.cfg.VectorWeight,
		TextWeight:          s.cfg.TextWeight,
		MinScore:            s.cfg.MinScore,
		MaxResults:          s.cfg.MaxResults,
		CandidateMultiplier: s.cfg.CandidateMultiplier,
	})

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Str("query", query).
		Int("candidates", len(chunks)).
		Int("results", len(hits)).
		Msg("Search completed")

	return hits, nil
}

// activeSources filters the configured sources: conversation is active only
// while session memory is enabled.
func (s *Service) activeSources() []Source {
	sources := make([]Source, 0, len(s.cfg.Sources))
	for _, src := range s.cfg.Sources {
		switch src {
		case SourceConversation:
			if s.cfg.SessionMemory {
				sources = append(sources, src)
			}
		case SourceNotes:
			sources = append(sources, src)
		}
	}
	return sources
}

// applyIsolation enforces the two isolation policies, in order. The
// long-term path set comes from this call's own discovery pass.
func (s *Service) applyIsolation(chunks []ChunkRecord, opts SearchOptions, longTerm map[string]bool) []ChunkRecord {
	// Long-term isolation: a query attributed to a non-main conversation
	// does not inherit the shared long-term notes. Operator queries with no
	// session key count as main.
	isMain := opts.SessionKey == "" || opts.SessionKey == s.cfg.MainSessionKey
	if !isMain && len(longTerm) > 0 {
		chunks = filterChunks(chunks, func(c ChunkRecord) bool {
			return !longTerm[c.Path]
		})
	}

	// Cross-conversation isolation: without the cross-session flag a session
	// only sees its own transcripts. Note chunks are never affected.
	crossSession := s.cfg.CrossSession
	if opts.CrossSession != nil {
		crossSession = *opts.CrossSession
	}
	if opts.SessionKey != "" && !crossSession {
		chunks = filterChunks(chunks, func(c ChunkRecord) bool {
			switch c.Source {
			case SourceConversation:
				return c.SessionKey == opts.SessionKey
			case SourceNotes:
				return true
			default:
				return true
			}
		})
	}

	return chunks
}

func filterChunks(chunks []ChunkRecord, keep func(ChunkRecord) bool) []ChunkRecord {
	filtered := chunks[:0:0]
	for _, c := range chunks {
		if keep(c) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// RecordTranscriptMessage indexes one appended conversation message
// synchronously. No-op unless both memory and session indexing are enabled
// and the conversation source is active.
func (s *Service) RecordTranscriptMessage(ctx context.Context, msg TranscriptMessage) error {
	if !s.transcriptIngestEnabled() {
		return nil
	}
	return s.recordTranscript(ctx, msg)
}

// EnqueueTranscriptMessage hands a message to the bounded ingest queue and
// returns immediately. When the queue is full or absent the message is
// dropped with a warning; ingestion never blocks the conversation flow.
func (s *Service) EnqueueTranscriptMessage(msg TranscriptMessage) {
	if !s.transcriptIngestEnabled() {
		return
	}
	if s.queue == nil {
		s.logger.Warn().Msg("Ingest queue disabled, dropping transcript message")
		observability.RecordIngestDrop()
		return
	}
	s.queue.enqueue(msg)
}

func (s *Service) transcriptIngestEnabled() bool {
	if !s.cfg.Enabled || !s.cfg.SessionMemory {
		return false
	}
	for _, src := range s.cfg.Sources {
		if src == SourceConversation {
			return true
		}
	}
	return false
}

// StartWatcher begins warming the index on filesystem changes. Search still
// syncs synchronously; the watcher only makes that pass cheaper.
func (s *Service) StartWatcher() error {
	if s.watcher != nil {
		return nil
	}
	watcher, err := NewWatcher(s.logger, func() {
		if _, err := s.syncNotes(context.Background()); err != nil {
			s.logger.Warn().Err(err).Msg("Background sync failed")
		}
	})
	if err != nil {
		return err
	}
	if err := watcher.Watch(s.cfg.Workspace); err != nil {
		watcher.Stop()
		return err
	}
	s.watcher = watcher
	return nil
}
