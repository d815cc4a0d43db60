package memory

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RetentionConfig configures the transcript retention janitor. The sync
// engine never prunes conversation transcripts, so without retention they
// grow forever.
type RetentionConfig struct {
	// Schedule is a cron expression or descriptor such as "@daily".
	Schedule string
	// MaxAge is how long an idle transcript is kept.
	MaxAge time.Duration
}

// Retention periodically deletes transcript files whose last ingestion is
// older than the configured age.
type Retention struct {
	store  *Store
	cfg    RetentionConfig
	logger zerolog.Logger
	cron   *cron.Cron
}

// NewRetention builds the janitor without starting it.
func NewRetention(store *Store, cfg RetentionConfig, logger zerolog.Logger) (*Retention, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive")
	}
	return &Retention{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "memory-retention").Logger(),
	}, nil
}

// Start schedules the prune job.
func (r *Retention) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.RunOnce(); err != nil {
			r.logger.Warn().Err(err).Msg("Transcript retention pass failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.cfg.Schedule, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop cancels the schedule, waiting for a running pass to finish.
func (r *Retention) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunOnce prunes transcripts older than the cutoff and returns how many
// files were removed.
func (r *Retention) RunOnce() (int, error) {
	cutoff := time.Now().Add(-r.cfg.MaxAge).UnixMilli()
	pruned, err := r.store.PruneConversationsBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		r.logger.Info().Int("files_pruned", pruned).Msg("Pruned stale transcripts")
	}
	return pruned, nil
}
