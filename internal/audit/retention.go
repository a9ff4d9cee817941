package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// RetentionConfig holds configuration for journal cleanup.
type RetentionConfig struct {
	// Retention is how long entries are kept. Default: 31 days.
	Retention time.Duration

	// Interval between cleanup runs. Default: 1 hour.
	Interval time.Duration

	// ExportDir, when set, receives a workbook of the expiring entries
	// before they are deleted.
	ExportDir string
}

// Retention periodically archives and deletes old journal entries.
type Retention struct {
	journal *Journal
	config  RetentionConfig
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRetention creates a cleanup loop for journal.
func NewRetention(journal *Journal, config RetentionConfig, logger *zerolog.Logger) *Retention {
	if config.Retention <= 0 {
		config.Retention = 31 * 24 * time.Hour
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "audit_retention").Logger()
	}
	return &Retention{journal: journal, config: config, logger: l, now: time.Now}
}

// Run cleans up on every tick until ctx is done.
func (r *Retention) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Audit cleanup failed")
			}
		}
	}
}

// RunOnce archives (when configured) and deletes entries past retention.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	now := r.now()
	cutoff := now.Add(-r.config.Retention)

	if r.config.ExportDir != "" {
		if err := r.archive(ctx, now, cutoff); err != nil {
			return 0, err
		}
	}

	removed, err := r.journal.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old entries: %w", err)
	}
	if removed > 0 {
		r.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("Audit entries expired")
	}
	return removed, nil
}

func (r *Retention) archive(ctx context.Context, now, cutoff time.Time) error {
	all, err := r.journal.List(ctx, Filter{})
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	var expiring []Entry
	for _, e := range all {
		if e.CreatedAt.Before(cutoff) {
			expiring = append(expiring, e)
		}
	}
	if len(expiring) == 0 {
		return nil
	}

	if err := os.MkdirAll(r.config.ExportDir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(r.config.ExportDir, Filename(now))
	if err := ExportToFile(path, expiring); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	r.logger.Info().Str("path", path).Int("entries", len(expiring)).Msg("Audit entries archived")
	return nil
}
