package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const backupPrefix = "audit_backup_"

// BackupConfig holds configuration for journal snapshots.
type BackupConfig struct {
	// Dir receives the snapshot files.
	Dir string

	// Interval between snapshots. Default: 24 hours.
	Interval time.Duration

	// Keep is how long snapshots are kept. Zero keeps them forever.
	Keep time.Duration
}

// Backup periodically snapshots the journal database.
type Backup struct {
	journal *Journal
	config  BackupConfig
	logger  zerolog.Logger
	now     func() time.Time
}

func NewBackup(journal *Journal, config BackupConfig, logger *zerolog.Logger) *Backup {
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "audit_backup").Logger()
	}
	return &Backup{journal: journal, config: config, logger: l, now: time.Now}
}

// Run takes a snapshot immediately and then on every tick until ctx is done.
func (b *Backup) Run(ctx context.Context) {
	b.logger.Info().Str("dir", b.config.Dir).Dur("interval", b.config.Interval).Msg("Audit backup started")

	if _, err := b.RunOnce(ctx); err != nil {
		b.logger.Error().Err(err).Msg("Initial audit backup failed")
	}

	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.RunOnce(ctx); err != nil {
				b.logger.Error().Err(err).Msg("Scheduled audit backup failed")
			}
		}
	}
}

// RunOnce writes one snapshot and prunes expired ones. It returns the
// snapshot path.
func (b *Backup) RunOnce(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := b.now()
	path := filepath.Join(b.config.Dir, backupPrefix+now.Format("20060102_150405")+".db")
	if err := b.journal.Snapshot(ctx, path); err != nil {
		return "", err
	}
	b.logger.Info().Str("path", path).Msg("Audit backup completed")

	b.prune(now)
	return path, nil
}

func (b *Backup) prune(now time.Time) {
	if b.config.Keep <= 0 {
		return
	}

	files, err := os.ReadDir(b.config.Dir)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return
	}

	cutoff := now.Add(-b.config.Keep)
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			b.logger.Info().Str("file", file.Name()).Msg("Deleting old audit backup")
			_ = os.Remove(filepath.Join(b.config.Dir, file.Name()))
		}
	}
}
