package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"timeplanner/internal/audit"
	"timeplanner/internal/config"
)

func newAuditCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit journal",
	}
	cmd.AddCommand(newAuditExportCmd(configPath))
	return cmd
}

func newAuditExportCmd(configPath *string) *cobra.Command {
	var (
		outDir    string
		sessionID string
		eventType string
		since     time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export journal entries to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(os.Stderr, cfg)

			journal, err := audit.Open(cfg.Audit.Path, &logger)
			if err != nil {
				return err
			}
			defer journal.Close()

			filter := audit.Filter{SessionID: sessionID, Type: eventType, Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			entries, err := journal.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(outDir, audit.Filename(time.Now()))
			if err := audit.ExportToFile(path, entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", len(entries), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "exports", "output directory")
	cmd.Flags().StringVar(&sessionID, "session", "", "only entries of this session")
	cmd.Flags().StringVar(&eventType, "type", "", "only entries of this event type")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this, e.g. 24h")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries")
	return cmd
}
