package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"timeplanner/internal/config"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "timeplanner",
		Short:         "Weekly work schedule editor with queue reservation checks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default $"+config.EnvPath+" or configs/config.yaml)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newValidateCmd())
	root.AddCommand(newAuditCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	if !cfg.Logging.JSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel())
	if err != nil {
		logger.Warn().Str("level", cfg.LogLevel()).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
