package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"timeplanner/internal/api"
	"timeplanner/internal/audit"
	"timeplanner/internal/config"
	"timeplanner/internal/events"
	"timeplanner/internal/metrics"
	"timeplanner/internal/model"
	"timeplanner/internal/oracle"
	"timeplanner/internal/reservation"
	"timeplanner/internal/session"
)

// pinger is a dependency checked by /readyz.
type pinger struct {
	name string
	ping func(ctx context.Context) error
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the schedule API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(os.Stdout, cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, &logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	var checks []pinger

	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.OracleCacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		checks = append(checks, pinger{name: "redis", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}

	var queues reservation.Oracle = oracle.Offline{}
	if cfg.Oracle.BaseURL != "" {
		client := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.OracleTimeout())
		client.UseMetrics(m)
		if rdb != nil {
			client.UseRedisCache(rdb, cfg.OracleCacheTTL())
		}
		if cfg.Oracle.RatePerSecond > 0 {
			client.UseRateLimit(cfg.Oracle.RatePerSecond, cfg.Oracle.Burst)
		}
		queues = client
		checks = append(checks, pinger{name: "oracle", ping: client.HealthCheck})
	} else {
		logger.Warn().Msg("oracle.base_url not set, every queue reports available")
	}

	bus := events.NewEventBus(logger)
	if cfg.Audit.Enabled {
		journal, err := audit.Open(cfg.Audit.Path, logger)
		if err != nil {
			return fmt.Errorf("open audit journal: %w", err)
		}
		defer journal.Close()

		bus.SubscribeAll(journal.Handler())
		checks = append(checks, pinger{name: "audit", ping: journal.Ping})

		retention := audit.NewRetention(journal, audit.RetentionConfig{
			Retention: cfg.AuditRetention(),
			ExportDir: cfg.Audit.ExportDir,
		}, logger)
		go retention.Run(ctx)

		if backupCfg := cfg.Audit.Backup; backupCfg.Dir != "" {
			backup := audit.NewBackup(journal, audit.BackupConfig{
				Dir:      backupCfg.Dir,
				Interval: cfg.AuditBackupInterval(),
				Keep:     time.Duration(backupCfg.KeepDays) * 24 * time.Hour,
			}, logger)
			go backup.Run(ctx)
		}
	}

	store := session.NewStore(queues, session.Config{
		TTL:           cfg.SessionTTL(),
		QueuePoolSize: cfg.QueuePoolSize(),
	}, logger, session.WithPublisher(bus), session.WithMetrics(m))
	defer store.Close()
	go store.Run(ctx, cfg.SessionCleanupInterval())

	if path := cfg.Schedule.DefaultPath; path != "" {
		err := config.WatchSchedule(ctx, path, cfg.ScheduleWatchInterval(), func(s model.WeeklySchedule) {
			store.SetDefault(s)
			logger.Info().Str("path", path).Msg("Default schedule loaded")
		})
		if err != nil {
			return fmt.Errorf("load default schedule: %w", err)
		}
	}

	go startHealthServer(ctx, cfg.HealthCheckPort(), checks, logger)
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.PrometheusPort(), logger)
	}

	server := api.NewHTTPServer(api.Config{Addr: cfg.ServerAddress(), APIKeys: cfg.Server.APIKeys}, store, m, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info().Str("version", Version).Msg("Timeplanner started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown")
	}
	logger.Info().Msg("Timeplanner stopped")
	return nil
}

func healthMux(ctx context.Context, checks []pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		for _, c := range checks {
			if err := c.ping(ctxPing); err != nil {
				http.Error(w, c.name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

func startHealthServer(ctx context.Context, port int, checks []pinger, logger *zerolog.Logger) {
	listen(ctx, port, healthMux(ctx, checks), "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	listen(ctx, port, mux, "metrics", logger)
}

func listen(ctx context.Context, port int, handler http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msgf("%s server error", name)
	}
}
