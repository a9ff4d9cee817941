package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeplanner/internal/clock"
	"timeplanner/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_ORACLE_KEY", "s3cret")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
server:
  address: ":9000"
  api_keys: ["a", "b"]
schedule:
  queue_pool_size: 6
oracle:
  base_url: "http://backend"
  api_key: "${TEST_ORACLE_KEY}"
  cache_ttl_seconds: 15
sessions:
  ttl_minutes: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddress())
	assert.Equal(t, []string{"a", "b"}, cfg.Server.APIKeys)
	assert.Equal(t, 6, cfg.QueuePoolSize())
	assert.Equal(t, "s3cret", cfg.Oracle.APIKey)
	assert.Equal(t, 15*time.Second, cfg.OracleCacheTTL())
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL())
	assert.Equal(t, "data/audit.db", cfg.Audit.Path)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "{}\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"address", cfg.ServerAddress(), ":8080"},
		{"log level", cfg.LogLevel(), "info"},
		{"queue pool", cfg.QueuePoolSize(), 4},
		{"watch interval", cfg.ScheduleWatchInterval(), 30 * time.Second},
		{"session ttl", cfg.SessionTTL(), 30 * time.Minute},
		{"cleanup interval", cfg.SessionCleanupInterval(), time.Minute},
		{"oracle timeout", cfg.OracleTimeout(), 10 * time.Second},
		{"cache ttl", cfg.OracleCacheTTL(), time.Duration(0)},
		{"audit retention", cfg.AuditRetention(), 31 * 24 * time.Hour},
		{"audit backup interval", cfg.AuditBackupInterval(), 24 * time.Hour},
		{"health port", cfg.HealthCheckPort(), 8081},
		{"prometheus port", cfg.PrometheusPort(), 9090},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestLoad_PathFromEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "planner.yaml", "logging:\n  level: debug\n")
	t.Setenv(EnvPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, t.TempDir(), "bad.yaml", "server: [\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadSchedule(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "week.yaml",
			content: `
allowSchedule: true
allDays:
  startTime: "08:00"
  endTime: "17:00"
days:
  - active: true
    startTime: "08:00"
    endTime: "17:00"
    queueNumber: 1
`,
		},
		{
			name:    "json",
			file:    "week.json",
			content: `{"allowSchedule":true,"allDays":{"startTime":"08:00","endTime":"17:00"},"days":[{"active":true,"startTime":"08:00","endTime":"17:00","queueNumber":1}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadSchedule(writeFile(t, dir, tt.file, tt.content))
			require.NoError(t, err)
			assert.True(t, s.AllowSchedule)
			assert.Equal(t, clock.At(8, 0), s.AllDays.Shift.Start)
			assert.True(t, s.Days[0].Active)
			assert.Equal(t, 1, s.Days[0].QueueSlot)
			assert.Equal(t, model.NoBreakDay, s.Days[1].BreakDayIndex)
		})
	}

	_, err := LoadSchedule(writeFile(t, dir, "bad.json", `{"days":[{"queueNumber":"x"}]}`))
	assert.Error(t, err)
}

func TestWatchSchedule(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "week.yaml", "allowSchedule: false\n")

	var mu sync.Mutex
	var seen []bool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchSchedule(ctx, path, 10*time.Millisecond, func(s model.WeeklySchedule) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.AllowSchedule)
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("allowSchedule: true\n"), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2 && seen[1]
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, seen[0])
}

func TestWatchSchedule_MissingFile(t *testing.T) {
	err := WatchSchedule(context.Background(), filepath.Join(t.TempDir(), "none.yaml"), time.Second, nil)
	assert.Error(t, err)
}
