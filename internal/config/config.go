package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "PLANNER_CONFIG_PATH"

type Config struct {
	Server struct {
		Address string   `yaml:"address"`
		APIKeys []string `yaml:"api_keys"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`

	Schedule struct {
		QueuePoolSize       int    `yaml:"queue_pool_size"`
		DefaultPath         string `yaml:"default_path"`
		WatchIntervalSecond int    `yaml:"watch_interval_seconds"`
	} `yaml:"schedule"`

	Sessions struct {
		TTLMinutes             int `yaml:"ttl_minutes"`
		CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
	} `yaml:"sessions"`

	Oracle struct {
		BaseURL         string  `yaml:"base_url"`
		APIKey          string  `yaml:"api_key"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		RatePerSecond   float64 `yaml:"rate_per_second"`
		Burst           int     `yaml:"burst"`
		CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	} `yaml:"oracle"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
		ExportDir     string `yaml:"export_dir"`
		Backup        struct {
			Dir           string `yaml:"dir"`
			IntervalHours int    `yaml:"interval_hours"`
			KeepDays      int    `yaml:"keep_days"`
		} `yaml:"backup"`
	} `yaml:"audit"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

// Load reads the YAML config at path. Variables from a .env file in the
// working directory are loaded first so ${VAR} placeholders can use them.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "data/audit.db"
	}
	return &cfg, nil
}

func (c *Config) ServerAddress() string {
	if c.Server.Address == "" {
		return ":8080"
	}
	return c.Server.Address
}

func (c *Config) LogLevel() string {
	if c.Logging.Level == "" {
		return "info"
	}
	return c.Logging.Level
}

func (c *Config) QueuePoolSize() int {
	if c.Schedule.QueuePoolSize <= 0 {
		return 4
	}
	return c.Schedule.QueuePoolSize
}

func (c *Config) ScheduleWatchInterval() time.Duration {
	if c.Schedule.WatchIntervalSecond <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Schedule.WatchIntervalSecond) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	if c.Sessions.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Sessions.TTLMinutes) * time.Minute
}

func (c *Config) SessionCleanupInterval() time.Duration {
	if c.Sessions.CleanupIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Sessions.CleanupIntervalSeconds) * time.Second
}

func (c *Config) OracleTimeout() time.Duration {
	if c.Oracle.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}

func (c *Config) OracleCacheTTL() time.Duration {
	if c.Oracle.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Oracle.CacheTTLSeconds) * time.Second
}

func (c *Config) AuditRetention() time.Duration {
	if c.Audit.RetentionDays <= 0 {
		return 31 * 24 * time.Hour
	}
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

func (c *Config) AuditBackupInterval() time.Duration {
	if c.Audit.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Audit.Backup.IntervalHours) * time.Hour
}

func (c *Config) HealthCheckPort() int {
	if c.Monitoring.HealthCheckPort <= 0 {
		return 8081
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) PrometheusPort() int {
	if c.Monitoring.PrometheusPort <= 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}
