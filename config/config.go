package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"reminderbot/core"
	"reminderbot/core/log"
)

// Storage backends
const (
	BackendJSON     = "json"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var backends = []string{BackendJSON, BackendBolt, BackendSQLite, BackendPostgres}

type StorageConfig struct {
	Backend        string
	DataFile       string
	BoltFile       string
	SQLiteFile     string
	DatabaseURL    string
	DatabaseSchema string
}

// Validate checks that the selected backend has everything it needs
func (c StorageConfig) Validate() error {
	switch c.Backend {
	case BackendJSON, BackendBolt, BackendSQLite:
		return nil
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_URL is not set (required for the %s backend)", BackendPostgres)
		}
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q, expected one of %s", c.Backend, strings.Join(backends, ", "))
	}
}

type SchedulerConfig struct {
	TickInterval    time.Duration
	DefaultInterval time.Duration
	MentionCap      int
	DispatchDelay   time.Duration
	DueTolerance    time.Duration
	EventTimeout    time.Duration
	SyncInterval    time.Duration
	ShutdownGrace   time.Duration
}

type AppConfig struct {
	DiscordBotToken string
	CommandPrefix   string
	MetricsAddr     string // Empty disables the metrics server
	LogLevel        string
	LogFormat       string

	Storage   StorageConfig
	Scheduler SchedulerConfig
}

func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn("⚠️ Could not load .env file, continuing with system env vars")
	}

	token, err := getEnvRequired("DISCORD_BOT_TOKEN")
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		DiscordBotToken: token,
		CommandPrefix:   getEnvWithDefault("COMMAND_PREFIX", "!"),
		MetricsAddr:     getEnvWithDefault("METRICS_ADDR", ":9090"),
		LogLevel:        getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvWithDefault("LOG_FORMAT", "console"),

		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnvWithDefault("STORAGE_BACKEND", BackendJSON)),
			DataFile:       getEnvWithDefault("DATA_FILE", "events.json"),
			BoltFile:       getEnvWithDefault("BOLT_FILE", "events.db"),
			SQLiteFile:     getEnvWithDefault("SQLITE_FILE", "events.sqlite"),
			DatabaseURL:    os.Getenv("DB_URL"),
			DatabaseSchema: os.Getenv("DB_SCHEMA"),
		},
	}

	if err := config.Storage.Validate(); err != nil {
		return nil, err
	}

	scheduler, err := loadSchedulerConfig()
	if err != nil {
		return nil, err
	}
	config.Scheduler = scheduler

	log.Info("✅ Configuration loaded: backend=%s tick=%s default_interval=%s",
		config.Storage.Backend, scheduler.TickInterval, scheduler.DefaultInterval)
	return config, nil
}

func loadSchedulerConfig() (SchedulerConfig, error) {
	var cfg SchedulerConfig
	var err error

	if cfg.TickInterval, err = getMinutes("REMINDER_TICK_MINUTES", "1440"); err != nil {
		return cfg, err
	}
	if cfg.DefaultInterval, err = getMinutes("DEFAULT_INTERVAL_MINUTES", "1440"); err != nil {
		return cfg, err
	}
	if cfg.MentionCap, err = getPositiveInt("MENTION_CAP", 50); err != nil {
		return cfg, err
	}

	durations := []struct {
		key          string
		defaultValue string
		target       *time.Duration
	}{
		{"DISPATCH_DELAY", "2s", &cfg.DispatchDelay},
		{"DUE_TOLERANCE", "1m", &cfg.DueTolerance},
		{"EVENT_TIMEOUT", "30s", &cfg.EventTimeout},
		{"SYNC_INTERVAL", "5m", &cfg.SyncInterval},
		{"SHUTDOWN_GRACE", "10s", &cfg.ShutdownGrace},
	}
	for _, d := range durations {
		value, err := getDuration(d.key, d.defaultValue)
		if err != nil {
			return cfg, err
		}
		*d.target = value
	}

	return cfg, nil
}

func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set", key)
	}
	return value, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getMinutes(key, defaultValue string) (time.Duration, error) {
	d, err := core.ParseMinutes(key, getEnvWithDefault(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvWithDefault(key, defaultValue))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: expected a non-negative duration like %q", key, defaultValue)
	}
	return d, nil
}

func getPositiveInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s: expected a positive integer, got %q", key, raw)
	}
	return value, nil
}
