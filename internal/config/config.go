package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	RouteID string
	// RouteFile, when set, replaces the persistence service as the source of
	// meters and history.
	RouteFile   string
	SessionUser string
	// TargetPeriod is zero when unset; the session then uses the current month.
	TargetPeriod domain.PeriodKey

	// Persistence service.
	PersistenceURL     string
	PersistenceTimeout time.Duration
	HistoryCacheSize   int
	// HistoryCacheTTL bounds how long a fetched history answers a refresh
	// before the service is asked again.
	HistoryCacheTTL time.Duration

	// StoreDir is the Badger directory. Empty keeps sessions in memory.
	StoreDir string

	// Notification sink.
	KafkaBrokers         []string
	KafkaSubmissionTopic string
	NotifyEnabled        bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	persistenceTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("PERSISTENCE_TIMEOUT", "5s"))
	if err != nil || persistenceTimeout <= 0 {
		return nil, errors.New("invalid PERSISTENCE_TIMEOUT")
	}

	historyCacheTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("HISTORY_CACHE_TTL", "1m"))
	if err != nil || historyCacheTTL < 0 {
		return nil, errors.New("invalid HISTORY_CACHE_TTL")
	}

	var target domain.PeriodKey
	if s := os.Getenv("TARGET_PERIOD"); s != "" {
		target, err = domain.ParsePeriodKey(s)
		if err != nil {
			return nil, fmt.Errorf("invalid TARGET_PERIOD: %w", err)
		}
	}

	brokers := sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092"))
	notifyEnabled := len(brokers) > 0
	if v := os.Getenv("NOTIFY_ENABLED"); v != "" {
		notifyEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RouteID:      sharedcfg.EnvOrDefault("ROUTE_ID", "route-1"),
		RouteFile:    os.Getenv("ROUTE_FILE"),
		SessionUser:  sharedcfg.EnvOrDefault("SESSION_USER", "default"),
		TargetPeriod: target,

		PersistenceURL:     sharedcfg.EnvOrDefault("PERSISTENCE_URL", "http://localhost:8090"),
		PersistenceTimeout: persistenceTimeout,
		HistoryCacheSize:   parseHistoryCacheSize(),
		HistoryCacheTTL:    historyCacheTTL,

		StoreDir: envOrDefaultAllowEmpty("STORE_DIR", "data/session"),

		KafkaBrokers:         brokers,
		KafkaSubmissionTopic: sharedcfg.EnvOrDefault("KAFKA_SUBMISSION_TOPIC", "route-submissions"),
		NotifyEnabled:        notifyEnabled,
	}

	if cfg.RouteID == "" {
		return nil, errors.New("ROUTE_ID is required")
	}
	if cfg.PersistenceURL == "" {
		return nil, errors.New("PERSISTENCE_URL is required")
	}
	if cfg.NotifyEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("NOTIFY_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.NotifyEnabled && cfg.KafkaSubmissionTopic == "" {
		return nil, errors.New("KAFKA_SUBMISSION_TOPIC is required")
	}

	return cfg, nil
}

func parseHistoryCacheSize() int {
	if s := os.Getenv("HISTORY_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 500
}

// envOrDefaultAllowEmpty treats an explicitly empty variable as a value.
func envOrDefaultAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
