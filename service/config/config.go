package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	HeliusMainnetURL = "https://mainnet.helius-rpc.com/?api-key="
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// Tracked token
	Token string

	// Node configuration. RPCKey also authenticates webhook deliveries.
	RPCURL string
	RPCKey string
	RPCRPS float64

	// Storage configuration
	StoreBackend string
	SQLitePath   string
	DatabaseURL  string

	// NATS configuration; empty disables event publishing
	NATSURL string

	// Ingestion tuning
	BackfillBatchSize int
	SearchBatchSize   int
	ConfirmRetries    int
	ConfirmInterval   time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	ReconcileInterval time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":3001")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.Token = os.Getenv("TOKEN")
	if cfg.Token == "" {
		errs = append(errs, fmt.Errorf("TOKEN is required"))
	} else if _, err := solana.PublicKeyFromBase58(cfg.Token); err != nil {
		errs = append(errs, fmt.Errorf("TOKEN: invalid mint address %q: %w", cfg.Token, err))
	}

	cfg.RPCKey = os.Getenv("RPC_KEY")
	if cfg.RPCKey == "" {
		errs = append(errs, fmt.Errorf("RPC_KEY is required"))
	}
	cfg.RPCURL = getEnvOrDefault("RPC_URL", HeliusMainnetURL+cfg.RPCKey)

	rps, err := parseFloat("RPC_RPS", 0)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCRPS = rps
	}

	cfg.StoreBackend = getEnvOrDefault("STORE_BACKEND", BackendSQLite)
	cfg.SQLitePath = getEnvOrDefault("SQLITE_PATH", "ledger.db")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	switch cfg.StoreBackend {
	case BackendSQLite:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendPostgres, cfg.StoreBackend))
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	for _, f := range []struct {
		key  string
		def  int
		dest *int
	}{
		{"BACKFILL_BATCH_SIZE", 8, &cfg.BackfillBatchSize},
		{"SEARCH_BATCH_SIZE", 5, &cfg.SearchBatchSize},
		{"CONFIRM_RETRIES", 10, &cfg.ConfirmRetries},
	} {
		v, err := parseInt(f.key, f.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", f.key, v))
			continue
		}
		*f.dest = v
	}

	confirmInterval, err := parseDuration("CONFIRM_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmInterval = confirmInterval
	}

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "mintledger-reconcile")

	reconcile, err := parseDuration("RECONCILE_INTERVAL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ReconcileInterval = reconcile
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.Token == "" {
		errs = append(errs, fmt.Errorf("Token is required"))
	}
	if c.RPCURL == "" {
		errs = append(errs, fmt.Errorf("RPCURL is required"))
	}
	if c.RPCKey == "" {
		errs = append(errs, fmt.Errorf("RPCKey is required"))
	}
	if c.StoreBackend == BackendPostgres && c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required for the postgres backend"))
	}
	if c.StoreBackend == BackendSQLite && c.SQLitePath == "" {
		errs = append(errs, fmt.Errorf("SQLitePath is required for the sqlite backend"))
	}
	if c.BackfillBatchSize < 1 || c.SearchBatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch sizes must be at least 1"))
	}
	if c.ReconcileInterval < time.Minute {
		errs = append(errs, fmt.Errorf("ReconcileInterval must be at least 1 minute"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
