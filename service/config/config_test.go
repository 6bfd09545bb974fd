package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// setRequired sets the minimum environment Load accepts.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TOKEN", testToken)
	t.Setenv("RPC_KEY", "secret-key")
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, testToken, cfg.Token)
	assert.Equal(t, "secret-key", cfg.RPCKey)
	assert.Equal(t, "https://mainnet.helius-rpc.com/?api-key=secret-key", cfg.RPCURL)
	assert.Equal(t, ":3001", cfg.ServerAddr)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "ledger.db", cfg.SQLitePath)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, 8, cfg.BackfillBatchSize)
	assert.Equal(t, 5, cfg.SearchBatchSize)
	assert.Equal(t, 10, cfg.ConfirmRetries)
	assert.Equal(t, 2*time.Second, cfg.ConfirmInterval)
	assert.Equal(t, "mintledger-reconcile", cfg.TemporalTaskQueue)
	assert.Equal(t, time.Hour, cfg.ReconcileInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("TOKEN", "")
	t.Setenv("RPC_KEY", "")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "TOKEN is required")
	assert.Contains(t, err.Error(), "RPC_KEY is required")
}

func TestLoad_InvalidToken(t *testing.T) {
	setRequired(t)
	t.Setenv("TOKEN", "not-a-key")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mint address")
}

func TestLoad_PostgresNeedsDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_BACKEND", BackendPostgres)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")

	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/ledger", cfg.DatabaseURL)
}

func TestLoad_UnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_BACKEND", "leveldb")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
}

func TestLoad_InvalidNumbers(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"BACKFILL_BATCH_SIZE", "eight", "invalid integer"},
		{"SEARCH_BATCH_SIZE", "0", "must be at least 1"},
		{"CONFIRM_INTERVAL", "soon", "invalid duration"},
		{"RECONCILE_INTERVAL", "daily", "invalid duration"},
		{"RPC_RPS", "fast", "invalid number"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("RPC_URL", "http://localhost:8899")
	t.Setenv("RPC_RPS", "12.5")
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SQLITE_PATH", "/var/lib/ledger.db")
	t.Setenv("NATS_URL", "nats://nats.example.com:4222")
	t.Setenv("TEMPORAL_HOST", "temporal.example.com:7233")
	t.Setenv("BACKFILL_BATCH_SIZE", "20")
	t.Setenv("CONFIRM_RETRIES", "3")
	t.Setenv("CONFIRM_INTERVAL", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8899", cfg.RPCURL)
	assert.Equal(t, 12.5, cfg.RPCRPS)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/lib/ledger.db", cfg.SQLitePath)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalHost)
	assert.Equal(t, 20, cfg.BackfillBatchSize)
	assert.Equal(t, 3, cfg.ConfirmRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.ConfirmInterval)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Token:             testToken,
			RPCURL:            "http://localhost:8899",
			RPCKey:            "key",
			StoreBackend:      BackendSQLite,
			SQLitePath:        "ledger.db",
			BackfillBatchSize: 8,
			SearchBatchSize:   5,
			ReconcileInterval: time.Hour,
		}
	}
	assert.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing token", func(c *Config) { c.Token = "" }, "Token is required"},
		{"postgres without url", func(c *Config) { c.StoreBackend = BackendPostgres }, "DatabaseURL is required"},
		{"zero batch", func(c *Config) { c.SearchBatchSize = 0 }, "batch sizes"},
		{"short reconcile", func(c *Config) { c.ReconcileInterval = time.Second }, "at least 1 minute"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	t.Setenv("TOKEN", "")
	t.Setenv("RPC_KEY", "")

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	setRequired(t)

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}
