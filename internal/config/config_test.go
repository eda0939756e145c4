package config

import (
	"os"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "quantbt-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"ALPACA_DATA_URL", "LOG_LEVEL", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
storage:
  data_dir: "/tmp/quantbt/data"
  sqlite_path: "/tmp/quantbt/bars.db"
  cache_backend: "parquet"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
  rate_limit_per_min: 100
logging:
  level: "debug"
  format: "text"
backtest:
  initial_capital: 50000
  commission: 0.001
  slippage: 0.0005
  risk_free_rate: 0.02
  position_size: 0.2
  max_leverage: 2
  rebalance_freq: "weekly"
  benchmark: "QQQ"
monte_carlo:
  num_simulations: 500
  block_size: 10
  seed: 42
walk_forward:
  train_months: 6
  test_months: 2
  optimizer_trials: 10
  seed: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.CacheBackend != "parquet" {
		t.Errorf("CacheBackend = %q, want %q", cfg.Storage.CacheBackend, "parquet")
	}
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Backtest.InitialCapital != 50000 {
		t.Errorf("InitialCapital = %v, want 50000", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.RebalanceFreq != "weekly" {
		t.Errorf("RebalanceFreq = %q, want %q", cfg.Backtest.RebalanceFreq, "weekly")
	}
	if cfg.MonteCarlo.NumSimulations != 500 {
		t.Errorf("NumSimulations = %d, want 500", cfg.MonteCarlo.NumSimulations)
	}
	if cfg.WalkForward.TrainMonths != 6 {
		t.Errorf("TrainMonths = %d, want 6", cfg.WalkForward.TrainMonths)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "storage:\n  data_dir: \"/tmp/q\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("default Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Backtest.InitialCapital != 100000 {
		t.Errorf("default InitialCapital = %v, want 100000", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.MaxLeverage != 1 {
		t.Errorf("default MaxLeverage = %v, want 1", cfg.Backtest.MaxLeverage)
	}
	if cfg.MonteCarlo.NumSimulations != 1000 {
		t.Errorf("default NumSimulations = %d, want 1000", cfg.MonteCarlo.NumSimulations)
	}
	if cfg.MonteCarlo.BlockSize != 20 {
		t.Errorf("default BlockSize = %d, want 20", cfg.MonteCarlo.BlockSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "alpaca:\n  api_key: \"from-file\"\n")

	t.Setenv("ALPACA_API_KEY", "from-env")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env override %q", cfg.Alpaca.APIKey, "from-env")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want %q", cfg.Logging.Level, "debug")
	}

	// Canonical Alpaca SDK variable wins over the generic one.
	t.Setenv("APCA_API_KEY_ID", "canonical")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "canonical" {
		t.Errorf("APIKey = %q, want %q", cfg.Alpaca.APIKey, "canonical")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/quantbt.yaml"); err == nil {
		t.Error("Load should fail for a missing file")
	}
}
