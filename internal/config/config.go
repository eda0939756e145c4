// Package config loads the quantbt YAML configuration and applies
// environment variable overrides.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantbt engine.
type Config struct {
	Storage     Storage     `yaml:"storage"`
	Alpaca      Alpaca      `yaml:"alpaca"`
	Logging     Logging     `yaml:"logging"`
	Backtest    Backtest    `yaml:"backtest"`
	MonteCarlo  MonteCarlo  `yaml:"monte_carlo"`
	WalkForward WalkForward `yaml:"walk_forward"`
}

// Storage holds paths and backend selection for the market-data cache.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	// CacheBackend selects the bar cache: "parquet", "sqlite", or ""
	// (no caching).
	CacheBackend string `yaml:"cache_backend"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest holds default cost and capital parameters for backtest runs.
type Backtest struct {
	InitialCapital float64 `yaml:"initial_capital"`
	Commission     float64 `yaml:"commission"`
	Slippage       float64 `yaml:"slippage"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	PositionSize   float64 `yaml:"position_size"`
	MaxLeverage    float64 `yaml:"max_leverage"`
	RebalanceFreq  string  `yaml:"rebalance_freq"`
	Benchmark      string  `yaml:"benchmark"`
}

// MonteCarlo holds defaults for Monte Carlo resampling runs.
type MonteCarlo struct {
	NumSimulations int   `yaml:"num_simulations"`
	BlockSize      int   `yaml:"block_size"`
	Seed           int64 `yaml:"seed"`
}

// WalkForward holds defaults for walk-forward analysis runs.
type WalkForward struct {
	TrainMonths     int   `yaml:"train_months"`
	TestMonths      int   `yaml:"test_months"`
	OptimizerTrials int   `yaml:"optimizer_trials"`
	Seed            int64 `yaml:"seed"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it
// into a Config, applies environment variable overrides, and fills in
// defaults for unset numeric fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a Config with all defaults applied and no file input.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

// applyEnvOverrides checks well-known environment variables and
// overrides the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used
	// by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills zero-valued fields with engine defaults.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Alpaca.RateLimitPerMin == 0 {
		cfg.Alpaca.RateLimitPerMin = 200
	}
	if cfg.Backtest.InitialCapital == 0 {
		cfg.Backtest.InitialCapital = 100000
	}
	if cfg.Backtest.PositionSize == 0 {
		cfg.Backtest.PositionSize = 0.1
	}
	if cfg.Backtest.MaxLeverage == 0 {
		cfg.Backtest.MaxLeverage = 1
	}
	if cfg.Backtest.RebalanceFreq == "" {
		cfg.Backtest.RebalanceFreq = "daily"
	}
	if cfg.Backtest.Benchmark == "" {
		cfg.Backtest.Benchmark = "SPY"
	}
	if cfg.MonteCarlo.NumSimulations == 0 {
		cfg.MonteCarlo.NumSimulations = 1000
	}
	if cfg.MonteCarlo.BlockSize == 0 {
		cfg.MonteCarlo.BlockSize = 20
	}
	if cfg.WalkForward.TrainMonths == 0 {
		cfg.WalkForward.TrainMonths = 12
	}
	if cfg.WalkForward.TestMonths == 0 {
		cfg.WalkForward.TestMonths = 3
	}
	if cfg.WalkForward.OptimizerTrials == 0 {
		cfg.WalkForward.OptimizerTrials = 20
	}
}
