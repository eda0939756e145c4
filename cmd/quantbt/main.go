package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quantbt/internal/backtest"
	"quantbt/internal/config"
	"quantbt/internal/marketdata"
	"quantbt/internal/store"
	"quantbt/internal/strategy"
	"quantbt/internal/util"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: quantbt <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run          Run a single backtest\n")
	fmt.Fprintf(os.Stderr, "  montecarlo   Run a Monte Carlo robustness analysis\n")
	fmt.Fprintf(os.Stderr, "  walkforward  Run a walk-forward analysis\n")
	fmt.Fprintf(os.Stderr, "  version      Print the version\n")
	fmt.Fprintf(os.Stderr, "\n")
}

// runFlags holds the options shared by every experiment command.
type runFlags struct {
	configPath string
	kind       string
	symbols    string
	start      string
	end        string
	offline    bool
}

func registerRunFlags(fs *flag.FlagSet) *runFlags {
	rf := &runFlags{}
	fs.StringVar(&rf.configPath, "config", "", "path to quantbt.yaml (default $QUANTBT_CONFIG)")
	fs.StringVar(&rf.kind, "type", "momentum", "strategy type: momentum, mean_reversion, pairs_trading")
	fs.StringVar(&rf.symbols, "symbols", "", "comma-separated symbol list (required)")
	fs.StringVar(&rf.start, "start", "", "start date, YYYY-MM-DD (required)")
	fs.StringVar(&rf.end, "end", "", "end date, YYYY-MM-DD (required)")
	fs.BoolVar(&rf.offline, "offline", false, "serve bars from the local store only, no API calls")
	return rf
}

func main() {
	flag.Usage = usage
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("quantbt %s\n", version)

	case "run", "montecarlo", "walkforward":
		runExperiment(os.Args[1], os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func runExperiment(command string, args []string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	rf := registerRunFlags(fs)
	fs.Parse(args)

	cfg, err := loadConfig(rf.configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	sc, bc, err := buildConfigs(rf, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	svc, cleanup, err := newDataService(rf, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build market-data service: %v", err)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := backtest.New(svc, logger)

	var report any
	switch command {
	case "run":
		report, err = engine.BacktestStrategy(ctx, sc, bc)
	case "montecarlo":
		report, err = engine.MonteCarloBacktest(ctx, sc, bc, backtest.MonteCarloConfig{
			NumSimulations: cfg.MonteCarlo.NumSimulations,
			BlockSize:      cfg.MonteCarlo.BlockSize,
			Seed:           cfg.MonteCarlo.Seed,
		})
	case "walkforward":
		report, err = engine.WalkForwardAnalysis(ctx, sc, bc, backtest.WalkForwardConfig{
			TrainMonths:     cfg.WalkForward.TrainMonths,
			TestMonths:      cfg.WalkForward.TestMonths,
			Seed:            cfg.WalkForward.Seed,
			OptimizerTrials: cfg.WalkForward.OptimizerTrials,
		})
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode report: %v", err)
	}
	fmt.Println(string(out))
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("QUANTBT_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildConfigs(rf *runFlags, cfg *config.Config) (strategy.Config, backtest.Config, error) {
	var sc strategy.Config
	var bc backtest.Config

	if rf.symbols == "" {
		return sc, bc, fmt.Errorf("-symbols is required")
	}
	for _, s := range strings.Split(rf.symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sc.Symbols = append(sc.Symbols, strings.ToUpper(s))
		}
	}
	sc.Type = strategy.Kind(rf.kind)

	start, err := parseDate(rf.start, "-start")
	if err != nil {
		return sc, bc, err
	}
	end, err := parseDate(rf.end, "-end")
	if err != nil {
		return sc, bc, err
	}

	bc = backtest.DefaultConfig(start, end)
	if cfg.Backtest.InitialCapital > 0 {
		bc.InitialCapital = cfg.Backtest.InitialCapital
	}
	bc.Commission = cfg.Backtest.Commission
	bc.Slippage = cfg.Backtest.Slippage
	bc.RiskFreeRate = cfg.Backtest.RiskFreeRate
	if cfg.Backtest.PositionSize > 0 {
		bc.PositionSize = cfg.Backtest.PositionSize
	}
	if cfg.Backtest.MaxLeverage > 0 {
		bc.MaxLeverage = cfg.Backtest.MaxLeverage
	}
	if cfg.Backtest.RebalanceFreq != "" {
		bc.RebalanceFreq = backtest.RebalanceFreq(cfg.Backtest.RebalanceFreq)
	}
	bc.Benchmark = cfg.Backtest.Benchmark
	return sc, bc, nil
}

func parseDate(s, name string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %v", name, err)
	}
	return t, nil
}

// newDataService builds the market-data pipeline: the Alpaca client,
// optionally wrapped in a read-through bar cache, or a pure offline
// store reader.
func newDataService(rf *runFlags, cfg *config.Config, logger *slog.Logger) (marketdata.Service, func(), error) {
	noop := func() {}

	bars, cleanup, err := newBarStore(cfg)
	if err != nil {
		return nil, noop, err
	}

	if rf.offline {
		if bars == nil {
			return nil, noop, fmt.Errorf("offline mode needs storage.cache_backend set")
		}
		logger.Info("using offline bar store", "backend", cfg.Storage.CacheBackend)
		return marketdata.NewStoreService(bars), cleanup, nil
	}

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		if cleanup != nil {
			cleanup()
		}
		return nil, noop, fmt.Errorf("alpaca credentials missing; set APCA_API_KEY_ID and APCA_API_SECRET_KEY or use -offline")
	}

	var svc marketdata.Service = marketdata.NewAlpacaService(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		cfg.Alpaca.RateLimitPerMin,
	)
	if bars != nil {
		logger.Info("caching bars", "backend", cfg.Storage.CacheBackend)
		svc = marketdata.NewCachedService(svc, bars)
	}
	return svc, cleanup, nil
}

func newBarStore(cfg *config.Config) (store.BarStore, func(), error) {
	switch cfg.Storage.CacheBackend {
	case "":
		return nil, func() {}, nil
	case "parquet":
		return store.NewParquetStore(cfg.Storage.DataDir), func() {}, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown cache_backend %q", cfg.Storage.CacheBackend)
	}
}
