package backtest

import (
	"context"
	"log/slog"
	"time"

	"quantbt/internal/domain"
	"quantbt/internal/marketdata"
	"quantbt/internal/strategy"
)

// Engine wires the market-data service and the signal generator
// registry into the three experiment drivers. All dependencies are
// injected; the engine holds no global state, so concurrent runs are
// independent.
type Engine struct {
	data     marketdata.Service
	registry *strategy.Registry
	log      *slog.Logger

	// FailFast makes the public drivers propagate errors instead of
	// folding them into the report's error field. Intended for
	// debugging.
	FailFast bool

	// ProgressEvery controls how often Monte Carlo progress is logged,
	// in completed simulations.
	ProgressEvery int
}

// New creates an Engine over the given market-data service.
func New(data marketdata.Service, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		data:          data,
		registry:      strategy.DefaultRegistry(),
		log:           log.With("component", "backtest"),
		ProgressEvery: 100,
	}
}

// RunResult bundles the intermediate artifacts of one fail-fast run.
type RunResult struct {
	Prices    *domain.PricePanel
	Signals   *domain.SignalPanel
	Portfolio *Portfolio
	Metrics   Results
}

// Run executes the single-backtest pipeline and propagates any error:
// fetch panel, generate signals, simulate, analyze.
func (e *Engine) Run(ctx context.Context, sc strategy.Config, bc Config) (*RunResult, error) {
	if err := bc.Validate(); err != nil {
		return nil, err
	}
	sc = sc.WithDefaults()

	// Resolve the generator first so an unknown kind fails before any
	// data fetch.
	gen, err := e.registry.Get(sc.Type)
	if err != nil {
		return nil, err
	}

	prices, err := marketdata.BuildPanel(ctx, e.data, sc.Symbols, bc.Start, bc.End)
	if err != nil {
		return nil, err
	}

	return e.runPanel(ctx, gen, prices, sc, bc)
}

// runPanel runs the pipeline from an already-built price panel. Monte
// Carlo and walk-forward reuse it per iteration.
func (e *Engine) runPanel(ctx context.Context, gen strategy.Generator, prices *domain.PricePanel, sc strategy.Config, bc Config) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if prices.Rows() < sc.Lookback()+1 {
		return nil, &InsufficientDataError{Rows: prices.Rows(), Required: sc.Lookback() + 1}
	}

	signals, err := gen.Generate(prices, sc)
	if err != nil {
		return nil, err
	}

	portfolio, err := Simulate(prices, signals, bc, SimOptions{
		AllowShort: sc.AllowsShort(),
		MinRows:    sc.Lookback() + 1,
	})
	if err != nil {
		return nil, err
	}

	return &RunResult{
		Prices:    prices,
		Signals:   signals,
		Portfolio: portfolio,
		Metrics:   Analyze(portfolio, bc),
	}, nil
}

// ---------------------------------------------------------------------------
// Public driver reports
// ---------------------------------------------------------------------------

// BacktestReport is the JSON-serializable result of BacktestStrategy.
// Callers must check Error before reading the other fields.
type BacktestReport struct {
	StrategyConfig     *strategy.Config    `json:"strategy_config,omitempty"`
	BacktestConfig     *Config             `json:"backtest_config,omitempty"`
	PerformanceMetrics *Results            `json:"performance_metrics,omitempty"`
	DetailedAnalysis   *DetailedAnalysis   `json:"detailed_analysis,omitempty"`
	Timestamp          string              `json:"timestamp,omitempty"`
	Error              string              `json:"error,omitempty"`
}

// BacktestStrategy runs a single backtest and folds any failure into
// the report's error field (unless FailFast is set, in which case the
// error is also returned).
func (e *Engine) BacktestStrategy(ctx context.Context, sc strategy.Config, bc Config) (*BacktestReport, error) {
	res, err := e.Run(ctx, sc, bc)
	if err != nil {
		e.log.Error("backtest failed", "strategy", sc.Type, "err", err)
		report := &BacktestReport{Error: err.Error()}
		if e.FailFast {
			return report, err
		}
		return report, nil
	}

	sc = sc.WithDefaults()
	return &BacktestReport{
		StrategyConfig:     &sc,
		BacktestConfig:     &bc,
		PerformanceMetrics: &res.Metrics,
		DetailedAnalysis:   Detail(res.Portfolio, res.Signals),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	}, nil
}
