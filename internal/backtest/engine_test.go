package backtest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"
	"time"

	"quantbt/internal/domain"
	"quantbt/internal/marketdata"
	"quantbt/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syntheticSeries builds n daily closes starting at base, compounding
// dailyGrowth per bar.
func syntheticSeries(start time.Time, n int, base, dailyGrowth float64) domain.Series {
	s := domain.Series{
		Dates:  make([]time.Time, n),
		Values: make([]float64, n),
	}
	px := base
	for i := 0; i < n; i++ {
		s.Dates[i] = start.AddDate(0, 0, i)
		s.Values[i] = px
		px *= 1 + dailyGrowth
	}
	return s
}

func uptrendEngine(t *testing.T, n int) (*Engine, Config) {
	t.Helper()
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	svc := marketdata.NewStaticService(map[string]domain.Series{
		"AAPL": syntheticSeries(start, n, 100, 0.01),
	})
	return New(svc, testLogger()), DefaultConfig(start, start.AddDate(0, 0, n))
}

func TestBacktestStrategyUptrend(t *testing.T) {
	e, bc := uptrendEngine(t, 100)
	sc := strategy.Config{Type: strategy.KindMomentum, Symbols: []string{"AAPL"}}

	report, err := e.BacktestStrategy(context.Background(), sc, bc)
	if err != nil {
		t.Fatalf("BacktestStrategy: %v", err)
	}
	if report.Error != "" {
		t.Fatalf("report error: %s", report.Error)
	}
	m := report.PerformanceMetrics
	if m == nil {
		t.Fatal("report has no performance metrics")
	}
	if m.TotalReturn <= 0 {
		t.Errorf("momentum on a 1%%/day uptrend lost money: total_return = %v", m.TotalReturn)
	}
	if m.MaxDrawdown > 0.01 {
		t.Errorf("max_drawdown = %v on a monotonic uptrend", m.MaxDrawdown)
	}
	if got, want := m.FinalEquity/bc.InitialCapital-1, m.TotalReturn; math.Abs(got-want) > 1e-9 {
		t.Errorf("final_equity inconsistent with total_return: %v vs %v", got, want)
	}
	if report.DetailedAnalysis == nil {
		t.Error("report has no detailed analysis")
	}
	if report.StrategyConfig.LookbackPeriod == 0 {
		t.Error("report strategy config is missing applied defaults")
	}
}

func TestBacktestStrategyMeanReversionSinusoid(t *testing.T) {
	// Price oscillating +-5% around 100 with period 20: buys near the
	// troughs, sells near the peaks.
	const n = 240
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	s := domain.Series{
		Dates:  make([]time.Time, n),
		Values: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.Dates[i] = start.AddDate(0, 0, i)
		s.Values[i] = 100 * (1 + 0.05*math.Sin(2*math.Pi*float64(i)/20))
	}
	e := New(marketdata.NewStaticService(map[string]domain.Series{"OSC": s}), testLogger())
	bc := DefaultConfig(start, start.AddDate(0, 0, n))
	sc := strategy.Config{
		Type:           strategy.KindMeanReversion,
		Symbols:        []string{"OSC"},
		LookbackPeriod: 20,
		StdDev:         1.0,
	}

	report, err := e.BacktestStrategy(context.Background(), sc, bc)
	if err != nil {
		t.Fatalf("BacktestStrategy: %v", err)
	}
	if report.Error != "" {
		t.Fatalf("report error: %s", report.Error)
	}
	m := report.PerformanceMetrics
	if m.TotalTrades == 0 {
		t.Fatal("mean reversion on a clean sinusoid produced no trades")
	}
	if m.WinRate <= 0.5 {
		t.Errorf("win_rate = %v over %d trades, want > 0.5", m.WinRate, m.TotalTrades)
	}
}

func TestRunUnsupportedStrategy(t *testing.T) {
	e, bc := uptrendEngine(t, 50)
	sc := strategy.Config{Type: "genetic", Symbols: []string{"AAPL"}}

	_, err := e.Run(context.Background(), sc, bc)
	var unsupported *strategy.UnsupportedStrategyError
	if !errors.As(err, &unsupported) {
		t.Fatalf("got %v, want UnsupportedStrategyError", err)
	}

	// The report driver folds the failure into the error field.
	report, err := e.BacktestStrategy(context.Background(), sc, bc)
	if err != nil {
		t.Fatalf("BacktestStrategy: %v", err)
	}
	if report.Error == "" {
		t.Error("report error field is empty for an unsupported strategy")
	}
	if report.PerformanceMetrics != nil {
		t.Error("failed report still carries metrics")
	}
}

func TestRunFailFast(t *testing.T) {
	e, bc := uptrendEngine(t, 50)
	e.FailFast = true
	sc := strategy.Config{Type: "genetic", Symbols: []string{"AAPL"}}

	if _, err := e.BacktestStrategy(context.Background(), sc, bc); err == nil {
		t.Fatal("FailFast engine swallowed the error")
	}
}

func TestRunNoMarketData(t *testing.T) {
	e := New(marketdata.NewStaticService(nil), testLogger())
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	sc := strategy.Config{Type: strategy.KindMomentum, Symbols: []string{"MISSING"}}

	_, err := e.Run(context.Background(), sc, DefaultConfig(start, start.AddDate(0, 1, 0)))
	var noData *marketdata.NoMarketDataError
	if !errors.As(err, &noData) {
		t.Fatalf("got %v, want NoMarketDataError", err)
	}
}

func TestRunInsufficientData(t *testing.T) {
	e, bc := uptrendEngine(t, 10)
	sc := strategy.Config{Type: strategy.KindMomentum, Symbols: []string{"AAPL"}}

	_, err := e.Run(context.Background(), sc, bc)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientDataError", err)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	e, bc := uptrendEngine(t, 50)
	bc.InitialCapital = -1
	sc := strategy.Config{Type: strategy.KindMomentum, Symbols: []string{"AAPL"}}

	if _, err := e.Run(context.Background(), sc, bc); err == nil {
		t.Fatal("negative capital passed validation")
	}
}

func TestRunDeterminism(t *testing.T) {
	e, bc := uptrendEngine(t, 100)
	sc := strategy.Config{Type: strategy.KindMeanReversion, Symbols: []string{"AAPL"}}

	first, err := e.Run(context.Background(), sc, bc)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := e.Run(context.Background(), sc, bc)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first.Metrics, second.Metrics) {
		t.Errorf("identical runs diverged:\n%+v\n%+v", first.Metrics, second.Metrics)
	}
}
