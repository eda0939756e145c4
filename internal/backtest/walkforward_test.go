package backtest

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"quantbt/internal/domain"
	"quantbt/internal/marketdata"
	"quantbt/internal/strategy"
)

func walkForwardEngine(t *testing.T, days int) (*Engine, Config) {
	t.Helper()
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	svc := marketdata.NewStaticService(map[string]domain.Series{
		"AAPL": syntheticSeries(start, days, 100, 0.002),
	})
	return New(svc, testLogger()), DefaultConfig(start, start.AddDate(0, 0, days))
}

func TestWalkForwardWindows(t *testing.T) {
	e, bc := walkForwardEngine(t, 732)
	sc := strategy.Config{Type: strategy.KindMomentum, Symbols: []string{"AAPL"}}
	wf := WalkForwardConfig{TrainMonths: 12, TestMonths: 3, Seed: 1, OptimizerTrials: 3}

	windows, analysis, err := e.RunWalkForward(context.Background(), sc, bc, wf)
	if err != nil {
		t.Fatalf("RunWalkForward: %v", err)
	}

	// Two years of data, 12-month train, 3-month test stride: windows
	// ending at months 15, 18, 21, and 24.
	if len(windows) != 4 {
		t.Fatalf("got %d windows, want 4", len(windows))
	}
	for i, w := range windows {
		if !w.TrainStart.Before(w.TrainEnd) || !w.TestStart.Before(w.TestEnd) {
			t.Errorf("window %d has inverted bounds: %+v", i, w)
		}
		if w.TestStart.Before(w.TrainEnd) {
			t.Errorf("window %d test slice overlaps training: %+v", i, w)
		}
		if w.Parameters.Type != strategy.KindMomentum {
			t.Errorf("window %d changed strategy kind to %q", i, w.Parameters.Type)
		}
		if w.Parameters.LookbackPeriod == 0 {
			t.Errorf("window %d parameters are missing defaults", i)
		}
		if i > 0 && !windows[i-1].TestStart.Before(w.TestStart) {
			t.Errorf("windows out of chronological order at %d", i)
		}
	}

	if analysis.Windows != 4 {
		t.Errorf("analysis windows = %d, want 4", analysis.Windows)
	}
	if analysis.Degradation != "stable" && analysis.Degradation != "unstable" {
		t.Errorf("degradation = %q, want stable or unstable", analysis.Degradation)
	}
}

func TestWalkForwardRangeTooShort(t *testing.T) {
	e, bc := walkForwardEngine(t, 200)
	sc := strategy.Config{Type: strategy.KindMomentum, Symbols: []string{"AAPL"}}
	wf := WalkForwardConfig{TrainMonths: 12, TestMonths: 3, OptimizerTrials: 2}

	windows, analysis, err := e.RunWalkForward(context.Background(), sc, bc, wf)
	if err != nil {
		t.Fatalf("RunWalkForward: %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("got %d windows from a 200-day range, want 0", len(windows))
	}
	if analysis.Windows != 0 {
		t.Errorf("analysis windows = %d, want 0", analysis.Windows)
	}
}

func TestWalkForwardDeterminism(t *testing.T) {
	e, bc := walkForwardEngine(t, 600)
	sc := strategy.Config{Type: strategy.KindMeanReversion, Symbols: []string{"AAPL"}}
	wf := WalkForwardConfig{TrainMonths: 9, TestMonths: 3, Seed: 99, OptimizerTrials: 5}

	first, _, err := e.RunWalkForward(context.Background(), sc, bc, wf)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, _, err := e.RunWalkForward(context.Background(), sc, bc, wf)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("same-seed walk-forward runs diverged")
	}
}

func TestWalkForwardCancellation(t *testing.T) {
	e, bc := walkForwardEngine(t, 730)
	sc := strategy.Config{Type: strategy.KindMomentum, Symbols: []string{"AAPL"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.RunWalkForward(ctx, sc, bc, WalkForwardConfig{TrainMonths: 12, TestMonths: 3})
	if err == nil {
		t.Fatal("canceled context did not stop the walk-forward")
	}
}

func TestWalkForwardAnalysisReport(t *testing.T) {
	e, bc := walkForwardEngine(t, 732)
	sc := strategy.Config{Type: strategy.KindMomentum, Symbols: []string{"AAPL"}}
	wf := WalkForwardConfig{TrainMonths: 12, TestMonths: 3, Seed: 1, OptimizerTrials: 2}

	report, err := e.WalkForwardAnalysis(context.Background(), sc, bc, wf)
	if err != nil {
		t.Fatalf("WalkForwardAnalysis: %v", err)
	}
	if report.Error != "" {
		t.Fatalf("report error: %s", report.Error)
	}
	if report.Analysis == nil || len(report.WalkForwardResults) == 0 {
		t.Fatal("report is missing analysis or window results")
	}
	if report.Timestamp == "" {
		t.Error("report is missing a timestamp")
	}

	// An unsupported kind folds into the error field.
	bad, err := e.WalkForwardAnalysis(context.Background(),
		strategy.Config{Type: "genetic", Symbols: []string{"AAPL"}}, bc, wf)
	if err != nil {
		t.Fatalf("WalkForwardAnalysis: %v", err)
	}
	if bad.Error == "" {
		t.Error("report error field is empty for an unsupported strategy")
	}
}

func TestAggregateWalkForwardStability(t *testing.T) {
	steady := []WindowResult{
		{TrainMetrics: Results{SharpeRatio: 1.0}, TestMetrics: Results{AnnualReturn: 0.10, SharpeRatio: 0.9}},
		{TrainMetrics: Results{SharpeRatio: 1.1}, TestMetrics: Results{AnnualReturn: 0.11, SharpeRatio: 1.0}},
		{TrainMetrics: Results{SharpeRatio: 1.2}, TestMetrics: Results{AnnualReturn: 0.12, SharpeRatio: 1.1}},
	}
	s := aggregateWalkForward(steady, 1)
	if s.Degradation != "stable" {
		t.Errorf("degradation = %q for tightly clustered returns, want stable", s.Degradation)
	}
	if s.SkippedWindows != 1 {
		t.Errorf("skipped = %d, want 1", s.SkippedWindows)
	}
	if math.Abs(s.MeanAnnualReturn-0.11) > 1e-12 {
		t.Errorf("mean annual return = %v, want 0.11", s.MeanAnnualReturn)
	}
	// Train and test Sharpe move together perfectly here.
	if math.Abs(s.TrainTestSharpeCorr-1) > 1e-9 {
		t.Errorf("train/test sharpe correlation = %v, want 1", s.TrainTestSharpeCorr)
	}

	erratic := []WindowResult{
		{TestMetrics: Results{AnnualReturn: 0.50}},
		{TestMetrics: Results{AnnualReturn: -0.40}},
	}
	if s := aggregateWalkForward(erratic, 0); s.Degradation != "unstable" {
		t.Errorf("degradation = %q for scattered returns, want unstable", s.Degradation)
	}

	if s := aggregateWalkForward(nil, 3); s.Windows != 0 || s.SkippedWindows != 3 {
		t.Errorf("empty aggregation = %+v", s)
	}
}
