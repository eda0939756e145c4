package backtest

import (
	"context"
	"time"

	"gonum.org/v1/gonum/stat"

	"quantbt/internal/domain"
	"quantbt/internal/marketdata"
	"quantbt/internal/strategy"
)

// WalkForwardConfig parameterizes a walk-forward analysis.
type WalkForwardConfig struct {
	TrainMonths int
	TestMonths  int
	Seed        int64
	// Optimizer overrides the default seeded random search when
	// non-nil.
	Optimizer Optimizer
	// Minimum row counts below which a window is skipped.
	MinTrainRows int
	MinTestRows  int
	// OptimizerTrials is the trial budget of the default optimizer.
	OptimizerTrials int
}

// WindowResult is the outcome of one walk-forward window: the
// parameters chosen on the training slice and the metrics they achieved
// in and out of sample.
type WindowResult struct {
	TrainStart   time.Time       `json:"train_start"`
	TrainEnd     time.Time       `json:"train_end"`
	TestStart    time.Time       `json:"test_start"`
	TestEnd      time.Time       `json:"test_end"`
	Parameters   strategy.Config `json:"parameters"`
	TrainMetrics Results         `json:"train_metrics"`
	TestMetrics  Results         `json:"test_metrics"`
}

// WalkForwardStats aggregates out-of-sample performance across windows.
type WalkForwardStats struct {
	Windows        int `json:"windows"`
	SkippedWindows int `json:"skipped_windows"`

	MeanAnnualReturn float64 `json:"mean_annual_return"`
	StdAnnualReturn  float64 `json:"std_annual_return"`
	MeanSharpe       float64 `json:"mean_sharpe"`
	StdSharpe        float64 `json:"std_sharpe"`

	// TrainTestSharpeCorr measures how well in-sample Sharpe predicts
	// out-of-sample Sharpe across windows.
	TrainTestSharpeCorr float64 `json:"train_test_sharpe_corr"`

	// Degradation is "stable" when the out-of-sample annual return
	// standard deviation stays under 0.05, else "unstable".
	Degradation string `json:"degradation"`
}

// WalkForwardReport is the JSON-serializable result of
// WalkForwardAnalysis. Callers must check Error before reading the
// other fields.
type WalkForwardReport struct {
	StrategyConfig     *strategy.Config  `json:"strategy_config,omitempty"`
	WalkForwardResults []WindowResult    `json:"walk_forward_results,omitempty"`
	Analysis           *WalkForwardStats `json:"analysis,omitempty"`
	Timestamp          string            `json:"timestamp,omitempty"`
	Error              string            `json:"error,omitempty"`
}

// RunWalkForward slides a train/test window across the full range,
// re-optimizes the strategy on each training slice, and evaluates the
// chosen parameters on the held-out test slice. The context is checked
// at every window boundary.
func (e *Engine) RunWalkForward(ctx context.Context, sc strategy.Config, bc Config, wf WalkForwardConfig) ([]WindowResult, *WalkForwardStats, error) {
	if err := bc.Validate(); err != nil {
		return nil, nil, err
	}
	sc = sc.WithDefaults()
	if wf.TrainMonths <= 0 {
		wf.TrainMonths = 12
	}
	if wf.TestMonths <= 0 {
		wf.TestMonths = 3
	}
	if wf.MinTrainRows <= 0 {
		wf.MinTrainRows = 30
	}
	if wf.MinTestRows <= 0 {
		wf.MinTestRows = 10
	}
	opt := wf.Optimizer
	if opt == nil {
		opt = NewRandomSearch(wf.OptimizerTrials, wf.Seed)
	}

	gen, err := e.registry.Get(sc.Type)
	if err != nil {
		return nil, nil, err
	}
	prices, err := marketdata.BuildPanel(ctx, e.data, sc.Symbols, bc.Start, bc.End)
	if err != nil {
		return nil, nil, err
	}

	eval := func(ctx context.Context, panel *domain.PricePanel, cand strategy.Config) (Results, error) {
		res, err := e.runPanel(ctx, gen, panel, cand, bc)
		if err != nil {
			return Results{}, err
		}
		return res.Metrics, nil
	}

	var windows []WindowResult
	skipped := 0

	for winStart := bc.Start; ; winStart = winStart.AddDate(0, wf.TestMonths, 0) {
		trainEnd := winStart.AddDate(0, wf.TrainMonths, 0)
		testEnd := trainEnd.AddDate(0, wf.TestMonths, 0)
		if testEnd.After(bc.End) {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		train := prices.SliceDates(winStart, trainEnd)
		test := prices.SliceDates(trainEnd.AddDate(0, 0, 1), testEnd)
		if train.Rows() < wf.MinTrainRows || test.Rows() < wf.MinTestRows {
			skipped++
			e.log.Debug("skipping window",
				"train_start", winStart.Format("2006-01-02"),
				"train_rows", train.Rows(),
				"test_rows", test.Rows(),
			)
			continue
		}

		params, err := opt.Optimize(ctx, train, sc, eval)
		if err != nil {
			return nil, nil, err
		}

		trainRes, err := e.runPanel(ctx, gen, train, params, bc)
		if err != nil {
			e.log.Warn("train evaluation failed", "window_start", winStart, "err", err)
			skipped++
			continue
		}
		testRes, err := e.runPanel(ctx, gen, test, params, bc)
		if err != nil {
			e.log.Warn("test evaluation failed", "window_start", winStart, "err", err)
			skipped++
			continue
		}

		windows = append(windows, WindowResult{
			TrainStart:   winStart,
			TrainEnd:     trainEnd,
			TestStart:    trainEnd.AddDate(0, 0, 1),
			TestEnd:      testEnd,
			Parameters:   params,
			TrainMetrics: trainRes.Metrics,
			TestMetrics:  testRes.Metrics,
		})
	}

	return windows, aggregateWalkForward(windows, skipped), nil
}

// WalkForwardAnalysis wraps RunWalkForward with the error-field report
// boundary.
func (e *Engine) WalkForwardAnalysis(ctx context.Context, sc strategy.Config, bc Config, wf WalkForwardConfig) (*WalkForwardReport, error) {
	windows, analysis, err := e.RunWalkForward(ctx, sc, bc, wf)
	if err != nil {
		e.log.Error("walk-forward failed", "strategy", sc.Type, "err", err)
		report := &WalkForwardReport{Error: err.Error()}
		if e.FailFast {
			return report, err
		}
		return report, nil
	}

	sc = sc.WithDefaults()
	return &WalkForwardReport{
		StrategyConfig:     &sc,
		WalkForwardResults: windows,
		Analysis:           analysis,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func aggregateWalkForward(windows []WindowResult, skipped int) *WalkForwardStats {
	s := &WalkForwardStats{
		Windows:        len(windows),
		SkippedWindows: skipped,
		Degradation:    "unstable",
	}
	if len(windows) == 0 {
		return s
	}

	annual := make([]float64, len(windows))
	sharpe := make([]float64, len(windows))
	trainSharpe := make([]float64, len(windows))
	for i, w := range windows {
		annual[i] = w.TestMetrics.AnnualReturn
		sharpe[i] = w.TestMetrics.SharpeRatio
		trainSharpe[i] = w.TrainMetrics.SharpeRatio
	}

	s.MeanAnnualReturn = zeroIfBad(stat.Mean(annual, nil))
	s.MeanSharpe = zeroIfBad(stat.Mean(sharpe, nil))
	if len(windows) > 1 {
		s.StdAnnualReturn = zeroIfBad(stat.StdDev(annual, nil))
		s.StdSharpe = zeroIfBad(stat.StdDev(sharpe, nil))
		s.TrainTestSharpeCorr = zeroIfBad(stat.Correlation(trainSharpe, sharpe, nil))
	}
	if s.StdAnnualReturn < 0.05 {
		s.Degradation = "stable"
	}
	return s
}
