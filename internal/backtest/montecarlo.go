package backtest

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"quantbt/internal/domain"
	"quantbt/internal/marketdata"
	"quantbt/internal/strategy"
)

// Resampler produces a synthetic price panel from the observed one.
// Resampled panels keep the original date index so downstream slicing
// and calendar bucketing stay valid.
type Resampler func(p *domain.PricePanel, rng *rand.Rand) *domain.PricePanel

// IdentityResampler returns the panel unchanged. With it, a one-shot
// Monte Carlo run reproduces the single-run backtest exactly.
func IdentityResampler(p *domain.PricePanel, _ *rand.Rand) *domain.PricePanel {
	return p.Clone()
}

// BlockResampler bootstraps contiguous blocks of blockSize rows with
// replacement, preserving serial correlation, trimmed to the original
// length.
func BlockResampler(blockSize int) Resampler {
	return func(p *domain.PricePanel, rng *rand.Rand) *domain.PricePanel {
		rows := p.Rows()
		if blockSize <= 0 || blockSize > rows {
			return p.Clone()
		}

		var picks []int
		for len(picks) < rows {
			start := rng.Intn(rows - blockSize + 1)
			for i := 0; i < blockSize && len(picks) < rows; i++ {
				picks = append(picks, start+i)
			}
		}

		symbols := p.Symbols()
		cols := make([][]float64, len(symbols))
		for c, sym := range symbols {
			src, _ := p.Column(sym)
			col := make([]float64, rows)
			for t, idx := range picks {
				col[t] = src[idx]
			}
			cols[c] = col
		}
		out, err := p.WithColumns(cols)
		if err != nil {
			// Shape is preserved by construction.
			return p.Clone()
		}
		return out
	}
}

// MonteCarloConfig parameterizes a Monte Carlo experiment.
type MonteCarloConfig struct {
	NumSimulations int
	BlockSize      int
	Seed           int64
	// Resampler overrides the default block bootstrap when non-nil.
	Resampler Resampler
}

// MonteCarloAnalysis aggregates the simulated return distribution.
type MonteCarloAnalysis struct {
	MeanReturn   float64 `json:"mean_return"`
	MedianReturn float64 `json:"median_return"`
	StdReturn    float64 `json:"std_return"`
	MinReturn    float64 `json:"min_return"`
	MaxReturn    float64 `json:"max_return"`

	ConfidenceIntervals map[string][2]float64 `json:"confidence_intervals"`

	ProbPositive   float64 `json:"prob_positive"`
	ProbAbove10Pct float64 `json:"prob_above_10pct"`
	ProbBelow10Pct float64 `json:"prob_below_neg_10pct"`

	VaR95   float64 `json:"var_95"`
	CVaR95  float64 `json:"cvar_95"`
	MaxLoss float64 `json:"max_loss"`

	CompletedSimulations int `json:"completed_simulations"`
	SkippedSimulations   int `json:"skipped_simulations"`
}

// MonteCarloReport is the JSON-serializable result of
// MonteCarloBacktest. Callers must check Error before reading the
// other fields.
type MonteCarloReport struct {
	StrategyConfig     *strategy.Config    `json:"strategy_config,omitempty"`
	NumSimulations     int                 `json:"num_simulations,omitempty"`
	MonteCarloAnalysis *MonteCarloAnalysis `json:"monte_carlo_analysis,omitempty"`
	Timestamp          string              `json:"timestamp,omitempty"`
	Error              string              `json:"error,omitempty"`
}

// RunMonteCarlo repeats the single-backtest pipeline on resampled price
// panels and aggregates the resulting return distribution. It checks
// the context at every iteration boundary; per-iteration failures are
// logged, skipped, and counted.
func (e *Engine) RunMonteCarlo(ctx context.Context, sc strategy.Config, bc Config, mc MonteCarloConfig) (*MonteCarloAnalysis, error) {
	if err := bc.Validate(); err != nil {
		return nil, err
	}
	sc = sc.WithDefaults()
	if mc.NumSimulations <= 0 {
		mc.NumSimulations = 1000
	}
	if mc.BlockSize <= 0 {
		mc.BlockSize = 20
	}
	resample := mc.Resampler
	if resample == nil {
		resample = BlockResampler(mc.BlockSize)
	}

	gen, err := e.registry.Get(sc.Type)
	if err != nil {
		return nil, err
	}
	prices, err := marketdata.BuildPanel(ctx, e.data, sc.Symbols, bc.Start, bc.End)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(mc.Seed))
	returns := make([]float64, 0, mc.NumSimulations)
	skipped := 0

	for i := 0; i < mc.NumSimulations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := e.runPanel(ctx, gen, resample(prices, rng), sc, bc)
		if err != nil {
			e.log.Warn("simulation failed", "iteration", i, "err", err)
			skipped++
			continue
		}
		returns = append(returns, res.Metrics.TotalReturn)

		if done := i + 1; e.ProgressEvery > 0 && done%e.ProgressEvery == 0 {
			e.log.Info("monte carlo progress", "completed", done, "total", mc.NumSimulations)
		}
	}

	if len(returns) == 0 {
		return nil, &InsufficientDataError{Rows: 0, Required: 1}
	}
	return aggregateMonteCarlo(returns, skipped), nil
}

// MonteCarloBacktest wraps RunMonteCarlo with the error-field report
// boundary.
func (e *Engine) MonteCarloBacktest(ctx context.Context, sc strategy.Config, bc Config, mc MonteCarloConfig) (*MonteCarloReport, error) {
	if mc.NumSimulations <= 0 {
		mc.NumSimulations = 1000
	}
	analysis, err := e.RunMonteCarlo(ctx, sc, bc, mc)
	if err != nil {
		e.log.Error("monte carlo failed", "strategy", sc.Type, "err", err)
		report := &MonteCarloReport{Error: err.Error()}
		if e.FailFast {
			return report, err
		}
		return report, nil
	}

	sc = sc.WithDefaults()
	return &MonteCarloReport{
		StrategyConfig:     &sc,
		NumSimulations:     mc.NumSimulations,
		MonteCarloAnalysis: analysis,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func aggregateMonteCarlo(returns []float64, skipped int) *MonteCarloAnalysis {
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	a := &MonteCarloAnalysis{
		MeanReturn:           zeroIfBad(stat.Mean(sorted, nil)),
		MedianReturn:         zeroIfBad(stat.Quantile(0.5, stat.Empirical, sorted, nil)),
		MinReturn:            sorted[0],
		MaxReturn:            sorted[len(sorted)-1],
		ConfidenceIntervals:  make(map[string][2]float64),
		CompletedSimulations: len(returns),
		SkippedSimulations:   skipped,
	}
	if len(sorted) > 1 {
		a.StdReturn = zeroIfBad(stat.StdDev(sorted, nil))
	}

	for _, ci := range []struct {
		label string
		alpha float64
	}{
		{"80%", 0.10},
		{"90%", 0.05},
		{"95%", 0.025},
	} {
		lo := stat.Quantile(ci.alpha, stat.Empirical, sorted, nil)
		hi := stat.Quantile(1-ci.alpha, stat.Empirical, sorted, nil)
		a.ConfidenceIntervals[ci.label] = [2]float64{zeroIfBad(lo), zeroIfBad(hi)}
	}

	positive, above, below := 0, 0, 0
	for _, r := range sorted {
		if r > 0 {
			positive++
		}
		if r > 0.10 {
			above++
		}
		if r < -0.10 {
			below++
		}
	}
	n := float64(len(sorted))
	a.ProbPositive = float64(positive) / n
	a.ProbAbove10Pct = float64(above) / n
	a.ProbBelow10Pct = float64(below) / n

	q05 := stat.Quantile(0.05, stat.Empirical, sorted, nil)
	a.VaR95 = zeroIfBad(q05)
	a.CVaR95 = zeroIfBad(tailMean(sorted, q05))
	a.MaxLoss = math.Min(sorted[0], 0)

	return a
}
