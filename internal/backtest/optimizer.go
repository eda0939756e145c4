package backtest

import (
	"context"
	"math"
	"math/rand"

	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// Evaluator scores one candidate strategy config on a price panel. The
// walk-forward driver supplies it so optimizers stay decoupled from the
// engine.
type Evaluator func(ctx context.Context, prices *domain.PricePanel, sc strategy.Config) (Results, error)

// Optimizer searches for strategy parameters on a training panel.
// Implementations must be deterministic for a fixed seed.
type Optimizer interface {
	Optimize(ctx context.Context, prices *domain.PricePanel, base strategy.Config, eval Evaluator) (strategy.Config, error)
}

// Compile-time interface check.
var _ Optimizer = (*RandomSearch)(nil)

// RandomSearch draws candidate parameter sets from per-kind ranges and
// keeps the one with the best training Sharpe ratio. The base config
// (with defaults applied) is always evaluated first, so the search
// never returns worse-than-default parameters on the training slice.
type RandomSearch struct {
	Trials int
	rng    *rand.Rand
}

// NewRandomSearch creates a seeded RandomSearch with the given trial
// budget.
func NewRandomSearch(trials int, seed int64) *RandomSearch {
	if trials <= 0 {
		trials = 20
	}
	return &RandomSearch{
		Trials: trials,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Optimize evaluates the base config plus Trials random candidates and
// returns the best-scoring one. Candidates that fail to evaluate are
// skipped.
func (o *RandomSearch) Optimize(ctx context.Context, prices *domain.PricePanel, base strategy.Config, eval Evaluator) (strategy.Config, error) {
	best := base.WithDefaults()
	bestScore := math.Inf(-1)

	candidates := make([]strategy.Config, 0, o.Trials+1)
	candidates = append(candidates, best)
	for i := 0; i < o.Trials; i++ {
		candidates = append(candidates, o.draw(best))
	}

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		res, err := eval(ctx, prices, cand)
		if err != nil {
			continue
		}
		if res.SharpeRatio > bestScore {
			bestScore = res.SharpeRatio
			best = cand
		}
	}
	return best, nil
}

// draw samples one candidate from the parameter ranges of the base
// config's strategy kind.
func (o *RandomSearch) draw(base strategy.Config) strategy.Config {
	cand := base
	switch base.Type {
	case strategy.KindMomentum:
		cand.LookbackPeriod = 10 + o.rng.Intn(51)
		cand.MomentumThreshold = 0.005 + o.rng.Float64()*0.045
	case strategy.KindMeanReversion:
		cand.LookbackPeriod = 10 + o.rng.Intn(51)
		cand.StdDev = 1.5 + o.rng.Float64()*1.5
	case strategy.KindPairsTrading:
		cand.EntryThreshold = 1.5 + o.rng.Float64()*1.5
		cand.ExitThreshold = 0.25 + o.rng.Float64()*0.75
		if cand.ExitThreshold >= cand.EntryThreshold {
			cand.ExitThreshold = cand.EntryThreshold / 2
		}
	}
	return cand
}
