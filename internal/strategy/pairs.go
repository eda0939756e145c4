package strategy

import (
	"fmt"
	"math"

	"quantbt/internal/domain"
)

// Compile-time interface check.
var _ Generator = (*PairsTrading)(nil)

// PairsTrading trades the z-score of the log-price spread between the
// first two symbols: short the spread (sell A, buy B) when the z-score
// exceeds the entry threshold, long the spread when it falls below the
// negated threshold, flat inside the exit band, otherwise holding the
// previous position. The second leg always carries the negated signal.
type PairsTrading struct{}

// Kind returns KindPairsTrading.
func (*PairsTrading) Kind() Kind { return KindPairsTrading }

// Generate produces pairs signals. At least two symbol columns are
// required; any columns beyond the first two stay flat.
func (*PairsTrading) Generate(prices *domain.PricePanel, cfg Config) (*domain.SignalPanel, error) {
	cfg = cfg.WithDefaults()
	symbols := prices.Symbols()
	if len(symbols) < 2 {
		return nil, fmt.Errorf("pairs_trading requires at least 2 symbols, got %d", len(symbols))
	}

	lookback := cfg.LookbackPeriod
	entry := cfg.EntryThreshold
	exit := cfg.ExitThreshold

	colA, _ := prices.Column(symbols[0])
	colB, _ := prices.Column(symbols[1])

	n := prices.Rows()
	spread := make([]float64, n)
	for t := 0; t < n; t++ {
		spread[t] = math.Log(colA[t]) - math.Log(colB[t])
	}
	means, stds := rollingStats(spread, lookback)

	sigA := make([]int, n)
	prev := 0
	for t := 0; t < n; t++ {
		if math.IsNaN(means[t]) {
			sigA[t] = 0
			continue
		}
		var z float64
		if stds[t] > 0 {
			z = (spread[t] - means[t]) / stds[t]
		}
		switch {
		case z > entry:
			prev = -1
		case z < -entry:
			prev = 1
		case math.Abs(z) < exit:
			prev = 0
		}
		sigA[t] = prev
	}

	cells := make([][]int, len(symbols))
	cells[0] = sigA
	sigB := make([]int, n)
	for t := range sigA {
		sigB[t] = -sigA[t]
	}
	cells[1] = sigB
	for c := 2; c < len(symbols); c++ {
		cells[c] = make([]int, n)
	}

	return domain.NewSignalPanel(prices.Dates(), symbols, cells)
}
