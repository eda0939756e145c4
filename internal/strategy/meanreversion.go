package strategy

import (
	"math"

	"quantbt/internal/domain"
)

// Compile-time interface check.
var _ Generator = (*MeanReversion)(nil)

// MeanReversion signals against Bollinger band breaches: +1 when the
// price drops below the lower band (oversold) and -1 when it rises above
// the upper band (overbought).
type MeanReversion struct{}

// Kind returns KindMeanReversion.
func (*MeanReversion) Kind() Kind { return KindMeanReversion }

// Generate produces mean-reversion signals for every symbol column.
func (*MeanReversion) Generate(prices *domain.PricePanel, cfg Config) (*domain.SignalPanel, error) {
	cfg = cfg.WithDefaults()
	lookback := cfg.LookbackPeriod
	width := cfg.StdDev

	n := prices.Rows()
	symbols := prices.Symbols()
	cells := make([][]int, len(symbols))

	for c, sym := range symbols {
		col, _ := prices.Column(sym)
		means, stds := rollingStats(col, lookback)

		raw := make([]int, n)
		defined := make([]bool, n)
		for t := 0; t < n; t++ {
			if math.IsNaN(means[t]) {
				continue
			}
			defined[t] = true
			upper := means[t] + width*stds[t]
			lower := means[t] - width*stds[t]
			switch {
			case col[t] < lower:
				raw[t] = 1
			case col[t] > upper:
				raw[t] = -1
			}
		}
		cells[c] = finalizeSignals(raw, defined)
	}

	return domain.NewSignalPanel(prices.Dates(), symbols, cells)
}
