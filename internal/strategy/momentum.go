package strategy

import (
	"quantbt/internal/domain"
)

// Compile-time interface check.
var _ Generator = (*Momentum)(nil)

// Momentum signals +1 when the percentage change over the lookback
// window exceeds the threshold, and -1 when it falls below the negated
// threshold.
type Momentum struct{}

// Kind returns KindMomentum.
func (*Momentum) Kind() Kind { return KindMomentum }

// Generate produces momentum signals for every symbol column.
func (*Momentum) Generate(prices *domain.PricePanel, cfg Config) (*domain.SignalPanel, error) {
	cfg = cfg.WithDefaults()
	lookback := cfg.LookbackPeriod
	threshold := cfg.MomentumThreshold

	n := prices.Rows()
	symbols := prices.Symbols()
	cells := make([][]int, len(symbols))

	for c, sym := range symbols {
		col, _ := prices.Column(sym)
		raw := make([]int, n)
		defined := make([]bool, n)
		for t := lookback; t < n; t++ {
			if col[t-lookback] == 0 {
				continue
			}
			change := col[t]/col[t-lookback] - 1
			defined[t] = true
			switch {
			case change > threshold:
				raw[t] = 1
			case change < -threshold:
				raw[t] = -1
			}
		}
		cells[c] = finalizeSignals(raw, defined)
	}

	return domain.NewSignalPanel(prices.Dates(), symbols, cells)
}
