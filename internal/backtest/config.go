// Package backtest implements the quantbt engine core: portfolio
// simulation, performance analysis, and the single-run, Monte Carlo,
// and walk-forward experiment drivers.
package backtest

import (
	"fmt"
	"time"
)

// RebalanceFreq selects the sampling granularity of the returns series.
type RebalanceFreq string

const (
	RebalanceDaily   RebalanceFreq = "daily"
	RebalanceWeekly  RebalanceFreq = "weekly"
	RebalanceMonthly RebalanceFreq = "monthly"
)

// step returns the equity-curve sampling stride in trading days.
func (f RebalanceFreq) step() int {
	switch f {
	case RebalanceWeekly:
		return 5
	case RebalanceMonthly:
		return 21
	default:
		return 1
	}
}

// periodsPerYear returns the annualization count for the frequency.
func (f RebalanceFreq) periodsPerYear() float64 {
	switch f {
	case RebalanceWeekly:
		return 52
	case RebalanceMonthly:
		return 12
	default:
		return 252
	}
}

// Config holds the cost, capital, and period parameters of one backtest
// run. It is constructed once per run and never mutated mid-run.
type Config struct {
	InitialCapital float64       `json:"initial_capital" yaml:"initial_capital"`
	Commission     float64       `json:"commission" yaml:"commission"`
	Slippage       float64       `json:"slippage" yaml:"slippage"`
	Start          time.Time     `json:"start_date" yaml:"start_date"`
	End            time.Time     `json:"end_date" yaml:"end_date"`
	Benchmark      string        `json:"benchmark,omitempty" yaml:"benchmark"`
	RiskFreeRate   float64       `json:"risk_free_rate" yaml:"risk_free_rate"`
	RebalanceFreq  RebalanceFreq `json:"rebalance_freq" yaml:"rebalance_freq"`
	MaxLeverage    float64       `json:"max_leverage" yaml:"max_leverage"`
	PositionSize   float64       `json:"position_size" yaml:"position_size"`
}

// DefaultConfig returns a Config with engine defaults over [start, end].
func DefaultConfig(start, end time.Time) Config {
	return Config{
		InitialCapital: 100000,
		Commission:     0.001,
		Slippage:       0.0005,
		Start:          start,
		End:            end,
		Benchmark:      "SPY",
		RiskFreeRate:   0.02,
		RebalanceFreq:  RebalanceDaily,
		MaxLeverage:    1,
		PositionSize:   0.1,
	}
}

// Validate checks the config invariants.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be > 0, got %v", c.InitialCapital)
	}
	if c.Commission < 0 {
		return fmt.Errorf("commission must be >= 0, got %v", c.Commission)
	}
	if c.Slippage < 0 {
		return fmt.Errorf("slippage must be >= 0, got %v", c.Slippage)
	}
	if !c.Start.Before(c.End) {
		return fmt.Errorf("start_date %s must precede end_date %s",
			c.Start.Format("2006-01-02"), c.End.Format("2006-01-02"))
	}
	if c.MaxLeverage < 1 {
		return fmt.Errorf("max_leverage must be >= 1, got %v", c.MaxLeverage)
	}
	if c.PositionSize <= 0 || c.PositionSize > 1 {
		return fmt.Errorf("position_size must be in (0, 1], got %v", c.PositionSize)
	}
	switch c.RebalanceFreq {
	case RebalanceDaily, RebalanceWeekly, RebalanceMonthly:
	default:
		return fmt.Errorf("unknown rebalance_freq %q", c.RebalanceFreq)
	}
	return nil
}
