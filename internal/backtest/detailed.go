package backtest

import (
	"sort"
	"time"

	"quantbt/internal/domain"
)

// DetailedAnalysis breaks a single backtest down beyond the scalar
// metric set: calendar return tables, drawdown periods, trade summary,
// and the signal distribution per symbol.
type DetailedAnalysis struct {
	MonthlyReturns     map[string]float64      `json:"monthly_returns"`
	YearlyReturns      map[string]float64      `json:"yearly_returns"`
	DrawdownPeriods    []DrawdownPeriod        `json:"drawdown_periods"`
	TradeSummary       TradeSummary            `json:"trade_summary"`
	SignalDistribution map[string]SignalCounts `json:"signal_distribution"`
}

// DrawdownPeriod is one peak-to-recovery episode of the equity curve.
type DrawdownPeriod struct {
	Start    time.Time `json:"start"`
	Trough   time.Time `json:"trough"`
	End      time.Time `json:"end"` // zero when not yet recovered
	Depth    float64   `json:"depth"`
	Duration int       `json:"duration_days"`
}

// TradeSummary tallies the trade ledger.
type TradeSummary struct {
	Total       int     `json:"total"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	LongTrades  int     `json:"long_trades"`
	ShortTrades int     `json:"short_trades"`
	AvgPnL      float64 `json:"avg_pnl"`
	TotalPnL    float64 `json:"total_pnl"`
}

// SignalCounts is the buy/sell/hold distribution for one symbol column.
type SignalCounts struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
	Holds int `json:"holds"`
}

// maxDrawdownPeriods caps the number of episodes reported, deepest
// first.
const maxDrawdownPeriods = 5

// Detail computes the detailed analysis for a completed run.
func Detail(p *Portfolio, signals *domain.SignalPanel) *DetailedAnalysis {
	d := &DetailedAnalysis{
		MonthlyReturns:     calendarReturns(p, "2006-01"),
		YearlyReturns:      calendarReturns(p, "2006"),
		DrawdownPeriods:    drawdownPeriods(p),
		SignalDistribution: make(map[string]SignalCounts),
	}

	for c, sym := range signals.Symbols() {
		buys, sells, holds := signals.Counts(c)
		d.SignalDistribution[sym] = SignalCounts{Buys: buys, Sells: sells, Holds: holds}
	}

	s := &d.TradeSummary
	s.Total = len(p.Trades)
	for _, t := range p.Trades {
		if t.PnL > 0 {
			s.Wins++
		} else if t.PnL < 0 {
			s.Losses++
		}
		if t.Side == domain.TradeSideShort {
			s.ShortTrades++
		} else {
			s.LongTrades++
		}
		s.TotalPnL += t.PnL
	}
	if s.Total > 0 {
		s.AvgPnL = s.TotalPnL / float64(s.Total)
	}

	return d
}

// calendarReturns compounds the returns series into buckets keyed by
// the given date format.
func calendarReturns(p *Portfolio, layout string) map[string]float64 {
	out := make(map[string]float64)
	for i, r := range p.Returns {
		key := p.ReturnDates[i].Format(layout)
		if cur, ok := out[key]; ok {
			out[key] = (1+cur)*(1+r) - 1
		} else {
			out[key] = r
		}
	}
	return out
}

// drawdownPeriods extracts peak-to-recovery episodes from the equity
// curve, deepest first, capped at maxDrawdownPeriods.
func drawdownPeriods(p *Portfolio) []DrawdownPeriod {
	var periods []DrawdownPeriod

	peak := p.InitialCapital
	var cur *DrawdownPeriod
	peakDate := time.Time{}
	if len(p.Dates) > 0 {
		peakDate = p.Dates[0]
	}

	for i, v := range p.Equity {
		if v >= peak {
			if cur != nil {
				cur.End = p.Dates[i]
				cur.Duration = int(cur.End.Sub(cur.Start).Hours() / 24)
				periods = append(periods, *cur)
				cur = nil
			}
			peak = v
			peakDate = p.Dates[i]
			continue
		}
		depth := 0.0
		if peak > 0 {
			depth = (peak - v) / peak
		}
		if cur == nil {
			cur = &DrawdownPeriod{Start: peakDate, Trough: p.Dates[i], Depth: depth}
		} else if depth > cur.Depth {
			cur.Depth = depth
			cur.Trough = p.Dates[i]
		}
	}
	if cur != nil {
		// Unrecovered at the end of the run.
		cur.Duration = int(p.Dates[len(p.Dates)-1].Sub(cur.Start).Hours() / 24)
		periods = append(periods, *cur)
	}

	sort.Slice(periods, func(i, j int) bool { return periods[i].Depth > periods[j].Depth })
	if len(periods) > maxDrawdownPeriods {
		periods = periods[:maxDrawdownPeriods]
	}
	return periods
}
