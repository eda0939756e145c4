package backtest

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Results is the immutable set of performance metrics computed once
// from a simulated portfolio.
type Results struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualReturn     float64 `json:"annual_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	VaR95            float64 `json:"var_95"`
	CVaR95           float64 `json:"cvar_95"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	TotalTrades      int     `json:"total_trades"`
	AvgTradeDuration float64 `json:"avg_trade_duration"` // days
	BestTrade        float64 `json:"best_trade"`
	WorstTrade       float64 `json:"worst_trade"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	Skewness         float64 `json:"skewness"`
	Kurtosis         float64 `json:"kurtosis"`
	TailRatio        float64 `json:"tail_ratio"`
	StabilityRatio   float64 `json:"stability_ratio"`
	FinalEquity      float64 `json:"final_equity"`
}

// Analyze computes the full metric set for a simulated portfolio. Every
// ratio degrades to 0 under zero-variance or zero-denominator
// conditions rather than producing NaN, Inf, or an error.
func Analyze(p *Portfolio, cfg Config) Results {
	r := Results{
		TotalReturn: p.TotalReturn(),
		FinalEquity: p.FinalEquity,
		MaxDrawdown: maxDrawdown(p.InitialCapital, p.Equity),
	}

	r.AnnualReturn = annualReturn(p)

	returns := p.Returns
	factor := math.Sqrt(p.Freq.periodsPerYear())
	if len(returns) > 1 {
		r.Volatility = zeroIfBad(stat.StdDev(returns, nil) * factor)
	}
	if r.Volatility != 0 {
		r.SharpeRatio = zeroIfBad((r.AnnualReturn - cfg.RiskFreeRate) / r.Volatility)
	}

	if dd := downsideDeviation(returns) * factor; dd != 0 {
		r.SortinoRatio = zeroIfBad((r.AnnualReturn - cfg.RiskFreeRate) / dd)
	}
	if r.MaxDrawdown != 0 {
		r.CalmarRatio = zeroIfBad(r.AnnualReturn / r.MaxDrawdown)
	}

	if len(returns) > 0 {
		sorted := append([]float64(nil), returns...)
		sort.Float64s(sorted)
		q05 := stat.Quantile(0.05, stat.Empirical, sorted, nil)
		q95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)
		r.VaR95 = zeroIfBad(q05)
		r.CVaR95 = zeroIfBad(tailMean(sorted, q05))
		if q05 != 0 {
			r.TailRatio = zeroIfBad(q95 / math.Abs(q05))
		}
	}

	if len(returns) > 2 {
		r.Skewness = zeroIfBad(stat.Skew(returns, nil))
		r.Kurtosis = zeroIfBad(stat.ExKurtosis(returns, nil))
	}

	r.StabilityRatio = stabilityRatio(monthlyReturns(p))

	analyzeTrades(&r, p)
	return r
}

func annualReturn(p *Portfolio) float64 {
	if len(p.Dates) == 0 || p.InitialCapital <= 0 {
		return 0
	}
	growth := p.FinalEquity / p.InitialCapital
	if growth <= 0 {
		return -1
	}
	days := p.Dates[len(p.Dates)-1].Sub(p.Dates[0]).Hours() / 24
	if days <= 0 {
		return 0
	}
	years := days / 365.25
	return zeroIfBad(math.Pow(growth, 1/years) - 1)
}

// maxDrawdown is the maximum peak-to-trough decline of the equity
// curve, as a positive fraction in [0, 1].
func maxDrawdown(initial float64, equity []float64) float64 {
	peak := initial
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	if maxDD > 1 {
		maxDD = 1
	}
	return maxDD
}

// downsideDeviation is the standard deviation of the negative returns.
func downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, v := range returns {
		if v < 0 {
			negative = append(negative, v)
		}
	}
	if len(negative) < 2 {
		return 0
	}
	return zeroIfBad(stat.StdDev(negative, nil))
}

// tailMean averages the sorted returns at or below the cutoff.
func tailMean(sorted []float64, cutoff float64) float64 {
	sum, n := 0.0, 0
	for _, v := range sorted {
		if v > cutoff {
			break
		}
		sum += v
		n++
	}
	if n == 0 {
		return cutoff
	}
	return sum / float64(n)
}

// monthlyReturns compounds the per-period returns into calendar-month
// buckets, ordered chronologically.
func monthlyReturns(p *Portfolio) []float64 {
	if len(p.Returns) == 0 {
		return nil
	}
	var out []float64
	var curKey string
	cur := 1.0
	flush := func() {
		if curKey != "" {
			out = append(out, cur-1)
		}
	}
	for i, r := range p.Returns {
		key := p.ReturnDates[i].Format("2006-01")
		if key != curKey {
			flush()
			curKey = key
			cur = 1.0
		}
		cur *= 1 + r
	}
	flush()
	return out
}

// stabilityRatio is 1 minus the coefficient of variation of monthly
// returns; 0 when the mean is 0 or there are too few months.
func stabilityRatio(monthly []float64) float64 {
	if len(monthly) < 2 {
		return 0
	}
	mean := stat.Mean(monthly, nil)
	if mean == 0 {
		return 0
	}
	return zeroIfBad(1 - stat.StdDev(monthly, nil)/math.Abs(mean))
}

func analyzeTrades(r *Results, p *Portfolio) {
	r.TotalTrades = len(p.Trades)
	if len(p.Trades) == 0 {
		return
	}

	grossProfit, grossLoss := 0.0, 0.0
	wins, losses := 0, 0
	var totalDuration time.Duration
	r.BestTrade = math.Inf(-1)
	r.WorstTrade = math.Inf(1)

	for _, t := range p.Trades {
		if t.PnL > 0 {
			grossProfit += t.PnL
			wins++
		} else if t.PnL < 0 {
			grossLoss += -t.PnL
			losses++
		}
		if t.PnL > r.BestTrade {
			r.BestTrade = t.PnL
		}
		if t.PnL < r.WorstTrade {
			r.WorstTrade = t.PnL
		}
		totalDuration += t.Duration
	}

	r.WinRate = float64(wins) / float64(len(p.Trades))
	if grossLoss != 0 {
		r.ProfitFactor = grossProfit / grossLoss
	}
	if wins > 0 {
		r.AvgWin = grossProfit / float64(wins)
	}
	if losses > 0 {
		r.AvgLoss = -grossLoss / float64(losses)
	}
	r.AvgTradeDuration = totalDuration.Hours() / 24 / float64(len(p.Trades))
}

// zeroIfBad maps NaN and Inf to 0, the required degradation policy for
// degenerate inputs.
func zeroIfBad(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
