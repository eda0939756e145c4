package backtest

import (
	"fmt"
	"math"
	"time"

	"quantbt/internal/domain"
)

// Portfolio is the result of simulating a signal panel against a price
// panel: the equity curve, the sampled returns series, and the trade
// ledger.
type Portfolio struct {
	InitialCapital float64
	FinalEquity    float64

	// Equity holds the mark-to-market equity after each panel row.
	Equity []float64
	// Dates is the panel's date index, parallel to Equity.
	Dates []time.Time

	// Returns is the per-period returns series sampled at the
	// configured rebalance frequency; ReturnDates stamps each period
	// end.
	Returns     []float64
	ReturnDates []time.Time
	Freq        RebalanceFreq

	Trades []domain.Trade
}

// TotalReturn is final equity over initial capital, minus one.
func (p *Portfolio) TotalReturn() float64 {
	if p.InitialCapital == 0 {
		return 0
	}
	return p.FinalEquity/p.InitialCapital - 1
}

// SimOptions carries per-run simulator options derived from the
// strategy rather than the backtest config.
type SimOptions struct {
	// AllowShort lets -1 signals open short positions instead of only
	// closing longs (pairs-style strategies).
	AllowShort bool
	// MinRows is the row count the configured lookback windows demand;
	// fewer rows fail with InsufficientDataError.
	MinRows int
}

// position is one open book entry. Quantity is signed: positive long,
// negative short. entryCash is the signed net cash flow at entry
// (negative for longs, positive for shorts).
type position struct {
	qty       float64
	entryTime time.Time
	entryFill float64
	entryCash float64
}

// Simulate runs the signal panel through a sequential mark-to-market
// portfolio simulation. Entries occur on +1, exits on -1; commission is
// charged on notional at both ends and slippage adjusts every fill
// adversely. Capital per position is PositionSize of current equity,
// with aggregate exposure capped at MaxLeverage times equity. Open
// positions are liquidated at the final close so the ledger reconciles
// with total return.
func Simulate(prices *domain.PricePanel, signals *domain.SignalPanel, cfg Config, opts SimOptions) (*Portfolio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rows := prices.Rows()
	if opts.MinRows > 0 && rows < opts.MinRows {
		return nil, &InsufficientDataError{Rows: rows, Required: opts.MinRows}
	}
	if rows < 2 {
		return nil, &InsufficientDataError{Rows: rows, Required: 2}
	}
	if signals.Rows() != rows {
		return nil, fmt.Errorf("signal panel has %d rows, prices have %d", signals.Rows(), rows)
	}

	symbols := prices.Symbols()
	dates := prices.Dates()
	book := make(map[int]*position, len(symbols))
	cash := cfg.InitialCapital

	equity := make([]float64, rows)
	var trades []domain.Trade

	markToMarket := func(t int) float64 {
		eq := cash
		for c, pos := range book {
			eq += pos.qty * prices.At(t, c)
		}
		return eq
	}
	exposure := func(t int) float64 {
		exp := 0.0
		for c, pos := range book {
			exp += math.Abs(pos.qty) * prices.At(t, c)
		}
		return exp
	}

	closePosition := func(t, c int) {
		pos := book[c]
		px := prices.At(t, c)
		var fill, flow float64
		if pos.qty > 0 {
			fill = px * (1 - cfg.Slippage)
			proceeds := pos.qty * fill
			flow = proceeds - cfg.Commission*proceeds
		} else {
			fill = px * (1 + cfg.Slippage)
			cost := -pos.qty * fill
			flow = -(cost + cfg.Commission*cost)
		}
		cash += flow

		side := domain.TradeSideLong
		if pos.qty < 0 {
			side = domain.TradeSideShort
		}
		trades = append(trades, domain.Trade{
			Symbol:     symbols[c],
			Side:       side,
			EntryTime:  pos.entryTime,
			ExitTime:   dates[t],
			EntryPrice: pos.entryFill,
			ExitPrice:  fill,
			Quantity:   math.Abs(pos.qty),
			PnL:        flow + pos.entryCash,
			Duration:   dates[t].Sub(pos.entryTime),
		})
		delete(book, c)
	}

	openPosition := func(t, c int, short bool) {
		eq := markToMarket(t)
		if eq <= 0 {
			return
		}
		alloc := cfg.PositionSize * eq
		headroom := cfg.MaxLeverage*eq - exposure(t)
		if headroom < alloc {
			alloc = headroom
		}
		if alloc <= 0 {
			return
		}

		px := prices.At(t, c)
		if px <= 0 {
			return
		}
		var fill, qty, flow float64
		if short {
			fill = px * (1 - cfg.Slippage)
			qty = -(alloc / fill)
			proceeds := -qty * fill
			flow = proceeds - cfg.Commission*proceeds
		} else {
			fill = px * (1 + cfg.Slippage)
			qty = alloc / fill
			spent := qty * fill
			flow = -(spent + cfg.Commission*spent)
		}
		cash += flow
		book[c] = &position{
			qty:       qty,
			entryTime: dates[t],
			entryFill: fill,
			entryCash: flow,
		}
	}

	for t := 0; t < rows; t++ {
		for c := range symbols {
			sig := signals.At(t, c)
			pos := book[c]
			switch {
			case sig > 0:
				if pos != nil && pos.qty < 0 {
					closePosition(t, c)
					pos = nil
				}
				if pos == nil {
					openPosition(t, c, false)
				}
			case sig < 0:
				if pos != nil && pos.qty > 0 {
					closePosition(t, c)
					pos = nil
				}
				if pos == nil && opts.AllowShort {
					openPosition(t, c, true)
				}
			}
		}
		equity[t] = markToMarket(t)
	}

	// Liquidate the book at the final close.
	last := rows - 1
	for c := range symbols {
		if _, open := book[c]; open {
			closePosition(last, c)
		}
	}
	equity[last] = markToMarket(last)

	p := &Portfolio{
		InitialCapital: cfg.InitialCapital,
		FinalEquity:    equity[last],
		Equity:         equity,
		Dates:          dates,
		Freq:           cfg.RebalanceFreq,
		Trades:         trades,
	}
	p.Returns, p.ReturnDates = sampleReturns(cfg.InitialCapital, equity, dates, cfg.RebalanceFreq.step())
	return p, nil
}

// sampleReturns converts the equity curve into per-period returns at
// the given stride, always including the final point so the compounded
// returns reproduce the total return exactly.
func sampleReturns(initial float64, equity []float64, dates []time.Time, step int) ([]float64, []time.Time) {
	if step < 1 {
		step = 1
	}
	// Prepend the starting capital as the implicit first sample.
	curve := []float64{initial}
	stamps := []time.Time{}
	for i := step - 1; i < len(equity); i += step {
		curve = append(curve, equity[i])
		stamps = append(stamps, dates[i])
	}
	if lastIdx := len(equity) - 1; (lastIdx+1)%step != 0 {
		curve = append(curve, equity[lastIdx])
		stamps = append(stamps, dates[lastIdx])
	}

	returns := make([]float64, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1] <= 0 {
			returns[i-1] = 0
			continue
		}
		returns[i-1] = curve[i]/curve[i-1] - 1
	}
	return returns, stamps
}
