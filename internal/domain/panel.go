package domain

import (
	"fmt"
	"math"
	"time"
)

// PricePanel is a table of per-symbol closing prices over a shared date
// index. The index is ascending with no duplicate dates, and columns are
// forward-filled so that no cell is NaN after construction. A panel is
// treated as immutable for the duration of a backtest run.
type PricePanel struct {
	dates   []time.Time
	symbols []string
	columns [][]float64 // columns[i] holds the closes for symbols[i]
}

// NewPricePanel builds a panel from a shared date index and one column
// per symbol. It validates shape, ordering, and uniqueness of the index.
func NewPricePanel(dates []time.Time, symbols []string, columns [][]float64) (*PricePanel, error) {
	if len(symbols) != len(columns) {
		return nil, fmt.Errorf("panel: %d symbols but %d columns", len(symbols), len(columns))
	}
	for i, col := range columns {
		if len(col) != len(dates) {
			return nil, fmt.Errorf("panel: column %s has %d rows, index has %d", symbols[i], len(col), len(dates))
		}
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("panel: date index not strictly ascending at row %d (%s)", i, dates[i].Format("2006-01-02"))
		}
	}
	return &PricePanel{dates: dates, symbols: symbols, columns: columns}, nil
}

// Rows returns the number of timestamps in the panel.
func (p *PricePanel) Rows() int { return len(p.dates) }

// Symbols returns the panel's symbol order.
func (p *PricePanel) Symbols() []string { return p.symbols }

// Dates returns the panel's date index.
func (p *PricePanel) Dates() []time.Time { return p.dates }

// At returns the close for symbol column c at row t.
func (p *PricePanel) At(t, c int) float64 { return p.columns[c][t] }

// Column returns the close series for the given symbol. Callers must not
// mutate the returned slice.
func (p *PricePanel) Column(symbol string) ([]float64, bool) {
	for i, s := range p.symbols {
		if s == symbol {
			return p.columns[i], true
		}
	}
	return nil, false
}

// Slice returns a copy of rows [from, to) as a new panel.
func (p *PricePanel) Slice(from, to int) *PricePanel {
	if from < 0 {
		from = 0
	}
	if to > len(p.dates) {
		to = len(p.dates)
	}
	if from > to {
		from = to
	}
	dates := append([]time.Time(nil), p.dates[from:to]...)
	cols := make([][]float64, len(p.columns))
	for i, col := range p.columns {
		cols[i] = append([]float64(nil), col[from:to]...)
	}
	return &PricePanel{dates: dates, symbols: p.symbols, columns: cols}
}

// SliceDates returns a copy of the rows with start <= date <= end.
func (p *PricePanel) SliceDates(start, end time.Time) *PricePanel {
	from := len(p.dates)
	for i, d := range p.dates {
		if !d.Before(start) {
			from = i
			break
		}
	}
	to := from
	for to < len(p.dates) && !p.dates[to].After(end) {
		to++
	}
	return p.Slice(from, to)
}

// Clone returns a deep copy of the panel.
func (p *PricePanel) Clone() *PricePanel {
	return p.Slice(0, len(p.dates))
}

// WithColumns returns a panel sharing this panel's index and symbols but
// carrying new column data. Used by resamplers that keep the original
// date index.
func (p *PricePanel) WithColumns(columns [][]float64) (*PricePanel, error) {
	return NewPricePanel(p.dates, p.symbols, columns)
}

// ForwardFill replaces NaN cells with the last defined value in the same
// column, then drops leading rows where any column is still undefined.
// It returns a new panel and leaves the receiver untouched.
func (p *PricePanel) ForwardFill() *PricePanel {
	cols := make([][]float64, len(p.columns))
	for i, col := range p.columns {
		filled := append([]float64(nil), col...)
		last := math.NaN()
		for t, v := range filled {
			if math.IsNaN(v) {
				filled[t] = last
			} else {
				last = v
			}
		}
		cols[i] = filled
	}
	// Drop the leading rows that precede the first observation of any column.
	first := 0
	for t := 0; t < len(p.dates); t++ {
		defined := true
		for _, col := range cols {
			if math.IsNaN(col[t]) {
				defined = false
				break
			}
		}
		if defined {
			first = t
			break
		}
		first = t + 1
	}
	clean := &PricePanel{dates: p.dates, symbols: p.symbols, columns: cols}
	return clean.Slice(first, len(p.dates))
}

// SignalPanel holds discrete trade signals on the same index as a price
// panel. Each cell is -1 (sell), 0 (hold), or +1 (buy).
type SignalPanel struct {
	dates   []time.Time
	symbols []string
	cells   [][]int // cells[i] holds the signals for symbols[i]
}

// NewSignalPanel builds a signal panel; shape must match dates x symbols.
func NewSignalPanel(dates []time.Time, symbols []string, cells [][]int) (*SignalPanel, error) {
	if len(symbols) != len(cells) {
		return nil, fmt.Errorf("signals: %d symbols but %d columns", len(symbols), len(cells))
	}
	for i, col := range cells {
		if len(col) != len(dates) {
			return nil, fmt.Errorf("signals: column %s has %d rows, index has %d", symbols[i], len(col), len(dates))
		}
	}
	return &SignalPanel{dates: dates, symbols: symbols, cells: cells}, nil
}

// Rows returns the number of timestamps in the panel.
func (p *SignalPanel) Rows() int { return len(p.dates) }

// Symbols returns the panel's symbol order.
func (p *SignalPanel) Symbols() []string { return p.symbols }

// Dates returns the panel's date index.
func (p *SignalPanel) Dates() []time.Time { return p.dates }

// At returns the signal for symbol column c at row t.
func (p *SignalPanel) At(t, c int) int { return p.cells[c][t] }

// Column returns the signal series for the given symbol.
func (p *SignalPanel) Column(symbol string) ([]int, bool) {
	for i, s := range p.symbols {
		if s == symbol {
			return p.cells[i], true
		}
	}
	return nil, false
}

// Counts tallies buy, sell, and hold cells for symbol column c.
func (p *SignalPanel) Counts(c int) (buys, sells, holds int) {
	for _, v := range p.cells[c] {
		switch {
		case v > 0:
			buys++
		case v < 0:
			sells++
		default:
			holds++
		}
	}
	return buys, sells, holds
}
