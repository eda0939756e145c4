// Package marketdata supplies historical close-price series to the
// backtesting engine. Implementations cover the Alpaca API, local bar
// stores, and in-memory fixtures; BuildPanel aligns per-symbol series
// into a clean price panel.
package marketdata

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"quantbt/internal/domain"
)

// Service supplies a per-symbol daily close series for a date range. An
// empty series (not an error) means no data is available for the symbol.
type Service interface {
	GetHistoricalData(ctx context.Context, symbol string, start, end time.Time) (domain.Series, error)
}

// NoMarketDataError reports that no price data was available for any of
// the requested symbols in the requested range.
type NoMarketDataError struct {
	Symbols []string
	Start   time.Time
	End     time.Time
}

func (e *NoMarketDataError) Error() string {
	return fmt.Sprintf("no market data for %s between %s and %s",
		strings.Join(e.Symbols, ","),
		e.Start.Format("2006-01-02"),
		e.End.Format("2006-01-02"))
}

// StaticService serves series from memory. It backs tests and offline
// runs on synthetic data.
type StaticService struct {
	series map[string]domain.Series
}

// Compile-time interface check.
var _ Service = (*StaticService)(nil)

// NewStaticService creates a StaticService over the given per-symbol
// series.
func NewStaticService(series map[string]domain.Series) *StaticService {
	return &StaticService{series: series}
}

// GetHistoricalData returns the stored series restricted to [start, end].
func (s *StaticService) GetHistoricalData(_ context.Context, symbol string, start, end time.Time) (domain.Series, error) {
	full, ok := s.series[symbol]
	if !ok {
		return domain.Series{}, nil
	}
	var out domain.Series
	for i, d := range full.Dates {
		if !d.Before(start) && !d.After(end) {
			out.Dates = append(out.Dates, d)
			out.Values = append(out.Values, full.Values[i])
		}
	}
	return out, nil
}

// BuildPanel fetches a series for every symbol, aligns them on the union
// date index, forward-fills gaps, and drops rows that precede the first
// observation of any symbol. Symbols with no data at all are dropped;
// if nothing remains, a NoMarketDataError is returned.
func BuildPanel(ctx context.Context, svc Service, symbols []string, start, end time.Time) (*domain.PricePanel, error) {
	noData := func() error {
		return &NoMarketDataError{Symbols: symbols, Start: start, End: end}
	}
	if len(symbols) == 0 {
		return nil, noData()
	}

	type column struct {
		symbol string
		series domain.Series
	}
	var cols []column
	dateSet := make(map[time.Time]struct{})
	for _, sym := range symbols {
		s, err := svc.GetHistoricalData(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", sym, err)
		}
		if s.Empty() {
			continue
		}
		cols = append(cols, column{symbol: sym, series: s})
		for _, d := range s.Dates {
			dateSet[d] = struct{}{}
		}
	}
	if len(cols) == 0 || len(dateSet) == 0 {
		return nil, noData()
	}

	index := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		index = append(index, d)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })

	pos := make(map[time.Time]int, len(index))
	for i, d := range index {
		pos[d] = i
	}

	names := make([]string, len(cols))
	data := make([][]float64, len(cols))
	for i, c := range cols {
		names[i] = c.symbol
		col := make([]float64, len(index))
		for t := range col {
			col[t] = math.NaN()
		}
		for j, d := range c.series.Dates {
			col[pos[d]] = c.series.Values[j]
		}
		data[i] = col
	}

	raw, err := domain.NewPricePanel(index, names, data)
	if err != nil {
		return nil, err
	}
	clean := raw.ForwardFill()
	if clean.Rows() == 0 {
		return nil, noData()
	}
	return clean, nil
}
