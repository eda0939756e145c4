package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quantbt/internal/domain"
	"quantbt/internal/store"
)

// Compile-time interface checks.
var _ Service = (*CachedService)(nil)
var _ Service = (*StoreService)(nil)

// CachedService is a read-through cache over another Service, backed by
// a BarStore. A cache hit serves bars from the store; a miss fetches
// from the source and writes back.
type CachedService struct {
	source Service
	bars   store.BarStore
	log    *slog.Logger
}

// NewCachedService wraps source with a bar cache.
func NewCachedService(source Service, bars store.BarStore) *CachedService {
	return &CachedService{
		source: source,
		bars:   bars,
		log:    slog.Default().With("service", "marketdata-cache"),
	}
}

// GetHistoricalData serves the close series from the cache when present,
// otherwise from the source (populating the cache on the way out).
func (s *CachedService) GetHistoricalData(ctx context.Context, symbol string, start, end time.Time) (domain.Series, error) {
	cached, err := s.bars.ReadBars(ctx, symbol, start, end)
	if err != nil {
		return domain.Series{}, fmt.Errorf("reading cache for %s: %w", symbol, err)
	}
	if len(cached) > 0 {
		s.log.Debug("cache hit", "symbol", symbol, "rows", len(cached))
		return barsToSeries(cached), nil
	}

	series, err := s.source.GetHistoricalData(ctx, symbol, start, end)
	if err != nil {
		return domain.Series{}, err
	}
	if series.Empty() {
		return series, nil
	}

	bars := make([]domain.Bar, series.Len())
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: series.Dates[i],
			Open:      series.Values[i],
			High:      series.Values[i],
			Low:       series.Values[i],
			Close:     series.Values[i],
		}
	}
	if err := s.bars.WriteBars(ctx, bars); err != nil {
		// The fetch succeeded; a cache write failure is not fatal.
		s.log.Warn("cache write failed", "symbol", symbol, "err", err)
	}
	return series, nil
}

// StoreService serves series purely from a local BarStore, for offline
// runs against previously gathered data.
type StoreService struct {
	bars store.BarStore
}

// NewStoreService creates a StoreService over the given store.
func NewStoreService(bars store.BarStore) *StoreService {
	return &StoreService{bars: bars}
}

// GetHistoricalData returns the stored close series for the symbol.
func (s *StoreService) GetHistoricalData(ctx context.Context, symbol string, start, end time.Time) (domain.Series, error) {
	bars, err := s.bars.ReadBars(ctx, symbol, start, end)
	if err != nil {
		return domain.Series{}, err
	}
	return barsToSeries(bars), nil
}

func barsToSeries(bars []domain.Bar) domain.Series {
	var out domain.Series
	for _, b := range bars {
		out.Dates = append(out.Dates, b.Timestamp)
		out.Values = append(out.Values, b.Close)
	}
	return out
}
