// Package store provides local bar caches backing the market-data
// service: a Parquet file store and a SQLite store.
package store

import (
	"context"
	"time"

	"quantbt/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, deduplicating by
	// (symbol, timestamp).
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the store.
	ListSymbols(ctx context.Context) ([]string, error)
}
