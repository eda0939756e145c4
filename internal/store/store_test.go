package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"quantbt/internal/domain"
)

func sampleBars(symbol string, n int) []domain.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		px := 100.0 + float64(i)
		bars[i] = domain.Bar{
			Symbol:     symbol,
			Timestamp:  start.AddDate(0, 0, i),
			Open:       px - 0.5,
			High:       px + 1,
			Low:        px - 1,
			Close:      px,
			Volume:     1000,
			TradeCount: 10,
			VWAP:       px,
		}
	}
	return bars
}

func testBarStore(t *testing.T, s BarStore) {
	t.Helper()
	ctx := context.Background()

	bars := sampleBars("AAPL", 5)
	if err := s.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Rewriting the same bars must not duplicate rows.
	if err := s.WriteBars(ctx, bars[:2]); err != nil {
		t.Fatalf("WriteBars (rewrite): %v", err)
	}

	got, err := s.ReadBars(ctx, "AAPL", bars[0].Timestamp, bars[4].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("ReadBars returned %d bars, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatal("ReadBars result not ordered by timestamp")
		}
	}
	if got[0].Close != 100 || got[4].Close != 104 {
		t.Errorf("ReadBars closes = %v..%v, want 100..104", got[0].Close, got[4].Close)
	}

	// Range filter.
	mid, err := s.ReadBars(ctx, "AAPL", bars[1].Timestamp, bars[3].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars (range): %v", err)
	}
	if len(mid) != 3 {
		t.Errorf("ReadBars range returned %d bars, want 3", len(mid))
	}

	// Unknown symbol.
	none, err := s.ReadBars(ctx, "MSFT", bars[0].Timestamp, bars[4].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars (unknown): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ReadBars for unknown symbol returned %d bars, want 0", len(none))
	}

	syms, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(syms) != 1 || syms[0] != "AAPL" {
		t.Errorf("ListSymbols = %v, want [AAPL]", syms)
	}
}

func TestParquetStore(t *testing.T) {
	testBarStore(t, NewParquetStore(t.TempDir()))
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	testBarStore(t, s)
}

func TestParquetStoreYearSplit(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "SPY", Timestamp: time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), Close: 470},
		{Symbol: "SPY", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 472},
	}
	if err := s.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// A range spanning the year boundary reads both files.
	got, err := s.ReadBars(ctx, "SPY", bars[0].Timestamp, bars[1].Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars across years, want 2", len(got))
	}
}
