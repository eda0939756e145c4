package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantbt/internal/domain"
	"quantbt/internal/util"
)

// Compile-time interface check.
var _ Service = (*AlpacaService)(nil)

// AlpacaService fetches daily bars from the Alpaca market-data API,
// rate-limited and retried.
type AlpacaService struct {
	client  *alpacamd.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaService creates an AlpacaService with the given credentials.
// rateLimitPerMin caps outbound API calls; non-positive disables the
// limiter.
func NewAlpacaService(apiKey, apiSecret, dataURL string, rateLimitPerMin int) *AlpacaService {
	opts := alpacamd.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &AlpacaService{
		client:  alpacamd.NewClient(opts),
		limiter: util.NewRateLimiter(rateLimitPerMin),
		log:     slog.Default().With("service", "alpaca"),
	}
}

// GetHistoricalData fetches split- and dividend-adjusted daily closes
// for the symbol within [start, end].
func (s *AlpacaService) GetHistoricalData(ctx context.Context, symbol string, start, end time.Time) (domain.Series, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Series{}, err
	}

	var bars []alpacamd.Bar
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var ferr error
		bars, ferr = s.client.GetBars(strings.ToUpper(symbol), alpacamd.GetBarsRequest{
			TimeFrame:  alpacamd.OneDay,
			Start:      start,
			End:        end,
			Adjustment: alpacamd.All,
		})
		return ferr
	})
	if err != nil {
		return domain.Series{}, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	var out domain.Series
	for _, b := range bars {
		out.Dates = append(out.Dates, b.Timestamp.UTC().Truncate(24*time.Hour))
		out.Values = append(out.Values, b.Close)
	}
	s.log.Debug("fetched bars", "symbol", symbol, "rows", len(out.Dates))
	return out, nil
}
