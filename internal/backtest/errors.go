package backtest

import "fmt"

// InsufficientDataError reports a price panel with fewer rows than the
// configured lookback windows require.
type InsufficientDataError struct {
	Rows     int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d rows, need at least %d", e.Rows, e.Required)
}
