// Package strategy converts price panels into discrete trade signal
// panels. It defines the strategy configuration, the Generator
// interface, and a Registry of the built-in signal generators.
package strategy

import (
	"fmt"
	"sort"

	"quantbt/internal/domain"
)

// Kind identifies a supported strategy family.
type Kind string

const (
	KindMomentum      Kind = "momentum"
	KindMeanReversion Kind = "mean_reversion"
	KindPairsTrading  Kind = "pairs_trading"
)

// Default parameter values applied by Config.WithDefaults.
const (
	defaultLookback          = 20
	defaultMomentumThreshold = 0.02
	defaultStdDev            = 2.0
	defaultPairsLookback     = 30
	defaultEntryThreshold    = 2.0
	defaultExitThreshold     = 0.5
)

// Config is the tagged-union strategy configuration. Type and Symbols
// are mandatory; the numeric parameters default per kind when zero.
type Config struct {
	Type    Kind     `json:"type" yaml:"type"`
	Symbols []string `json:"symbols" yaml:"symbols"`

	// Momentum and mean reversion.
	LookbackPeriod    int     `json:"lookback_period,omitempty" yaml:"lookback_period"`
	MomentumThreshold float64 `json:"momentum_threshold,omitempty" yaml:"momentum_threshold"`
	StdDev            float64 `json:"std_dev,omitempty" yaml:"std_dev"`

	// Pairs trading.
	EntryThreshold float64 `json:"entry_threshold,omitempty" yaml:"entry_threshold"`
	ExitThreshold  float64 `json:"exit_threshold,omitempty" yaml:"exit_threshold"`
}

// WithDefaults returns a copy of the config with per-kind defaults
// filled in for zero-valued parameters.
func (c Config) WithDefaults() Config {
	if c.LookbackPeriod == 0 {
		if c.Type == KindPairsTrading {
			c.LookbackPeriod = defaultPairsLookback
		} else {
			c.LookbackPeriod = defaultLookback
		}
	}
	if c.MomentumThreshold == 0 {
		c.MomentumThreshold = defaultMomentumThreshold
	}
	if c.StdDev == 0 {
		c.StdDev = defaultStdDev
	}
	if c.EntryThreshold == 0 {
		c.EntryThreshold = defaultEntryThreshold
	}
	if c.ExitThreshold == 0 {
		c.ExitThreshold = defaultExitThreshold
	}
	return c
}

// Lookback returns the warm-up window the strategy needs before its
// rolling statistics are defined.
func (c Config) Lookback() int {
	cfg := c.WithDefaults()
	return cfg.LookbackPeriod
}

// AllowsShort reports whether the strategy's -1 signals open short
// positions rather than just closing longs.
func (c Config) AllowsShort() bool {
	return c.Type == KindPairsTrading
}

// UnsupportedStrategyError reports an unknown strategy kind.
type UnsupportedStrategyError struct {
	Kind Kind
}

func (e *UnsupportedStrategyError) Error() string {
	return fmt.Sprintf("unsupported strategy type: %q", e.Kind)
}

// Generator converts a price panel and configuration into a signal
// panel of the same shape. Implementations must be deterministic and
// must not look ahead: the signal at row t may depend only on prices up
// to and including row t.
type Generator interface {
	// Kind returns the strategy family this generator implements.
	Kind() Kind

	// Generate produces the signal panel for the given prices.
	Generate(prices *domain.PricePanel, cfg Config) (*domain.SignalPanel, error)
}

// Registry holds the known signal generators keyed by kind.
type Registry struct {
	generators map[Kind]Generator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[Kind]Generator)}
}

// DefaultRegistry returns a Registry with the built-in generators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&Momentum{})
	r.Register(&MeanReversion{})
	r.Register(&PairsTrading{})
	return r
}

// Register adds a generator, keyed by its Kind().
func (r *Registry) Register(g Generator) {
	r.generators[g.Kind()] = g
}

// Get retrieves a generator by kind, returning an
// UnsupportedStrategyError when the kind is unknown.
func (r *Registry) Get(kind Kind) (Generator, error) {
	g, ok := r.generators[kind]
	if !ok {
		return nil, &UnsupportedStrategyError{Kind: kind}
	}
	return g, nil
}

// Kinds returns the sorted list of registered strategy kinds.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.generators))
	for k := range r.generators {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
