package powerratio

import (
	"fmt"
	"strings"

	"github.com/soltixdb/pvratio/internal/analytics"
)

// MissingActualPolicy decides the output used for a record whose actual
// measurement is missing.
type MissingActualPolicy func(actual *float64) float64

// MissingAsZero substitutes 0 for a missing measurement.
func MissingAsZero(actual *float64) float64 {
	if actual == nil {
		return 0
	}
	return *actual
}

// NonFiniteMode selects how NaN and infinite values enter rolling windows
// and aggregates.
type NonFiniteMode string

const (
	// NonFiniteExclude leaves non-finite values out of every window and aggregate.
	NonFiniteExclude NonFiniteMode = "exclude"

	// NonFiniteSentinel replaces non-finite values with a fixed sentinel.
	NonFiniteSentinel NonFiniteMode = "sentinel"
)

// NonFinitePolicy is applied identically by the smoother and the fault
// detector so both stages see the same series.
type NonFinitePolicy struct {
	Mode     NonFiniteMode
	Sentinel float64
}

// DefaultNonFinitePolicy excludes non-finite values.
func DefaultNonFinitePolicy() NonFinitePolicy {
	return NonFinitePolicy{Mode: NonFiniteExclude}
}

// ParseNonFiniteMode parses "exclude" or "sentinel". Empty means exclude.
func ParseNonFiniteMode(s string) (NonFiniteMode, error) {
	switch NonFiniteMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", NonFiniteExclude:
		return NonFiniteExclude, nil
	case NonFiniteSentinel:
		return NonFiniteSentinel, nil
	default:
		return "", fmt.Errorf("unknown non-finite policy %q (supported: exclude, sentinel)", s)
	}
}

// Admit returns the value to feed into a window or aggregate and whether it
// should be used at all.
func (p NonFinitePolicy) Admit(v float64) (float64, bool) {
	if analytics.IsFinite(v) {
		return v, true
	}
	if p.Mode == NonFiniteSentinel {
		return p.Sentinel, true
	}
	return 0, false
}

// Filter applies Admit to every value and returns the admitted ones.
func (p NonFinitePolicy) Filter(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if a, ok := p.Admit(v); ok {
			out = append(out, a)
		}
	}
	return out
}

func (p NonFinitePolicy) validate() error {
	switch p.Mode {
	case NonFiniteExclude:
		return nil
	case NonFiniteSentinel:
		if !analytics.IsFinite(p.Sentinel) {
			return fmt.Errorf("non-finite sentinel must be finite, got %v", p.Sentinel)
		}
		return nil
	default:
		return fmt.Errorf("unknown non-finite policy %q", p.Mode)
	}
}
