package feed

import (
	"fmt"
	"math"
	"time"

	"goldfeed/internal/provider"
)

// Band is the plausible price range for a symbol. Bands are wide enough to
// tolerate real volatility but tight enough to catch decimal-shift or
// currency-unit bugs from a misbehaving provider.
type Band struct {
	Min float64
	Max float64
}

// ValidationError marks a sample that looked wrong. The aggregator treats it
// like a provider failure but it is logged distinctly so provider health can
// be monitored.
type ValidationError struct {
	Symbol string
	Source string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sample for %s from %s: %s", e.Symbol, e.Source, e.Reason)
}

// Validator rejects implausible samples before they reach the cache.
type Validator struct {
	Bands map[string]Band
	// MaxFutureSkew tolerates small clock drift between providers and us.
	MaxFutureSkew time.Duration
}

func NewValidator(bands map[string]Band, maxFutureSkew time.Duration) *Validator {
	if maxFutureSkew <= 0 {
		maxFutureSkew = 2 * time.Minute
	}
	return &Validator{Bands: bands, MaxFutureSkew: maxFutureSkew}
}

// Validate returns nil for a plausible sample or a *ValidationError.
// Checks run in order: finite positive price, per-symbol band, future timestamp.
func (v *Validator) Validate(q provider.Quote) error {
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
		return &ValidationError{Symbol: q.Symbol, Source: q.Source, Reason: "price is not finite"}
	}
	if q.Price <= 0 {
		return &ValidationError{Symbol: q.Symbol, Source: q.Source, Reason: fmt.Sprintf("price %v is not positive", q.Price)}
	}
	if band, ok := v.Bands[q.Symbol]; ok {
		if q.Price < band.Min || q.Price > band.Max {
			return &ValidationError{
				Symbol: q.Symbol,
				Source: q.Source,
				Reason: fmt.Sprintf("price %v outside plausible band [%v, %v]", q.Price, band.Min, band.Max),
			}
		}
	}
	if !q.Timestamp.IsZero() && q.Timestamp.After(time.Now().Add(v.MaxFutureSkew)) {
		return &ValidationError{Symbol: q.Symbol, Source: q.Source, Reason: "timestamp is in the future"}
	}
	return nil
}
