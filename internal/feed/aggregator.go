package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"goldfeed/internal/provider"
)

// Symbol classes. The provider rank is configured per class, not per symbol.
const (
	ClassGold  = "gold"
	ClassForex = "forex"
)

// ClassOf reports which provider rank serves a symbol.
func ClassOf(symbol string) string {
	for _, prefix := range []string{"XAU", "XAG", "XPT", "XPD"} {
		if strings.HasPrefix(symbol, prefix) {
			return ClassGold
		}
	}
	return ClassForex
}

// Aggregator resolves the current price of a symbol: cache first, then the
// configured providers for the symbol's class strictly in priority order.
// The first validator-accepted sample wins, so every served price stays
// attributable to a single known source. No blending.
type Aggregator struct {
	cache          *Cache
	validator      *Validator
	providers      map[string]provider.Provider
	rank           map[string][]string // class -> provider names, static
	adapterTimeout time.Duration
}

func NewAggregator(cache *Cache, validator *Validator, providers map[string]provider.Provider, rank map[string][]string, adapterTimeout time.Duration) *Aggregator {
	if adapterTimeout <= 0 {
		adapterTimeout = 7 * time.Second
	}
	return &Aggregator{
		cache:          cache,
		validator:      validator,
		providers:      providers,
		rank:           rank,
		adapterTimeout: adapterTimeout,
	}
}

// Resolve returns the current quote for symbol. The bool reports a
// stale-but-graced quote served because all providers failed.
func (a *Aggregator) Resolve(ctx context.Context, symbol string) (provider.Quote, bool, error) {
	return a.cache.GetOrRefresh(ctx, symbol, func(ctx context.Context) (provider.Quote, error) {
		return a.refresh(ctx, symbol)
	})
}

// refresh walks the ranked providers for symbol's class. Each adapter call
// carries its own timeout so a hung provider advances the chain instead of
// stalling it. Provider errors and validation rejections both move on to the
// next adapter; rejections are logged distinctly.
func (a *Aggregator) refresh(ctx context.Context, symbol string) (provider.Quote, error) {
	names := a.rank[ClassOf(symbol)]
	if len(names) == 0 {
		return provider.Quote{}, fmt.Errorf("no providers configured for %s", symbol)
	}

	var lastErr error
	for _, name := range names {
		p, ok := a.providers[name]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return provider.Quote{}, err
		}

		fctx, cancel := context.WithTimeout(ctx, a.adapterTimeout)
		q, err := p.Fetch(fctx, symbol)
		cancel()
		if err != nil {
			log.Printf("feed: provider %s failed for %s: %v", p.Name(), symbol, err)
			lastErr = err
			continue
		}
		if err := a.validator.Validate(q); err != nil {
			log.Printf("feed: provider %s rejected for %s: %v", p.Name(), symbol, err)
			lastErr = err
			continue
		}
		return q, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no providers available")
	}
	return provider.Quote{}, fmt.Errorf("providers exhausted for %s: %w", symbol, lastErr)
}

// ProviderStatus is a one-shot health probe result for a single provider.
type ProviderStatus struct {
	Name      string  `json:"name"`
	Class     string  `json:"class"`
	OK        bool    `json:"ok"`
	LatencyMS int64   `json:"latency_ms"`
	Price     float64 `json:"price,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// probe symbols, one representative per class.
var probeSymbols = map[string]string{
	ClassGold:  "XAUUSD",
	ClassForex: "EURUSD",
}

// Probe calls every ranked provider once, bypassing the cache, and reports
// whether it produced a valid sample. Intended for provider-health checks.
func (a *Aggregator) Probe(ctx context.Context) []ProviderStatus {
	var out []ProviderStatus
	for _, class := range []string{ClassGold, ClassForex} {
		symbol := probeSymbols[class]
		for _, name := range a.rank[class] {
			p, ok := a.providers[name]
			if !ok {
				continue
			}
			st := ProviderStatus{Name: p.Name(), Class: class}
			fctx, cancel := context.WithTimeout(ctx, a.adapterTimeout)
			start := time.Now()
			q, err := p.Fetch(fctx, symbol)
			cancel()
			st.LatencyMS = time.Since(start).Milliseconds()
			if err == nil {
				err = a.validator.Validate(q)
			}
			if err != nil {
				st.Error = err.Error()
			} else {
				st.OK = true
				st.Price = q.Price
			}
			out = append(out, st)
		}
	}
	return out
}
