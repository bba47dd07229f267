package goldapiadapter

import (
	"context"
	"fmt"

	"goldfeed/internal/provider"
	"goldfeed/internal/provider/goldapi"
)

type Config struct {
	Name string // display name, default: GoldAPI
}

// Adapter exposes the GoldAPI client as a provider for metal symbols
// such as XAUUSD. Non-metal symbols are rejected before any network call.
type Adapter struct {
	cfg    Config
	client *goldapi.GoldAPIClient
}

func New(cfg Config, client *goldapi.GoldAPIClient) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "GoldAPI"
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Fetch(ctx context.Context, symbol string) (provider.Quote, error) {
	metal, currency, err := splitMetalSymbol(symbol)
	if err != nil {
		return provider.Quote{}, err
	}

	spot, err := a.client.GetSpot(ctx, metal, currency)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("%s: %w", a.cfg.Name, err)
	}

	return provider.Quote{
		Symbol:    symbol,
		Price:     spot.Price,
		Currency:  currency,
		Source:    a.cfg.Name,
		Bid:       spot.Bid,
		Ask:       spot.Ask,
		High24h:   spot.High24,
		Low24h:    spot.Low24,
		Change:    spot.Change,
		ChangePct: spot.ChangePct,
		Timestamp: spot.Time(),
	}, nil
}

// metals the GoldAPI serves, keyed by symbol prefix.
var metals = map[string]struct{}{
	"XAU": {},
	"XAG": {},
	"XPT": {},
	"XPD": {},
}

func splitMetalSymbol(symbol string) (metal, currency string, err error) {
	if len(symbol) != 6 {
		return "", "", fmt.Errorf("goldapi: unsupported symbol %q", symbol)
	}
	metal, currency = symbol[:3], symbol[3:]
	if _, ok := metals[metal]; !ok {
		return "", "", fmt.Errorf("goldapi: unsupported symbol %q", symbol)
	}
	return metal, currency, nil
}
