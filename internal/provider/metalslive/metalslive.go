package metalslive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"goldfeed/internal/httpx"
	"goldfeed/internal/provider"
)

// Config controls the Metals spot provider behavior.
type Config struct {
	Name    string
	URL     string
	APIKey  string            // optional; if set, sent as x-api-key
	Headers map[string]string // optional extra headers
}

// Provider fetches spot metal rates from the Metals API.
type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Metals"
	}
	if cfg.URL == "" {
		cfg.URL = "https://api.metals.live/v1/spot/gold"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

// apiResponse models the spot endpoint payload: rates keyed by metal code.
type apiResponse struct {
	Rates     map[string]rate `json:"rates"`
	Timestamp int64           `json:"timestamp"`
}

type rate struct {
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Ask       float64 `json:"ask"`
	Bid       float64 `json:"bid"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
}

func (p *Provider) Fetch(ctx context.Context, symbol string) (provider.Quote, error) {
	metal, currency, ok := splitSymbol(symbol)
	if !ok {
		return provider.Quote{}, fmt.Errorf("%s: unsupported symbol %q", p.cfg.Name, symbol)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, http.NoBody)
	if err != nil {
		return provider.Quote{}, err
	}
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("x-api-key", p.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("%s: %w", p.cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.Quote{}, fmt.Errorf("%s: GET %s -> %d", p.cfg.Name, p.cfg.URL, resp.StatusCode)
	}

	var body apiResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&body); err != nil {
		return provider.Quote{}, fmt.Errorf("%s: decode: %w", p.cfg.Name, err)
	}

	r, ok := body.Rates[metal]
	if !ok || r.Price == 0 {
		return provider.Quote{}, fmt.Errorf("%s: no rate for %s", p.cfg.Name, metal)
	}

	ts := time.Now().UTC()
	if body.Timestamp > 0 {
		ts = time.Unix(body.Timestamp, 0).UTC()
	}
	return provider.Quote{
		Symbol:    symbol,
		Price:     r.Price,
		Currency:  currency,
		Source:    p.cfg.Name,
		Bid:       r.Bid,
		Ask:       r.Ask,
		High24h:   r.High,
		Low24h:    r.Low,
		Change:    r.Change,
		ChangePct: r.ChangePct,
		Timestamp: ts,
	}, nil
}

// splitSymbol accepts metal symbols like XAUUSD and returns ("XAU", "USD").
func splitSymbol(symbol string) (metal, currency string, ok bool) {
	if len(symbol) != 6 || !strings.HasPrefix(symbol, "X") {
		return "", "", false
	}
	return symbol[:3], symbol[3:], true
}
