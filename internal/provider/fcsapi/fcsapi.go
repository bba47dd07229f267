package fcsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"goldfeed/internal/httpx"
	"goldfeed/internal/provider"
)

// Config controls the FCS API provider behavior.
type Config struct {
	Name    string
	URL     string
	APIKey  string            // sent as access_key query parameter
	Headers map[string]string // optional extra headers
}

// Provider fetches latest forex and metal rates from fcsapi.com.
// It serves both symbol classes: metals quoted against USD and currency pairs.
type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "FCSAPI"
	}
	if cfg.URL == "" {
		cfg.URL = "https://fcsapi.com/api-v3/forex/latest"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

// Response model based on the documented latest-rates payload.
// Numeric fields arrive as strings.
type apiResponse struct {
	Status   bool   `json:"status"`
	Msg      string `json:"msg"`
	Response []row  `json:"response"`
}

type row struct {
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Ask       string `json:"a"`
	Bid       string `json:"b"`
	Change    string `json:"ch"`
	ChangePct string `json:"cp"`
	Time      string `json:"t"`
	Symbol    string `json:"s"`
}

func (p *Provider) Fetch(ctx context.Context, symbol string) (provider.Quote, error) {
	if p.cfg.APIKey == "" {
		return provider.Quote{}, fmt.Errorf("%s: missing access key", p.cfg.Name)
	}
	pair, currency, ok := slashPair(symbol)
	if !ok {
		return provider.Quote{}, fmt.Errorf("%s: unsupported symbol %q", p.cfg.Name, symbol)
	}

	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return provider.Quote{}, err
	}
	q := u.Query()
	q.Set("symbol", pair)
	q.Set("access_key", p.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return provider.Quote{}, err
	}
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("%s: %w", p.cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.Quote{}, fmt.Errorf("%s: GET %s -> %d", p.cfg.Name, u.Host, resp.StatusCode)
	}

	var body apiResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&body); err != nil {
		return provider.Quote{}, fmt.Errorf("%s: decode: %w", p.cfg.Name, err)
	}
	if !body.Status || len(body.Response) == 0 {
		return provider.Quote{}, fmt.Errorf("%s: empty response for %s: %s", p.cfg.Name, pair, body.Msg)
	}

	r := body.Response[0]
	price := parseFloat(r.Close)
	if price == 0 {
		return provider.Quote{}, fmt.Errorf("%s: no close price for %s", p.cfg.Name, pair)
	}

	return provider.Quote{
		Symbol:    symbol,
		Price:     price,
		Currency:  currency,
		Source:    p.cfg.Name,
		Bid:       parseFloat(r.Bid),
		Ask:       parseFloat(r.Ask),
		High24h:   parseFloat(r.High),
		Low24h:    parseFloat(r.Low),
		Change:    parseFloat(r.Change),
		ChangePct: parseFloat(strings.TrimSuffix(r.ChangePct, "%")),
		Timestamp: parseEpoch(r.Time, time.Now().UTC()),
	}, nil
}

// slashPair converts XAUUSD to XAU/USD and returns the quote currency.
func slashPair(symbol string) (pair, currency string, ok bool) {
	if len(symbol) != 6 {
		return "", "", false
	}
	return symbol[:3] + "/" + symbol[3:], symbol[3:], true
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseEpoch(s string, fallback time.Time) time.Time {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	if v > 1_000_000_000_000 { // ms
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}
