package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"goldfeed/internal/httpx"
	"goldfeed/internal/provider"
)

// Config controls the Yahoo Finance provider behavior.
type Config struct {
	Name      string
	URL       string            // chart API base, default query1.finance.yahoo.com
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// Provider fetches currency pair quotes from the Yahoo Finance chart API.
type Provider struct {
	cfg    Config
	client *httpx.Client
}

// defaultSymbolMap covers the major pairs the service quotes.
var defaultSymbolMap = map[string]string{
	"EURUSD": "EURUSD=X",
	"GBPUSD": "GBPUSD=X",
	"USDJPY": "USDJPY=X",
	"AUDUSD": "AUDUSD=X",
	"USDCAD": "USDCAD=X",
	"USDCHF": "USDCHF=X",
	"NZDUSD": "NZDUSD=X",
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Yahoo"
	}
	if cfg.URL == "" {
		cfg.URL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	if cfg.SymbolMap == nil {
		cfg.SymbolMap = defaultSymbolMap
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency             string  `json:"currency"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *Provider) Fetch(ctx context.Context, symbol string) (provider.Quote, error) {
	ticker, ok := p.cfg.SymbolMap[symbol]
	if !ok {
		return provider.Quote{}, fmt.Errorf("%s: unsupported symbol %q", p.cfg.Name, symbol)
	}

	u := fmt.Sprintf("%s/%s?interval=1d&range=1d", p.cfg.URL, url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return provider.Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("%s: %w", p.cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return provider.Quote{}, fmt.Errorf("%s: GET %s -> %d", p.cfg.Name, ticker, resp.StatusCode)
	}

	var chart yahooChart
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&chart); err != nil {
		return provider.Quote{}, fmt.Errorf("%s: decode: %w", p.cfg.Name, err)
	}
	if chart.Chart.Error != nil {
		return provider.Quote{}, fmt.Errorf("%s: api error: %s", p.cfg.Name, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return provider.Quote{}, fmt.Errorf("%s: no data for %s", p.cfg.Name, ticker)
	}

	meta := chart.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 {
		return provider.Quote{}, fmt.Errorf("%s: no market price for %s", p.cfg.Name, ticker)
	}

	var change, changePct float64
	if meta.ChartPreviousClose > 0 {
		change = meta.RegularMarketPrice - meta.ChartPreviousClose
		changePct = change / meta.ChartPreviousClose * 100
	}

	ts := time.Now().UTC()
	if meta.RegularMarketTime > 0 {
		ts = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	currency := meta.Currency
	if currency == "" && len(symbol) == 6 {
		currency = symbol[3:]
	}

	return provider.Quote{
		Symbol:    symbol,
		Price:     meta.RegularMarketPrice,
		Currency:  currency,
		Source:    p.cfg.Name,
		High24h:   meta.RegularMarketDayHigh,
		Low24h:    meta.RegularMarketDayLow,
		Change:    change,
		ChangePct: changePct,
		Timestamp: ts,
	}, nil
}
