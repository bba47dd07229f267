// Command fetch resolves one symbol through the configured provider chain
// and prints the quote as JSON. Useful for checking API keys and provider
// health without running the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"goldfeed/internal/config"
	"goldfeed/internal/feed"
	"goldfeed/internal/httpx"
	"goldfeed/internal/provider"
	"goldfeed/internal/provider/fcsapi"
	"goldfeed/internal/provider/goldapi"
	"goldfeed/internal/provider/goldapiadapter"
	"goldfeed/internal/provider/metalslive"
	"goldfeed/internal/provider/yahoo"
)

func main() {
	symbol := flag.String("symbol", "XAUUSD", "symbol to resolve, e.g. XAUUSD or EURUSD")
	cfgPath := flag.String("config", "", "path to config file (defaults to config.json if present)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	probe := flag.Bool("probe", false, "probe every configured provider instead of resolving one symbol")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	providers := buildProviders(cfg, httpClient)
	if len(providers) == 0 {
		log.Fatal("no providers enabled; set GOLDAPI_TOKEN or enable yahoo in config")
	}

	bands := make(map[string]feed.Band, len(cfg.Symbols))
	for sym, b := range cfg.Symbols {
		bands[sym] = feed.Band{Min: b.Min, Max: b.Max}
	}
	validator := feed.NewValidator(bands, time.Duration(cfg.Feed.ClockSkewSec)*time.Second)
	cache := feed.NewCache(
		time.Duration(cfg.Feed.CacheTTLSec)*time.Second,
		time.Duration(cfg.Feed.GraceWindowSec)*time.Second,
	)
	rank := map[string][]string{
		feed.ClassGold:  cfg.Feed.GoldRank,
		feed.ClassForex: cfg.Feed.ForexRank,
	}
	agg := feed.NewAggregator(cache, validator, providers, rank, time.Duration(cfg.Feed.AdapterTimeoutSec)*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *probe {
		if err := enc.Encode(agg.Probe(ctx)); err != nil {
			log.Fatal(err)
		}
		return
	}

	q, stale, err := agg.Resolve(ctx, *symbol)
	if err != nil {
		log.Fatalf("resolve %s: %v", *symbol, err)
	}
	out := struct {
		Quote any  `json:"quote"`
		Stale bool `json:"stale"`
	}{Quote: q, Stale: stale}
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}
}

// buildProviders assembles the enabled adapters without rate limiting; a
// one-shot command never needs a bucket.
func buildProviders(cfg config.Config, httpClient *httpx.Client) map[string]provider.Provider {
	providers := make(map[string]provider.Provider)
	if cfg.GoldAPI.Enabled && cfg.GoldAPI.Token != "" {
		client, err := goldapi.NewGoldAPIClient(
			cfg.GoldAPI.Token,
			goldapi.WithBaseURL(cfg.GoldAPI.Endpoint),
			goldapi.WithHTTPClient(httpClient.HTTP),
		)
		if err != nil {
			log.Printf("goldapi client error: %v", err)
		} else {
			providers["GoldAPI"] = goldapiadapter.New(goldapiadapter.Config{Name: "GoldAPI"}, client)
		}
	}
	if cfg.Metals.Enabled {
		providers["Metals"] = metalslive.New(metalslive.Config{
			Name:   "Metals",
			URL:    cfg.Metals.Endpoint,
			APIKey: cfg.Metals.APIKey,
		}, httpClient)
	}
	if cfg.FCSAPI.Enabled && cfg.FCSAPI.APIKey != "" {
		providers["FCSAPI"] = fcsapi.New(fcsapi.Config{
			Name:   "FCSAPI",
			URL:    cfg.FCSAPI.Endpoint,
			APIKey: cfg.FCSAPI.APIKey,
		}, httpClient)
	}
	if cfg.Yahoo.Enabled {
		providers["Yahoo"] = yahoo.New(yahoo.Config{Name: "Yahoo", URL: cfg.Yahoo.Endpoint}, httpClient)
	}
	return providers
}
