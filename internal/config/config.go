package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Feed struct {
	CacheTTLSec       int      `json:"cache_ttl_sec"`
	GraceWindowSec    int      `json:"grace_window_sec"`
	AdapterTimeoutSec int      `json:"adapter_timeout_sec"`
	ClockSkewSec      int      `json:"clock_skew_sec"`
	GoldRank          []string `json:"gold_rank"`
	ForexRank         []string `json:"forex_rank"`
}

// Band is the plausible price range for one symbol.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type GoldAPI struct {
	Enabled               bool   `json:"enabled"`
	Token                 string `json:"token"`
	Endpoint              string `json:"endpoint"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type Metals struct {
	Enabled               bool   `json:"enabled"`
	APIKey                string `json:"api_key"`
	Endpoint              string `json:"endpoint"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type FCSAPI struct {
	Enabled               bool   `json:"enabled"`
	APIKey                string `json:"api_key"`
	Endpoint              string `json:"endpoint"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type Yahoo struct {
	Enabled               bool   `json:"enabled"`
	Endpoint              string `json:"endpoint"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type Quota struct {
	// Tiers maps tier name to daily analysis limit; -1 means unlimited.
	Tiers map[string]int `json:"tiers"`
}

type Database struct {
	SQLitePath string `json:"sqlite_path"`
}

type Analyzer struct {
	EngineURL  string `json:"engine_url"`
	TimeoutSec int    `json:"timeout_sec"`
}

type Config struct {
	Server   Server          `json:"server"`
	Feed     Feed            `json:"feed"`
	GoldAPI  GoldAPI         `json:"goldapi"`
	Metals   Metals          `json:"metals"`
	FCSAPI   FCSAPI          `json:"fcsapi"`
	Yahoo    Yahoo           `json:"yahoo"`
	Quota    Quota           `json:"quota"`
	Symbols  map[string]Band `json:"symbols"`
	Database Database        `json:"database"`
	Analyzer Analyzer        `json:"analyzer"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Feed: Feed{
			CacheTTLSec:       900,  // 15 minutes
			GraceWindowSec:    3600, // bounded stale window beyond TTL
			AdapterTimeoutSec: 7,
			ClockSkewSec:      120,
			GoldRank:          []string{"GoldAPI", "Metals", "FCSAPI"},
			ForexRank:         []string{"Yahoo", "FCSAPI"},
		},
		GoldAPI: GoldAPI{
			Enabled:              true,
			Endpoint:             "https://www.goldapi.io/api",
			MaxRequestsPerMinute: 4,
			Burst:                2,
		},
		Metals: Metals{
			Enabled:              false,
			Endpoint:             "https://api.metals.live/v1/spot/gold",
			MaxRequestsPerMinute: 4,
			Burst:                2,
		},
		FCSAPI: FCSAPI{
			Enabled:              false,
			Endpoint:             "https://fcsapi.com/api-v3/forex/latest",
			MaxRequestsPerMinute: 4,
			Burst:                2,
		},
		Yahoo: Yahoo{
			Enabled:              true,
			Endpoint:             "https://query1.finance.yahoo.com/v8/finance/chart",
			MaxRequestsPerMinute: 10,
			Burst:                4,
		},
		Quota: Quota{
			Tiers: map[string]int{"basic": 1, "premium": 5, "vip": -1},
		},
		Symbols: map[string]Band{
			"XAUUSD": {Min: 1000, Max: 10000},
			"XAGUSD": {Min: 5, Max: 200},
			"EURUSD": {Min: 0.3, Max: 3},
			"GBPUSD": {Min: 0.3, Max: 3},
			"AUDUSD": {Min: 0.2, Max: 3},
			"NZDUSD": {Min: 0.2, Max: 3},
			"USDCAD": {Min: 0.3, Max: 3},
			"USDCHF": {Min: 0.3, Max: 3},
			"USDJPY": {Min: 50, Max: 500},
		},
		Database: Database{SQLitePath: "goldfeed.db"},
		Analyzer: Analyzer{EngineURL: "http://localhost:8090", TimeoutSec: 120},
	}
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := envInt("REQUEST_TIMEOUT_SEC"); v > 0 {
		cfg.Server.RequestTimeoutSec = v
	}
	if v := os.Getenv("GOLDAPI_TOKEN"); v != "" {
		cfg.GoldAPI.Token = v
	}
	if v := os.Getenv("GOLDAPI_ENDPOINT"); v != "" {
		cfg.GoldAPI.Endpoint = v
	}
	if v := os.Getenv("METALS_API_KEY"); v != "" {
		cfg.Metals.APIKey = v
	}
	if v := os.Getenv("FCSAPI_KEY"); v != "" {
		cfg.FCSAPI.APIKey = v
	}
	if v := envInt("PRICE_CACHE_TTL_SEC"); v > 0 {
		cfg.Feed.CacheTTLSec = v
	}
	if v := envInt("GRACE_WINDOW_SEC"); v > 0 {
		cfg.Feed.GraceWindowSec = v
	}
	if v := envInt("ADAPTER_TIMEOUT_SEC"); v > 0 {
		cfg.Feed.AdapterTimeoutSec = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("ANALYZER_URL"); v != "" {
		cfg.Analyzer.EngineURL = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	var x int
	if _, err := fmt.Sscanf(v, "%d", &x); err != nil {
		return 0
	}
	return x
}
