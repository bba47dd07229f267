package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"goldfeed/internal/account"
	"goldfeed/internal/analyzer"
	"goldfeed/internal/config"
	"goldfeed/internal/dispatch"
	"goldfeed/internal/feed"
	"goldfeed/internal/httpx"
	"goldfeed/internal/provider"
	"goldfeed/internal/provider/fcsapi"
	"goldfeed/internal/provider/goldapi"
	"goldfeed/internal/provider/goldapiadapter"
	"goldfeed/internal/provider/metalslive"
	"goldfeed/internal/provider/ratelimit"
	"goldfeed/internal/provider/yahoo"
	"goldfeed/internal/quota"
)

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	providers := buildProviders(cfg, httpClient)
	if len(providers) == 0 {
		log.Println("warning: no price providers enabled; price resolution will always fail")
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

	var store account.Store
	if cfg.Database.SQLitePath != "" {
		st, err := account.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		defer st.Close()
		store = st
	} else {
		log.Println("warning: no sqlite_path configured; accounts are in-memory only")
		store = account.NewMemStore()
	}

	policy := account.TierPolicy{}
	for name, limit := range cfg.Quota.Tiers {
		policy[account.Tier(name)] = limit
	}
	qm := quota.NewManager(store, policy)
	gate := dispatch.NewGate(qm, agg)
	engine := analyzer.NewEngine(cfg.Analyzer.EngineURL, httpx.New(time.Duration(cfg.Analyzer.TimeoutSec)*time.Second))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/price", func(w http.ResponseWriter, r *http.Request) {
		handleGetPrice(w, r, agg)
	})
	mux.HandleFunc("GET /api/providers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": agg.Probe(r.Context())})
	})
	mux.HandleFunc("POST /api/analyze", func(w http.ResponseWriter, r *http.Request) {
		handleAnalyze(w, r, gate, engine)
	})
	mux.HandleFunc("POST /api/users", func(w http.ResponseWriter, r *http.Request) {
		handleRegister(w, r, qm)
	})
	mux.HandleFunc("GET /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetUser(w, r, qm)
	})
	mux.HandleFunc("POST /api/users/{id}/tier", func(w http.ResponseWriter, r *http.Request) {
		handleSetTier(w, r, qm)
	})
	mux.HandleFunc("POST /api/users/{id}/activate", func(w http.ResponseWriter, r *http.Request) {
		handleSetActive(w, r, qm, true)
	})
	mux.HandleFunc("POST /api/users/{id}/deactivate", func(w http.ResponseWriter, r *http.Request) {
		handleSetActive(w, r, qm, false)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      3 * time.Minute, // analyze requests wait on the engine
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildProviders assembles the enabled adapters, each wrapped with its
// configured rate limit, keyed by the name the rank config refers to.
func buildProviders(cfg config.Config, httpClient *httpx.Client) map[string]provider.Provider {
	providers := make(map[string]provider.Provider)

	if cfg.GoldAPI.Enabled {
		if cfg.GoldAPI.Token == "" {
			log.Println("warning: goldapi.enabled=true but GOLDAPI_TOKEN not set; skipping")
		} else {
			client, err := goldapi.NewGoldAPIClient(
				cfg.GoldAPI.Token,
				goldapi.WithBaseURL(cfg.GoldAPI.Endpoint),
				goldapi.WithHTTPClient(httpClient.HTTP),
			)
			if err != nil {
				log.Printf("goldapi client error: %v", err)
			} else {
				p := goldapiadapter.New(goldapiadapter.Config{Name: "GoldAPI"}, client)
				providers["GoldAPI"] = withRateLimit(p, cfg.GoldAPI.MaxRequestsPerMinute, cfg.GoldAPI.Burst, cfg.GoldAPI.MinRequestIntervalSec)
			}
		}
	}
	if cfg.Metals.Enabled {
		p := metalslive.New(metalslive.Config{
			Name:   "Metals",
			URL:    cfg.Metals.Endpoint,
			APIKey: cfg.Metals.APIKey,
		}, httpClient)
		providers["Metals"] = withRateLimit(p, cfg.Metals.MaxRequestsPerMinute, cfg.Metals.Burst, cfg.Metals.MinRequestIntervalSec)
	}
	if cfg.FCSAPI.Enabled {
		if cfg.FCSAPI.APIKey == "" {
			log.Println("warning: fcsapi.enabled=true but FCSAPI_KEY not set; skipping")
		} else {
			p := fcsapi.New(fcsapi.Config{
				Name:   "FCSAPI",
				URL:    cfg.FCSAPI.Endpoint,
				APIKey: cfg.FCSAPI.APIKey,
			}, httpClient)
			providers["FCSAPI"] = withRateLimit(p, cfg.FCSAPI.MaxRequestsPerMinute, cfg.FCSAPI.Burst, cfg.FCSAPI.MinRequestIntervalSec)
		}
	}
	if cfg.Yahoo.Enabled {
		p := yahoo.New(yahoo.Config{Name: "Yahoo", URL: cfg.Yahoo.Endpoint}, httpClient)
		providers["Yahoo"] = withRateLimit(p, cfg.Yahoo.MaxRequestsPerMinute, cfg.Yahoo.Burst, cfg.Yahoo.MinRequestIntervalSec)
	}
	return providers
}

// withRateLimit prefers a token bucket with burst when an RPM is set,
// otherwise falls back to a minimum interval between calls.
func withRateLimit(p provider.Provider, rpm, burst, minIntervalSec int) provider.Provider {
	if rpm > 0 {
		if burst <= 0 {
			burst = 1
		}
		return &ratelimit.TokenBucketProvider{P: p, TB: ratelimit.NewTokenBucket(float64(rpm)/60.0, burst)}
	}
	if minIntervalSec > 0 {
		return &ratelimit.MinInterval{P: p, Interval: time.Duration(minIntervalSec) * time.Second}
	}
	return p
}

// analysisGate is what the analyze handler needs from the dispatch gate.
type analysisGate interface {
	RequestAnalysis(ctx context.Context, userID uuid.UUID, symbol string) (dispatch.Outcome, error)
	Commit(ctx context.Context, userID uuid.UUID) error
	Release(ctx context.Context, userID uuid.UUID) error
}

type priceResponse struct {
	Quote provider.Quote `json:"quote"`
	Stale bool           `json:"stale"`
}

func handleGetPrice(w http.ResponseWriter, r *http.Request, agg *feed.Aggregator) {
	symbol := normalizeSymbol(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol query param")
		return
	}
	q, stale, err := agg.Resolve(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, feed.ErrPriceUnavailable) {
			writeError(w, http.StatusBadGateway, "price unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Quote: q, Stale: stale})
}

type analyzeRequest struct {
	UserID   string `json:"user_id"`
	Symbol   string `json:"symbol"`
	Question string `json:"question"`
}

type analyzeResponse struct {
	Analysis  string         `json:"analysis"`
	Quote     provider.Quote `json:"quote"`
	Stale     bool           `json:"stale"`
	Tier      account.Tier   `json:"tier"`
	Remaining int            `json:"remaining"`
}

func handleAnalyze(w http.ResponseWriter, r *http.Request, gate analysisGate, an analyzer.Analyzer) {
	var req analyzeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol cannot be empty")
		return
	}

	out, err := gate.RequestAnalysis(r.Context(), userID, symbol)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrQuotaExceeded):
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": out.Reason, "tier": out.Tier, "remaining": 0,
			})
		case errors.Is(err, quota.ErrAccountDisabled):
			writeError(w, http.StatusForbidden, "account disabled")
		case errors.Is(err, account.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, feed.ErrPriceUnavailable):
			writeError(w, http.StatusBadGateway, "price unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	// The reservation is ours now: commit on engine success, refund on failure.
	res, err := an.Analyze(r.Context(), analyzer.Request{
		Symbol:    symbol,
		Question:  req.Question,
		Price:     out.Quote.Price,
		Currency:  out.Quote.Currency,
		Source:    out.Quote.Source,
		Stale:     out.Stale,
		Timestamp: out.Quote.Timestamp,
	})
	if err != nil {
		log.Printf("analyze: engine failed for %s: %v", symbol, err)
		if rerr := gate.Release(r.Context(), userID); rerr != nil {
			log.Printf("analyze: release failed for %s: %v", userID, rerr)
		}
		writeError(w, http.StatusBadGateway, "analysis failed")
		return
	}
	if err := gate.Commit(r.Context(), userID); err != nil {
		log.Printf("analyze: commit failed for %s: %v", userID, err)
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Analysis:  res.Text,
		Quote:     out.Quote,
		Stale:     out.Stale,
		Tier:      out.Tier,
		Remaining: out.Remaining,
	})
}

type registerRequest struct {
	Email string `json:"email"`
}

func handleRegister(w http.ResponseWriter, r *http.Request, qm *quota.Manager) {
	var req registerRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := qm.Register(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func handleGetUser(w http.ResponseWriter, r *http.Request, qm *quota.Manager) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	u, err := qm.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type setTierRequest struct {
	Tier string `json:"tier"`
}

func handleSetTier(w http.ResponseWriter, r *http.Request, qm *quota.Manager) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req setTierRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := qm.SetTier(r.Context(), id, account.Tier(req.Tier))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func handleSetActive(w http.ResponseWriter, r *http.Request, qm *quota.Manager, active bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	u, err := qm.SetActive(r.Context(), id, active)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "/", ""))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser usage; adjust as needed.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		// Prefer best speed to reduce CPU usage since payloads are JSON
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
