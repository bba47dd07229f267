package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"goldfeed/internal/httpx"
)

// Request carries a resolved price and the user's question to the analysis
// engine. The engine builds the prompt and calls the model; the feed side is
// done once the price is attached.
type Request struct {
	Symbol    string    `json:"symbol"`
	Question  string    `json:"question,omitempty"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Source    string    `json:"source"`
	Stale     bool      `json:"stale,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the produced commentary.
type Result struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// Analyzer produces market commentary for a symbol at a given price.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Result, error)
}

// Engine calls the external analysis engine over HTTP.
type Engine struct {
	baseURL string
	client  *httpx.Client
}

func NewEngine(baseURL string, hc *httpx.Client) *Engine {
	return &Engine{baseURL: baseURL, client: hc}
}

func (e *Engine) Analyze(ctx context.Context, areq Request) (Result, error) {
	body, err := json.Marshal(areq)
	if err != nil {
		return Result{}, fmt.Errorf("analyzer: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/analyze", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("analyzer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("analyzer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Result{}, fmt.Errorf("analyzer: engine returned %d: %s", resp.StatusCode, string(b))
	}

	var res Result
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&res); err != nil {
		return Result{}, fmt.Errorf("analyzer: decode response: %w", err)
	}
	if res.Text == "" {
		return Result{}, fmt.Errorf("analyzer: engine returned empty analysis")
	}
	return res, nil
}
