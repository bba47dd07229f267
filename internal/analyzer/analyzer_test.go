package analyzer_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goldfeed/internal/analyzer"
	"goldfeed/internal/httpx"
)

func TestAnalyze(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/analyze", r.URL.Path)

		var req analyzer.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "XAUUSD", req.Symbol)
		require.InEpsilon(t, 2412.35, req.Price, 0.0001)

		_ = json.NewEncoder(w).Encode(analyzer.Result{Text: "gold looks steady", Model: "test-model"})
	}))
	defer ts.Close()

	e := analyzer.NewEngine(ts.URL, httpx.New(5*time.Second))
	res, err := e.Analyze(t.Context(), analyzer.Request{
		Symbol:    "XAUUSD",
		Question:  "trend?",
		Price:     2412.35,
		Currency:  "USD",
		Source:    "GoldAPI",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "gold looks steady", res.Text)
	require.Equal(t, "test-model", res.Model)
}

func TestAnalyze_EngineError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	e := analyzer.NewEngine(ts.URL, httpx.New(5*time.Second))
	_, err := e.Analyze(t.Context(), analyzer.Request{Symbol: "XAUUSD", Price: 2412.35})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model overloaded")
}

func TestAnalyze_EmptyText(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text": ""}`))
	}))
	defer ts.Close()

	e := analyzer.NewEngine(ts.URL, httpx.New(5*time.Second))
	_, err := e.Analyze(t.Context(), analyzer.Request{Symbol: "XAUUSD", Price: 2412.35})
	require.Error(t, err)
}
