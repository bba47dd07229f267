package yahoo_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goldfeed/internal/httpx"
	"goldfeed/internal/provider/yahoo"
)

const chartBody = `{
	"chart": {
		"result": [{
			"meta": {
				"currency": "USD",
				"regularMarketPrice": 1.0923,
				"chartPreviousClose": 1.0871,
				"regularMarketDayHigh": 1.0940,
				"regularMarketDayLow": 1.0865,
				"regularMarketTime": 1721224427
			}
		}],
		"error": null
	}
}`

func TestFetch(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/EURUSD=X", r.URL.Path)
		require.Equal(t, "1d", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(chartBody))
	}))
	defer ts.Close()

	p := yahoo.New(yahoo.Config{URL: ts.URL}, httpx.New(5*time.Second))

	q, err := p.Fetch(t.Context(), "EURUSD")
	require.NoError(t, err)
	require.Equal(t, "EURUSD", q.Symbol)
	require.Equal(t, "Yahoo", q.Source)
	require.Equal(t, "USD", q.Currency)
	require.InEpsilon(t, 1.0923, q.Price, 0.0001)
	require.InEpsilon(t, 1.0923-1.0871, q.Change, 0.01)
	require.Equal(t, time.Unix(1721224427, 0).UTC(), q.Timestamp)
}

func TestFetch_UnsupportedSymbol(t *testing.T) {
	t.Parallel()

	p := yahoo.New(yahoo.Config{URL: "http://unused"}, httpx.New(5*time.Second))
	_, err := p.Fetch(t.Context(), "XAUUSD")
	require.Error(t, err)
}

func TestFetch_APIError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer ts.Close()

	p := yahoo.New(yahoo.Config{URL: ts.URL}, httpx.New(5*time.Second))
	_, err := p.Fetch(t.Context(), "EURUSD")
	require.Error(t, err)
	require.Contains(t, err.Error(), "No data found")
}

func TestFetch_BadStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	p := yahoo.New(yahoo.Config{URL: ts.URL}, httpx.New(5*time.Second))
	_, err := p.Fetch(t.Context(), "EURUSD")
	require.Error(t, err)
}

func TestFetch_CustomSymbolMap(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/GC=F", r.URL.Path)
		_, _ = w.Write([]byte(chartBody))
	}))
	defer ts.Close()

	p := yahoo.New(yahoo.Config{
		URL:       ts.URL,
		SymbolMap: map[string]string{"XAUUSD": "GC=F"},
	}, httpx.New(5*time.Second))

	q, err := p.Fetch(t.Context(), "XAUUSD")
	require.NoError(t, err)
	require.Equal(t, "XAUUSD", q.Symbol)
}
