package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"goldfeed/internal/provider"
)

func sampleQuote(symbol string, price float64) provider.Quote {
	return provider.Quote{
		Symbol:    symbol,
		Price:     price,
		Currency:  "USD",
		Source:    "test",
		Timestamp: time.Now(),
	}
}

func TestGetOrRefreshCachesWithinTTL(t *testing.T) {
	c := NewCache(time.Minute, time.Hour)
	var calls atomic.Int32
	refresh := func(ctx context.Context) (provider.Quote, error) {
		calls.Add(1)
		return sampleQuote("XAUUSD", 2400), nil
	}

	q, stale, err := c.GetOrRefresh(context.Background(), "XAUUSD", refresh)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if stale {
		t.Fatal("fresh quote reported stale")
	}
	if q.Price != 2400 {
		t.Fatalf("price = %v, want 2400", q.Price)
	}

	// Second call within TTL must not hit the provider again.
	if _, _, err := c.GetOrRefresh(context.Background(), "XAUUSD", refresh); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
}

func TestGetOrRefreshCoalescesConcurrentMisses(t *testing.T) {
	c := NewCache(time.Minute, time.Hour)
	var calls atomic.Int32
	block := make(chan struct{})
	refresh := func(ctx context.Context) (provider.Quote, error) {
		calls.Add(1)
		<-block
		return sampleQuote("XAUUSD", 2400), nil
	}

	const n = 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	prices := make([]float64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			q, _, err := c.GetOrRefresh(context.Background(), "XAUUSD", refresh)
			prices[i], errs[i] = q.Price, err
		}(i)
	}
	close(start)
	time.Sleep(20 * time.Millisecond) // let callers join the flight
	close(block)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if prices[i] != 2400 {
			t.Fatalf("caller %d: price = %v, want 2400", i, prices[i])
		}
	}
}

func TestStaleServedWithinGrace(t *testing.T) {
	c := NewCache(10*time.Millisecond, time.Hour)
	good := func(ctx context.Context) (provider.Quote, error) {
		return sampleQuote("XAUUSD", 2400), nil
	}
	bad := func(ctx context.Context) (provider.Quote, error) {
		return provider.Quote{}, errors.New("upstream down")
	}

	if _, _, err := c.GetOrRefresh(context.Background(), "XAUUSD", good); err != nil {
		t.Fatalf("seed: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // past TTL, well inside grace

	q, stale, err := c.GetOrRefresh(context.Background(), "XAUUSD", bad)
	if err != nil {
		t.Fatalf("graced call: %v", err)
	}
	if !stale {
		t.Fatal("graced quote not flagged stale")
	}
	if q.Price != 2400 {
		t.Fatalf("price = %v, want the stale 2400", q.Price)
	}
}

func TestUnavailableBeyondGrace(t *testing.T) {
	c := NewCache(5*time.Millisecond, 5*time.Millisecond)
	good := func(ctx context.Context) (provider.Quote, error) {
		return sampleQuote("XAUUSD", 2400), nil
	}
	bad := func(ctx context.Context) (provider.Quote, error) {
		return provider.Quote{}, errors.New("upstream down")
	}

	if _, _, err := c.GetOrRefresh(context.Background(), "XAUUSD", good); err != nil {
		t.Fatalf("seed: %v", err)
	}
	time.Sleep(30 * time.Millisecond) // past TTL+grace

	_, _, err := c.GetOrRefresh(context.Background(), "XAUUSD", bad)
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}
}

func TestUnavailableWithoutAnyEntry(t *testing.T) {
	c := NewCache(time.Minute, time.Hour)
	bad := func(ctx context.Context) (provider.Quote, error) {
		return provider.Quote{}, errors.New("upstream down")
	}
	_, _, err := c.GetOrRefresh(context.Background(), "XAUUSD", bad)
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}
}

func TestSymbolsCachedIndependently(t *testing.T) {
	c := NewCache(time.Minute, time.Hour)
	var calls atomic.Int32
	refresh := func(symbol string, price float64) RefreshFunc {
		return func(ctx context.Context) (provider.Quote, error) {
			calls.Add(1)
			return sampleQuote(symbol, price), nil
		}
	}

	q1, _, err := c.GetOrRefresh(context.Background(), "XAUUSD", refresh("XAUUSD", 2400))
	if err != nil {
		t.Fatal(err)
	}
	q2, _, err := c.GetOrRefresh(context.Background(), "EURUSD", refresh("EURUSD", 1.09))
	if err != nil {
		t.Fatal(err)
	}
	if q1.Price == q2.Price {
		t.Fatal("symbols share a cache entry")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("refresh calls = %d, want 2", got)
	}
}
