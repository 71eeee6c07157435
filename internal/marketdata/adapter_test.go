package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finsight/finsight/pkg/types"
)

type fakeProvider struct {
	name       string
	barsErr    error
	bars       []types.Bar
	priceErr   error
	price      float64
	barsCalls  int
	priceCalls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) FetchBars(_ context.Context, _ string, _ int) ([]types.Bar, error) {
	p.barsCalls++
	if p.barsErr != nil {
		return nil, p.barsErr
	}
	return p.bars, nil
}

func (p *fakeProvider) FetchSpotPrice(_ context.Context, _ string) (float64, error) {
	p.priceCalls++
	if p.priceErr != nil {
		return 0, p.priceErr
	}
	return p.price, nil
}

func noRetryConfig() types.MarketDataConfig {
	return types.MarketDataConfig{
		CacheTTL:          time.Minute,
		RetryAttempts:     1,
		RetryInitialDelay: time.Millisecond,
		RetryMaxDelay:     time.Millisecond,
	}
}

func TestBarsFallsBackToNextProvider(t *testing.T) {
	failing := &fakeProvider{name: "primary", barsErr: errors.New("timeout")}
	working := &fakeProvider{name: "secondary", bars: []types.Bar{{Symbol: "AAPL"}}}

	adapter := New([]Provider{failing, working}, nil, noRetryConfig(), nil)

	bars, err := adapter.Bars(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	if failing.barsCalls != 1 || working.barsCalls != 1 {
		t.Errorf("barsCalls = (%d,%d), want (1,1)", failing.barsCalls, working.barsCalls)
	}
}

func TestBarsReturnsErrorWhenAllProvidersFail(t *testing.T) {
	a := &fakeProvider{name: "a", barsErr: errors.New("down")}
	b := &fakeProvider{name: "b", barsErr: errors.New("down")}

	adapter := New([]Provider{a, b}, nil, noRetryConfig(), nil)

	if _, err := adapter.Bars(context.Background(), "AAPL", 10); err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestSpotPriceConsultsCacheBeforeProviders(t *testing.T) {
	provider := &fakeProvider{name: "primary", price: 100}
	cache := NewMemoryCache(time.Minute)
	cache.SetSpotPrice(context.Background(), "AAPL", 150)

	adapter := New([]Provider{provider}, cache, noRetryConfig(), nil)

	price, err := adapter.SpotPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
	if price != 150 {
		t.Errorf("price = %v, want 150 (from cache)", price)
	}
	if provider.priceCalls != 0 {
		t.Errorf("provider called %d times, want 0 (cache hit)", provider.priceCalls)
	}
}

func TestSpotPricePopulatesCacheOnMiss(t *testing.T) {
	provider := &fakeProvider{name: "primary", price: 42}
	cache := NewMemoryCache(time.Minute)

	adapter := New([]Provider{provider}, cache, noRetryConfig(), nil)

	price, err := adapter.SpotPrice(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
	if price != 42 {
		t.Errorf("price = %v, want 42", price)
	}

	cached, ok := cache.GetSpotPrice(context.Background(), "MSFT")
	if !ok || cached != 42 {
		t.Errorf("cache not populated after miss: got (%v, %v)", cached, ok)
	}
}

func TestMemoryCacheExpiresAfterTTL(t *testing.T) {
	cache := NewMemoryCache(0)
	cache.SetSpotPrice(context.Background(), "AAPL", 10)
	time.Sleep(time.Millisecond)

	if _, ok := cache.GetSpotPrice(context.Background(), "AAPL"); ok {
		t.Error("expected cache entry to have expired")
	}
}
