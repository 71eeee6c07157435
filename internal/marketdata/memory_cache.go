package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/finsight/finsight/pkg/types"
)

// MemoryCache is an in-process TTL cache, grounded on the teacher's
// market_data.go priceCache/ohlcvCache (map + RWMutex) idiom. Used when
// no Redis endpoint is configured.
type MemoryCache struct {
	ttl time.Duration

	mu     sync.RWMutex
	bars   map[string]cachedBars
	prices map[string]cachedPrice
}

type cachedBars struct {
	bars      []types.Bar
	expiresAt time.Time
}

type cachedPrice struct {
	price     float64
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:    ttl,
		bars:   make(map[string]cachedBars),
		prices: make(map[string]cachedPrice),
	}
}

func (c *MemoryCache) GetBars(_ context.Context, symbol string) ([]types.Bar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.bars[symbol]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.bars, true
}

func (c *MemoryCache) SetBars(_ context.Context, symbol string, bars []types.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bars[symbol] = cachedBars{bars: bars, expiresAt: time.Now().Add(c.ttl)}
}

func (c *MemoryCache) GetSpotPrice(_ context.Context, symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.prices[symbol]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.price, true
}

func (c *MemoryCache) SetSpotPrice(_ context.Context, symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = cachedPrice{price: price, expiresAt: time.Now().Add(c.ttl)}
}
