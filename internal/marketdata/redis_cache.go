package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache is a Cache backed by Redis, with the graceful-degradation
// circuit breaker grounded on koshedutech-binance-trading-app's
// internal/cache/cache_service.go: Get/Set calls are skipped outright
// once enough consecutive failures are seen, and probed back to healthy
// on a cooldown instead of retried inline.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// RedisCacheConfig configures the Redis connection for RedisCache.
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisCache creates a RedisCache and probes connectivity once. A
// failed probe leaves the cache in degraded mode rather than failing
// construction, matching the teacher's NewCacheService.
func NewRedisCache(cfg RedisCacheConfig, ttl time.Duration, logger *zap.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	rc := &RedisCache{
		client:        client,
		ttl:           ttl,
		logger:        logger,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warn("redis cache starting in degraded mode", zap.Error(err))
		}
		return rc
	}
	rc.healthy = true
	rc.lastCheck = time.Now()
	return rc
}

func (rc *RedisCache) isHealthy() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.healthy
}

func (rc *RedisCache) recordFailure() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.failureCount++
	if rc.failureCount >= rc.maxFailures {
		if rc.healthy && rc.logger != nil {
			rc.logger.Warn("redis cache circuit open", zap.Int("failures", rc.failureCount))
		}
		rc.healthy = false
	}
}

func (rc *RedisCache) recordSuccess() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.healthy = true
	rc.failureCount = 0
	rc.lastCheck = time.Now()
}

func (rc *RedisCache) checkHealth() {
	rc.mu.RLock()
	shouldCheck := !rc.healthy && time.Since(rc.lastCheck) >= rc.checkInterval
	rc.mu.RUnlock()
	if !shouldCheck {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.client.Ping(ctx).Err(); err == nil {
			rc.recordSuccess()
		}
	}()
}

func (rc *RedisCache) GetBars(ctx context.Context, symbol string) ([]types.Bar, bool) {
	var bars []types.Bar
	if !rc.get(ctx, barsKey(symbol), &bars) {
		return nil, false
	}
	return bars, true
}

func (rc *RedisCache) SetBars(ctx context.Context, symbol string, bars []types.Bar) {
	rc.set(ctx, barsKey(symbol), bars)
}

func (rc *RedisCache) GetSpotPrice(ctx context.Context, symbol string) (float64, bool) {
	var price float64
	if !rc.get(ctx, priceKey(symbol), &price) {
		return 0, false
	}
	return price, true
}

func (rc *RedisCache) SetSpotPrice(ctx context.Context, symbol string, price float64) {
	rc.set(ctx, priceKey(symbol), price)
}

func (rc *RedisCache) get(ctx context.Context, key string, out interface{}) bool {
	rc.checkHealth()
	if !rc.isHealthy() {
		return false
	}

	raw, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			rc.recordFailure()
		}
		return false
	}
	rc.recordSuccess()

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false
	}
	return true
}

func (rc *RedisCache) set(ctx context.Context, key string, value interface{}) {
	rc.checkHealth()
	if !rc.isHealthy() {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := rc.client.Set(ctx, key, raw, rc.ttl).Err(); err != nil {
		rc.recordFailure()
		return
	}
	rc.recordSuccess()
}

func barsKey(symbol string) string  { return fmt.Sprintf("finsight:bars:%s", symbol) }
func priceKey(symbol string) string { return fmt.Sprintf("finsight:price:%s", symbol) }
