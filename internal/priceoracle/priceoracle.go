// Package priceoracle resolves symbol -> USD price with a short-lived
// Redis-backed cache, falling back to an in-process table when Redis is
// unavailable or a symbol isn't cached yet.
package priceoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * time.Second

type cachedPrice struct {
	Price float64
	At    time.Time
}

// Oracle resolves token prices, preferring a Redis-backed TTL cache and
// falling back to a static table and an in-memory cache when Redis is
// nil or unreachable.
type Oracle struct {
	redis    *redis.Client
	ttl      time.Duration
	fallback map[string]float64

	mu    sync.RWMutex
	local map[string]cachedPrice
}

// New creates an Oracle. redisClient may be nil, in which case the Oracle
// runs entirely off the local cache and fallback table.
func New(redisClient *redis.Client, fallback map[string]float64) *Oracle {
	if redisClient == nil {
		log.Println("⚠️  Price Oracle running without Redis cache; using local cache + fallback table only")
	}
	return &Oracle{
		redis:    redisClient,
		ttl:      defaultTTL,
		fallback: fallback,
		local:    make(map[string]cachedPrice),
	}
}

// Get resolves symbol's USD price. ok is false only when no cached price,
// live source, or fallback entry exists.
func (o *Oracle) Get(ctx context.Context, symbol string) (price float64, ok bool) {
	if p, found := o.getLocal(symbol); found {
		return p, true
	}

	if o.redis != nil {
		key := "price:" + symbol
		val, err := o.redis.Get(ctx, key).Result()
		if err == nil {
			var cp cachedPrice
			if jsonErr := json.Unmarshal([]byte(val), &cp); jsonErr == nil && time.Since(cp.At) < o.ttl {
				o.setLocal(symbol, cp.Price)
				return cp.Price, true
			}
		}
	}

	if p, found := o.fallback[symbol]; found {
		o.setLocal(symbol, p)
		return p, true
	}

	return 0, false
}

// Set publishes a freshly observed price for symbol, refreshing both the
// local cache and Redis (best-effort; a Redis write failure is logged
// and never fails the call).
func (o *Oracle) Set(ctx context.Context, symbol string, price float64) {
	o.setLocal(symbol, price)

	if o.redis == nil {
		return
	}
	cp := cachedPrice{Price: price, At: time.Now()}
	data, err := json.Marshal(cp)
	if err != nil {
		return
	}
	if err := o.redis.Set(ctx, "price:"+symbol, data, o.ttl).Err(); err != nil {
		log.Printf("⚠️  failed to cache price for %s: %v", symbol, err)
	}
}

func (o *Oracle) getLocal(symbol string) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	cp, ok := o.local[symbol]
	if !ok || time.Since(cp.At) >= o.ttl {
		return 0, false
	}
	return cp.Price, true
}

func (o *Oracle) setLocal(symbol string, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.local[symbol] = cachedPrice{Price: price, At: time.Now()}
}

// NewRedisClient pings on construction and returns nil (not an error) on
// failure so callers can proceed in degraded mode.
func NewRedisClient(host, port, password string) *redis.Client {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Failed to connect to Redis at %s: %v", addr, err)
		return nil
	}
	log.Printf("✅ Connected to Redis at %s", addr)
	return client
}
