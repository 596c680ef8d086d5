package marketdata

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the shared market-data cache. Lookups go memory -> Redis -> vendor;
// every vendor hit is written back to both layers and published for
// subscribers. The TTL is an explicit parameter, not implicit global state.
type Cache struct {
	redis    *redis.Client
	provider QuoteProvider
	ttl      time.Duration

	mu         sync.RWMutex
	quotes     map[string]*Quote
	fetchedAt  map[string]time.Time
	subscribed map[string]struct{}
}

// NewCache creates a market-data cache backed by Redis and a vendor provider.
// Both redis and provider may be nil in degraded setups; lookups then serve
// only what the remaining layers hold.
func NewCache(rdb *redis.Client, provider QuoteProvider, ttl time.Duration) *Cache {
	return &Cache{
		redis:      rdb,
		provider:   provider,
		ttl:        ttl,
		quotes:     make(map[string]*Quote),
		fetchedAt:  make(map[string]time.Time),
		subscribed: make(map[string]struct{}),
	}
}

// GetQuote returns a fresh quote for a token, fetching from the vendor when
// neither memory nor Redis has one inside the TTL window.
func (c *Cache) GetQuote(ctx context.Context, token string) (*Quote, error) {
	if q, ok := c.fromMemory(token); ok {
		return q, nil
	}

	if q, ok := c.fromRedis(ctx, token); ok {
		c.storeMemory(q)
		return q, nil
	}

	if c.provider == nil {
		return nil, fmt.Errorf("%w: no provider configured for %s", ErrQuoteUnavailable, token)
	}

	q, err := c.provider.FetchQuote(ctx, token)
	if err != nil {
		return nil, err
	}
	c.Store(ctx, q)
	return q, nil
}

// LastKnown returns the most recent quote held by the fast layers without
// consulting the vendor. Used by the P&L worker, where a stale-but-recent
// price beats a per-position upstream round trip.
func (c *Cache) LastKnown(token string) (*Quote, bool) {
	c.mu.RLock()
	q, ok := c.quotes[token]
	c.mu.RUnlock()
	if ok {
		return q, true
	}
	if q, ok := c.fromRedis(context.Background(), token); ok {
		return q, true
	}
	return nil, false
}

// EnsureSubscribed makes a best-effort attempt to have a quote in the cache
// for every token. Failures are logged and counted, never fatal; callers
// degrade to their own last-known price.
func (c *Cache) EnsureSubscribed(ctx context.Context, tokens []string) error {
	var failed int
	for _, token := range tokens {
		c.mu.RLock()
		_, seen := c.subscribed[token]
		c.mu.RUnlock()
		if seen {
			continue
		}

		if c.provider != nil {
			q, err := c.provider.FetchQuote(ctx, token)
			if err != nil {
				failed++
				log.Printf("[MarketData] subscribe fetch failed for %s: %v", token, err)
				continue
			}
			c.Store(ctx, q)
		}

		c.mu.Lock()
		c.subscribed[token] = struct{}{}
		c.mu.Unlock()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d token subscriptions failed", failed, len(tokens))
	}
	return nil
}

// Store writes a quote into memory and Redis and publishes it for subscribers
func (c *Cache) Store(ctx context.Context, q *Quote) {
	c.storeMemory(q)

	if c.redis == nil {
		return
	}

	key := "quote:" + q.Token
	c.redis.HSet(ctx, key, map[string]interface{}{
		"ltp":   q.LastTradePrice,
		"close": q.PreviousClose,
		"bid":   q.BidPrice,
		"ask":   q.AskPrice,
		"ts":    q.Timestamp,
	})
	c.redis.Expire(ctx, key, c.ttl)

	c.redis.Publish(ctx, "quote_updates", fmt.Sprintf("%s:%.4f", q.Token, q.LastTradePrice))
}

func (c *Cache) storeMemory(q *Quote) {
	c.mu.Lock()
	c.quotes[q.Token] = q
	c.fetchedAt[q.Token] = time.Now()
	c.mu.Unlock()
}

func (c *Cache) fromMemory(token string) (*Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[token]
	if !ok {
		return nil, false
	}
	if time.Since(c.fetchedAt[token]) > c.ttl {
		return nil, false
	}
	return q, true
}

func (c *Cache) fromRedis(ctx context.Context, token string) (*Quote, bool) {
	if c.redis == nil {
		return nil, false
	}
	vals, err := c.redis.HGetAll(ctx, "quote:"+token).Result()
	if err != nil || len(vals) == 0 {
		return nil, false
	}

	ltp, err := strconv.ParseFloat(vals["ltp"], 64)
	if err != nil || ltp <= 0 {
		return nil, false
	}
	q := &Quote{Token: token, LastTradePrice: ltp}
	if v, err := strconv.ParseFloat(vals["close"], 64); err == nil {
		q.PreviousClose = v
	}
	if v, err := strconv.ParseFloat(vals["bid"], 64); err == nil {
		q.BidPrice = v
	}
	if v, err := strconv.ParseFloat(vals["ask"], 64); err == nil {
		q.AskPrice = v
	}
	if v, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		q.Timestamp = v
	}
	return q, true
}
