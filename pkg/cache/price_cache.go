// Package cache holds the sharded last-price cache read on every
// monitor tick and execution attempt.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

// Quote is one cached price point.
type Quote struct {
	Symbol    string
	Price     float64
	UpdatedAt time.Time
}

type shard struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// PriceCache is a sharded symbol -> quote map. Sharding keeps feed
// writes from contending with monitor reads across symbols.
type PriceCache struct {
	shards [shardCount]*shard
}

// NewPriceCache builds an empty cache.
func NewPriceCache() *PriceCache {
	c := &PriceCache{}
	for i := range c.shards {
		c.shards[i] = &shard{quotes: make(map[string]Quote)}
	}
	return c
}

func (c *PriceCache) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return c.shards[h.Sum32()%shardCount]
}

// Set stores the latest price for symbol.
func (c *PriceCache) Set(symbol string, price float64) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.quotes[symbol] = Quote{Symbol: symbol, Price: price, UpdatedAt: time.Now()}
	s.mu.Unlock()
}

// Get returns the latest price for symbol.
func (c *PriceCache) Get(symbol string) (float64, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	q, ok := s.quotes[symbol]
	s.mu.RUnlock()
	return q.Price, ok
}

// GetWithAge returns the latest price and how stale it is.
func (c *PriceCache) GetWithAge(symbol string) (float64, time.Duration, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	q, ok := s.quotes[symbol]
	s.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return q.Price, time.Since(q.UpdatedAt), true
}

// GetAll snapshots every quote in the cache.
func (c *PriceCache) GetAll() map[string]Quote {
	out := make(map[string]Quote)
	for _, s := range c.shards {
		s.mu.RLock()
		for k, v := range s.quotes {
			out[k] = v
		}
		s.mu.RUnlock()
	}
	return out
}

// Len counts cached symbols.
func (c *PriceCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.quotes)
		s.mu.RUnlock()
	}
	return n
}

// Cleanup drops quotes older than maxAge and reports how many were
// removed.
func (c *PriceCache) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, v := range s.quotes {
			if v.UpdatedAt.Before(cutoff) {
				delete(s.quotes, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
