// Package marketdata feeds prices into the cache and onto the bus.
// The mock feed stands in for a real market-data collaborator during
// dry runs and tests.
package marketdata

import (
	"context"
	"log"
	"math/rand"
	"time"

	"tradesentry/internal/events"
	"tradesentry/pkg/cache"
)

// seedPrices gives each known symbol a plausible starting level; other
// symbols start at 100.
var seedPrices = map[string]float64{
	"XAUUSD":  2400,
	"EURUSD":  1.08,
	"GBPUSD":  1.27,
	"USDJPY":  155,
	"BTCUSDT": 65000,
}

// MockFeed emits a bounded random walk per symbol.
type MockFeed struct {
	platform string
	symbols  []string
	interval time.Duration
	prices   *cache.PriceCache
	bus      *events.Bus
	rng      *rand.Rand
	levels   map[string]float64
}

// NewMockFeed builds a feed for the given symbols. A fixed seed keeps
// repeated runs comparable.
func NewMockFeed(platform string, symbols []string, interval time.Duration,
	prices *cache.PriceCache, bus *events.Bus) *MockFeed {
	levels := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		level, ok := seedPrices[s]
		if !ok {
			level = 100
		}
		levels[s] = level
	}
	return &MockFeed{
		platform: platform,
		symbols:  symbols,
		interval: interval,
		prices:   prices,
		bus:      bus,
		rng:      rand.New(rand.NewSource(42)),
		levels:   levels,
	}
}

// Run ticks every symbol on the interval until ctx is cancelled. The
// first round fires immediately so the cache is never empty at start.
func (f *MockFeed) Run(ctx context.Context) {
	log.Printf("marketdata: mock feed for %v every %s", f.symbols, f.interval)
	f.tickAll()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tickAll()
		}
	}
}

func (f *MockFeed) tickAll() {
	now := time.Now()
	for _, symbol := range f.symbols {
		// Walk up to ±0.1% per tick.
		level := f.levels[symbol]
		level *= 1 + (f.rng.Float64()-0.5)*0.002
		f.levels[symbol] = level

		f.prices.Set(symbol, level)
		if f.bus != nil {
			f.bus.Publish(events.TopicPriceTick, events.PriceTick{
				Platform:  f.platform,
				Symbol:    symbol,
				Price:     level,
				Timestamp: now,
			})
		}
	}
}
