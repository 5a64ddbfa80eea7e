package marketdata

import (
	"context"
	"sync"
	"time"

	"tradesentry/internal/events"
	"tradesentry/internal/indicators"
)

// CandleSeries aggregates ticks into fixed-interval candles per
// symbol, keeping a bounded tail for regime detection.
type CandleSeries struct {
	mu       sync.Mutex
	interval time.Duration
	keep     int
	closed   map[string][]indicators.Candle
	current  map[string]*indicators.Candle
	started  map[string]time.Time
}

// NewCandleSeries builds an aggregator keeping the last keep candles.
func NewCandleSeries(interval time.Duration, keep int) *CandleSeries {
	return &CandleSeries{
		interval: interval,
		keep:     keep,
		closed:   make(map[string][]indicators.Candle),
		current:  make(map[string]*indicators.Candle),
		started:  make(map[string]time.Time),
	}
}

// Run consumes price ticks from the bus until ctx is cancelled.
func (s *CandleSeries) Run(ctx context.Context, bus *events.Bus) {
	ticks, unsubscribe := bus.Subscribe(events.TopicPriceTick)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ticks:
			if !ok {
				return
			}
			if tick, ok := event.(events.PriceTick); ok {
				s.Apply(tick.Symbol, tick.Price, tick.Timestamp)
			}
		}
	}
}

// Apply folds one tick into the current candle, rolling it over when
// the interval boundary passes.
func (s *CandleSeries) Apply(symbol string, price float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := at.Truncate(s.interval)
	cur := s.current[symbol]
	if cur == nil || !s.started[symbol].Equal(bucket) {
		if cur != nil {
			series := append(s.closed[symbol], *cur)
			if len(series) > s.keep {
				series = series[len(series)-s.keep:]
			}
			s.closed[symbol] = series
		}
		s.current[symbol] = &indicators.Candle{Open: price, High: price, Low: price, Close: price}
		s.started[symbol] = bucket
		return
	}

	if price > cur.High {
		cur.High = price
	}
	if price < cur.Low {
		cur.Low = price
	}
	cur.Close = price
}

// Recent returns the closed candles for symbol, oldest first.
func (s *CandleSeries) Recent(symbol string) []indicators.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.closed[symbol]
	out := make([]indicators.Candle, len(series))
	copy(out, series)
	return out
}
