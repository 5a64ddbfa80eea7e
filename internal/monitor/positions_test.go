package monitor

import (
	"context"
	"testing"
	"time"

	"tradesentry/pkg/cache"
	"tradesentry/pkg/db"
)

type fakeStore struct {
	trades []*db.Trade
}

func (s *fakeStore) ListOpenTrades() ([]*db.Trade, error) {
	var open []*db.Trade
	for _, t := range s.trades {
		if t.Status == "OPEN" {
			open = append(open, t)
		}
	}
	return open, nil
}

func (s *fakeStore) UpdateTradeProtection(id string, stopLoss, takeProfit, peakProfit float64) (bool, error) {
	for _, t := range s.trades {
		if t.ID == id && t.Status == "OPEN" {
			t.StopLoss, t.TakeProfit, t.PeakProfit = stopLoss, takeProfit, peakProfit
			return true, nil
		}
	}
	return false, nil
}

type fakeCloser struct {
	closed map[string]string // trade id -> reason
	store  *fakeStore
}

func (c *fakeCloser) Close(ctx context.Context, trade *db.Trade, price float64, reason string) error {
	if c.closed == nil {
		c.closed = make(map[string]string)
	}
	c.closed[trade.ID] = reason
	for _, t := range c.store.trades {
		if t.ID == trade.ID {
			t.Status = "CLOSED"
		}
	}
	return nil
}

func newMonitor(cfg PositionConfig, trades ...*db.Trade) (*PositionMonitor, *fakeStore, *fakeCloser, *cache.PriceCache) {
	store := &fakeStore{trades: trades}
	closer := &fakeCloser{store: store}
	prices := cache.NewPriceCache()
	m := NewPositionMonitor(cfg, store, closer, prices)
	return m, store, closer, prices
}

func buyTrade(id string, entry, qty float64, openedAt time.Time) *db.Trade {
	return &db.Trade{
		ID: id, Platform: "MT5", Asset: "XAUUSD", Direction: "BUY",
		EntryPrice: entry, Quantity: qty, Status: "OPEN", OpenedAt: openedAt,
	}
}

func TestPeakDrawdownClose(t *testing.T) {
	// Wide SL/TP so only the drawdown rule is in play.
	cfg := PositionConfig{
		DrawdownPct: 0.20, MinHold: 30 * time.Minute,
		StopLossPct: 0.50, TakeProfitPct: 0.50,
	}
	opened := time.Now()
	trade := buyTrade("t1", 100, 1, opened)
	m, store, closer, prices := newMonitor(cfg, trade)
	ctx := context.Background()

	ticks := []struct {
		at    time.Duration
		price float64
		peak  float64
	}{
		{1 * time.Minute, 105, 5},
		{2 * time.Minute, 110, 10},
		// 108 gives back 20% of the 10 peak, but the position is
		// still inside the minimum hold.
		{3 * time.Minute, 108, 10},
		{31 * time.Minute, 115, 15},
	}
	for _, tick := range ticks {
		m.now = func() time.Time { return opened.Add(tick.at) }
		prices.Set("XAUUSD", tick.price)
		m.Sweep(ctx)
		if len(closer.closed) != 0 {
			t.Fatalf("closed early at price %v", tick.price)
		}
		if got := store.trades[0].PeakProfit; got != tick.peak {
			t.Fatalf("peak after %v = %v, want %v", tick.price, got, tick.peak)
		}
	}

	// 112: profit 12, peak 15, a 20% giveback past the minimum hold.
	m.now = func() time.Time { return opened.Add(32 * time.Minute) }
	prices.Set("XAUUSD", 112)
	m.Sweep(ctx)
	if closer.closed["t1"] != "peak_drawdown" {
		t.Fatalf("close reason = %q, want peak_drawdown", closer.closed["t1"])
	}
}

func TestMinHoldDefersDrawdownClose(t *testing.T) {
	cfg := PositionConfig{
		DrawdownPct: 0.20, MinHold: 30 * time.Minute,
		StopLossPct: 0.50, TakeProfitPct: 0.50,
	}
	trade := buyTrade("t1", 100, 1, time.Now())
	trade.PeakProfit = 15
	m, _, closer, prices := newMonitor(cfg, trade)

	prices.Set("XAUUSD", 112)
	m.Sweep(context.Background())
	if len(closer.closed) != 0 {
		t.Fatal("drawdown close fired inside the minimum hold")
	}

	m.now = func() time.Time { return trade.OpenedAt.Add(31 * time.Minute) }
	m.Sweep(context.Background())
	if closer.closed["t1"] != "peak_drawdown" {
		t.Fatalf("close reason = %q, want peak_drawdown", closer.closed["t1"])
	}
}

func TestTakeProfitOutranksDrawdown(t *testing.T) {
	cfg := PositionConfig{
		DrawdownPct: 0.20, MinHold: 0,
		StopLossPct: 0.02, TakeProfitPct: 0.04,
	}
	trade := buyTrade("t1", 100, 1, time.Now().Add(-time.Hour))
	trade.PeakProfit = 50
	m, _, closer, prices := newMonitor(cfg, trade)

	// 105 is past the 104 TP and also a big giveback from peak 50;
	// the TP rule wins.
	prices.Set("XAUUSD", 105)
	m.Sweep(context.Background())
	if closer.closed["t1"] != "take_profit" {
		t.Fatalf("close reason = %q, want take_profit", closer.closed["t1"])
	}
}

func TestStopLossOnSell(t *testing.T) {
	cfg := PositionConfig{
		DrawdownPct: 0.20, MinHold: 0,
		StopLossPct: 0.02, TakeProfitPct: 0.04,
	}
	trade := &db.Trade{
		ID: "t1", Platform: "MT5", Asset: "XAUUSD", Direction: "SELL",
		EntryPrice: 100, Quantity: 1, Status: "OPEN",
		OpenedAt: time.Now().Add(-time.Hour),
	}
	m, _, closer, prices := newMonitor(cfg, trade)

	// A SELL stops out when price rises through entry*(1+slPct).
	prices.Set("XAUUSD", 102.5)
	m.Sweep(context.Background())
	if closer.closed["t1"] != "stop_loss" {
		t.Fatalf("close reason = %q, want stop_loss", closer.closed["t1"])
	}
}

func TestProtectionTracksCurrentSettings(t *testing.T) {
	cfg := PositionConfig{
		DrawdownPct: 0.90, MinHold: time.Hour,
		StopLossPct: 0.05, TakeProfitPct: 0.10,
	}
	// Opened with tighter levels than the current settings.
	trade := buyTrade("t1", 100, 1, time.Now())
	trade.StopLoss, trade.TakeProfit = 99, 101
	m, store, closer, prices := newMonitor(cfg, trade)

	prices.Set("XAUUSD", 100.5)
	m.Sweep(context.Background())
	if len(closer.closed) != 0 {
		t.Fatal("trade closed while inside current protection levels")
	}
	got := store.trades[0]
	if got.StopLoss != 95 || got.TakeProfit != 110 {
		t.Fatalf("protection = (%v, %v), want (95, 110)", got.StopLoss, got.TakeProfit)
	}
}

func TestMissingPriceSkipsTrade(t *testing.T) {
	cfg := PositionConfig{DrawdownPct: 0.20, StopLossPct: 0.02, TakeProfitPct: 0.04}
	trade := buyTrade("t1", 100, 1, time.Now().Add(-time.Hour))
	m, store, closer, _ := newMonitor(cfg, trade)

	m.Sweep(context.Background())
	if len(closer.closed) != 0 || store.trades[0].PeakProfit != 0 {
		t.Fatal("trade touched without a price")
	}
}
