// Package monitor watches open positions and system health.
package monitor

import (
	"context"
	"log"
	"time"

	"tradesentry/internal/risk"
	"tradesentry/pkg/cache"
	"tradesentry/pkg/db"
)

// Closer exits a trade through the coordinator so closures take the
// same locks as entries.
type Closer interface {
	Close(ctx context.Context, trade *db.Trade, price float64, reason string) error
}

// PositionStore is the slice of pkg/db the monitor reads and writes.
type PositionStore interface {
	ListOpenTrades() ([]*db.Trade, error)
	UpdateTradeProtection(id string, stopLoss, takeProfit, peakProfit float64) (bool, error)
}

// PositionConfig tunes the monitor sweep.
type PositionConfig struct {
	Interval      time.Duration
	DrawdownPct   float64 // close when profit gives back this share of its peak
	MinHold       time.Duration
	StopLossPct   float64
	TakeProfitPct float64
}

// PositionMonitor sweeps open trades on a ticker: refreshes protection
// levels from current settings, advances the peak-profit high-water
// mark, and closes positions that hit an exit rule. Exit rules are
// checked in a fixed order so overlapping conditions resolve the same
// way every sweep.
type PositionMonitor struct {
	cfg    PositionConfig
	store  PositionStore
	closer Closer
	prices *cache.PriceCache
	now    func() time.Time
}

// NewPositionMonitor wires a monitor.
func NewPositionMonitor(cfg PositionConfig, store PositionStore, closer Closer, prices *cache.PriceCache) *PositionMonitor {
	return &PositionMonitor{
		cfg:    cfg,
		store:  store,
		closer: closer,
		prices: prices,
		now:    time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (m *PositionMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	log.Printf("monitor: position sweep every %s", m.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep evaluates every open trade once.
func (m *PositionMonitor) Sweep(ctx context.Context) {
	trades, err := m.store.ListOpenTrades()
	if err != nil {
		log.Printf("monitor: list open trades: %v", err)
		return
	}
	for _, trade := range trades {
		m.evaluate(ctx, trade)
	}
}

func (m *PositionMonitor) evaluate(ctx context.Context, trade *db.Trade) {
	price, _, ok := m.prices.GetWithAge(trade.Asset)
	if !ok || price <= 0 {
		return
	}

	profit := (price - trade.EntryPrice) * trade.Quantity
	if trade.Direction == "SELL" {
		profit = -profit
	}

	// The high-water mark only ever moves up.
	peak := trade.PeakProfit
	if profit > peak {
		peak = profit
	}

	// Protection levels follow the current settings, not the ones in
	// force when the trade opened.
	protection := risk.ProtectionLevels(trade.EntryPrice, trade.Direction,
		m.cfg.StopLossPct, m.cfg.TakeProfitPct)

	if reason, hit := m.exitReason(trade, price, profit, peak, protection); hit {
		if err := m.closer.Close(ctx, trade, price, reason); err != nil {
			log.Printf("monitor: close %s (%s): %v", trade.ID, reason, err)
		}
		return
	}

	changed := peak != trade.PeakProfit ||
		protection.StopLoss != trade.StopLoss ||
		protection.TakeProfit != trade.TakeProfit
	if !changed {
		return
	}
	if _, err := m.store.UpdateTradeProtection(trade.ID, protection.StopLoss, protection.TakeProfit, peak); err != nil {
		log.Printf("monitor: update protection %s: %v", trade.ID, err)
	}
}

// exitReason applies the closure rules in priority order: take profit,
// stop loss, then peak drawdown.
func (m *PositionMonitor) exitReason(trade *db.Trade, price, profit, peak float64, p risk.Protection) (string, bool) {
	buy := trade.Direction != "SELL"

	if (buy && price >= p.TakeProfit) || (!buy && price <= p.TakeProfit) {
		return "take_profit", true
	}
	if (buy && price <= p.StopLoss) || (!buy && price >= p.StopLoss) {
		return "stop_loss", true
	}
	if peak > 0 && m.now().Sub(trade.OpenedAt) >= m.cfg.MinHold {
		if (peak-profit)/peak >= m.cfg.DrawdownPct {
			return "peak_drawdown", true
		}
	}
	return "", false
}
