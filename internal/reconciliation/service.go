// Package reconciliation keeps the local trade table and the venues'
// books in agreement. It is the recovery path for ambiguous broker
// outcomes and unpersisted fills.
package reconciliation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tradesentry/internal/broker"
	"tradesentry/internal/events"
	"tradesentry/pkg/cache"
	"tradesentry/pkg/db"
)

// Store is the slice of pkg/db the sweep needs.
type Store interface {
	ListOpenTradesByPlatform(platform string) ([]*db.Trade, error)
	CreateTrade(t *db.Trade) error
	CloseTrade(id string, exitPrice, profitLoss float64, reason string, closedAt time.Time) (bool, error)
}

// Service periodically compares OPEN rows with venue positions. Local
// rows with no venue position get closed at the last known price;
// venue positions with no local row get adopted as recovery rows so
// the monitor starts protecting them.
type Service struct {
	interval time.Duration
	gateways map[string]broker.Gateway
	store    Store
	prices   *cache.PriceCache
	bus      *events.Bus
}

// NewService wires a sweep.
func NewService(interval time.Duration, gateways map[string]broker.Gateway,
	store Store, prices *cache.PriceCache, bus *events.Bus) *Service {
	return &Service{
		interval: interval,
		gateways: gateways,
		store:    store,
		prices:   prices,
		bus:      bus,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Printf("reconciliation: sweep every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep reconciles every platform once.
func (s *Service) Sweep(ctx context.Context) {
	for platform, gateway := range s.gateways {
		if err := s.reconcilePlatform(ctx, platform, gateway); err != nil {
			log.Printf("reconciliation: %s: %v", platform, err)
		}
	}
}

func (s *Service) reconcilePlatform(ctx context.Context, platform string, gateway broker.Gateway) error {
	venuePositions, err := gateway.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("venue positions: %w", err)
	}
	localTrades, err := s.store.ListOpenTradesByPlatform(platform)
	if err != nil {
		return fmt.Errorf("local trades: %w", err)
	}

	byTicket := make(map[string]broker.Position, len(venuePositions))
	for _, p := range venuePositions {
		byTicket[p.Ticket] = p
	}
	localTickets := make(map[string]bool, len(localTrades))

	// Local rows whose venue position vanished: the venue is the
	// source of truth, close the row.
	for _, trade := range localTrades {
		localTickets[trade.Ticket] = true
		if trade.Ticket == "" {
			continue
		}
		if _, alive := byTicket[trade.Ticket]; alive {
			continue
		}
		s.closeOrphanRow(trade)
	}

	// Venue positions with no local row: an unpersisted or ambiguous
	// fill. Adopt it so the monitor takes over.
	for _, pos := range venuePositions {
		if localTickets[pos.Ticket] {
			continue
		}
		s.adoptPosition(platform, pos)
	}
	return nil
}

func (s *Service) closeOrphanRow(trade *db.Trade) {
	exit, ok := s.prices.Get(trade.Asset)
	if !ok || exit <= 0 {
		exit = trade.EntryPrice
	}
	pnl := (exit - trade.EntryPrice) * trade.Quantity
	if trade.Direction == "SELL" {
		pnl = -pnl
	}

	closed, err := s.store.CloseTrade(trade.ID, exit, pnl, "reconciled", time.Now())
	if err != nil {
		log.Printf("reconciliation: close orphan row %s: %v", trade.ID, err)
		return
	}
	if !closed {
		return
	}
	log.Printf("reconciliation: closed row %s, ticket %s gone at venue", trade.ID, trade.Ticket)
	if s.bus != nil {
		s.bus.Publish(events.TopicTradeClosed, events.TradeClosed{
			TradeID:    trade.ID,
			Platform:   trade.Platform,
			Asset:      trade.Asset,
			ExitPrice:  exit,
			ProfitLoss: pnl,
			Reason:     "reconciled",
			Timestamp:  time.Now(),
		})
	}
}

func (s *Service) adoptPosition(platform string, pos broker.Position) {
	trade := &db.Trade{
		ID:         uuid.NewString(),
		Platform:   platform,
		Asset:      pos.Asset,
		Direction:  pos.Direction,
		EntryPrice: pos.OpenPrice,
		Quantity:   pos.Quantity,
		Strategy:   "manual",
		Status:     "OPEN",
		Ticket:     pos.Ticket,
		OpenedAt:   pos.OpenedAt,
	}
	if err := s.store.CreateTrade(trade); err != nil {
		log.Printf("reconciliation: adopt ticket %s: %v", pos.Ticket, err)
		return
	}
	log.Printf("reconciliation: adopted venue position %s as trade %s", pos.Ticket, trade.ID)
	if s.bus != nil {
		s.bus.Publish(events.TopicRiskAlert, events.RiskAlert{
			Level:     "warning",
			Message:   fmt.Sprintf("adopted unrecorded %s position on %s, ticket %s", pos.Asset, platform, pos.Ticket),
			Timestamp: time.Now(),
		})
	}
}
