package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tradesentry/internal/broker"
	"tradesentry/internal/cooldown"
	"tradesentry/internal/events"
	"tradesentry/internal/locking"
	"tradesentry/internal/risk"
	"tradesentry/internal/strategy"
	"tradesentry/pkg/cache"
	"tradesentry/pkg/db"
	"tradesentry/pkg/identity"
)

const reservationResource = "trade_slot"

// TradeStore is the slice of pkg/db the coordinator writes through.
type TradeStore interface {
	CreateTrade(t *db.Trade) error
	CloseTrade(id string, exitPrice, profitLoss float64, reason string, closedAt time.Time) (bool, error)
}

// Reservations is the cross-process advisory lock store. Nil disables
// cross-process serialization (single-worker deployments).
type Reservations interface {
	Reserve(resourceType, resourceID, owner string, ttl time.Duration) (bool, error)
	Release(resourceType, resourceID, owner string) error
}

// Metrics receives latency and outcome observations. Implemented by
// the monitor package; kept as an interface so tests can drop it.
type Metrics interface {
	ObserveExecLatency(d time.Duration)
	ObserveBrokerLatency(d time.Duration)
	IncOutcome(outcome string)
}

// Config carries the coordinator's tunables.
type Config struct {
	ReservationTTL time.Duration
	SubmitTimeout  time.Duration
	StopLossPct    float64
	TakeProfitPct  float64
	AssetSpecs     map[string]risk.AssetSpec
}

// Coordinator runs the trade entry state machine: lock, reserve,
// cooldown, strategy resolution, sizing, submit, persist, release.
// Exactly one attempt per (platform, asset) can be past the lock at a
// time; everything else reports BLOCKED_BY_LOCK immediately.
type Coordinator struct {
	cfg          Config
	locks        *locking.Registry
	reservations Reservations
	cooldowns    *cooldown.Tracker
	resolver     *strategy.Resolver
	sizer        *risk.Sizer
	gateways     map[string]broker.Gateway
	store        TradeStore
	prices       *cache.PriceCache
	bus          *events.Bus
	metrics      Metrics
	workerID     string
	now          func() time.Time
}

// NewCoordinator wires the state machine. bus and metrics may be nil.
func NewCoordinator(cfg Config, locks *locking.Registry, reservations Reservations,
	cooldowns *cooldown.Tracker, resolver *strategy.Resolver, sizer *risk.Sizer,
	gateways map[string]broker.Gateway, store TradeStore, prices *cache.PriceCache,
	bus *events.Bus, metrics Metrics) *Coordinator {
	return &Coordinator{
		cfg:          cfg,
		locks:        locks,
		reservations: reservations,
		cooldowns:    cooldowns,
		resolver:     resolver,
		sizer:        sizer,
		gateways:     gateways,
		store:        store,
		prices:       prices,
		bus:          bus,
		metrics:      metrics,
		workerID:     identity.WorkerID(),
		now:          time.Now,
	}
}

// Execute runs one trade attempt end to end and always returns a
// structured Result. The error return is reserved for infrastructure
// faults that left no decision at all.
func (c *Coordinator) Execute(ctx context.Context, req Request) (Result, error) {
	start := c.now()
	res := c.execute(ctx, req)
	if c.metrics != nil {
		c.metrics.ObserveExecLatency(c.now().Sub(start))
		c.metrics.IncOutcome(string(res.Outcome))
	}
	c.logOutcome(req, res)
	c.publishOutcome(req, res)
	return res, nil
}

func (c *Coordinator) execute(ctx context.Context, req Request) Result {
	key := req.Platform + "|" + req.Asset

	// In-process lock first: cheap, immediate, no waiting. A held
	// lock means another attempt is mid-flight for this key.
	release, ok := c.locks.TryAcquire(key)
	if !ok {
		return Result{Outcome: OutcomeBlockedByLock, Detail: "attempt in flight"}
	}
	defer release()

	// Cross-process reservation. Store errors fail closed: better to
	// skip a trade than to double-enter against another worker.
	if c.reservations != nil {
		owner := identity.TaskOwner(c.workerID)
		got, err := c.reservations.Reserve(reservationResource, key, owner, c.cfg.ReservationTTL)
		if err != nil {
			log.Printf("execution: reservation store error for %s, failing closed: %v", key, err)
			return Result{Outcome: OutcomeBlockedByLock, Detail: "reservation store unavailable"}
		}
		if !got {
			return Result{Outcome: OutcomeBlockedByLock, Detail: "reserved by another worker"}
		}
		defer func() {
			if err := c.reservations.Release(reservationResource, key, owner); err != nil {
				log.Printf("execution: release reservation %s: %v", key, err)
			}
		}()
	}

	if allowed, wait := c.cooldowns.Allowed(req.Platform, req.Asset); !allowed {
		return Result{Outcome: OutcomeBlockedByCooldown, Wait: wait,
			Detail: fmt.Sprintf("cooldown active, %s remaining", wait.Round(time.Second))}
	}

	name, known, ok := c.resolver.Resolve(req.Strategy, req.Conditions)
	if !known {
		log.Printf("execution: unrecognized strategy %q requested for %s", req.Strategy, key)
	}
	if !ok {
		return Result{Outcome: OutcomeNoSuitableStrategy, Strategy: name,
			Detail: fmt.Sprintf("no strategy fits regime %s", req.Conditions.Regime)}
	}

	gateway, found := c.gateways[req.Platform]
	if !found {
		return Result{Outcome: OutcomeBrokerRejected, Strategy: name,
			Detail: fmt.Sprintf("unknown platform %s", req.Platform)}
	}

	price, fresh := c.prices.Get(req.Asset)
	if !fresh || price <= 0 {
		return Result{Outcome: OutcomeBrokerRejected, Strategy: name,
			Detail: "no market price for " + req.Asset}
	}

	account, err := gateway.AccountInfo(ctx)
	if err != nil {
		return Result{Outcome: OutcomeBrokerRejected, Strategy: name,
			Detail: fmt.Sprintf("account info: %v", err)}
	}

	spec, haveSpec := c.cfg.AssetSpecs[req.Asset]
	if !haveSpec {
		return Result{Outcome: OutcomeBrokerRejected, Strategy: name,
			Detail: "no asset spec for " + req.Asset}
	}

	protection := risk.ProtectionLevels(price, req.Direction, c.cfg.StopLossPct, c.cfg.TakeProfitPct)
	stopPips := risk.StopDistancePips(price, protection.StopLoss, spec)
	lots := c.sizer.Lots(account.Balance, req.Confidence, stopPips, spec)
	if lots <= 0 {
		return Result{Outcome: OutcomeBrokerRejected, Strategy: name,
			Detail: "position unsizeable for current balance"}
	}

	submitCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	brokerStart := c.now()
	fill, err := gateway.SubmitOrder(submitCtx, broker.OrderRequest{
		Platform:  req.Platform,
		Asset:     req.Asset,
		Direction: req.Direction,
		Quantity:  lots,
		Price:     price,
	})
	if c.metrics != nil {
		c.metrics.ObserveBrokerLatency(c.now().Sub(brokerStart))
	}
	if err != nil {
		ambiguous := errors.Is(err, context.DeadlineExceeded)
		detail := fmt.Sprintf("submit: %v", err)
		if ambiguous {
			detail = "submit timed out, venue state unknown"
		}
		return Result{Outcome: OutcomeBrokerRejected, Strategy: name,
			Detail: detail, Ambiguous: ambiguous}
	}

	// The venue accepted: the cooldown clock starts now, even if the
	// local write below fails.
	c.cooldowns.RecordTrade(req.Platform, req.Asset)

	trade := &db.Trade{
		ID:         uuid.NewString(),
		Platform:   req.Platform,
		Asset:      req.Asset,
		Direction:  req.Direction,
		EntryPrice: fill.FillPrice,
		Quantity:   lots,
		Strategy:   name,
		Status:     "OPEN",
		StopLoss:   protection.StopLoss,
		TakeProfit: protection.TakeProfit,
		Confidence: req.Confidence,
		Ticket:     fill.Ticket,
		OpenedAt:   fill.FilledAt,
	}
	if err := c.persistWithRetry(trade); err != nil {
		log.Printf("execution: trade %s live at venue (ticket %s) but not persisted: %v",
			trade.ID, trade.Ticket, err)
		if c.bus != nil {
			c.bus.Publish(events.TopicRiskAlert, events.RiskAlert{
				Level:     "critical",
				Message:   fmt.Sprintf("unpersisted position %s on %s, ticket %s", req.Asset, req.Platform, fill.Ticket),
				Timestamp: c.now(),
			})
		}
		return Result{Outcome: OutcomePersistFailed, Strategy: name, Trade: trade,
			Detail: "venue position live, local record failed"}
	}

	if c.bus != nil {
		c.bus.Publish(events.TopicTradeOpened, events.TradeOpened{
			TradeID:    trade.ID,
			Platform:   trade.Platform,
			Asset:      trade.Asset,
			Direction:  trade.Direction,
			EntryPrice: trade.EntryPrice,
			Quantity:   trade.Quantity,
			Strategy:   trade.Strategy,
			Timestamp:  trade.OpenedAt,
		})
	}
	return Result{Outcome: OutcomeOK, Strategy: name, Trade: trade}
}

func (c *Coordinator) persistWithRetry(trade *db.Trade) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = c.store.CreateTrade(trade); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	return err
}

// Close exits an open trade at the given price. It serializes with
// entries through the same lock and reservation, waiting rather than
// failing: a closure must eventually run.
func (c *Coordinator) Close(ctx context.Context, trade *db.Trade, price float64, reason string) error {
	key := trade.Platform + "|" + trade.Asset

	release, err := c.locks.Acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire lock for close %s: %w", trade.ID, err)
	}
	defer release()

	if c.reservations != nil {
		owner := identity.TaskOwner(c.workerID)
		if err := c.reserveBlocking(ctx, key, owner); err != nil {
			return fmt.Errorf("reserve for close %s: %w", trade.ID, err)
		}
		defer func() {
			if err := c.reservations.Release(reservationResource, key, owner); err != nil {
				log.Printf("execution: release reservation %s: %v", key, err)
			}
		}()
	}

	if trade.Ticket != "" {
		gateway, found := c.gateways[trade.Platform]
		if !found {
			return fmt.Errorf("close %s: unknown platform %s", trade.ID, trade.Platform)
		}
		if _, err := gateway.ClosePosition(ctx, trade.Ticket, price); err != nil {
			// A ticket the venue no longer knows is already flat;
			// fall through and close the local row.
			if !errors.Is(err, broker.ErrRejected) {
				return fmt.Errorf("close %s at venue: %w", trade.ID, err)
			}
			log.Printf("execution: ticket %s already gone at venue, closing local row", trade.Ticket)
		}
	}

	pnl := (price - trade.EntryPrice) * trade.Quantity
	if trade.Direction == "SELL" {
		pnl = -pnl
	}

	closed, err := c.store.CloseTrade(trade.ID, price, pnl, reason, c.now())
	if err != nil {
		return fmt.Errorf("persist close %s: %w", trade.ID, err)
	}
	if !closed {
		// Someone else closed it first; their exit stands.
		return nil
	}

	if c.bus != nil {
		c.bus.Publish(events.TopicTradeClosed, events.TradeClosed{
			TradeID:    trade.ID,
			Platform:   trade.Platform,
			Asset:      trade.Asset,
			ExitPrice:  price,
			ProfitLoss: pnl,
			Reason:     reason,
			Timestamp:  c.now(),
		})
	}
	log.Printf("execution: closed %s %s/%s at %.5f (%s, pnl %.2f)",
		trade.ID, trade.Platform, trade.Asset, price, reason, pnl)
	return nil
}

func (c *Coordinator) reserveBlocking(ctx context.Context, key, owner string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		got, err := c.reservations.Reserve(reservationResource, key, owner, c.cfg.ReservationTTL)
		if err != nil {
			return err
		}
		if got {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) logOutcome(req Request, res Result) {
	switch res.Outcome {
	case OutcomeOK:
		log.Printf("execution: opened %s %s/%s %s qty %.2f strategy %s",
			res.Trade.ID, req.Platform, req.Asset, req.Direction, res.Trade.Quantity, res.Strategy)
	case OutcomeBlockedByLock, OutcomeBlockedByCooldown, OutcomeNoSuitableStrategy:
		// Declines are routine; keep them distinguishable from faults.
		log.Printf("execution: declined %s/%s: %s (%s)", req.Platform, req.Asset, res.Outcome, res.Detail)
	default:
		log.Printf("execution: failed %s/%s: %s (%s)", req.Platform, req.Asset, res.Outcome, res.Detail)
	}
}

func (c *Coordinator) publishOutcome(req Request, res Result) {
	if c.bus == nil || res.Outcome == OutcomeOK {
		return
	}
	c.bus.Publish(events.TopicTradeBlock, events.TradeBlocked{
		Platform:  req.Platform,
		Asset:     req.Asset,
		Outcome:   string(res.Outcome),
		Detail:    res.Detail,
		Timestamp: c.now(),
	})
}
