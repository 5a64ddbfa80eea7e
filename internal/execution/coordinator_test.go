package execution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tradesentry/internal/broker"
	"tradesentry/internal/cooldown"
	"tradesentry/internal/locking"
	"tradesentry/internal/risk"
	"tradesentry/internal/strategy"
	"tradesentry/pkg/cache"
	"tradesentry/pkg/db"
)

var testSpecs = map[string]risk.AssetSpec{
	"XAUUSD": {PipSize: 0.1, PipValue: 10},
	"EURUSD": {PipSize: 0.0001, PipValue: 10},
}

type fixture struct {
	database *db.Database
	prices   *cache.PriceCache
	coord    *Coordinator
}

func newFixture(t *testing.T, gateway broker.Gateway, store TradeStore) *fixture {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.ApplyMigrations(); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if store == nil {
		store = database
	}

	prices := cache.NewPriceCache()
	prices.Set("XAUUSD", 2000)
	prices.Set("EURUSD", 1.1)

	cfg := Config{
		ReservationTTL: 30 * time.Second,
		SubmitTimeout:  time.Second,
		StopLossPct:    0.02,
		TakeProfitPct:  0.04,
		AssetSpecs:     testSpecs,
	}
	coord := NewCoordinator(cfg,
		locking.NewRegistry(),
		db.NewReservationStore(database),
		cooldown.NewTracker(time.Hour, database),
		strategy.NewResolver(nil),
		risk.NewSizer(risk.ModeStandard),
		map[string]broker.Gateway{"MT5": gateway},
		store, prices, nil, nil)
	return &fixture{database: database, prices: prices, coord: coord}
}

func trendingRequest(asset string) Request {
	return Request{
		Platform:   "MT5",
		Asset:      asset,
		Direction:  "BUY",
		Strategy:   "momentum",
		Confidence: 0.7,
		Conditions: strategy.Conditions{Regime: strategy.RegimeTrending},
	}
}

// trackingGateway wraps the paper venue and records how many submits
// run at once.
type trackingGateway struct {
	*broker.PaperGateway
	inFlight int64
	maxSeen  int64
}

func (g *trackingGateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	n := atomic.AddInt64(&g.inFlight, 1)
	for {
		seen := atomic.LoadInt64(&g.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt64(&g.maxSeen, seen, n) {
			break
		}
	}
	defer atomic.AddInt64(&g.inFlight, -1)
	return g.PaperGateway.SubmitOrder(ctx, req)
}

func newTracking(latency time.Duration) *trackingGateway {
	return &trackingGateway{PaperGateway: broker.NewPaperGateway(broker.PaperConfig{
		Platform:       "MT5",
		InitialBalance: 10000,
		Latency:        latency,
	})}
}

func TestExecuteOpensTrade(t *testing.T) {
	f := newFixture(t, newTracking(0), nil)

	res, err := f.coord.Execute(context.Background(), trendingRequest("XAUUSD"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("outcome = %s (%s)", res.Outcome, res.Detail)
	}
	if res.Strategy != strategy.Momentum {
		t.Fatalf("strategy = %s", res.Strategy)
	}

	open, _ := f.database.ListOpenTrades()
	if len(open) != 1 {
		t.Fatalf("open rows = %d, want 1", len(open))
	}
	got := open[0]
	if got.StopLoss >= got.EntryPrice || got.TakeProfit <= got.EntryPrice {
		t.Fatalf("BUY protection inverted: entry %v sl %v tp %v",
			got.EntryPrice, got.StopLoss, got.TakeProfit)
	}
	if got.Quantity <= 0 {
		t.Fatalf("quantity = %v", got.Quantity)
	}
}

func TestConcurrentAttemptsSameKeyOneWinner(t *testing.T) {
	f := newFixture(t, newTracking(50*time.Millisecond), nil)

	const attempts = 8
	results := make([]Result, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], _ = f.coord.Execute(context.Background(), trendingRequest("XAUUSD"))
		}(i)
	}
	close(start)
	wg.Wait()

	oks := 0
	for _, r := range results {
		switch r.Outcome {
		case OutcomeOK:
			oks++
		case OutcomeBlockedByLock, OutcomeBlockedByCooldown:
		default:
			t.Fatalf("unexpected outcome %s (%s)", r.Outcome, r.Detail)
		}
	}
	if oks != 1 {
		t.Fatalf("winners = %d, want exactly 1", oks)
	}

	open, _ := f.database.ListOpenTrades()
	if len(open) != 1 {
		t.Fatalf("open rows = %d, want 1", len(open))
	}
}

func TestDistinctKeysRunConcurrently(t *testing.T) {
	gw := newTracking(50 * time.Millisecond)
	f := newFixture(t, gw, nil)

	var wg sync.WaitGroup
	var res [2]Result
	for i, asset := range []string{"XAUUSD", "EURUSD"} {
		wg.Add(1)
		go func(i int, asset string) {
			defer wg.Done()
			res[i], _ = f.coord.Execute(context.Background(), trendingRequest(asset))
		}(i, asset)
	}
	wg.Wait()

	for i, r := range res {
		if r.Outcome != OutcomeOK {
			t.Fatalf("attempt %d outcome = %s (%s)", i, r.Outcome, r.Detail)
		}
	}
	if atomic.LoadInt64(&gw.maxSeen) != 2 {
		t.Fatalf("max concurrent submits = %d, want 2", gw.maxSeen)
	}
}

func TestCooldownBlocksSecondEntry(t *testing.T) {
	f := newFixture(t, newTracking(0), nil)
	ctx := context.Background()

	if res, _ := f.coord.Execute(ctx, trendingRequest("XAUUSD")); res.Outcome != OutcomeOK {
		t.Fatalf("first attempt = %s", res.Outcome)
	}

	res, _ := f.coord.Execute(ctx, trendingRequest("XAUUSD"))
	if res.Outcome != OutcomeBlockedByCooldown {
		t.Fatalf("second attempt = %s, want BLOCKED_BY_COOLDOWN", res.Outcome)
	}
	if res.Wait <= 0 {
		t.Fatal("cooldown block carried no remaining wait")
	}

	// The block itself proves the lock from attempt one was released;
	// and a blocked attempt must leave no row behind.
	if open, _ := f.database.ListOpenTrades(); len(open) != 1 {
		t.Fatalf("open rows = %d, want 1", len(open))
	}
}

func TestNoSuitableStrategyLeavesNoTrace(t *testing.T) {
	f := newFixture(t, newTracking(0), nil)

	req := trendingRequest("XAUUSD")
	req.Conditions = strategy.Conditions{Regime: strategy.RegimeTrending, NewsBlackout: true}

	res, _ := f.coord.Execute(context.Background(), req)
	if res.Outcome != OutcomeNoSuitableStrategy {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	if open, _ := f.database.ListOpenTrades(); len(open) != 0 {
		t.Fatal("declined attempt wrote a trade row")
	}
	// Declines never start the cooldown clock.
	if res, _ := f.coord.Execute(context.Background(), trendingRequest("XAUUSD")); res.Outcome != OutcomeOK {
		t.Fatalf("follow-up attempt = %s, want OK", res.Outcome)
	}
}

type slowGateway struct{ broker.Gateway }

func (g slowGateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSubmitTimeoutIsAmbiguousRejection(t *testing.T) {
	f := newFixture(t, slowGateway{newTracking(0)}, nil)
	f.coord.cfg.SubmitTimeout = 50 * time.Millisecond

	res, _ := f.coord.Execute(context.Background(), trendingRequest("XAUUSD"))
	if res.Outcome != OutcomeBrokerRejected {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if !res.Ambiguous {
		t.Fatal("timeout not flagged ambiguous")
	}
	if open, _ := f.database.ListOpenTrades(); len(open) != 0 {
		t.Fatal("timed-out attempt wrote a trade row")
	}
}

type failingStore struct{ TradeStore }

func (failingStore) CreateTrade(*db.Trade) error { return errors.New("disk full") }

func TestPersistFailedAfterLiveFill(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := database.ApplyMigrations(); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	f := newFixture(t, newTracking(0), failingStore{database})

	res, _ := f.coord.Execute(context.Background(), trendingRequest("XAUUSD"))
	if res.Outcome != OutcomePersistFailed {
		t.Fatalf("outcome = %s (%s)", res.Outcome, res.Detail)
	}
	if res.Trade == nil || res.Trade.Ticket == "" {
		t.Fatal("persist failure must still report the live ticket")
	}

	// The venue holds a position, so the cooldown clock must run.
	res2, _ := f.coord.Execute(context.Background(), trendingRequest("XAUUSD"))
	if res2.Outcome != OutcomeBlockedByCooldown {
		t.Fatalf("follow-up = %s, want BLOCKED_BY_COOLDOWN", res2.Outcome)
	}
}

func TestCloseTradeRoundTrip(t *testing.T) {
	f := newFixture(t, newTracking(0), nil)
	ctx := context.Background()

	res, _ := f.coord.Execute(ctx, trendingRequest("XAUUSD"))
	if res.Outcome != OutcomeOK {
		t.Fatalf("open = %s", res.Outcome)
	}

	exit := res.Trade.EntryPrice + 10
	if err := f.coord.Close(ctx, res.Trade, exit, "take_profit"); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := f.database.GetTrade(res.Trade.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "CLOSED" || got.ProfitLoss == nil {
		t.Fatalf("trade after close = %+v", got)
	}
	wantPnL := (exit - res.Trade.EntryPrice) * res.Trade.Quantity
	if *got.ProfitLoss != wantPnL {
		t.Fatalf("pnl = %v, want %v", *got.ProfitLoss, wantPnL)
	}

	// Second close is a no-op, not an error.
	if err := f.coord.Close(ctx, res.Trade, exit-5, "stop_loss"); err == nil {
		refetched, _ := f.database.GetTrade(res.Trade.ID)
		if *refetched.ExitPrice != exit {
			t.Fatal("second close overwrote the recorded exit")
		}
	}
}

func TestReservationBlocksOtherWorker(t *testing.T) {
	f := newFixture(t, newTracking(0), nil)

	// A foreign worker holds the reservation for this key.
	store := db.NewReservationStore(f.database)
	if ok, _ := store.Reserve("trade_slot", "MT5|XAUUSD", "other-machine/1/abc", time.Minute); !ok {
		t.Fatal("seed reservation failed")
	}

	res, _ := f.coord.Execute(context.Background(), trendingRequest("XAUUSD"))
	if res.Outcome != OutcomeBlockedByLock {
		t.Fatalf("outcome = %s, want BLOCKED_BY_LOCK", res.Outcome)
	}
	if open, _ := f.database.ListOpenTrades(); len(open) != 0 {
		t.Fatal("blocked attempt wrote a trade row")
	}
}
