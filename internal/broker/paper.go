package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// PaperConfig tunes the simulated venue.
type PaperConfig struct {
	Platform       string
	InitialBalance float64
	Latency        time.Duration // per-call artificial delay
	SlippageBps    float64       // fill drift against the reference price
	SubmitPerSec   rate.Limit    // venue order-rate limit, 0 disables
}

// PaperGateway fills orders against the caller-supplied reference
// price with configurable latency and slippage. Deterministic apart
// from tickets, so tests can assert on fills.
type PaperGateway struct {
	cfg     PaperConfig
	limiter *rate.Limiter

	mu        sync.Mutex
	balance   float64
	positions map[string]Position
}

// NewPaperGateway builds a simulated venue.
func NewPaperGateway(cfg PaperConfig) *PaperGateway {
	g := &PaperGateway{
		cfg:       cfg,
		balance:   cfg.InitialBalance,
		positions: make(map[string]Position),
	}
	if cfg.SubmitPerSec > 0 {
		g.limiter = rate.NewLimiter(cfg.SubmitPerSec, 1)
	}
	return g
}

func (g *PaperGateway) delay(ctx context.Context) error {
	if g.cfg.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(g.cfg.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *PaperGateway) slip(price float64, direction string) float64 {
	drift := price * g.cfg.SlippageBps / 10000
	if direction == "SELL" {
		return price - drift
	}
	return price + drift
}

// SubmitOrder fills the request at the reference price plus slippage.
func (g *PaperGateway) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := g.delay(ctx); err != nil {
		return nil, err
	}

	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: non-positive quantity %v", ErrRejected, req.Quantity)
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("%w: no reference price for %s", ErrRejected, req.Asset)
	}

	fill := &OrderResult{
		Ticket:    uuid.NewString(),
		FillPrice: g.slip(req.Price, req.Direction),
		FilledAt:  time.Now(),
	}

	g.mu.Lock()
	g.positions[fill.Ticket] = Position{
		Ticket:    fill.Ticket,
		Platform:  req.Platform,
		Asset:     req.Asset,
		Direction: req.Direction,
		Quantity:  req.Quantity,
		OpenPrice: fill.FillPrice,
		OpenedAt:  fill.FilledAt,
	}
	g.mu.Unlock()

	return fill, nil
}

// ClosePosition removes the position and settles its PnL into the
// simulated balance.
func (g *PaperGateway) ClosePosition(ctx context.Context, ticket string, price float64) (*OrderResult, error) {
	if err := g.delay(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[ticket]
	if !ok {
		return nil, fmt.Errorf("%w: unknown ticket %s", ErrRejected, ticket)
	}
	delete(g.positions, ticket)

	exit := g.slip(price, opposite(pos.Direction))
	pnl := (exit - pos.OpenPrice) * pos.Quantity
	if pos.Direction == "SELL" {
		pnl = -pnl
	}
	g.balance += pnl

	return &OrderResult{Ticket: ticket, FillPrice: exit, FilledAt: time.Now()}, nil
}

// OpenPositions snapshots the simulated book.
func (g *PaperGateway) OpenPositions(ctx context.Context) ([]Position, error) {
	if err := g.delay(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Position, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, p)
	}
	return out, nil
}

// AccountInfo reports the simulated balance.
func (g *PaperGateway) AccountInfo(ctx context.Context) (*Account, error) {
	if err := g.delay(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &Account{Platform: g.cfg.Platform, Balance: g.balance, Equity: g.balance}, nil
}

func opposite(direction string) string {
	if direction == "BUY" {
		return "SELL"
	}
	return "BUY"
}
