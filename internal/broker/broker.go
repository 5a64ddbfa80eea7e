// Package broker defines the gateway contract between the bot and a
// trading venue, plus the paper implementation used for dry runs and
// tests. Real venue clients live outside this module and plug in
// behind the same interface.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrRejected marks an order the venue refused. Wrap it with the venue
// reason so callers can branch on the class and log the detail.
var ErrRejected = errors.New("broker: order rejected")

// OrderRequest is a submit instruction.
type OrderRequest struct {
	Platform  string
	Asset     string
	Direction string // "BUY" or "SELL"
	Quantity  float64
	Price     float64 // reference price from the feed
}

// OrderResult is a confirmed fill.
type OrderResult struct {
	Ticket    string
	FillPrice float64
	FilledAt  time.Time
}

// Position is one open position as the venue sees it.
type Position struct {
	Ticket    string
	Platform  string
	Asset     string
	Direction string
	Quantity  float64
	OpenPrice float64
	OpenedAt  time.Time
}

// Account is a balance snapshot.
type Account struct {
	Platform string
	Balance  float64
	Equity   float64
}

// Gateway is what the coordinator, monitor and reconciliation sweep
// need from a venue. Every call honors ctx; a deadline hit leaves the
// order state unknown and callers must treat it as ambiguous.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	ClosePosition(ctx context.Context, ticket string, price float64) (*OrderResult, error)
	OpenPositions(ctx context.Context) ([]Position, error)
	AccountInfo(ctx context.Context) (*Account, error)
}
