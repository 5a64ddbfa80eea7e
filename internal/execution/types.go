package execution

import (
	"time"

	"tradesentry/internal/strategy"
	"tradesentry/pkg/db"
)

// Outcome classifies how a trade attempt ended. Declined attempts are
// ordinary results, not errors; only infrastructure failures surface
// as Go errors.
type Outcome string

const (
	OutcomeOK                 Outcome = "OK"
	OutcomeBlockedByLock      Outcome = "BLOCKED_BY_LOCK"
	OutcomeBlockedByCooldown  Outcome = "BLOCKED_BY_COOLDOWN"
	OutcomeNoSuitableStrategy Outcome = "NO_SUITABLE_STRATEGY"
	OutcomeBrokerRejected     Outcome = "BROKER_REJECTED"
	OutcomePersistFailed      Outcome = "PERSIST_FAILED"
)

// Request is one trade attempt handed to the coordinator.
type Request struct {
	Platform   string
	Asset      string
	Direction  string // "BUY" or "SELL"
	Strategy   string // requested name, any spelling
	Confidence float64
	Conditions strategy.Conditions
}

// Result reports what the coordinator did with a request.
type Result struct {
	Outcome  Outcome
	Trade    *db.Trade // set only on OK and PERSIST_FAILED recovery data
	Strategy string    // canonical strategy actually used
	Detail   string
	Wait     time.Duration // remaining cooldown on BLOCKED_BY_COOLDOWN
	// Ambiguous marks a broker call that timed out with unknown
	// venue-side state. The reconciliation sweep resolves it.
	Ambiguous bool
}
