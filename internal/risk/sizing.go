package risk

import "math"

// Sizer computes lot sizes for one trading mode.
type Sizer struct {
	mode Mode
}

// NewSizer builds a sizer for the given mode.
func NewSizer(mode Mode) *Sizer {
	return &Sizer{mode: mode}
}

// Mode returns the configured mode.
func (s *Sizer) Mode() Mode { return s.mode }

// Lots sizes a position so the loss at the stop equals the configured
// risk fraction of balance. stopDistancePips is the distance between
// entry and stop in pips. The result is rounded down to the lot step
// and clamped to [MinLot, mode max]; inputs that cannot be sized
// return 0.
func (s *Sizer) Lots(balance, confidence, stopDistancePips float64, spec AssetSpec) float64 {
	if balance <= 0 || stopDistancePips <= 0 || spec.PipValue <= 0 {
		return 0
	}

	pct := riskPercent[s.mode][TierFor(confidence)]
	riskAmount := balance * pct
	lots := riskAmount / (stopDistancePips * spec.PipValue)

	lots = math.Floor(lots/lotStep) * lotStep
	if lots < MinLot {
		lots = MinLot
	}
	if limit := maxLots[s.mode]; lots > limit {
		lots = limit
	}
	return lots
}

// Protection is the stop-loss / take-profit pair for a new trade.
type Protection struct {
	StopLoss   float64
	TakeProfit float64
}

// ProtectionLevels derives SL/TP prices from the entry and the
// configured percentage offsets. Direction is "BUY" or "SELL".
func ProtectionLevels(entry float64, direction string, stopLossPct, takeProfitPct float64) Protection {
	if direction == "SELL" {
		return Protection{
			StopLoss:   entry * (1 + stopLossPct),
			TakeProfit: entry * (1 - takeProfitPct),
		}
	}
	return Protection{
		StopLoss:   entry * (1 - stopLossPct),
		TakeProfit: entry * (1 + takeProfitPct),
	}
}

// StopDistancePips converts the SL offset into pips for sizing.
func StopDistancePips(entry, stopLoss float64, spec AssetSpec) float64 {
	if spec.PipSize <= 0 {
		return 0
	}
	return math.Abs(entry-stopLoss) / spec.PipSize
}
