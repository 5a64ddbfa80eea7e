// Package risk turns account balance, trading mode and signal
// confidence into position sizes and protection levels.
package risk

// Mode is the operator-selected risk appetite.
type Mode string

const (
	ModeConservative Mode = "conservative"
	ModeStandard     Mode = "standard"
	ModeAggressive   Mode = "aggressive"
)

// ConfidenceTier buckets signal confidence.
type ConfidenceTier int

const (
	TierLow ConfidenceTier = iota
	TierMedium
	TierHigh
)

// TierFor buckets a confidence score in [0, 1].
func TierFor(confidence float64) ConfidenceTier {
	switch {
	case confidence > 0.85:
		return TierHigh
	case confidence >= 0.60:
		return TierMedium
	default:
		return TierLow
	}
}

// riskPercent maps mode and tier to the fraction of balance risked on
// one trade.
var riskPercent = map[Mode][3]float64{
	ModeConservative: {0.0025, 0.005, 0.0075},
	ModeStandard:     {0.005, 0.01, 0.015},
	ModeAggressive:   {0.01, 0.02, 0.03},
}

// maxLots caps position size per mode. MinLot is the venue floor.
var maxLots = map[Mode]float64{
	ModeConservative: 0.5,
	ModeStandard:     2.0,
	ModeAggressive:   5.0,
}

const (
	MinLot  = 0.01
	lotStep = 0.01
)

// ParseMode maps a config string to a Mode, defaulting to standard.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeConservative, ModeAggressive:
		return Mode(s)
	default:
		return ModeStandard
	}
}

// AssetSpec carries the per-asset constants sizing needs.
type AssetSpec struct {
	PipSize  float64 // price distance of one pip
	PipValue float64 // account-currency value of one pip per lot
}
