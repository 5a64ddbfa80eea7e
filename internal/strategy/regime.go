package strategy

import (
	"tradesentry/internal/indicators"
)

// Regime detection thresholds. ADX above 25 marks a trend; ATR as a
// fraction of price separates volatile from quiet tape.
const (
	adxTrendThreshold = 25.0
	atrVolatilePct    = 0.008
	atrQuietPct       = 0.002
	regimePeriod      = 14
)

// DetectRegime classifies recent candles into one regime. It is a pure
// function of the series so repeated calls on the same data agree.
func DetectRegime(candles []indicators.Candle) Regime {
	if len(candles) < 2*regimePeriod+1 {
		return RegimeQuiet
	}

	last := candles[len(candles)-1].Close
	if last <= 0 {
		return RegimeQuiet
	}

	adx := indicators.ADX(candles, regimePeriod)
	atrPct := indicators.ATR(candles, regimePeriod) / last

	switch {
	case adx >= adxTrendThreshold:
		return RegimeTrending
	case atrPct >= atrVolatilePct:
		return RegimeVolatile
	case atrPct <= atrQuietPct:
		return RegimeQuiet
	default:
		return RegimeRanging
	}
}
