// Package strategy maps incoming strategy names to the canonical set,
// checks regime suitability, and picks fallbacks.
package strategy

import "strings"

// Regime classifies current market conditions.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeVolatile Regime = "volatile"
	RegimeQuiet    Regime = "quiet"
)

// NewsBlackout blocks all algorithmic strategies when set on the
// market snapshot handed to IsSuitable.
type Conditions struct {
	Regime       Regime
	NewsBlackout bool
}

// Canonical strategy names.
const (
	DayTrading    = "day_trading"
	SwingTrading  = "swing_trading"
	Scalping      = "scalping"
	MeanReversion = "mean_reversion"
	Momentum      = "momentum"
	Breakout      = "breakout"
	Grid          = "grid"
	Manual        = "manual"
	AIBot         = "ai_bot"
)

// aliases maps the spellings seen in signals and configs to canonical
// names. Keys are compared after lowercasing and trimming.
var aliases = map[string]string{
	"day_trading":    DayTrading,
	"daytrading":     DayTrading,
	"day":            DayTrading,
	"intraday":       DayTrading,
	"swing_trading":  SwingTrading,
	"swingtrading":   SwingTrading,
	"swing":          SwingTrading,
	"scalping":       Scalping,
	"scalp":          Scalping,
	"mean_reversion": MeanReversion,
	"meanreversion":  MeanReversion,
	"reversion":      MeanReversion,
	"momentum":       Momentum,
	"trend":          Momentum,
	"trending":       Momentum,
	"breakout":       Breakout,
	"break_out":      Breakout,
	"grid":           Grid,
	"grid_trading":   Grid,
	"manual":         Manual,
	"ai_bot":         AIBot,
	"aibot":          AIBot,
	"ai":             AIBot,
}

// fallbackPriority is the fixed order SelectAlternative walks when the
// requested strategy does not fit current conditions.
var fallbackPriority = []string{
	Momentum, SwingTrading, Breakout, DayTrading, MeanReversion, Scalping, Grid,
}

// Resolver normalizes names and selects strategies against market
// conditions. An optional enabled set (from strategy_instances)
// restricts what SelectAlternative may return.
type Resolver struct {
	enabled map[string]bool // nil means everything is enabled
}

// NewResolver builds a resolver. Pass nil to allow every canonical
// strategy.
func NewResolver(enabled map[string]bool) *Resolver {
	return &Resolver{enabled: enabled}
}

// Normalize maps name onto the canonical set. Unknown names are
// returned trimmed and lowercased with known=false; the caller decides
// how loudly to complain. Never coerces to a default.
func (r *Resolver) Normalize(name string) (canonical string, known bool) {
	cleaned := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[cleaned]; ok {
		return canonical, true
	}
	return cleaned, false
}

// IsSuitable reports whether a canonical strategy fits the given
// conditions. Manual entries bypass the regime check; nothing
// algorithmic trades through a news blackout.
func (r *Resolver) IsSuitable(canonical string, cond Conditions) bool {
	if canonical == Manual {
		return true
	}
	if cond.NewsBlackout {
		return false
	}
	switch canonical {
	case Momentum:
		return cond.Regime == RegimeTrending
	case Breakout:
		return cond.Regime == RegimeVolatile || cond.Regime == RegimeTrending
	case DayTrading:
		return cond.Regime == RegimeTrending || cond.Regime == RegimeVolatile
	case SwingTrading:
		return cond.Regime == RegimeTrending || cond.Regime == RegimeRanging
	case MeanReversion:
		return cond.Regime == RegimeRanging
	case Scalping:
		return cond.Regime == RegimeQuiet
	case Grid:
		return cond.Regime == RegimeRanging
	case AIBot:
		return true
	default:
		return false
	}
}

// SelectAlternative walks the fixed priority order and returns the
// first enabled strategy suitable for the conditions. ok is false when
// nothing fits.
func (r *Resolver) SelectAlternative(cond Conditions) (name string, ok bool) {
	for _, candidate := range fallbackPriority {
		if r.enabled != nil && !r.enabled[candidate] {
			continue
		}
		if r.IsSuitable(candidate, cond) {
			return candidate, true
		}
	}
	return "", false
}

// Resolve is the full pipeline: normalize the requested name, keep it
// when suitable, otherwise fall back. The returned known flag reports
// whether the requested name was recognized at all.
func (r *Resolver) Resolve(requested string, cond Conditions) (name string, known, ok bool) {
	canonical, known := r.Normalize(requested)
	if known && r.IsSuitable(canonical, cond) {
		return canonical, known, true
	}
	if alt, found := r.SelectAlternative(cond); found {
		return alt, known, true
	}
	return canonical, known, false
}
