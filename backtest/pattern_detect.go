package backtest

import "math"

const (
	wickBodyMultiple  = 2.0 // long wick must exceed 2x body
	shortWickBodyFrac = 0.3 // opposite wick must stay under 0.3x body
	engulfBodyRatio   = 1.2
)

type candleParts struct {
	body  float64
	upper float64
	lower float64
}

func split(b Bar) candleParts {
	return candleParts{
		body:  math.Abs(b.Close - b.Open),
		upper: b.High - math.Max(b.Open, b.Close),
		lower: math.Min(b.Open, b.Close) - b.Low,
	}
}

// All comparisons are multiplicative so a zero body never divides.
func matchHammer(b Bar, cp candleParts) bool {
	return cp.lower > wickBodyMultiple*cp.body && cp.upper < shortWickBodyFrac*cp.body && b.Bullish()
}

func matchShootingStar(b Bar, cp candleParts) bool {
	return cp.upper > wickBodyMultiple*cp.body && cp.lower < shortWickBodyFrac*cp.body && b.Bearish()
}

func matchBullEngulf(prev, cur Bar, prevBody, body float64) bool {
	return cur.Bullish() && prev.Bearish() && body > engulfBodyRatio*prevBody
}

// Previous bar only has to be "not bearish": a flat predecessor qualifies.
func matchBearEngulf(prev, cur Bar, prevBody, body float64) bool {
	return cur.Bearish() && !prev.Bearish() && body > engulfBodyRatio*prevBody
}

// DetectPattern classifies bars[i] using its predecessor. Rules are tried in a
// fixed order and the first match wins. Needs i >= 2.
func DetectPattern(bars []Bar, i int) (PatternMatch, bool) {
	if i < 2 || i >= len(bars) {
		return PatternMatch{}, false
	}
	cur := bars[i]
	prev := bars[i-1]
	cp := split(cur)

	if matchHammer(cur, cp) {
		return PatternMatch{Pattern: PatternHammer, Bias: BiasBullish}, true
	}
	if matchShootingStar(cur, cp) {
		return PatternMatch{Pattern: PatternShootingStar, Bias: BiasBearish}, true
	}

	prevBody := math.Abs(prev.Close - prev.Open)
	if matchBullEngulf(prev, cur, prevBody, cp.body) {
		return PatternMatch{Pattern: PatternBullishEngulfing, Bias: BiasBullish}, true
	}
	if matchBearEngulf(prev, cur, prevBody, cp.body) {
		return PatternMatch{Pattern: PatternBearishEngulfing, Bias: BiasBearish}, true
	}
	return PatternMatch{}, false
}
