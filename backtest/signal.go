package backtest

const (
	minSignalIndex  = 20
	stopBufferPct   = 0.02
	rewardRiskRatio = 2.0
)

// GenerateSignal emits a trade only when the bar's pattern agrees with the
// trend of bars[:i+1]. Bars after i are never consulted.
func GenerateSignal(bars []Bar, i int) *Signal {
	if len(bars) < minSignalIndex || i < minSignalIndex || i >= len(bars) {
		return nil
	}
	pm, ok := DetectPattern(bars, i)
	if !ok {
		return nil
	}
	st := ClassifyStructure(bars[:i+1])
	bar := bars[i]

	switch {
	case pm.Bias == BiasBullish && st.Trend == TrendUp:
		entry := bar.Close
		stop := bar.Low * (1 - stopBufferPct)
		return validateSignal(&Signal{
			Direction:  DirectionLong,
			Entry:      entry,
			StopLoss:   stop,
			TakeProfit: entry + rewardRiskRatio*(entry-stop),
			Pattern:    pm.Pattern,
			Time:       bar.Time,
		})
	case pm.Bias == BiasBearish && st.Trend == TrendDown:
		entry := bar.Close
		stop := bar.High * (1 + stopBufferPct)
		return validateSignal(&Signal{
			Direction:  DirectionShort,
			Entry:      entry,
			StopLoss:   stop,
			TakeProfit: entry - rewardRiskRatio*(stop-entry),
			Pattern:    pm.Pattern,
			Time:       bar.Time,
		})
	}
	return nil
}

// validateSignal drops proposals whose levels are out of order, which only
// happens on non-positive prices.
func validateSignal(s *Signal) *Signal {
	switch s.Direction {
	case DirectionLong:
		if !(s.StopLoss < s.Entry && s.Entry < s.TakeProfit) {
			return nil
		}
	case DirectionShort:
		if !(s.TakeProfit < s.Entry && s.Entry < s.StopLoss) {
			return nil
		}
	default:
		return nil
	}
	return s
}
