package backtest

const (
	structureWindow = 20
	structureAnchor = 5
)

// ClassifyStructure compares the mean high/low of the first and last five bars
// of the trailing 20-bar window. Fewer than 20 bars is always RANGING.
func ClassifyStructure(bars []Bar) StructureState {
	if len(bars) < structureWindow {
		return StructureState{Trend: TrendRanging}
	}
	window := bars[len(bars)-structureWindow:]

	earlierHigh, earlierLow := anchorMeans(window[:structureAnchor])
	recentHigh, recentLow := anchorMeans(window[structureWindow-structureAnchor:])

	switch {
	case recentHigh > earlierHigh && recentLow > earlierLow:
		return StructureState{Trend: TrendUp, BreakOfStructure: true}
	case recentHigh < earlierHigh && recentLow < earlierLow:
		return StructureState{Trend: TrendDown, BreakOfStructure: true}
	default:
		return StructureState{Trend: TrendRanging}
	}
}

func anchorMeans(bars []Bar) (high, low float64) {
	for _, b := range bars {
		high += b.High
		low += b.Low
	}
	n := float64(len(bars))
	return high / n, low / n
}
