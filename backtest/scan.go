package backtest

import "time"

// ScanResult is the state of a series as of its latest bar.
type ScanResult struct {
	Bars      int            `json:"bars"`
	LastTime  time.Time      `json:"last_time"`
	LastClose float64        `json:"last_close"`
	Structure StructureState `json:"structure"`
	Pattern   *PatternMatch  `json:"pattern,omitempty"`
	Signal    *Signal        `json:"signal,omitempty"`
}

// Scan classifies the full series and evaluates the strategy on the last bar.
// It shares the detectors with Simulate but is not part of the backtest fold.
func Scan(bars []Bar) ScanResult {
	out := ScanResult{
		Bars:      len(bars),
		Structure: ClassifyStructure(bars),
	}
	if len(bars) == 0 {
		return out
	}
	last := len(bars) - 1
	out.LastTime = bars[last].Time
	out.LastClose = bars[last].Close
	if pm, ok := DetectPattern(bars, last); ok {
		out.Pattern = &pm
	}
	out.Signal = GenerateSignal(bars, last)
	return out
}
