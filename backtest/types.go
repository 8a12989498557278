package backtest

import "time"

type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

func (b Bar) Bullish() bool { return b.Close > b.Open }
func (b Bar) Bearish() bool { return b.Close < b.Open }

type PatternID string

const (
	PatternHammer           PatternID = "HAMMER"
	PatternShootingStar     PatternID = "SHOOTING_STAR"
	PatternBullishEngulfing PatternID = "BULLISH_ENGULFING"
	PatternBearishEngulfing PatternID = "BEARISH_ENGULFING"
)

type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
)

type PatternMatch struct {
	Pattern PatternID `json:"pattern"`
	Bias    Bias      `json:"signal"`
}

type Trend string

const (
	TrendUp      Trend = "UPTREND"
	TrendDown    Trend = "DOWNTREND"
	TrendRanging Trend = "RANGING"
)

type StructureState struct {
	Trend            Trend `json:"trend"`
	BreakOfStructure bool  `json:"break_of_structure"`
}

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Signal is a trade proposal produced at the close of a bar.
// LONG: StopLoss < Entry < TakeProfit. SHORT: TakeProfit < Entry < StopLoss.
type Signal struct {
	Direction  Direction `json:"direction"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Pattern    PatternID `json:"pattern"`
	Time       time.Time `json:"time"`
}

type Position struct {
	Signal     Signal
	Size       float64
	RiskAmount float64
	OpenIndex  int
}

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTimeout    ExitReason = "timeout"
)

type Trade struct {
	ID           int        `json:"id"`
	Direction    Direction  `json:"direction"`
	Entry        float64    `json:"entry"`
	StopLoss     float64    `json:"stop_loss"`
	TakeProfit   float64    `json:"take_profit"`
	Pattern      PatternID  `json:"pattern"`
	Time         time.Time  `json:"time"`
	Outcome      Outcome    `json:"outcome"`
	PnL          float64    `json:"pnl"`
	BalanceAfter float64    `json:"balance"`
	Size         float64    `json:"position_size"`
	EntryIndex   int        `json:"entry_index"`
	ExitIndex    int        `json:"exit_index"`
	ExitReason   ExitReason `json:"exit_reason"`
}

type Summary struct {
	TotalTrades  int      `json:"total_trades"`
	Wins         int      `json:"wins"`
	Losses       int      `json:"losses"`
	WinRatePct   float64  `json:"win_rate_pct"`
	TotalPnL     float64  `json:"total_pnl"`
	FinalBalance float64  `json:"final_balance"`
	ProfitFactor *float64 `json:"profit_factor"` // nil when there are no losses
}

type Result struct {
	Symbol          string  `json:"symbol,omitempty"`
	Timeframe       string  `json:"timeframe,omitempty"`
	RiskPct         float64 `json:"risk_pct"`
	StartingBalance float64 `json:"starting_balance"`
	Bars            int     `json:"bars"`
	Trades          []Trade `json:"trades"`
	Summary         Summary `json:"summary"`
}
