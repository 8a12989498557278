package store

import (
	"time"

	"quantex/backtest"
	"quantex/internal/runs"
)

// RunRecord is a committed backtest run with its summary flattened.
type RunRecord struct {
	ID              string  `gorm:"primaryKey;size:36"`
	Symbol          string  `gorm:"index"`
	Timeframe       string
	RiskPct         float64 `gorm:"type:decimal(10,4);not null"`
	StartingBalance float64 `gorm:"type:decimal(20,8);not null"`
	Bars            int     `gorm:"not null"`

	TotalTrades  int      `gorm:"not null"`
	Wins         int      `gorm:"not null"`
	Losses       int      `gorm:"not null"`
	WinRatePct   float64  `gorm:"type:decimal(6,2)"`
	TotalPnL     float64  `gorm:"type:decimal(20,8)"`
	FinalBalance float64  `gorm:"type:decimal(20,8)"`
	ProfitFactor *float64 `gorm:"type:decimal(20,8)"` // NULL when the run had no losses

	StartedAt  time.Time `gorm:"index;not null"`
	FinishedAt time.Time

	Trades []TradeRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type TradeRecord struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"size:36;index:idx_trade_run_seq,priority:1;not null"`
	Seq   int    `gorm:"index:idx_trade_run_seq,priority:2;not null"`

	Direction  string    `gorm:"not null"`
	Pattern    string    `gorm:"not null"`
	Time       time.Time `gorm:"not null"`
	Entry      float64   `gorm:"type:decimal(20,8);not null"`
	StopLoss   float64   `gorm:"type:decimal(20,8);not null"`
	TakeProfit float64   `gorm:"type:decimal(20,8);not null"`
	Size       float64   `gorm:"type:decimal(30,12)"`

	Outcome      string  `gorm:"not null"`
	ExitReason   string  `gorm:"not null"`
	PnL          float64 `gorm:"type:decimal(20,8)"`
	BalanceAfter float64 `gorm:"type:decimal(20,8)"`
	EntryIndex   int
	ExitIndex    int
}

// RecordFromRun flattens a completed run. Runs without a result yield a
// record with only the identifying fields.
func RecordFromRun(run runs.Run) RunRecord {
	rec := RunRecord{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	res := run.Result
	if res == nil {
		return rec
	}

	rec.Symbol = res.Symbol
	rec.Timeframe = res.Timeframe
	rec.RiskPct = res.RiskPct
	rec.StartingBalance = res.StartingBalance
	rec.Bars = res.Bars

	s := res.Summary
	rec.TotalTrades = s.TotalTrades
	rec.Wins = s.Wins
	rec.Losses = s.Losses
	rec.WinRatePct = s.WinRatePct
	rec.TotalPnL = s.TotalPnL
	rec.FinalBalance = s.FinalBalance
	if s.ProfitFactor != nil {
		pf := *s.ProfitFactor
		rec.ProfitFactor = &pf
	}

	rec.Trades = make([]TradeRecord, 0, len(res.Trades))
	for _, t := range res.Trades {
		rec.Trades = append(rec.Trades, TradeRecord{
			RunID:        run.ID,
			Seq:          t.ID,
			Direction:    string(t.Direction),
			Pattern:      string(t.Pattern),
			Time:         t.Time,
			Entry:        t.Entry,
			StopLoss:     t.StopLoss,
			TakeProfit:   t.TakeProfit,
			Size:         t.Size,
			Outcome:      string(t.Outcome),
			ExitReason:   string(t.ExitReason),
			PnL:          t.PnL,
			BalanceAfter: t.BalanceAfter,
			EntryIndex:   t.EntryIndex,
			ExitIndex:    t.ExitIndex,
		})
	}
	return rec
}

// Run rebuilds the committed run. The bar series is not stored.
func (r RunRecord) Run() runs.Run {
	res := backtest.Result{
		Symbol:          r.Symbol,
		Timeframe:       r.Timeframe,
		RiskPct:         r.RiskPct,
		StartingBalance: r.StartingBalance,
		Bars:            r.Bars,
		Trades:          make([]backtest.Trade, 0, len(r.Trades)),
		Summary: backtest.Summary{
			TotalTrades:  r.TotalTrades,
			Wins:         r.Wins,
			Losses:       r.Losses,
			WinRatePct:   r.WinRatePct,
			TotalPnL:     r.TotalPnL,
			FinalBalance: r.FinalBalance,
			ProfitFactor: r.ProfitFactor,
		},
	}
	for _, t := range r.Trades {
		res.Trades = append(res.Trades, backtest.Trade{
			ID:           t.Seq,
			Direction:    backtest.Direction(t.Direction),
			Entry:        t.Entry,
			StopLoss:     t.StopLoss,
			TakeProfit:   t.TakeProfit,
			Pattern:      backtest.PatternID(t.Pattern),
			Time:         t.Time,
			Outcome:      backtest.Outcome(t.Outcome),
			PnL:          t.PnL,
			BalanceAfter: t.BalanceAfter,
			Size:         t.Size,
			EntryIndex:   t.EntryIndex,
			ExitIndex:    t.ExitIndex,
			ExitReason:   backtest.ExitReason(t.ExitReason),
		})
	}
	return runs.Run{
		ID:         r.ID,
		Status:     runs.StatusCompleted,
		Result:     &res,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}
