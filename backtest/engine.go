package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"

	"quantex/feed"
)

const (
	DefaultStartingBalance = 10000.0
	DefaultRiskPct         = 1.0

	maxTrades = 50
	lookAhead = 10 // bars scanned to resolve a position, signal bar excluded
)

type Runner struct {
	loader func(feed.Source) ([]feed.KLine, error)
}

func NewRunner() *Runner {
	return &Runner{loader: feed.Load}
}

// Run loads the configured bar series and simulates it.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (Result, []Bar, error) {
	bars, err := r.LoadBars(cfg)
	if err != nil {
		return Result{}, nil, err
	}
	res, err := Simulate(ctx, bars, cfg)
	if err != nil {
		return Result{}, nil, err
	}
	return res, bars, nil
}

func (r *Runner) LoadBars(cfg RunConfig) ([]Bar, error) {
	kl, err := r.loader(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if err := feed.Validate(kl); err != nil {
		return nil, err
	}

	bars := make([]Bar, 0, len(kl))
	for _, k := range kl {
		if !cfg.Start.IsZero() && k.Time.Before(cfg.Start) {
			continue
		}
		if !cfg.End.IsZero() && !k.Time.Before(cfg.End) {
			continue
		}
		bars = append(bars, FromKLine(k))
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars in range")
	}
	return bars, nil
}

func FromKLine(k feed.KLine) Bar {
	return Bar{Time: k.Time, Open: k.Open, High: k.High, Low: k.Low, Close: k.Close, Volume: k.Volume}
}

func FromKLines(kl []feed.KLine) []Bar {
	bars := make([]Bar, 0, len(kl))
	for _, k := range kl {
		bars = append(bars, FromKLine(k))
	}
	return bars
}

// Simulate walks bars once, opening a position on every signal and resolving it
// against the following bars. Positions may overlap; each is sized from the
// balance at the moment it opens. A cancelled ctx aborts with no partial result.
func Simulate(ctx context.Context, bars []Bar, cfg RunConfig) (Result, error) {
	starting := cfg.StartingBalance
	if starting <= 0 {
		starting = DefaultStartingBalance
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	balance := starting
	trades := make([]Trade, 0)

	for i := minSignalIndex; i < len(bars)-lookAhead && len(trades) < maxTrades; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		sig := GenerateSignal(bars, i)
		if sig == nil {
			continue
		}

		pos := openPosition(*sig, i, balance, cfg.RiskPct)
		outcome, pnl, exitIdx, reason := resolve(bars, pos)
		balance += pnl

		trades = append(trades, Trade{
			ID:           len(trades) + 1,
			Direction:    sig.Direction,
			Entry:        sig.Entry,
			StopLoss:     sig.StopLoss,
			TakeProfit:   sig.TakeProfit,
			Pattern:      sig.Pattern,
			Time:         sig.Time,
			Outcome:      outcome,
			PnL:          round2(pnl),
			BalanceAfter: round2(balance),
			Size:         pos.Size,
			EntryIndex:   i,
			ExitIndex:    exitIdx,
			ExitReason:   reason,
		})
	}

	return Result{
		Symbol:          cfg.Symbol,
		Timeframe:       cfg.Timeframe,
		RiskPct:         cfg.RiskPct,
		StartingBalance: starting,
		Bars:            len(bars),
		Trades:          trades,
		Summary:         Summarize(trades, starting, balance),
	}, nil
}

// openPosition sizes so that a stop-loss hit costs exactly riskPct of balance.
func openPosition(sig Signal, i int, balance, riskPct float64) Position {
	risk := balance * riskPct / 100
	size := 0.0
	if d := math.Abs(sig.Entry - sig.StopLoss); d > 0 {
		size = risk / d
	}
	return Position{Signal: sig, Size: size, RiskAmount: risk, OpenIndex: i}
}

// resolve scans up to lookAhead-1 bars after the signal; take-profit is checked
// before stop-loss on the same bar. A position that touches neither is closed
// as a loss of its full risk.
func resolve(bars []Bar, pos Position) (Outcome, float64, int, ExitReason) {
	sig := pos.Signal
	end := pos.OpenIndex + lookAhead
	if end > len(bars) {
		end = len(bars)
	}
	for j := pos.OpenIndex + 1; j < end; j++ {
		b := bars[j]
		switch sig.Direction {
		case DirectionLong:
			if b.High >= sig.TakeProfit {
				return OutcomeWin, math.Abs(sig.TakeProfit-sig.Entry) * pos.Size, j, ExitTakeProfit
			}
			if b.Low <= sig.StopLoss {
				return OutcomeLoss, -pos.RiskAmount, j, ExitStopLoss
			}
		case DirectionShort:
			if b.Low <= sig.TakeProfit {
				return OutcomeWin, math.Abs(sig.Entry-sig.TakeProfit) * pos.Size, j, ExitTakeProfit
			}
			if b.High >= sig.StopLoss {
				return OutcomeLoss, -pos.RiskAmount, j, ExitStopLoss
			}
		}
	}
	return OutcomeLoss, -pos.RiskAmount, end - 1, ExitTimeout
}

// Summarize derives the run statistics from a finished trade log.
func Summarize(trades []Trade, starting, finalBalance float64) Summary {
	wins, losses := 0, 0
	for _, t := range trades {
		switch t.Outcome {
		case OutcomeWin:
			wins++
		case OutcomeLoss:
			losses++
		}
	}
	s := Summary{
		TotalTrades:  wins + losses,
		Wins:         wins,
		Losses:       losses,
		TotalPnL:     round2(finalBalance - starting),
		FinalBalance: round2(finalBalance),
	}
	if s.TotalTrades > 0 {
		s.WinRatePct = round1(float64(wins) / float64(s.TotalTrades) * 100)
	}
	if losses > 0 {
		pf := round2(float64(wins) / float64(losses))
		s.ProfitFactor = &pf
	}
	return s
}

// ProfitFactorLabel renders the profit factor with N/A for a loss-free run.
func (s Summary) ProfitFactorLabel() string {
	if s.ProfitFactor == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *s.ProfitFactor)
}

