package terminalui

import (
	"fmt"
	"io"
	"strings"

	"quantex/backtest"
)

const width = 76

type Options struct {
	// Color enables ANSI colors for outcomes and PnL.
	Color bool
	// MaxTrades limits the trade table; 0 prints every trade.
	MaxTrades int
}

func rule(left, fill, right string) string {
	return left + strings.Repeat(fill, width-2) + right
}

// row pads s to the box width. Widths are counted in runes and ANSI escapes
// are excluded.
func row(s string) string {
	pad := width - 4 - visibleLen(s)
	if pad < 0 {
		pad = 0
	}
	return "║ " + s + strings.Repeat(" ", pad) + " ║"
}

func visibleLen(s string) int {
	n, esc := 0, false
	for _, r := range s {
		switch {
		case r == '\033':
			esc = true
		case esc && r == 'm':
			esc = false
		case !esc:
			n++
		}
	}
	return n
}

func colorize(on bool, code, s string) string {
	if !on {
		return s
	}
	return code + s + "\033[0m"
}

func colorByPnL(pnl float64) string {
	if pnl > 0 {
		return "\033[32m"
	}
	if pnl < 0 {
		return "\033[31m"
	}
	return "\033[37m"
}

// RenderResult writes a boxed run report: header, summary and trade log.
func RenderResult(w io.Writer, res backtest.Result, opts Options) {
	s := res.Summary
	title := "Backtest"
	if res.Symbol != "" {
		title += " " + res.Symbol
	}
	if res.Timeframe != "" {
		title += " " + res.Timeframe
	}

	fmt.Fprintln(w, rule("╔", "═", "╗"))
	fmt.Fprintln(w, row(fmt.Sprintf("%s  |  %d bars  |  risk %.2f%%  |  start %.2f",
		title, res.Bars, res.RiskPct, res.StartingBalance)))
	fmt.Fprintln(w, rule("╠", "═", "╣"))

	pnl := colorize(opts.Color, colorByPnL(s.TotalPnL), fmt.Sprintf("%+.2f", s.TotalPnL))
	fmt.Fprintln(w, row(fmt.Sprintf("Trades %-4d Wins %-4d Losses %-4d Win rate %5.1f%%",
		s.TotalTrades, s.Wins, s.Losses, s.WinRatePct)))
	fmt.Fprintln(w, row(fmt.Sprintf("Total PnL %s   Final balance %.2f   Profit factor %s",
		pnl, s.FinalBalance, s.ProfitFactorLabel())))

	if len(res.Trades) == 0 {
		fmt.Fprintln(w, rule("╟", "─", "╢"))
		fmt.Fprintln(w, row("no trades"))
		fmt.Fprintln(w, rule("╚", "═", "╝"))
		return
	}

	fmt.Fprintln(w, rule("╠", "═", "╣"))
	fmt.Fprintln(w, row(fmt.Sprintf("%-3s %-11s %-5s %-17s %9s %9s %-11s",
		"#", "time", "side", "pattern", "entry", "pnl", "exit")))
	fmt.Fprintln(w, rule("╟", "─", "╢"))

	trades := res.Trades
	if opts.MaxTrades > 0 && len(trades) > opts.MaxTrades {
		trades = trades[len(trades)-opts.MaxTrades:]
	}
	for _, t := range trades {
		tradePnL := colorize(opts.Color, colorByPnL(t.PnL), fmt.Sprintf("%+9.2f", t.PnL))
		fmt.Fprintln(w, row(fmt.Sprintf("%-3d %-11s %-5s %-17s %9s %s %-11s",
			t.ID, t.Time.UTC().Format("01-02 15:04"), t.Direction, t.Pattern,
			formatPrice(t.Entry), tradePnL, t.ExitReason)))
	}
	if len(trades) < len(res.Trades) {
		fmt.Fprintln(w, row(fmt.Sprintf("... %d earlier trades omitted", len(res.Trades)-len(trades))))
	}
	fmt.Fprintln(w, rule("╚", "═", "╝"))
}

// RenderScan writes the one-screen structure view of a series.
func RenderScan(w io.Writer, sc backtest.ScanResult, opts Options) {
	fmt.Fprintln(w, rule("╔", "═", "╗"))
	if sc.Bars == 0 {
		fmt.Fprintln(w, row("no bars"))
		fmt.Fprintln(w, rule("╚", "═", "╝"))
		return
	}
	fmt.Fprintln(w, row(fmt.Sprintf("%d bars  |  last %s  close %s",
		sc.Bars, sc.LastTime.UTC().Format("2006-01-02 15:04"), formatPrice(sc.LastClose))))
	fmt.Fprintln(w, rule("╠", "═", "╣"))

	trend := string(sc.Structure.Trend)
	switch sc.Structure.Trend {
	case backtest.TrendUp:
		trend = colorize(opts.Color, "\033[32m", trend)
	case backtest.TrendDown:
		trend = colorize(opts.Color, "\033[31m", trend)
	}
	bos := "no"
	if sc.Structure.BreakOfStructure {
		bos = "yes"
	}
	fmt.Fprintln(w, row(fmt.Sprintf("Structure %s   Break of structure %s", trend, bos)))

	pattern := "none"
	if sc.Pattern != nil {
		pattern = fmt.Sprintf("%s (%s)", sc.Pattern.Pattern, sc.Pattern.Bias)
	}
	fmt.Fprintln(w, row("Pattern   "+pattern))

	if sc.Signal != nil {
		sig := sc.Signal
		fmt.Fprintln(w, row(fmt.Sprintf("Signal    %s entry %s stop %s target %s",
			sig.Direction, formatPrice(sig.Entry), formatPrice(sig.StopLoss), formatPrice(sig.TakeProfit))))
	} else {
		fmt.Fprintln(w, row("Signal    none"))
	}
	fmt.Fprintln(w, rule("╚", "═", "╝"))
}

func formatPrice(p float64) string {
	switch {
	case p >= 1000:
		return fmt.Sprintf("%.2f", p)
	case p >= 1:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.6f", p)
	}
}
