package terminalui

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"quantex/backtest"
)

func sampleResult() backtest.Result {
	t0 := time.Date(2024, 1, 1, 6, 15, 0, 0, time.UTC)
	return backtest.Result{
		Symbol: "BTC/USDT", Timeframe: "15m", RiskPct: 1, StartingBalance: 10000, Bars: 45,
		Trades: []backtest.Trade{
			{ID: 1, Time: t0, Direction: backtest.DirectionLong, Pattern: backtest.PatternHammer,
				Entry: 125.5, PnL: -100, BalanceAfter: 9900, Outcome: backtest.OutcomeLoss, ExitReason: backtest.ExitStopLoss},
			{ID: 2, Time: t0.Add(30 * time.Minute), Direction: backtest.DirectionLong, Pattern: backtest.PatternHammer,
				Entry: 127.5, PnL: -99, BalanceAfter: 9801, Outcome: backtest.OutcomeLoss, ExitReason: backtest.ExitTimeout},
		},
		Summary: backtest.Summarize([]backtest.Trade{{Outcome: backtest.OutcomeLoss}, {Outcome: backtest.OutcomeLoss}}, 10000, 9801),
	}
}

func TestRenderResult(t *testing.T) {
	var buf bytes.Buffer
	RenderResult(&buf, sampleResult(), Options{})
	out := buf.String()

	for _, want := range []string{"BTC/USDT 15m", "Losses 2", "-199.00", "9801.00", "Profit factor 0.00", "stop_loss", "timeout"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("colors disabled but escapes present")
	}
	for i, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if n := utf8.RuneCountInString(line); n != width {
			t.Fatalf("line %d has width %d: %q", i, n, line)
		}
	}
}

func TestRenderResultColorKeepsAlignment(t *testing.T) {
	var buf bytes.Buffer
	RenderResult(&buf, sampleResult(), Options{Color: true, MaxTrades: 1})
	out := buf.String()
	if !strings.Contains(out, "\033[31m") {
		t.Fatalf("expected red for losses")
	}
	if !strings.Contains(out, "1 earlier trades omitted") {
		t.Fatalf("expected truncation note:\n%s", out)
	}
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if n := visibleLen(line); n != width {
			t.Fatalf("visible width %d: %q", n, line)
		}
	}
}

func TestRenderResultNoTrades(t *testing.T) {
	var buf bytes.Buffer
	res := backtest.Result{StartingBalance: 10000, Summary: backtest.Summarize(nil, 10000, 10000)}
	RenderResult(&buf, res, Options{})
	if !strings.Contains(buf.String(), "no trades") || !strings.Contains(buf.String(), "N/A") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestRenderScan(t *testing.T) {
	var buf bytes.Buffer
	RenderScan(&buf, backtest.ScanResult{}, Options{})
	if !strings.Contains(buf.String(), "no bars") {
		t.Fatalf("empty scan: %s", buf.String())
	}

	buf.Reset()
	RenderScan(&buf, backtest.ScanResult{
		Bars: 30, LastTime: time.Date(2024, 1, 1, 7, 15, 0, 0, time.UTC), LastClose: 129.5,
		Structure: backtest.StructureState{Trend: backtest.TrendUp, BreakOfStructure: true},
		Pattern:   &backtest.PatternMatch{Pattern: backtest.PatternHammer, Bias: backtest.BiasBullish},
		Signal: &backtest.Signal{Direction: backtest.DirectionLong, Entry: 129.5, StopLoss: 124.95, TakeProfit: 138.6},
	}, Options{})
	out := buf.String()
	for _, want := range []string{"UPTREND", "Break of structure yes", "HAMMER (bullish)", "LONG entry 129.5000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q:\n%s", want, out)
		}
	}
}
