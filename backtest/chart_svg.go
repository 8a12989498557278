package backtest

import (
	"bytes"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
)

type SVGChartOptions struct {
	Width  int
	Height int
}

func (o SVGChartOptions) withDefaults() SVGChartOptions {
	if o.Width <= 0 {
		o.Width = 1100
	}
	if o.Height <= 0 {
		o.Height = 620
	}
	return o
}

const (
	svgFont    = `font-family="ui-monospace, Menlo, Monaco, Consolas, monospace"`
	svgBG      = "#0b1220"
	svgGrid    = "rgba(255,255,255,0.08)"
	svgText    = "rgba(255,255,255,0.85)"
	svgUp      = "#22c55e"
	svgDown    = "#ef4444"
	svgEquity  = "#38bdf8"
	svgTarget  = "#a3e635"
	svgStop    = "#f97316"
	equityFrac = 0.25 // share of the plot height given to the equity panel
)

// RenderTradesSVG draws the bar series with every trade's entry, stop and
// target over its holding window, and the balance curve underneath.
func RenderTradesSVG(res Result, bars []Bar, opt SVGChartOptions) ([]byte, error) {
	opt = opt.withDefaults()
	if len(bars) < 2 {
		return nil, fmt.Errorf("not enough bars: %d", len(bars))
	}

	minP, maxP := math.Inf(1), math.Inf(-1)
	for _, b := range bars {
		minP = math.Min(minP, b.Low)
		maxP = math.Max(maxP, b.High)
	}
	for _, t := range res.Trades {
		minP = math.Min(minP, math.Min(t.StopLoss, t.TakeProfit))
		maxP = math.Max(maxP, math.Max(t.StopLoss, t.TakeProfit))
	}
	if math.IsInf(minP, 0) || math.IsNaN(minP) || math.IsNaN(maxP) {
		return nil, fmt.Errorf("invalid price range")
	}
	if maxP-minP < 1e-9 {
		// Flat series: center it in a 2% band.
		half := math.Abs(maxP) * 0.01
		if half == 0 {
			half = 1
		}
		minP, maxP = minP-half, maxP+half
	}
	pad := (maxP - minP) * 0.05
	minP -= pad
	maxP += pad

	w, h := float64(opt.Width), float64(opt.Height)
	mLeft, mRight, mTop, mBottom, gap := 80.0, 20.0, 28.0, 36.0, 18.0
	plotW := w - mLeft - mRight
	plotH := h - mTop - mBottom - gap
	if plotW <= 10 || plotH <= 40 {
		return nil, fmt.Errorf("invalid chart size")
	}
	priceH := plotH * (1 - equityFrac)
	eqTop := mTop + priceH + gap
	eqH := plotH * equityFrac

	step := plotW / float64(len(bars))
	cw := math.Max(1.0, step*0.65)
	xAt := func(i int) float64 { return mLeft + (float64(i)+0.5)*step }
	priceToY := func(p float64) float64 {
		r := math.Max(0, math.Min(1, (p-minP)/(maxP-minP)))
		return mTop + (1-r)*priceH
	}

	var buf bytes.Buffer
	line := func(x1, y1, x2, y2 float64, stroke string, width float64, extra string) {
		fmt.Fprintf(&buf, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s"%s/>`+"\n",
			fmtFloat(x1), fmtFloat(y1), fmtFloat(x2), fmtFloat(y2), stroke, fmtFloat(width), extra)
	}
	text := func(x, y float64, fill string, size int, s string) {
		fmt.Fprintf(&buf, `<text x="%s" y="%s" fill="%s" font-size="%d" %s>%s</text>`+"\n",
			fmtFloat(x), fmtFloat(y), fill, size, svgFont, html.EscapeString(s))
	}

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		opt.Width, opt.Height, opt.Width, opt.Height)
	fmt.Fprintf(&buf, `<rect x="0" y="0" width="100%%" height="100%%" fill="%s"/>`+"\n", svgBG)

	title := strings.TrimSpace(res.Symbol + " " + res.Timeframe)
	if title == "" {
		title = "BACKTEST"
	}
	text(mLeft, 18, svgText, 14, fmt.Sprintf("%s  trades %d  win rate %.1f%%  pnl %+.2f  pf %s",
		title, res.Summary.TotalTrades, res.Summary.WinRatePct, res.Summary.TotalPnL, res.Summary.ProfitFactorLabel()))

	for k := 0; k <= 5; k++ {
		y := mTop + float64(k)/5*priceH
		line(mLeft, y, mLeft+plotW, y, svgGrid, 1, "")
		text(6, y+4, svgText, 12, fmtPrice(maxP-float64(k)/5*(maxP-minP)))
	}

	for i, b := range bars {
		col := svgUp
		if b.Close < b.Open {
			col = svgDown
		}
		x := xAt(i)
		line(x, priceToY(b.High), x, priceToY(b.Low), col, 1, "")
		yTop := math.Min(priceToY(b.Open), priceToY(b.Close))
		yBot := math.Max(priceToY(b.Open), priceToY(b.Close))
		if yBot-yTop < 1 {
			yBot = yTop + 1
		}
		fmt.Fprintf(&buf, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s" opacity="0.9"/>`+"\n",
			fmtFloat(x-cw/2), fmtFloat(yTop), fmtFloat(cw), fmtFloat(yBot-yTop), col)
	}

	for _, t := range res.Trades {
		if t.EntryIndex < 0 || t.EntryIndex >= len(bars) {
			continue
		}
		x1, x2 := xAt(t.EntryIndex), xAt(min(t.ExitIndex, len(bars)-1))
		line(x1, priceToY(t.TakeProfit), x2, priceToY(t.TakeProfit), svgTarget, 1.2, ` stroke-dasharray="4 3"`)
		line(x1, priceToY(t.StopLoss), x2, priceToY(t.StopLoss), svgStop, 1.2, ` stroke-dasharray="4 3"`)

		col := svgUp
		if t.Outcome == OutcomeLoss {
			col = svgDown
		}
		y := priceToY(t.Entry)
		// Triangle points up for LONG, down for SHORT.
		dy := -6.0
		if t.Direction == DirectionShort {
			dy = 6.0
		}
		fmt.Fprintf(&buf, `<polygon points="%s,%s %s,%s %s,%s" fill="%s"><title>#%d %s %s %s</title></polygon>`+"\n",
			fmtFloat(x1-5), fmtFloat(y-dy), fmtFloat(x1+5), fmtFloat(y-dy), fmtFloat(x1), fmtFloat(y+dy), col,
			t.ID, t.Direction, t.Pattern, t.ExitReason)
	}

	// Equity panel: balance steps at each trade's exit bar.
	line(mLeft, eqTop, mLeft+plotW, eqTop, svgGrid, 1, "")
	line(mLeft, eqTop+eqH, mLeft+plotW, eqTop+eqH, svgGrid, 1, "")
	text(mLeft+6, eqTop+14, svgEquity, 12, "EQUITY")

	lo, hi := res.StartingBalance, res.StartingBalance
	for _, t := range res.Trades {
		lo = math.Min(lo, t.BalanceAfter)
		hi = math.Max(hi, t.BalanceAfter)
	}
	if hi-lo < 1e-9 {
		hi, lo = hi+1, lo-1
	}
	eqToY := func(v float64) float64 { return eqTop + (1-(v-lo)/(hi-lo))*eqH }
	text(6, eqTop+10, svgText, 11, fmtPrice(hi))
	text(6, eqTop+eqH, svgText, 11, fmtPrice(lo))

	pts := []string{fmtFloat(mLeft) + "," + fmtFloat(eqToY(res.StartingBalance))}
	prev := res.StartingBalance
	for _, t := range res.Trades {
		x := xAt(min(t.ExitIndex, len(bars)-1))
		pts = append(pts, fmtFloat(x)+","+fmtFloat(eqToY(prev)), fmtFloat(x)+","+fmtFloat(eqToY(t.BalanceAfter)))
		prev = t.BalanceAfter
	}
	pts = append(pts, fmtFloat(mLeft+plotW)+","+fmtFloat(eqToY(prev)))
	fmt.Fprintf(&buf, `<polyline points="%s" fill="none" stroke="%s" stroke-width="1.5"/>`+"\n", strings.Join(pts, " "), svgEquity)

	footY := h - 12
	text(mLeft, footY, svgText, 12, bars[0].Time.UTC().Format("2006-01-02 15:04"))
	text(mLeft+plotW-120, footY, svgText, 12, bars[len(bars)-1].Time.UTC().Format("2006-01-02 15:04"))

	buf.WriteString(`</svg>` + "\n")
	return buf.Bytes(), nil
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}

func fmtPrice(p float64) string {
	switch {
	case p >= 1000:
		return strconv.FormatFloat(p, 'f', 0, 64)
	case p >= 100:
		return strconv.FormatFloat(p, 'f', 1, 64)
	case p >= 1:
		return strconv.FormatFloat(p, 'f', 2, 64)
	}
	return strconv.FormatFloat(p, 'f', 5, 64)
}
