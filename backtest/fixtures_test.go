package backtest

import "time"

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time { return t0.Add(time.Duration(i) * 15 * time.Minute) }

// risingSeries: bullish bars, body 0.5, both wicks 0.1. Matches no pattern.
func risingSeries(n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = Bar{Time: at(i), Open: p, High: p + 0.6, Low: p - 0.1, Close: p + 0.5, Volume: 1000}
	}
	return bars
}

// fallingSeries mirrors risingSeries downward from 200.
func fallingSeries(n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		p := 200 - float64(i)
		bars[i] = Bar{Time: at(i), Open: p, High: p + 0.1, Low: p - 0.6, Close: p - 0.5, Volume: 1000}
	}
	return bars
}

func flatSeries(n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		bars[i] = Bar{Time: at(i), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000}
	}
	return bars
}

// hammerAt replaces bar i of a rising series with a hammer whose lower wick is
// 1.5 and upper wick 0.05 on a 0.5 body.
func hammerAt(bars []Bar, i int) []Bar {
	p := 100 + float64(i)
	bars[i] = Bar{Time: at(i), Open: p, High: p + 0.55, Low: p - 1.5, Close: p + 0.5, Volume: 1500}
	return bars
}

func shootingStarAt(bars []Bar, i int) []Bar {
	p := 200 - float64(i)
	bars[i] = Bar{Time: at(i), Open: p, High: p + 1.5, Low: p - 0.55, Close: p - 0.5, Volume: 1500}
	return bars
}

func approx(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
