package feed

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Market string

const (
	MarketCrypto Market = "crypto"
	MarketForex  Market = "forex"
	MarketStocks Market = "stocks"
)

type marketProfile struct {
	basePrice  float64
	volatility float64
	places     int32
}

var profiles = map[Market]marketProfile{
	MarketCrypto: {basePrice: 42000, volatility: 500, places: 2},
	MarketForex:  {basePrice: 1.0850, volatility: 0.001, places: 5},
	MarketStocks: {basePrice: 150, volatility: 2, places: 2},
}

// MaxBars bounds a single series taken from a client or generated on request.
const MaxBars = 100_000

// SyntheticParams drives the demo series generator. The same params always
// produce the same bars.
type SyntheticParams struct {
	Market   Market        `yaml:"market" json:"market,omitempty"`
	Bars     int           `yaml:"bars" json:"bars,omitempty"`
	Seed     int64         `yaml:"seed" json:"seed,omitempty"`
	Interval time.Duration `yaml:"interval" json:"interval,omitempty"`
	Start    time.Time     `yaml:"start" json:"start,omitempty"`
}

func (p SyntheticParams) withDefaults() SyntheticParams {
	p.Market = Market(strings.ToLower(strings.TrimSpace(string(p.Market))))
	if p.Market == "" {
		p.Market = MarketCrypto
	}
	if p.Bars <= 0 {
		p.Bars = 200
	}
	if p.Seed == 0 {
		p.Seed = 1
	}
	if p.Interval <= 0 {
		p.Interval = 15 * time.Minute
	}
	if p.Start.IsZero() {
		p.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return p
}

// Synthetic generates a random walk with a slow sinusoidal drift.
func Synthetic(p SyntheticParams) ([]KLine, error) {
	p = p.withDefaults()
	if p.Bars > MaxBars {
		return nil, fmt.Errorf("too many bars: %d (max %d)", p.Bars, MaxBars)
	}
	prof, ok := profiles[p.Market]
	if !ok {
		return nil, fmt.Errorf("unknown market: %s", p.Market)
	}
	rng := rand.New(rand.NewSource(p.Seed))
	vol := prof.volatility
	price := prof.basePrice

	out := make([]KLine, 0, p.Bars)
	for i := 0; i < p.Bars; i++ {
		change := (rng.Float64() - 0.5) * vol * 2
		drift := math.Sin(float64(i)/20) * vol
		price += change + drift

		open := price
		high := price + math.Abs(rng.Float64()*vol)
		low := price - math.Abs(rng.Float64()*vol)
		closePx := low + rng.Float64()*(high-low)

		k := KLine{
			Time:   p.Start.Add(time.Duration(i) * p.Interval),
			Open:   roundTo(open, prof.places),
			High:   roundTo(high, prof.places),
			Low:    roundTo(low, prof.places),
			Close:  roundTo(closePx, prof.places),
			Volume: int64(rng.Float64() * 1_000_000),
		}
		out = append(out, k)
		price = closePx
	}
	return out, nil
}

func roundTo(x float64, places int32) float64 {
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}
