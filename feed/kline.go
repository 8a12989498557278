package feed

import (
	"fmt"
	"strings"
	"time"
)

// KLine is one OHLCV bar as delivered by a data source.
type KLine struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Source selects where bars come from. CSV wins over Synthetic when both are set.
type Source struct {
	CSV       string           `yaml:"csv" json:"csv,omitempty"`
	Encoding  string           `yaml:"encoding" json:"encoding,omitempty"`
	Synthetic *SyntheticParams `yaml:"synthetic" json:"synthetic,omitempty"`
}

func (s Source) String() string {
	if strings.TrimSpace(s.CSV) != "" {
		return "csv:" + s.CSV
	}
	p := SyntheticParams{}
	if s.Synthetic != nil {
		p = *s.Synthetic
	}
	p = p.withDefaults()
	return fmt.Sprintf("synthetic:%s/seed=%d/bars=%d", p.Market, p.Seed, p.Bars)
}

// Load reads bars from the configured source.
func Load(src Source) ([]KLine, error) {
	if strings.TrimSpace(src.CSV) != "" {
		return LoadCSV(src.CSV, src.Encoding)
	}
	p := SyntheticParams{}
	if src.Synthetic != nil {
		p = *src.Synthetic
	}
	return Synthetic(p)
}

// ValidationError reports the first bar that breaks series invariants.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bar %d: %s", e.Index, e.Reason)
}

// Validate checks low <= min(open,close) <= max(open,close) <= high, volume >= 0
// and strictly increasing time.
func Validate(kl []KLine) error {
	for i, k := range kl {
		lo, hi := k.Open, k.Close
		if lo > hi {
			lo, hi = hi, lo
		}
		if k.Low > lo || hi > k.High {
			return &ValidationError{Index: i, Reason: fmt.Sprintf("ohlc out of order (o=%g h=%g l=%g c=%g)", k.Open, k.High, k.Low, k.Close)}
		}
		if k.Volume < 0 {
			return &ValidationError{Index: i, Reason: "negative volume"}
		}
		if i > 0 && !k.Time.After(kl[i-1].Time) {
			return &ValidationError{Index: i, Reason: "timestamp not increasing"}
		}
	}
	return nil
}
