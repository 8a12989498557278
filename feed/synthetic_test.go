package feed

import (
	"reflect"
	"testing"
)

func TestSyntheticDeterministic(t *testing.T) {
	for _, m := range []Market{MarketCrypto, MarketForex, MarketStocks} {
		a, err := Synthetic(SyntheticParams{Market: m, Seed: 7})
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		b, _ := Synthetic(SyntheticParams{Market: m, Seed: 7})
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s: same seed produced different series", m)
		}
		if len(a) != 200 {
			t.Fatalf("%s: expected 200 default bars, got %d", m, len(a))
		}
		if err := Validate(a); err != nil {
			t.Fatalf("%s: generated series invalid: %v", m, err)
		}
	}

	a, _ := Synthetic(SyntheticParams{Seed: 1})
	b, _ := Synthetic(SyntheticParams{Seed: 2})
	if reflect.DeepEqual(a, b) {
		t.Fatalf("different seeds produced identical series")
	}
}

func TestSyntheticUnknownMarket(t *testing.T) {
	if _, err := Synthetic(SyntheticParams{Market: "bonds"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSyntheticBarCap(t *testing.T) {
	if _, err := Synthetic(SyntheticParams{Bars: MaxBars + 1}); err == nil {
		t.Fatalf("expected error above %d bars", MaxBars)
	}
	kl, err := Synthetic(SyntheticParams{Market: MarketForex, Bars: MaxBars})
	if err != nil || len(kl) != MaxBars {
		t.Fatalf("cap itself should be accepted: %d bars, err %v", len(kl), err)
	}
}

func TestLoadFallsBackToSynthetic(t *testing.T) {
	kl, err := Load(Source{Synthetic: &SyntheticParams{Market: MarketStocks, Bars: 50}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(kl) != 50 {
		t.Fatalf("expected 50 bars, got %d", len(kl))
	}
}
