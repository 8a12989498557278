package feed

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestReadCSV_MixedLayouts(t *testing.T) {
	in := "\ufeffDate,Open,High,Low,Close,Volume\n" +
		"2024-01-02,10,11,9.5,10.5,1000\n" +
		"2024-01-03 09:30:00,10.5,12,10,11.8,1200.0\n" +
		"1704412800,11.8,12.2,11,11.1,\n"

	kl, err := ReadCSV(strings.NewReader(in), "")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(kl) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(kl))
	}
	if !kl[0].Time.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first time: %v", kl[0].Time)
	}
	if kl[1].Volume != 1200 || kl[1].Close != 11.8 {
		t.Fatalf("unexpected second bar: %#v", kl[1])
	}
	if kl[2].Volume != 0 {
		t.Fatalf("missing volume should be 0, got %d", kl[2].Volume)
	}
	if err := Validate(kl); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestReadCSV_GBK(t *testing.T) {
	src := "名称,time,open,high,low,close,volume\n浦发银行,2024-01-02,10,11,9,10.5,100\n"
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	kl, err := ReadCSV(strings.NewReader(encoded), "gbk")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(kl) != 1 || kl[0].High != 11 {
		t.Fatalf("unexpected bars: %#v", kl)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader(""), ""); err == nil {
		t.Fatalf("expected error on empty input")
	}
	if _, err := ReadCSV(strings.NewReader("time,open,close\n"), ""); err == nil {
		t.Fatalf("expected error on missing columns")
	}
	if _, err := ReadCSV(strings.NewReader("time,open,high,low,close\nx,1,1,1,1\n"), ""); err == nil {
		t.Fatalf("expected error on bad time")
	}
	if _, err := ReadCSV(strings.NewReader("time,open,high,low,close\n"), "ebcdic"); err == nil {
		t.Fatalf("expected error on unknown encoding")
	}
}

func TestValidate(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	good := KLine{Time: t0, Open: 10, High: 11, Low: 9, Close: 10.5}

	cases := []struct {
		name string
		kl   []KLine
		idx  int
	}{
		{"high below close", []KLine{good, {Time: t0.Add(time.Minute), Open: 10, High: 10.2, Low: 9, Close: 10.5}}, 1},
		{"low above open", []KLine{{Time: t0, Open: 10, High: 11, Low: 10.1, Close: 10.5}}, 0},
		{"same timestamp", []KLine{good, good}, 1},
		{"negative volume", []KLine{{Time: t0, Open: 10, High: 11, Low: 9, Close: 10, Volume: -1}}, 0},
	}
	for _, tc := range cases {
		err := Validate(tc.kl)
		ve, ok := err.(*ValidationError)
		if !ok {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if ve.Index != tc.idx {
			t.Fatalf("%s: expected index %d, got %d", tc.name, tc.idx, ve.Index)
		}
	}
	if err := Validate([]KLine{good}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
