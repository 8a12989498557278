package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadCSV reads a bar file. encoding is one of utf-8 (default), gbk, utf-16.
func LoadCSV(path, encoding string) ([]KLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, encoding)
}

func decoderFor(encoding string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "gbk", "gb2312":
		return simplifiedchinese.GBK.NewDecoder(), nil
	case "gb18030":
		return simplifiedchinese.GB18030.NewDecoder(), nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// ReadCSV parses a header-driven CSV with time, open, high, low, close and an
// optional volume column. Column names are case-insensitive.
func ReadCSV(r io.Reader, encoding string) ([]KLine, error) {
	dec, err := decoderFor(encoding)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(transform.NewReader(r, dec))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var out []KLine
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		k, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, k)
	}
	return out, nil
}

type columns struct {
	time, open, high, low, close, volume int
}

func mapColumns(header []string) (columns, error) {
	c := columns{time: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "time", "timestamp", "date", "datetime":
			c.time = i
		case "open", "o":
			c.open = i
		case "high", "h":
			c.high = i
		case "low", "l":
			c.low = i
		case "close", "c":
			c.close = i
		case "volume", "vol", "v":
			c.volume = i
		}
	}
	if c.time < 0 || c.open < 0 || c.high < 0 || c.low < 0 || c.close < 0 {
		return c, fmt.Errorf("csv header must contain time, open, high, low, close")
	}
	return c, nil
}

func parseRow(rec []string, c columns) (KLine, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	t, err := parseTime(field(c.time))
	if err != nil {
		return KLine{}, err
	}
	var k KLine
	k.Time = t
	for _, p := range []struct {
		dst *float64
		idx int
		nm  string
	}{
		{&k.Open, c.open, "open"},
		{&k.High, c.high, "high"},
		{&k.Low, c.low, "low"},
		{&k.Close, c.close, "close"},
	} {
		v, err := strconv.ParseFloat(field(p.idx), 64)
		if err != nil {
			return KLine{}, fmt.Errorf("parse %s: %w", p.nm, err)
		}
		*p.dst = v
	}
	if s := field(c.volume); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return KLine{}, fmt.Errorf("parse volume: %w", err)
		}
		k.Volume = int64(v)
	}
	return k, nil
}

// parseTime accepts the layouts above or unix seconds / milliseconds.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
