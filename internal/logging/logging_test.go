package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":       zapcore.InfoLevel,
		"debug":  zapcore.DebugLevel,
		" WARN ": zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew(t *testing.T) {
	for _, dev := range []bool{false, true} {
		l, err := New("debug", dev)
		if err != nil {
			t.Fatalf("New(dev=%v): %v", dev, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("debug level not enabled (dev=%v)", dev)
		}
	}
	if _, err := New("nope", false); err == nil {
		t.Fatalf("expected error")
	}
	if Component(nil, "api") == nil {
		t.Fatalf("Component(nil) must return a usable logger")
	}
}

func TestComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Component(zap.New(core), "store").Info("saved")
	entries := logs.All()
	if len(entries) != 1 || entries[0].ContextMap()["component"] != "store" {
		t.Fatalf("unexpected entries %#v", entries)
	}
}
