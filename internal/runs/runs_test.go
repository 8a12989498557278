package runs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"quantex/backtest"
	"quantex/feed"
)

func syntheticBars(t *testing.T, seed int64) []backtest.Bar {
	t.Helper()
	kl, err := feed.Synthetic(feed.SyntheticParams{Market: feed.MarketCrypto, Seed: seed, Bars: 400})
	if err != nil {
		t.Fatalf("synthetic: %v", err)
	}
	return backtest.FromKLines(kl)
}

func waitFor(t *testing.T, m *Manager, id string) Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return run
}

type memPersister struct {
	mu   sync.Mutex
	runs []Run
	err  error
}

func (p *memPersister) SaveRun(_ context.Context, run Run) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, run)
	return p.err
}

func (p *memPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runs)
}

func TestSubmitCommitsAndPersists(t *testing.T) {
	p := &memPersister{}
	m := NewManager(zap.NewNop(), WithPersister(p))
	defer m.Close()

	if _, ok := m.Latest(); ok {
		t.Fatalf("fresh manager has no latest run")
	}

	bars := syntheticBars(t, 3)
	cfg := backtest.RunConfig{RiskPct: 1, StartingBalance: 10000}
	id, err := m.Submit(bars, cfg)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	run := waitFor(t, m, id)
	if run.Status != StatusCompleted || run.Result == nil {
		t.Fatalf("unexpected run: %#v", run)
	}

	want, _ := backtest.Simulate(context.Background(), bars, cfg)
	if run.Result.Summary.FinalBalance != want.Summary.FinalBalance || len(run.Result.Trades) != len(want.Trades) {
		t.Fatalf("committed result differs from direct simulation")
	}

	latest, ok := m.Latest()
	if !ok || latest.ID != id {
		t.Fatalf("latest = %v/%v, want %s", latest.ID, ok, id)
	}

	m.Close()
	if p.count() != 1 {
		t.Fatalf("expected one persisted run, got %d", p.count())
	}
}

func TestPersistFailureKeepsCommit(t *testing.T) {
	p := &memPersister{err: errors.New("db down")}
	m := NewManager(nil, WithPersister(p))
	defer m.Close()

	id, _ := m.Submit(syntheticBars(t, 1), backtest.RunConfig{RiskPct: 1})
	waitFor(t, m, id)
	m.Close()
	if latest, ok := m.Latest(); !ok || latest.ID != id {
		t.Fatalf("commit lost after persist failure")
	}
}

func TestSubmitCancelsInFlight(t *testing.T) {
	started := make(chan struct{}, 2)
	m := NewManager(zap.NewNop())
	defer m.Close()
	m.simulate = func(ctx context.Context, bars []backtest.Bar, cfg backtest.RunConfig) (backtest.Result, error) {
		if len(bars) == 0 {
			started <- struct{}{}
			<-ctx.Done()
			return backtest.Result{}, ctx.Err()
		}
		return backtest.Simulate(ctx, bars, cfg)
	}

	slow, _ := m.Submit(nil, backtest.RunConfig{RiskPct: 1})
	<-started
	fast, _ := m.Submit(syntheticBars(t, 2), backtest.RunConfig{RiskPct: 1})

	if run := waitFor(t, m, slow); run.Status != StatusCancelled || run.Result != nil {
		t.Fatalf("superseded run not cancelled: %#v", run)
	}
	if run := waitFor(t, m, fast); run.Status != StatusCompleted {
		t.Fatalf("second run: %#v", run)
	}
	if latest, _ := m.Latest(); latest.ID != fast {
		t.Fatalf("latest = %s, want %s", latest.ID, fast)
	}
}

func TestFailedRunDoesNotReplaceLatest(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.Close()

	good, _ := m.Submit(syntheticBars(t, 4), backtest.RunConfig{RiskPct: 1})
	waitFor(t, m, good)

	m.simulate = func(context.Context, []backtest.Bar, backtest.RunConfig) (backtest.Result, error) {
		return backtest.Result{}, errors.New("boom")
	}
	bad, _ := m.Submit(nil, backtest.RunConfig{RiskPct: 1})
	run := waitFor(t, m, bad)
	if run.Status != StatusFailed || run.Error != "boom" {
		t.Fatalf("unexpected failed run: %#v", run)
	}
	if latest, _ := m.Latest(); latest.ID != good {
		t.Fatalf("failed run replaced latest")
	}
}

func TestSubscribeEvents(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.Close()
	ch := m.Subscribe()

	id, _ := m.Submit(syntheticBars(t, 5), backtest.RunConfig{RiskPct: 1})
	select {
	case ev := <-ch:
		if ev.Type != EventCompleted || ev.ID != id || ev.Summary == nil {
			t.Fatalf("unexpected event %#v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no event received")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after Unsubscribe")
	}
	m.Unsubscribe(ch)
}

func TestResetClearsTradeLog(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.Close()
	if _, ok := m.Reset(); ok {
		t.Fatalf("reset without a run should report false")
	}

	bars := syntheticBars(t, 6)
	id, _ := m.Submit(bars, backtest.RunConfig{RiskPct: 1, StartingBalance: 2500})
	waitFor(t, m, id)

	run, ok := m.Reset()
	if !ok || run.ID != id {
		t.Fatalf("reset returned %v/%v", run.ID, ok)
	}
	if len(run.Result.Trades) != 0 || run.Result.Summary.FinalBalance != 2500 || run.Result.Summary.TotalTrades != 0 {
		t.Fatalf("reset did not clear: %#v", run.Result)
	}
	if len(run.Bars) != len(bars) {
		t.Fatalf("reset dropped the bar series")
	}
}

func TestWaitUnknownAndTimeout(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.Close()
	if _, err := m.Wait(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, ok := m.Get("nope"); ok {
		t.Fatalf("Get of unknown id should fail")
	}

	block := make(chan struct{})
	defer close(block)
	m.simulate = func(ctx context.Context, _ []backtest.Bar, _ backtest.RunConfig) (backtest.Result, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return backtest.Result{}, ctx.Err()
	}
	id, _ := m.Submit(nil, backtest.RunConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Wait(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if run, _ := m.Get(id); run.Status != StatusRunning {
		t.Fatalf("expected running, got %s", run.Status)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Close()
	if _, err := m.Submit(nil, backtest.RunConfig{}); err == nil {
		t.Fatalf("expected error after Close")
	}
	if _, ok := <-m.Subscribe(); ok {
		t.Fatalf("subscription after Close must be closed")
	}
}

func TestListNewestFirst(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.Close()

	var ids []string
	for seed := int64(1); seed <= 3; seed++ {
		id, _ := m.Submit(syntheticBars(t, seed), backtest.RunConfig{RiskPct: 1})
		waitFor(t, m, id)
		ids = append(ids, id)
	}
	got := m.List(0)
	if len(got) != 3 || got[0].ID != ids[2] || got[2].ID != ids[0] {
		t.Fatalf("unexpected order: %v", got)
	}
	if len(m.List(2)) != 2 {
		t.Fatalf("limit not applied")
	}
}

func TestManagerLogsUnderComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewManager(zap.New(core))
	defer m.Close()

	id, err := m.Submit(syntheticBars(t, 2), backtest.RunConfig{RiskPct: 1, StartingBalance: 10000})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, m, id)

	entries := logs.All()
	if len(entries) == 0 {
		t.Fatalf("no log entries")
	}
	for _, e := range entries {
		if e.ContextMap()["component"] != "runs" {
			t.Fatalf("entry %q logged without component: %#v", e.Message, e.ContextMap())
		}
	}
}
