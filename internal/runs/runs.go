package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quantex/backtest"
	"quantex/internal/logging"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run is one backtest submission. Result is set only once Status is completed.
type Run struct {
	ID         string           `json:"id"`
	Status     Status           `json:"status"`
	Result     *backtest.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`

	Bars []backtest.Bar `json:"-"`
}

func (r Run) Done() bool { return r.Status != StatusRunning }

type EventType string

const (
	EventCompleted EventType = "run_completed"
	EventFailed    EventType = "run_failed"
	EventReset     EventType = "run_reset"
)

type Event struct {
	Type    EventType         `json:"type"`
	ID      string            `json:"id"`
	Summary *backtest.Summary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Persister stores committed runs. Failures are logged, never surfaced to the
// submitter: the in-memory commit has already happened.
type Persister interface {
	SaveRun(ctx context.Context, run Run) error
}

var ErrNotFound = errors.New("run not found")

const (
	maxHistory     = 100
	subscriberBuf  = 16
	persistTimeout = 10 * time.Second
)

type entry struct {
	run  Run
	done chan struct{}
}

// Manager owns the run history and the single in-flight simulation. A new
// Submit cancels whatever is still running; only runs that finish uncancelled
// become the latest committed run.
type Manager struct {
	logger    *zap.Logger
	persister Persister
	simulate  func(context.Context, []backtest.Bar, backtest.RunConfig) (backtest.Result, error)

	mu      sync.Mutex
	runs    map[string]*entry
	order   []string
	latest  string
	current string
	cancel  context.CancelFunc
	subs    map[chan Event]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type Option func(*Manager)

func WithPersister(p Persister) Option {
	return func(m *Manager) { m.persister = p }
}

func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		logger:   logging.Component(logger, "runs"),
		simulate: backtest.Simulate,
		runs:     make(map[string]*entry),
		subs:     make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit starts a simulation of bars in the background and returns its id.
func (m *Manager) Submit(bars []backtest.Bar, cfg backtest.RunConfig) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.New("run manager closed")
	}

	if m.cancel != nil {
		m.logger.Info("cancelling superseded run", zap.String("id", m.current))
		m.cancel()
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		run: Run{
			ID:        id,
			Status:    StatusRunning,
			StartedAt: time.Now().UTC(),
			Bars:      bars,
		},
		done: make(chan struct{}),
	}
	m.runs[id] = e
	m.order = append(m.order, id)
	m.evictLocked()
	m.current = id
	m.cancel = cancel

	m.logger.Info("run submitted",
		zap.String("id", id),
		zap.Int("bars", len(bars)),
		zap.Float64("risk_pct", cfg.RiskPct),
	)

	m.wg.Add(1)
	go m.execute(ctx, cancel, e, cfg)
	return id, nil
}

func (m *Manager) execute(ctx context.Context, cancel context.CancelFunc, e *entry, cfg backtest.RunConfig) {
	defer m.wg.Done()
	defer cancel()

	started := time.Now()
	res, err := m.simulate(ctx, e.run.Bars, cfg)
	superseded := ctx.Err() != nil

	m.mu.Lock()
	id := e.run.ID
	e.run.FinishedAt = time.Now().UTC()
	var ev *Event
	switch {
	case superseded:
		e.run.Status = StatusCancelled
	case err != nil:
		e.run.Status = StatusFailed
		e.run.Error = err.Error()
		ev = &Event{Type: EventFailed, ID: id, Error: e.run.Error}
	default:
		e.run.Status = StatusCompleted
		e.run.Result = &res
		m.latest = id
		sum := res.Summary
		ev = &Event{Type: EventCompleted, ID: id, Summary: &sum}
	}
	if m.current == id {
		m.current = ""
		m.cancel = nil
	}
	run := e.run
	close(e.done)
	if ev != nil {
		m.broadcastLocked(*ev)
	}
	m.mu.Unlock()

	m.logger.Info("run finished",
		zap.String("id", id),
		zap.String("status", string(run.Status)),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(err),
	)

	if run.Status == StatusCompleted && m.persister != nil {
		pctx, pcancel := context.WithTimeout(context.Background(), persistTimeout)
		defer pcancel()
		if err := m.persister.SaveRun(pctx, run); err != nil {
			m.logger.Error("persist run failed", zap.String("id", id), zap.Error(err))
		}
	}
}

// evictLocked drops the oldest finished runs beyond maxHistory. The latest
// committed run is always kept.
func (m *Manager) evictLocked() {
	for len(m.order) > maxHistory {
		evicted := false
		for i, id := range m.order {
			e := m.runs[id]
			if id == m.latest || !e.run.Done() {
				continue
			}
			delete(m.runs, id)
			m.order = append(m.order[:i], m.order[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

func (m *Manager) Get(id string) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}
	return e.run, true
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (m *Manager) List(limit int) []Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.runs[m.order[i]].run)
	}
	return out
}

// Latest returns the most recent run that completed without being superseded.
func (m *Manager) Latest() (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == "" {
		return Run{}, false
	}
	return m.runs[m.latest].run, true
}

// Wait blocks until run id finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Run, error) {
	m.mu.Lock()
	e, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return Run{}, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.run, nil
}

// Reset clears the trade log of the latest committed run and returns its
// balance to the starting value. The bar series is kept.
func (m *Manager) Reset() (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == "" {
		return Run{}, false
	}
	e := m.runs[m.latest]
	res := *e.run.Result
	res.Trades = []backtest.Trade{}
	res.Summary = backtest.Summarize(nil, res.StartingBalance, res.StartingBalance)
	e.run.Result = &res
	sum := res.Summary
	m.broadcastLocked(Event{Type: EventReset, ID: e.run.ID, Summary: &sum})
	m.logger.Info("latest run reset", zap.String("id", e.run.ID))
	return e.run, true
}

// Subscribe returns a channel of run events. Slow subscribers miss events
// rather than block the manager.
func (m *Manager) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuf)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	m.subs[ch] = struct{}{}
	return ch
}

func (m *Manager) Unsubscribe(ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

func (m *Manager) broadcastLocked(ev Event) {
	for ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Warn("dropping event for slow subscriber", zap.String("id", ev.ID))
		}
	}
}

// Close cancels the in-flight run, waits for it and closes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
	m.mu.Unlock()
}
