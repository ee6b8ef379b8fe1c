// Package session implements the monitoring state machine: it owns the
// active configuration and the previous snapshot, and runs
// sample -> analyze -> filter -> dispatch on every trigger.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/pagewatch/changewatch/change"
	"github.com/hazyhaar/pagewatch/changewatch/internal/analyzer"
	"github.com/hazyhaar/pagewatch/changewatch/internal/config"
	"github.com/hazyhaar/pagewatch/changewatch/internal/dispatch"
	"github.com/hazyhaar/pagewatch/changewatch/internal/relevance"
	"github.com/hazyhaar/pagewatch/changewatch/internal/sampler"
	"github.com/hazyhaar/pagewatch/changewatch/internal/trigger"
)

// State of a session.
type State string

const (
	Stopped State = "stopped"
	Running State = "running"
)

// Target is the monitored content. Targets that also implement
// trigger.Subscriber get a mutation watch in addition to polling.
type Target interface {
	sampler.Document
	Identity(ctx context.Context) analyzer.Source
}

// Dispatcher delivers admitted change records.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec change.Record, cfg config.Monitor) dispatch.Outcome
}

// Config for creating a Session.
type Config struct {
	Target     Target
	Dispatcher Dispatcher
	Scheduler  trigger.Scheduler
	// Debounce timings for mutation-triggered checks.
	Window time.Duration
	Settle time.Duration
	// Observer receives lifecycle and delivery events. It cannot affect
	// the session; panics are recovered.
	Observer func(Event)
	// IDGen produces session identifiers. Default: "ses_" + UUIDv7.
	IDGen  func() string
	Logger *slog.Logger
}

// Session is safe for concurrent use. Checks may overlap; the last one to
// finish owns the previous snapshot.
type Session struct {
	cfg     Config
	sampler *sampler.Sampler
	logger  *slog.Logger

	// ctl serialises Start and Stop.
	ctl sync.Mutex

	mu       sync.Mutex
	state    State
	epoch    uint64
	id       string
	monitor  config.Monitor
	previous change.Snapshot
	trig     *trigger.Trigger
	run      context.Context // cancelled by Stop
	parent   context.Context // outlives Stop; carries dispatches
	cancel   context.CancelFunc

	inflight sync.WaitGroup
}

// New creates a stopped Session.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = trigger.System()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New(dispatch.WithLogger(cfg.Logger))
	}
	if cfg.IDGen == nil {
		cfg.IDGen = func() string { return "ses_" + uuid.Must(uuid.NewV7()).String() }
	}
	return &Session{
		cfg:     cfg,
		sampler: sampler.New(cfg.Target, cfg.Logger),
		logger:  cfg.Logger,
		state:   Stopped,
	}
}

// Start validates m, takes the baseline snapshot and attaches the triggers.
// A running session is fully stopped first. An invalid configuration is
// rejected with an error wrapping config.ErrInvalid and the session is left
// untouched.
func (s *Session) Start(ctx context.Context, m config.Monitor) error {
	m = m.Normalize()
	if err := m.Validate(); err != nil {
		return fmt.Errorf("session: start: %w", err)
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.stop()

	runCtx, cancel := context.WithCancel(ctx)
	baseline := s.sampler.Sample(runCtx, m.TargetSelector)

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.id = s.cfg.IDGen()
	s.monitor = m
	s.previous = baseline
	s.run = runCtx
	s.parent = ctx
	s.cancel = cancel
	s.state = Running

	tcfg := trigger.Config{
		Scheduler: s.cfg.Scheduler,
		Interval:  m.Interval(),
		Selector:  m.TargetSelector,
		Window:    s.cfg.Window,
		Settle:    s.cfg.Settle,
		Logger:    s.logger,
	}
	if sub, ok := s.cfg.Target.(trigger.Subscriber); ok {
		tcfg.Subscriber = sub
	}
	trig, err := trigger.Attach(runCtx, tcfg, func() { s.check(epoch) })
	if err != nil {
		s.state = Stopped
		s.cancel = nil
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("session: start: %w", err)
	}
	s.trig = trig
	id := s.id
	s.mu.Unlock()

	s.logger.Info("session: started",
		"session", id, "endpoint", m.EndpointURL, "scope", m.Scope,
		"selector", m.TargetSelector, "interval", m.Interval(),
		"baseline_len", len(baseline), "mutation_watch", trig.Watching())
	s.emit(Event{Kind: EventStarted, Session: id, Detail: m.EndpointURL})
	return nil
}

// Stop detaches the triggers. Stopping a stopped session is a no-op.
func (s *Session) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stop()
}

func (s *Session) stop() {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	trig, cancel, id := s.trig, s.cancel, s.id
	s.trig, s.cancel = nil, nil
	s.mu.Unlock()

	trig.Stop()
	cancel()

	s.logger.Info("session: stopped", "session", id)
	s.emit(Event{Kind: EventStopped, Session: id})
}

// Check runs one check cycle against the current session, if any.
func (s *Session) Check() {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	s.check(epoch)
}

func (s *Session) check(epoch uint64) {
	s.mu.Lock()
	if s.state != Running || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	m, id := s.monitor, s.id
	runCtx, parent := s.run, s.parent
	s.mu.Unlock()

	snap := s.sampler.Sample(runCtx, m.TargetSelector)
	if snap.Empty() {
		return
	}
	src := s.cfg.Target.Identity(runCtx)

	s.mu.Lock()
	if s.state != Running || s.epoch != epoch || snap == s.previous {
		s.mu.Unlock()
		return
	}
	old := s.previous
	s.previous = snap
	s.mu.Unlock()

	rec := analyzer.Analyze(old, snap, m, src, s.cfg.Scheduler.Now())
	if !relevance.IsRelevant(rec, snap, m) {
		s.logger.Debug("session: change not relevant",
			"session", id, "scope", m.Scope, "fingerprint", rec.ChangeFingerprint)
		return
	}

	s.logger.Debug("session: change detected",
		"session", id, "delta", rec.LengthDelta, "fingerprint", rec.ChangeFingerprint)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		out := s.cfg.Dispatcher.Dispatch(parent, rec, m)

		s.mu.Lock()
		live := s.state == Running && s.epoch == epoch
		s.mu.Unlock()
		if !live {
			return
		}
		s.emit(Event{
			Kind:        EventKind(out.Kind),
			Session:     id,
			Detail:      out.String(),
			Status:      out.Status,
			Fingerprint: rec.ChangeFingerprint,
		})
	}()
}

// Wait blocks until every in-flight dispatch has returned.
func (s *Session) Wait() { s.inflight.Wait() }

// Snapshot describes the session for status reporting.
type Snapshot struct {
	State    State          `json:"state"`
	ID       string         `json:"session_id,omitempty"`
	Monitor  config.Monitor `json:"monitor"`
	Previous int            `json:"previous_length"`
}

// Status returns the current state.
func (s *Session) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Snapshot{State: s.state}
	if s.state == Running {
		st.ID = s.id
		st.Monitor = s.monitor
		st.Previous = len([]rune(string(s.previous)))
	}
	return st
}

// Running reports whether the session is running.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Running
}

func (s *Session) emit(ev Event) {
	if s.cfg.Observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = s.cfg.Scheduler.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session: observer panicked", "event", ev.Kind, "panic", r)
		}
	}()
	s.cfg.Observer(ev)
}
