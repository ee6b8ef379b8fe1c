// Package changewatch watches a web page, URL or file for text changes and
// POSTs a JSON notification to a webhook when a change is relevant.
//
// A Monitor hosts exactly one monitoring session for one target. It owns
// the browser (for page targets), the settings store used for auto-resume,
// and exposes control over HTTP (Routes) and MCP (RegisterMCP).
package changewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hazyhaar/pagewatch/changewatch/internal/browser"
	"github.com/hazyhaar/pagewatch/changewatch/internal/config"
	"github.com/hazyhaar/pagewatch/changewatch/internal/dispatch"
	"github.com/hazyhaar/pagewatch/changewatch/internal/session"
	"github.com/hazyhaar/pagewatch/changewatch/internal/source"
	"github.com/hazyhaar/pagewatch/changewatch/internal/trigger"
)

const (
	// ResumeDelay lets a freshly opened tab settle before auto-resume.
	ResumeDelay = time.Second
	// eventHistory is how many observer events Status keeps.
	eventHistory = 20
)

// Event is an observer event (started, stopped, delivered, rejected,
// unreachable).
type Event = session.Event

// Target is monitored content; see Open.
type Target = session.Target

// Monitor is the top-level orchestrator. Create one per monitored target.
type Monitor struct {
	cfg    *Config
	logger *slog.Logger

	store      *config.Store
	ownsStore  bool
	target     Target
	sched      trigger.Scheduler
	client     *http.Client
	onEvent    func(Event)
	resumeWait time.Duration

	mgr  *browser.Manager
	tab  *browser.Tab
	sess *session.Session
	base context.Context

	// ctl serialises Start and Stop with their store writes.
	ctl sync.Mutex

	mu     sync.Mutex
	events []Event
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithStore uses an already open settings store. The Monitor does not
// close it.
func WithStore(s *config.Store) Option {
	return func(m *Monitor) { m.store = s }
}

// WithTarget monitors t instead of building a target from the config.
func WithTarget(t Target) Option {
	return func(m *Monitor) { m.target = t }
}

// WithScheduler sets the timer capability. Default: real time.
func WithScheduler(s trigger.Scheduler) Option {
	return func(m *Monitor) { m.sched = s }
}

// WithHTTPClient sets the client for webhook delivery and HTTP targets.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) { m.client = c }
}

// WithObserver adds a hook called for every event.
func WithObserver(fn func(Event)) Option {
	return func(m *Monitor) { m.onEvent = fn }
}

// WithResumeDelay overrides ResumeDelay for page targets.
func WithResumeDelay(d time.Duration) Option {
	return func(m *Monitor) { m.resumeWait = d }
}

// New creates a Monitor. Call Open before Start.
func New(cfg *Config, logger *slog.Logger, opts ...Option) *Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		cfg:        cfg,
		logger:     logger,
		sched:      trigger.System(),
		resumeWait: ResumeDelay,
	}
	for _, o := range opts {
		o(m)
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: cfg.Dispatch.Timeout.Duration}
	}
	return m
}

// Open prepares the target and the settings store. ctx bounds the
// lifetime of sessions started later, including those started over HTTP.
func (m *Monitor) Open(ctx context.Context) error {
	if m.sess != nil {
		return errors.New("changewatch: already open")
	}
	m.base = ctx

	if m.store == nil {
		s, err := config.OpenStore(m.cfg.State.Path)
		if err != nil {
			return fmt.Errorf("changewatch: open store: %w", err)
		}
		m.store = s
		m.ownsStore = true
	}

	if m.target == nil {
		t, err := m.openTarget(ctx)
		if err != nil {
			m.Close()
			return err
		}
		m.target = t
	}

	m.sess = session.New(session.Config{
		Target: m.target,
		Dispatcher: dispatch.New(
			dispatch.WithClient(m.client),
			dispatch.WithLogger(m.logger),
		),
		Scheduler: m.sched,
		Window:    m.cfg.Debounce.Window.Duration,
		Settle:    m.cfg.Debounce.Settle.Duration,
		Observer:  m.observe,
		Logger:    m.logger,
	})
	return nil
}

func (m *Monitor) openTarget(ctx context.Context) (Target, error) {
	tc := m.cfg.Target
	switch tc.Kind {
	case config.TargetHTTP:
		d, err := source.NewHTTP(tc.URL,
			source.WithClient(m.client), source.WithLogger(m.logger))
		if err != nil {
			return nil, fmt.Errorf("changewatch: %w", err)
		}
		return d, nil

	case config.TargetFile:
		d, err := source.NewFile(tc.Path, source.WithLogger(m.logger))
		if err != nil {
			return nil, fmt.Errorf("changewatch: %w", err)
		}
		return d, nil

	case config.TargetPage:
		if tc.URL == "" {
			return nil, errors.New("changewatch: page target needs a url")
		}
		m.mgr = browser.NewManager(browser.Config{
			RemoteURL:        m.cfg.Browser.Remote,
			ResourceBlocking: m.cfg.Browser.ResourceBlocking,
			Stealth:          browser.ParseStealth(m.cfg.Browser.Stealth),
			XvfbDisplay:      m.cfg.Browser.XvfbDisplay,
			Logger:           m.logger,
		})
		if _, err := m.mgr.Start(ctx); err != nil {
			return nil, fmt.Errorf("changewatch: start browser: %w", err)
		}
		tab, err := browser.OpenTab(ctx, m.mgr, tc.URL)
		if err != nil {
			return nil, fmt.Errorf("changewatch: open tab: %w", err)
		}
		m.tab = tab
		return source.NewPage(tab.Page, source.WithLogger(m.logger)), nil
	}
	return nil, fmt.Errorf("changewatch: unknown target kind %q", tc.Kind)
}

// Start starts (or restarts) monitoring with mc and persists it. The error
// wraps ErrInvalidConfig when mc is rejected. A running session survives a
// rejected start; otherwise the running flag is cleared.
func (m *Monitor) Start(ctx context.Context, mc MonitorConfig) error {
	if m.sess == nil {
		return errors.New("changewatch: not open")
	}
	mc = mc.Normalize()

	m.ctl.Lock()
	defer m.ctl.Unlock()

	if err := m.sess.Start(m.base, mc); err != nil {
		if !m.sess.Running() {
			if perr := m.store.SetRunning(ctx, false); perr != nil {
				m.logger.Warn("changewatch: reset running flag", "error", perr)
			}
		}
		return err
	}

	if err := m.store.Save(ctx, mc); err != nil {
		m.logger.Warn("changewatch: persist settings", "error", err)
	}
	if err := m.store.SetRunning(ctx, true); err != nil {
		m.logger.Warn("changewatch: persist running flag", "error", err)
	}
	return nil
}

// Stop stops monitoring and clears the persisted running flag. Stopping a
// stopped monitor is not an error.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.sess == nil {
		return nil
	}
	m.ctl.Lock()
	defer m.ctl.Unlock()

	m.sess.Stop()
	if err := m.store.SetRunning(ctx, false); err != nil {
		return fmt.Errorf("changewatch: persist running flag: %w", err)
	}
	return nil
}

// Resume restarts the stored configuration when the persisted running
// flag is set. It reports whether a session was started.
func (m *Monitor) Resume(ctx context.Context) (bool, error) {
	if m.sess == nil {
		return false, errors.New("changewatch: not open")
	}
	st, err := m.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("changewatch: resume: %w", err)
	}
	if !st.Running || st.Monitor.EndpointURL == "" {
		return false, nil
	}

	if m.tab != nil && m.resumeWait > 0 {
		select {
		case <-time.After(m.resumeWait):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	m.logger.Info("changewatch: resuming", "endpoint", st.Monitor.EndpointURL)
	if err := m.Start(ctx, st.Monitor); err != nil {
		return false, fmt.Errorf("changewatch: resume: %w", err)
	}
	return true, nil
}

// Settings returns the stored monitor configuration. Until a session has
// been started once it is the monitor section of the daemon config.
func (m *Monitor) Settings(ctx context.Context) (MonitorConfig, error) {
	if m.store == nil {
		return config.DefaultMonitor(), errors.New("changewatch: not open")
	}
	st, err := m.store.Load(ctx)
	if err != nil {
		return config.DefaultMonitor(), err
	}
	if !st.Found {
		return m.cfg.Monitor.Normalize(), nil
	}
	return st.Monitor, nil
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Running   bool          `json:"running"`
	SessionID string        `json:"session_id,omitempty"`
	Monitor   MonitorConfig `json:"monitor"`
	Target    TargetConfig  `json:"target"`
	Events    []Event       `json:"events"`
}

// Status returns the running state and the most recent events, oldest
// first.
func (m *Monitor) Status() Status {
	st := Status{Target: m.cfg.Target, Events: []Event{}}
	if m.sess != nil {
		snap := m.sess.Status()
		st.Running = snap.State == session.Running
		st.SessionID = snap.ID
		st.Monitor = snap.Monitor
	}
	m.mu.Lock()
	st.Events = append(st.Events, m.events...)
	m.mu.Unlock()
	return st
}

func (m *Monitor) observe(ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	if over := len(m.events) - eventHistory; over > 0 {
		m.events = append(m.events[:0:0], m.events[over:]...)
	}
	m.mu.Unlock()

	if m.onEvent != nil {
		m.onEvent(ev)
	}
}

// Close stops the session, waits for in-flight deliveries and releases the
// browser and the store. The persisted running flag is left as is so the
// next daemon start can resume.
func (m *Monitor) Close() error {
	if m.sess != nil {
		m.sess.Stop()
		m.sess.Wait()
	}
	if m.tab != nil {
		m.tab.Close()
		m.tab = nil
	}
	if m.mgr != nil {
		m.mgr.Close()
		m.mgr = nil
	}
	if m.store != nil && m.ownsStore {
		err := m.store.Close()
		m.store = nil
		return err
	}
	return nil
}
