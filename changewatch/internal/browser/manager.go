// Package browser manages the Chrome instance that hosts page targets:
// local launch or remote connection, stealth tabs, Xvfb for headful mode
// and resource blocking.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned by Start once the manager has been closed.
var ErrClosed = errors.New("browser: manager closed")

// StealthLevel selects how Chrome is driven.
type StealthLevel int

const (
	LevelPlain    StealthLevel = iota // headless, no fingerprint patches
	LevelHeadless                     // headless with stealth patches
	LevelHeadful                      // real window on a private Xvfb display
)

var stealthNames = map[StealthLevel]string{
	LevelPlain:    "plain",
	LevelHeadless: "headless",
	LevelHeadful:  "headful",
}

// ParseStealth maps a config value to a level. "none" and "off" are
// accepted for plain; anything unrecognised is LevelHeadless.
func ParseStealth(s string) StealthLevel {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "none", "off":
		return LevelPlain
	}
	for lvl, name := range stealthNames {
		if name == s {
			return lvl
		}
	}
	return LevelHeadless
}

func (l StealthLevel) String() string {
	if name, ok := stealthNames[l]; ok {
		return name
	}
	return stealthNames[LevelHeadless]
}

// Config for a Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket of an already running Chrome.
	// When set nothing is launched locally.
	RemoteURL        string
	ResourceBlocking []string
	Stealth          StealthLevel
	XvfbDisplay      string // headful only, default ":99"
	Logger           *slog.Logger
}

// Manager owns one Chrome connection and whatever it had to spawn to get
// it. It is safe for concurrent use.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu      sync.RWMutex
	closed  bool
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *display
}

// NewManager returns an idle Manager; Start connects it.
func NewManager(cfg Config) *Manager {
	if cfg.XvfbDisplay == "" {
		cfg.XvfbDisplay = ":99"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg, log: cfg.Logger}
}

// Start connects to Chrome, launching it first unless RemoteURL is set.
// Calling Start on a connected manager returns the existing browser.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return nil, ErrClosed
	case m.browser != nil:
		return m.browser, nil
	}

	wsURL, err := m.controlURL(ctx)
	if err != nil {
		m.release()
		return nil, err
	}
	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		m.release()
		return nil, fmt.Errorf("browser: connect %s: %w", wsURL, err)
	}
	m.browser = b
	return b, nil
}

// Browser is the connected browser, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close disconnects and tears down any local Chrome and Xvfb. The manager
// cannot be restarted.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.release()
	return nil
}

// controlURL returns the DevTools endpoint, spawning Xvfb and Chrome as
// the stealth level requires. Caller holds m.mu.
func (m *Manager) controlURL(ctx context.Context) (string, error) {
	headful := m.cfg.Stealth == LevelHeadful
	if headful {
		d, err := startDisplay(ctx, m.cfg.XvfbDisplay)
		if err != nil {
			return "", fmt.Errorf("browser: %w", err)
		}
		m.xvfb = d
		m.log.Info("browser: xvfb started", "display", d.name)
	}

	if m.cfg.RemoteURL != "" {
		m.log.Info("browser: using remote chrome", "url", m.cfg.RemoteURL)
		return m.cfg.RemoteURL, nil
	}

	l := launcher.New().Context(ctx).
		Headless(!headful).
		Set("disable-blink-features", "AutomationControlled")
	if headful {
		l = l.Env("DISPLAY=" + m.cfg.XvfbDisplay)
	}
	wsURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("browser: launch chrome: %w", err)
	}
	m.lnch = l
	m.log.Info("browser: chrome launched", "url", wsURL, "stealth", m.cfg.Stealth)
	return wsURL, nil
}

// release drops everything Start acquired. Caller holds m.mu.
func (m *Manager) release() {
	if b := m.browser; b != nil {
		m.browser = nil
		if err := b.Close(); err != nil {
			m.log.Debug("browser: close", "error", err)
		}
	}
	if l := m.lnch; l != nil {
		m.lnch = nil
		l.Cleanup()
	}
	if d := m.xvfb; d != nil {
		m.xvfb = nil
		d.stop()
	}
}
