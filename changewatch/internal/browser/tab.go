package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// NavigateTimeout bounds the initial navigation of a tab.
const NavigateTimeout = 30 * time.Second

// Tab is the page hosting a monitored URL.
type Tab struct {
	Page    *rod.Page
	URL     string
	Stealth StealthLevel

	router *rod.HijackRouter
}

// OpenTab opens pageURL in a new tab of mgr's browser. A page that never
// finishes loading is kept: its content can still be sampled.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, errors.New("browser: not started")
	}

	t := &Tab{URL: pageURL, Stealth: mgr.cfg.Stealth}
	page, err := t.create(b)
	if err != nil {
		return nil, fmt.Errorf("browser: new tab: %w", err)
	}
	t.Page = page
	if bl := newBlockList(mgr.cfg.ResourceBlocking); len(bl) > 0 {
		t.router = bl.hijack(page)
	}

	navCtx, cancel := context.WithTimeout(ctx, NavigateTimeout)
	defer cancel()
	p := page.Context(navCtx)
	if err := p.Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		mgr.log.Warn("browser: page load incomplete", "url", pageURL, "error", err)
	}

	mgr.log.Info("browser: tab open", "url", pageURL, "stealth", t.Stealth)
	return t, nil
}

func (t *Tab) create(b *rod.Browser) (*rod.Page, error) {
	if t.Stealth == LevelPlain {
		return b.Page(proto.TargetCreateTarget{})
	}
	return stealth.Page(b)
}

// Close stops request interception and closes the page.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
		t.router = nil
	}
	if t.Page == nil {
		return nil
	}
	err := t.Page.Close()
	t.Page = nil
	return err
}
