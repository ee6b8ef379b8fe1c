package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"

	"github.com/hazyhaar/pagewatch/changewatch/internal/analyzer"
)

// HTTPDocument fetches the URL on every Text call. It has no mutation
// source: HTTP targets are polled only.
type HTTPDocument struct {
	url  *url.URL
	opts options

	mu           sync.Mutex
	title        string
	robotsLoaded bool
	robots       *robotstxt.Group
}

// NewHTTP creates a document for an absolute http(s) URL.
func NewHTTP(rawURL string, opts ...Option) (*HTTPDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source: parse url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("source: %q is not an absolute http(s) URL", rawURL)
	}
	return &HTTPDocument{url: u, opts: buildOptions(opts)}, nil
}

// Text fetches the page and returns the text of selector.
func (d *HTTPDocument) Text(ctx context.Context, selector string) (string, error) {
	if !d.allowed(ctx) {
		return "", ErrDisallowed
	}

	doc, err := d.fetch(ctx)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.title = doc.title()
	d.mu.Unlock()

	return doc.text(selector)
}

// Identity reports the URL and the title from the most recent fetch.
func (d *HTTPDocument) Identity(context.Context) analyzer.Source {
	d.mu.Lock()
	defer d.mu.Unlock()
	return analyzer.Source{URL: d.url.String(), Title: d.title}
}

func (d *HTTPDocument) fetch(ctx context.Context) (*markupDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("source: new request: %w", err)
	}
	req.Header.Set("User-Agent", d.opts.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := d.opts.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: get %s: %w", d.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: get %s: HTTP %d", d.url, resp.StatusCode)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		d.opts.logger.Debug("source: charset detection failed, reading raw", "url", d.url, "error", err)
		body = resp.Body
	}

	doc, err := parseMarkup(body)
	if err != nil {
		return nil, fmt.Errorf("source: parse %s: %w", d.url, err)
	}
	return doc, nil
}

// allowed loads robots.txt once. A missing or unreadable robots.txt allows
// everything; a fetch cut short by ctx is retried on the next call.
func (d *HTTPDocument) allowed(ctx context.Context) bool {
	if !d.opts.robots {
		return true
	}

	d.mu.Lock()
	loaded := d.robotsLoaded
	group := d.robots
	d.mu.Unlock()

	if !loaded {
		group = d.loadRobots(ctx)
		if ctx.Err() == nil {
			d.mu.Lock()
			d.robots = group
			d.robotsLoaded = true
			d.mu.Unlock()
		}
	}
	if group == nil {
		return true
	}
	return group.Test(d.url.RequestURI())
}

func (d *HTTPDocument) loadRobots(ctx context.Context) *robotstxt.Group {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", d.url.Scheme, d.url.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", d.opts.userAgent)

	resp, err := d.opts.client.Do(req)
	if err != nil {
		d.opts.logger.Warn("source: robots.txt fetch failed, ignoring", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		d.opts.logger.Warn("source: robots.txt parse failed, ignoring", "url", robotsURL, "error", err)
		return nil
	}
	return data.FindGroup(d.opts.userAgent)
}
