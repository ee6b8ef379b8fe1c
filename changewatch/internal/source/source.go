// Package source provides the documents a session can monitor: a live
// browser tab, an HTTP URL fetched on every check, and a local file.
// Each implements session.Target; the tab and the file also deliver
// mutation batches.
package source

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/pagewatch/changewatch/internal/dispatch"
)

// ErrDisallowed is returned when robots.txt forbids fetching the URL.
var ErrDisallowed = errors.New("source: disallowed by robots.txt")

type options struct {
	client    *http.Client
	logger    *slog.Logger
	userAgent string
	robots    bool
}

// Option configures a document.
type Option func(*options)

// WithClient sets the HTTP client used by HTTP documents.
func WithClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithUserAgent sets the User-Agent for fetches and the robots.txt group.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithRobots toggles robots.txt checks for HTTP documents. Default: on.
func WithRobots(enabled bool) Option {
	return func(o *options) { o.robots = enabled }
}

func buildOptions(opts []Option) options {
	o := options{
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    slog.Default(),
		userAgent: dispatch.UserAgent,
		robots:    true,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
