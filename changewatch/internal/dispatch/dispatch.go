// Package dispatch delivers change notifications to the configured
// endpoint. Each notification is a single POST: no retry, no queue.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/pagewatch/changewatch/change"
	"github.com/hazyhaar/pagewatch/changewatch/internal/config"
)

const (
	// PipelineVersion is reported in every payload.
	PipelineVersion = "1.0.0"
	// UserAgent identifies the pipeline to receivers.
	UserAgent = "changewatch/" + PipelineVersion
)

// Kind tags a delivery outcome.
type Kind string

const (
	Delivered   Kind = "delivered"
	Rejected    Kind = "rejected"
	Unreachable Kind = "unreachable"
)

// Outcome is the result of one delivery attempt. Status is set for
// Delivered and Rejected; Err for Unreachable.
type Outcome struct {
	Kind   Kind
	Status int
	Err    error
}

func (o Outcome) String() string {
	switch o.Kind {
	case Delivered:
		return fmt.Sprintf("delivered (%d)", o.Status)
	case Rejected:
		return fmt.Sprintf("rejected (%d)", o.Status)
	default:
		return fmt.Sprintf("unreachable: %v", o.Err)
	}
}

// Dispatcher POSTs JSON payloads.
type Dispatcher struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClient sets the HTTP client. Default: 10s timeout.
func WithClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithTimeout replaces the default client with one using timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.client = &http.Client{Timeout: timeout} }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock sets the clock used for dispatchTimestamp.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch sends rec to cfg.EndpointURL. Failures are reported in the
// Outcome, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, rec change.Record, cfg config.Monitor) Outcome {
	p := change.NewPayload(rec, UserAgent, PipelineVersion, d.now())
	body, err := change.MarshalPayload(&p)
	if err != nil {
		return d.unreachable(cfg.EndpointURL, fmt.Errorf("dispatch: marshal: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return d.unreachable(cfg.EndpointURL, fmt.Errorf("dispatch: new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return d.unreachable(cfg.EndpointURL, fmt.Errorf("dispatch: post: %w", err))
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.logger.Info("dispatch: delivered",
			"endpoint", cfg.EndpointURL, "status", resp.StatusCode,
			"fingerprint", rec.ChangeFingerprint)
		return Outcome{Kind: Delivered, Status: resp.StatusCode}
	}
	d.logger.Warn("dispatch: rejected",
		"endpoint", cfg.EndpointURL, "status", resp.StatusCode,
		"fingerprint", rec.ChangeFingerprint)
	return Outcome{Kind: Rejected, Status: resp.StatusCode}
}

func (d *Dispatcher) unreachable(endpoint string, err error) Outcome {
	d.logger.Warn("dispatch: unreachable", "endpoint", endpoint, "error", err)
	return Outcome{Kind: Unreachable, Err: err}
}
