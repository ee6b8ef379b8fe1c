// Package sampler takes normalized text snapshots of the monitored target.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/pagewatch/changewatch/change"
)

// ErrTargetNotFound is returned by a Document when the selector matches
// nothing.
var ErrTargetNotFound = errors.New("sampler: target not found")

// Document yields the rendered text of the element matched by selector,
// or of the whole document when selector is empty.
type Document interface {
	Text(ctx context.Context, selector string) (string, error)
}

// Sampler never fails: a missing target falls back to the whole document
// and any other failure yields an empty Snapshot.
type Sampler struct {
	doc    Document
	logger *slog.Logger
}

// New creates a Sampler over doc. A nil logger uses slog.Default().
func New(doc Document, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{doc: doc, logger: logger}
}

// Sample captures the text for selector.
func (s *Sampler) Sample(ctx context.Context, selector string) change.Snapshot {
	selector = strings.TrimSpace(selector)

	text, err := s.text(ctx, selector)
	if errors.Is(err, ErrTargetNotFound) && selector != "" {
		s.logger.Warn("sampler: target not found, sampling whole document", "selector", selector)
		text, err = s.text(ctx, "")
	}
	if err != nil {
		s.logger.Error("sampler: sample failed", "selector", selector, "error", err)
		return ""
	}
	return change.Snapshot(strings.TrimSpace(text))
}

func (s *Sampler) text(ctx context.Context, selector string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sampler: document panicked: %v", r)
		}
	}()
	return s.doc.Text(ctx, selector)
}
