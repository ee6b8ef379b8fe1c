package source

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pagewatch/changewatch/internal/analyzer"
	"github.com/hazyhaar/pagewatch/changewatch/internal/sampler"
	"github.com/hazyhaar/pagewatch/changewatch/internal/trigger"
)

const bindingName = "__changewatch_binding"

// observerJS installs the MutationObserver and reports mutation kinds
// through the runtime binding. It returns true when the selector matched
// nothing and the body is observed instead.
//
//go:embed observer.js
var observerJS string

const disconnectJS = `() => {
	if (window.__changewatch_observer) {
		window.__changewatch_observer.disconnect();
		window.__changewatch_observer = null;
	}
}`

// PageDocument reads rendered text from a live browser tab.
type PageDocument struct {
	page *rod.Page
	opts options

	bindOnce sync.Once
	bindErr  error
}

// NewPage wraps an open tab.
func NewPage(page *rod.Page, opts ...Option) *PageDocument {
	return &PageDocument{page: page, opts: buildOptions(opts)}
}

// Text returns the rendered text (innerText) of the first element matching
// selector, or of <body>. It does not wait for the element to appear.
func (d *PageDocument) Text(ctx context.Context, selector string) (string, error) {
	query := selector
	if query == "" {
		query = "body"
	}
	els, err := d.page.Context(ctx).Elements(query)
	if err != nil {
		return "", fmt.Errorf("source: query %q: %w", query, err)
	}
	if els.Empty() {
		if selector == "" {
			return "", fmt.Errorf("source: page has no body")
		}
		return "", sampler.ErrTargetNotFound
	}
	text, err := els.First().Text()
	if err != nil {
		return "", fmt.Errorf("source: element text: %w", err)
	}
	return text, nil
}

// Identity reports the tab's current URL and title.
func (d *PageDocument) Identity(ctx context.Context) analyzer.Source {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		d.opts.logger.Warn("source: page info failed", "error", err)
		return analyzer.Source{}
	}
	return analyzer.Source{URL: info.URL, Title: info.Title}
}

// Subscribe injects a MutationObserver on the subtree matching selector
// (the body when it matches nothing) and forwards its batches to fn.
func (d *PageDocument) Subscribe(ctx context.Context, selector string, fn func([]trigger.Mutation)) (trigger.Cancel, error) {
	d.bindOnce.Do(func() {
		d.bindErr = proto.RuntimeAddBinding{Name: bindingName}.Call(d.page)
	})
	if d.bindErr != nil {
		return nil, fmt.Errorf("source: add binding: %w", d.bindErr)
	}

	subCtx, cancel := context.WithCancel(ctx)
	go d.page.Context(subCtx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var batch []trigger.Mutation
		if err := json.Unmarshal([]byte(e.Payload), &batch); err != nil {
			d.opts.logger.Warn("source: parse binding payload", "error", err)
			return
		}
		if len(batch) > 0 {
			fn(batch)
		}
	})()

	res, err := d.page.Context(ctx).Eval(observerJS, selector)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("source: inject observer: %w", err)
	}
	if res.Value.Bool() {
		d.opts.logger.Warn("source: observer target not found, watching body", "selector", selector)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if _, err := d.page.Eval(disconnectJS); err != nil {
				d.opts.logger.Debug("source: disconnect observer", "error", err)
			}
		})
	}, nil
}
