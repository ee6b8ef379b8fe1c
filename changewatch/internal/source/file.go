package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hazyhaar/pagewatch/changewatch/internal/analyzer"
	"github.com/hazyhaar/pagewatch/changewatch/internal/sampler"
	"github.com/hazyhaar/pagewatch/changewatch/internal/trigger"
)

// FileDocument reads a local file on every Text call. HTML files support
// selectors; other files are plain text and only support the whole
// document.
type FileDocument struct {
	path   string // absolute
	markup bool
	opts   options

	mu    sync.Mutex
	title string
}

// NewFile creates a document for path. The file must exist.
func NewFile(path string, opts ...Option) (*FileDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("source: abs path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source: stat: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source: %s is a directory", abs)
	}

	switch strings.ToLower(filepath.Ext(abs)) {
	case ".html", ".htm", ".xhtml":
		return &FileDocument{path: abs, markup: true, opts: buildOptions(opts)}, nil
	}
	return &FileDocument{path: abs, opts: buildOptions(opts)}, nil
}

// Text reads the file and returns the text of selector.
func (d *FileDocument) Text(_ context.Context, selector string) (string, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return "", fmt.Errorf("source: read: %w", err)
	}

	if !d.markup {
		if selector != "" {
			return "", sampler.ErrTargetNotFound
		}
		return string(data), nil
	}

	doc, err := parseMarkup(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("source: parse %s: %w", d.path, err)
	}
	d.mu.Lock()
	d.title = doc.title()
	d.mu.Unlock()
	return doc.text(selector)
}

// Identity reports a file:// URL and the HTML title, or the base name.
func (d *FileDocument) Identity(context.Context) analyzer.Source {
	d.mu.Lock()
	title := d.title
	d.mu.Unlock()
	if title == "" {
		title = filepath.Base(d.path)
	}
	return analyzer.Source{URL: "file://" + filepath.ToSlash(d.path), Title: title}
}

// Subscribe watches the file's directory and reports writes to the file.
// Writes, creates, renames and removals count as content mutations; a
// chmod is attribute-only. The selector is not used: any write may change
// any element.
func (d *FileDocument) Subscribe(ctx context.Context, _ string, fn func([]trigger.Mutation)) (trigger.Cancel, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("source: fsnotify: %w", err)
	}
	// Watch the directory so editors that replace the file are seen.
	if err := w.Add(filepath.Dir(d.path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("source: watch %s: %w", filepath.Dir(d.path), err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-subCtx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != d.path {
					continue
				}
				if m, ok := fileMutation(ev); ok {
					fn([]trigger.Mutation{m})
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.opts.logger.Warn("source: fsnotify error", "path", d.path, "error", err)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			w.Close()
			<-done
		})
	}, nil
}

func fileMutation(ev fsnotify.Event) (trigger.Mutation, bool) {
	target := filepath.Base(ev.Name)
	switch {
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		return trigger.Mutation{Kind: trigger.MutationCharacterData, Target: target}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return trigger.Mutation{Kind: trigger.MutationChildList, Target: target}, true
	case ev.Has(fsnotify.Chmod):
		return trigger.Mutation{Kind: trigger.MutationAttributes, Target: target}, true
	}
	return trigger.Mutation{}, false
}
