// Package analyzer builds change records from two snapshots.
package analyzer

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/pagewatch/changewatch/change"
	"github.com/hazyhaar/pagewatch/changewatch/internal/config"
)

const (
	// ExcerptLimit is the excerpt budget in code points.
	ExcerptLimit = 1000
	// TruncationMarker is appended to cut excerpts.
	TruncationMarker = "..."
	// MaxSymbols caps matchedSymbols.
	MaxSymbols = 20
	// DefaultSelectorLabel is reported when no selector is configured.
	DefaultSelectorLabel = "body"
)

// Source identifies where a snapshot came from.
type Source struct {
	URL   string
	Title string
}

// Analyze builds the change record for old -> new. It is pure: the time and
// source identity come from the caller.
func Analyze(old, new change.Snapshot, cfg config.Monitor, src Source, now time.Time) change.Record {
	selector := cfg.TargetSelector
	if selector == "" {
		selector = DefaultSelectorLabel
	}
	oldLen := utf8.RuneCountInString(string(old))
	newLen := utf8.RuneCountInString(string(new))

	return change.Record{
		Timestamp:         now,
		SourceURL:         src.URL,
		SourceTitle:       src.Title,
		Scope:             cfg.Scope,
		TargetSelector:    selector,
		OldExcerpt:        Truncate(string(old), ExcerptLimit),
		NewExcerpt:        Truncate(string(new), ExcerptLimit),
		OldLength:         oldLen,
		NewLength:         newLen,
		LengthDelta:       newLen - oldLen,
		MatchedKeywords:   MatchKeywords(string(new), cfg.Keywords),
		MatchedSymbols:    MatchSymbols(string(new)),
		ChangeFingerprint: change.Fingerprint(old, new),
	}
}

// Truncate cuts s to limit code points and appends TruncationMarker when
// anything was removed.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

// MatchKeywords returns the configured keywords found in text, compared
// case-insensitively, in configuration order and without duplicates.
func MatchKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool, len(keywords))
	var out []string
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" || seen[k] {
			continue
		}
		if strings.Contains(lower, k) {
			seen[k] = true
			out = append(out, kw)
		}
	}
	return out
}

// MatchSymbols returns the distinct symbol and alert glyphs in text in
// first-seen order, at most MaxSymbols of them.
func MatchSymbols(text string) []string {
	seen := make(map[rune]bool)
	var out []string
	for _, r := range text {
		if !isSymbol(r) || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, string(r))
		if len(out) == MaxSymbols {
			break
		}
	}
	return out
}

var alertGlyphs = map[rune]bool{
	'⚠': true, '🚨': true, '📢': true, '💰': true, '💸': true, '📈': true,
	'📉': true, '🔥': true, '⭐': true, '❗': true, '❓': true, '⚡': true,
	'🎯': true, '🚀': true, '💎': true, '🏆': true,
}

func isSymbol(r rune) bool {
	if r < utf8.RuneSelf {
		return strings.ContainsRune("!@#$%^&*()_+-=[]{};':\"\\|,.<>/?~`", r)
	}
	return alertGlyphs[r]
}
