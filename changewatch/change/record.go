// Package change defines the structured types emitted by changewatch.
// These are the public API contract: a webhook receiver or an in-process
// consumer imports this package to decode change notifications.
package change

import "time"

// Snapshot is the trimmed text projection of the monitored target captured
// at one instant. Only the previous snapshot is ever retained.
type Snapshot string

// Empty reports whether the snapshot carries no observable content.
func (s Snapshot) Empty() bool { return s == "" }

// Scope selects which changes are relevant for notification.
type Scope string

const (
	ScopeAll      Scope = "all"      // every content change
	ScopeText     Scope = "text"     // changes that alter the text length
	ScopeKeywords Scope = "keywords" // changes whose new content contains a keyword (case-insensitive)
	ScopeSymbols  Scope = "symbols"  // changes whose new content contains a keyword verbatim
)

// Record describes one detected change between two snapshots. It is built
// once by the analyzer and never mutated afterwards.
type Record struct {
	Timestamp         time.Time `json:"timestamp"`
	SourceURL         string    `json:"sourceUrl"`
	SourceTitle       string    `json:"sourceTitle"`
	Scope             Scope     `json:"scope"`
	TargetSelector    string    `json:"targetSelector"`
	OldExcerpt        string    `json:"oldExcerpt"`
	NewExcerpt        string    `json:"newExcerpt"`
	OldLength         int       `json:"oldLength"`
	NewLength         int       `json:"newLength"`
	LengthDelta       int       `json:"lengthDelta"`
	MatchedKeywords   []string  `json:"matchedKeywords"`
	MatchedSymbols    []string  `json:"matchedSymbols"`
	ChangeFingerprint string    `json:"changeFingerprint"`
}
