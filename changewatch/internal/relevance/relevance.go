// Package relevance decides whether a change warrants a notification.
package relevance

import (
	"strings"

	"github.com/hazyhaar/pagewatch/changewatch/change"
	"github.com/hazyhaar/pagewatch/changewatch/internal/config"
)

// IsRelevant applies the scope rules in order. full is the untruncated new
// snapshot; keyword and symbol matching run against it, not the excerpt.
//
// A keyword or symbol scope with no keywords configured admits every
// change.
func IsRelevant(rec change.Record, full change.Snapshot, cfg config.Monitor) bool {
	switch cfg.Scope {
	case change.ScopeAll:
		return true
	case change.ScopeText:
		return rec.LengthDelta != 0
	}

	keywords := nonBlank(cfg.Keywords)
	if len(keywords) == 0 {
		return true
	}

	switch cfg.Scope {
	case change.ScopeKeywords:
		lower := strings.ToLower(string(full))
		for _, k := range keywords {
			if strings.Contains(lower, strings.ToLower(k)) {
				return true
			}
		}
		return false
	case change.ScopeSymbols:
		for _, k := range keywords {
			if strings.Contains(string(full), k) {
				return true
			}
		}
		return false
	}
	return true
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
