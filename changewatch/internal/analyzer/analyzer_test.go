package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/pagewatch/changewatch/change"
	"github.com/hazyhaar/pagewatch/changewatch/internal/config"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAnalyze_PriceChange(t *testing.T) {
	cfg := config.Monitor{Scope: change.ScopeKeywords, Keywords: []string{"price"}}
	rec := Analyze("Price: $10", "Price: $12", cfg, Source{URL: "https://shop.example.com", Title: "Shop"}, now)

	if len(rec.MatchedKeywords) != 1 || rec.MatchedKeywords[0] != "price" {
		t.Errorf("MatchedKeywords: got %v, want [price]", rec.MatchedKeywords)
	}
	if rec.OldLength != 10 || rec.NewLength != 10 || rec.LengthDelta != 0 {
		t.Errorf("lengths: got %d/%d/%d", rec.OldLength, rec.NewLength, rec.LengthDelta)
	}
	if got := strings.Join(rec.MatchedSymbols, ""); got != ":$" {
		t.Errorf("MatchedSymbols: got %q, want %q", got, ":$")
	}
	if rec.TargetSelector != "body" {
		t.Errorf("TargetSelector: got %q, want body", rec.TargetSelector)
	}
	if rec.SourceURL != "https://shop.example.com" || rec.SourceTitle != "Shop" {
		t.Errorf("source: got %q / %q", rec.SourceURL, rec.SourceTitle)
	}
	if !rec.Timestamp.Equal(now) {
		t.Errorf("Timestamp: got %s", rec.Timestamp)
	}
	if rec.ChangeFingerprint != change.Fingerprint("Price: $10", "Price: $12") {
		t.Errorf("ChangeFingerprint: got %q", rec.ChangeFingerprint)
	}
	if rec.Scope != change.ScopeKeywords {
		t.Errorf("Scope: got %q", rec.Scope)
	}
}

func TestAnalyze_LengthDelta(t *testing.T) {
	rec := Analyze("héllo", "héllo wörld", config.Monitor{TargetSelector: "#main"}, Source{}, now)
	if rec.OldLength != 5 || rec.NewLength != 11 || rec.LengthDelta != 6 {
		t.Errorf("lengths: got %d/%d/%d, want 5/11/6", rec.OldLength, rec.NewLength, rec.LengthDelta)
	}
	if rec.TargetSelector != "#main" {
		t.Errorf("TargetSelector: got %q", rec.TargetSelector)
	}
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", ExcerptLimit)
	if got := Truncate(short, ExcerptLimit); got != short {
		t.Error("text at the limit must not be truncated")
	}

	long := strings.Repeat("é", ExcerptLimit+5)
	got := Truncate(long, ExcerptLimit)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatalf("Truncate: missing marker")
	}
	body := strings.TrimSuffix(got, TruncationMarker)
	if n := len([]rune(body)); n != ExcerptLimit {
		t.Errorf("Truncate: kept %d code points, want %d", n, ExcerptLimit)
	}
}

func TestMatchKeywords(t *testing.T) {
	cases := []struct {
		text     string
		keywords []string
		want     []string
	}{
		{"SALE now on, sale!", []string{"sale"}, []string{"sale"}},
		{"in stock, low price", []string{"price", "stock", "gone"}, []string{"price", "stock"}},
		{"Price", []string{"price", "PRICE"}, []string{"price"}},
		{"anything", nil, nil},
		{"anything", []string{"  "}, nil},
	}
	for _, c := range cases {
		got := MatchKeywords(c.text, c.keywords)
		if strings.Join(got, ",") != strings.Join(c.want, ",") {
			t.Errorf("MatchKeywords(%q, %v): got %v, want %v", c.text, c.keywords, got, c.want)
		}
	}
}

func TestMatchSymbols(t *testing.T) {
	got := MatchSymbols("🚨 Alert! Price up 📈!! $5 🚨")
	want := []string{"🚨", "!", "📈", "$"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("MatchSymbols: got %v, want %v", got, want)
	}

	if got := MatchSymbols("plain words only"); len(got) != 0 {
		t.Errorf("MatchSymbols(plain): got %v", got)
	}
}

func TestMatchSymbols_Cap(t *testing.T) {
	got := MatchSymbols("!@#$%^&*()_+-=[]{};':\"\\|,.<>/?~`")
	if len(got) != MaxSymbols {
		t.Errorf("MatchSymbols: got %d symbols, want %d", len(got), MaxSymbols)
	}
	if got[0] != "!" {
		t.Errorf("first symbol: got %q, want !", got[0])
	}
}
