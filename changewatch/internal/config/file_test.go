package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/pagewatch/changewatch/change"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "changewatch.yaml", `
target:
  kind: http
  url: https://shop.example.com/item
monitor:
  endpoint_url: https://hooks.example.com/in
  scope: keywords
  target_selector: "#price"
  keywords: [price, stock]
  poll_interval_seconds: 400
debounce:
  window: 2s
control:
  listen: ":8088"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target.Kind != TargetHTTP {
		t.Errorf("Target.Kind: got %q, want %q", cfg.Target.Kind, TargetHTTP)
	}
	if cfg.Monitor.Scope != change.ScopeKeywords {
		t.Errorf("Monitor.Scope: got %q", cfg.Monitor.Scope)
	}
	if cfg.Monitor.PollIntervalSeconds != 300 {
		t.Errorf("PollIntervalSeconds: got %d, want 300 (clamped)", cfg.Monitor.PollIntervalSeconds)
	}
	if len(cfg.Monitor.Keywords) != 2 {
		t.Errorf("Keywords: got %v", cfg.Monitor.Keywords)
	}
	if cfg.Debounce.Window.Duration != 2*time.Second {
		t.Errorf("Debounce.Window: got %s, want 2s", cfg.Debounce.Window)
	}
	if cfg.Debounce.Settle.Duration != 200*time.Millisecond {
		t.Errorf("Debounce.Settle: got %s, want 200ms default", cfg.Debounce.Settle)
	}
	if cfg.Control.Listen != ":8088" {
		t.Errorf("Control.Listen: got %q", cfg.Control.Listen)
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, "changewatch.toml", `
[target]
path = "/var/www/status.html"

[monitor]
endpoint_url = "https://hooks.example.com/in"
scope = "text"

[dispatch]
timeout = "3s"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target.Kind != TargetFile {
		t.Errorf("Target.Kind: got %q, want %q (inferred from path)", cfg.Target.Kind, TargetFile)
	}
	if cfg.Monitor.PollIntervalSeconds != DefaultPollInterval {
		t.Errorf("PollIntervalSeconds: got %d, want default %d", cfg.Monitor.PollIntervalSeconds, DefaultPollInterval)
	}
	if cfg.Dispatch.Timeout.Duration != 3*time.Second {
		t.Errorf("Dispatch.Timeout: got %s, want 3s", cfg.Dispatch.Timeout)
	}
}

func TestLoadFile_JSONExplicitZeroInterval(t *testing.T) {
	path := writeFile(t, "changewatch.json", `{
  "target": {"kind": "page", "url": "https://example.com"},
  "monitor": {"endpointUrl": "https://hooks.example.com/in", "pollIntervalSeconds": 0}
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Monitor.PollIntervalSeconds != 1 {
		t.Errorf("PollIntervalSeconds: got %d, want 1 (clamped)", cfg.Monitor.PollIntervalSeconds)
	}
	if cfg.Monitor.Scope != change.ScopeAll {
		t.Errorf("Scope: got %q, want all", cfg.Monitor.Scope)
	}
	if cfg.State.Path != "changewatch.db" {
		t.Errorf("State.Path: got %q", cfg.State.Path)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Target.Kind != TargetPage {
		t.Errorf("Target.Kind: got %q, want page", cfg.Target.Kind)
	}
	if cfg.Debounce.Window.Duration != time.Second {
		t.Errorf("Debounce.Window: got %s, want 1s", cfg.Debounce.Window)
	}
	if cfg.Browser.Stealth != "headless" {
		t.Errorf("Browser.Stealth: got %q", cfg.Browser.Stealth)
	}
}
