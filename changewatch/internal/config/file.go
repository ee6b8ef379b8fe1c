// Package config handles changewatch configuration: the per-session monitor
// settings, the daemon file (YAML, TOML or JSON) and the SQLite settings store.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Target kinds.
const (
	TargetPage = "page" // live browser tab
	TargetHTTP = "http" // plain HTTP GET per check
	TargetFile = "file" // local file
)

// Config is the top-level daemon configuration.
type Config struct {
	Target   TargetConfig   `yaml:"target" toml:"target" json:"target"`
	Browser  BrowserConfig  `yaml:"browser" toml:"browser" json:"browser"`
	Monitor  Monitor        `yaml:"monitor" toml:"monitor" json:"monitor"`
	Debounce DebounceConfig `yaml:"debounce" toml:"debounce" json:"debounce"`
	Dispatch DispatchConfig `yaml:"dispatch" toml:"dispatch" json:"dispatch"`
	Control  ControlConfig  `yaml:"control" toml:"control" json:"control"`
	State    StateConfig    `yaml:"state" toml:"state" json:"state"`
}

// TargetConfig names the monitored content.
type TargetConfig struct {
	Kind string `yaml:"kind" toml:"kind" json:"kind"` // page | http | file
	URL  string `yaml:"url" toml:"url" json:"url"`
	Path string `yaml:"path" toml:"path" json:"path"`
}

// BrowserConfig controls Chrome lifecycle for page targets.
type BrowserConfig struct {
	Remote           string   `yaml:"remote" toml:"remote" json:"remote"`
	Stealth          string   `yaml:"stealth" toml:"stealth" json:"stealth"` // headless | headful
	XvfbDisplay      string   `yaml:"xvfb_display" toml:"xvfb_display" json:"xvfb_display"`
	ResourceBlocking []string `yaml:"resource_blocking" toml:"resource_blocking" json:"resource_blocking"`
}

// DebounceConfig controls mutation-triggered checks.
type DebounceConfig struct {
	Window Duration `yaml:"window" toml:"window" json:"window"`
	Settle Duration `yaml:"settle" toml:"settle" json:"settle"`
}

// DispatchConfig controls webhook delivery.
type DispatchConfig struct {
	Timeout Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// ControlConfig configures the HTTP control surface.
type ControlConfig struct {
	Listen      string   `yaml:"listen" toml:"listen" json:"listen"`
	TokenHash   string   `yaml:"token_hash" toml:"token_hash" json:"token_hash"` // bcrypt hash of the bearer token
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins" json:"cors_origins"`
}

// StateConfig locates the settings database.
type StateConfig struct {
	Path string `yaml:"path" toml:"path" json:"path"`
}

// Duration accepts "1s"-style strings in every file format.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalYAML decodes a scalar duration string.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{Monitor: DefaultMonitor()}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a configuration file. The format follows the extension
// (.yaml/.yml, .toml, .json); unknown extensions are tried as YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	// Pre-populate so absent keys keep their defaults.
	cfg := &Config{Monitor: DefaultMonitor()}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("config: decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode YAML: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Target.Kind == "" {
		switch {
		case c.Target.Path != "":
			c.Target.Kind = TargetFile
		default:
			c.Target.Kind = TargetPage
		}
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Debounce.Window.Duration <= 0 {
		c.Debounce.Window.Duration = time.Second
	}
	if c.Debounce.Settle.Duration <= 0 {
		c.Debounce.Settle.Duration = 200 * time.Millisecond
	}
	if c.Dispatch.Timeout.Duration <= 0 {
		c.Dispatch.Timeout.Duration = 10 * time.Second
	}
	if c.State.Path == "" {
		c.State.Path = "changewatch.db"
	}
	c.Monitor = c.Monitor.Normalize()
}
