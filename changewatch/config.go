package changewatch

import (
	"github.com/hazyhaar/pagewatch/changewatch/internal/config"
)

// Config is the daemon configuration. Re-exported from internal.
type Config = config.Config

// MonitorConfig is the per-session monitor configuration.
type MonitorConfig = config.Monitor

// TargetConfig names the monitored content.
type TargetConfig = config.TargetConfig

// Target kinds.
const (
	TargetPage = config.TargetPage
	TargetHTTP = config.TargetHTTP
	TargetFile = config.TargetFile
)

// ErrInvalidConfig is wrapped by Start when the monitor configuration
// cannot start a session.
var ErrInvalidConfig = config.ErrInvalid

// LoadConfigFile reads a YAML, TOML or JSON configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// ParseKeywords splits a comma-separated keyword list.
func ParseKeywords(csv string) []string {
	return config.ParseKeywords(csv)
}

// ClampInterval bounds a polling interval to [1, 300] seconds.
func ClampInterval(seconds int) int {
	return config.ClampInterval(seconds)
}

// Store persists the last monitor configuration and the running flag.
type Store = config.Store

// OpenStore opens the SQLite settings store at path (":memory:" for a
// throwaway store). The caller must blank-import modernc.org/sqlite.
func OpenStore(path string) (*Store, error) {
	return config.OpenStore(path)
}
