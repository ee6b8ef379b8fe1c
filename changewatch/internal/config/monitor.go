package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hazyhaar/pagewatch/changewatch/change"
)

// ErrInvalid marks a monitor configuration that cannot start a session.
var ErrInvalid = errors.New("config: invalid monitor configuration")

const (
	MinPollInterval     = 1
	MaxPollInterval     = 300
	DefaultPollInterval = 5
)

// Monitor is the per-session monitor configuration. It is treated as an
// immutable value once a session has started with it.
type Monitor struct {
	EndpointURL         string       `yaml:"endpoint_url" toml:"endpoint_url" json:"endpointUrl" validate:"required,url"`
	Scope               change.Scope `yaml:"scope" toml:"scope" json:"scope" validate:"oneof=all text keywords symbols"`
	TargetSelector      string       `yaml:"target_selector" toml:"target_selector" json:"targetSelector,omitempty"`
	Keywords            []string     `yaml:"keywords" toml:"keywords" json:"keywords,omitempty"`
	PollIntervalSeconds int          `yaml:"poll_interval_seconds" toml:"poll_interval_seconds" json:"pollIntervalSeconds"`
}

// DefaultMonitor mirrors the install-time defaults: every change, 5s polling.
func DefaultMonitor() Monitor {
	return Monitor{Scope: change.ScopeAll, PollIntervalSeconds: DefaultPollInterval}
}

// ClampInterval bounds a polling interval to [1, 300] seconds.
func ClampInterval(seconds int) int {
	return max(MinPollInterval, min(MaxPollInterval, seconds))
}

// ParseKeywords splits a comma-separated keyword list, trimming each entry
// and dropping blanks.
func ParseKeywords(csv string) []string {
	return cleanKeywords(strings.Split(csv, ","))
}

func cleanKeywords(in []string) []string {
	var out []string
	for _, k := range in {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Normalize returns a copy with whitespace trimmed, blank keywords dropped,
// the scope defaulted to "all" and the polling interval clamped.
func (m Monitor) Normalize() Monitor {
	m.EndpointURL = strings.TrimSpace(m.EndpointURL)
	m.Scope = change.Scope(strings.ToLower(strings.TrimSpace(string(m.Scope))))
	if m.Scope == "" {
		m.Scope = change.ScopeAll
	}
	m.TargetSelector = strings.TrimSpace(m.TargetSelector)
	m.Keywords = cleanKeywords(m.Keywords)
	m.PollIntervalSeconds = ClampInterval(m.PollIntervalSeconds)
	return m
}

// Interval returns the clamped polling interval as a duration.
func (m Monitor) Interval() time.Duration {
	return time.Duration(ClampInterval(m.PollIntervalSeconds)) * time.Second
}

// Validate checks the configuration as given. Callers normally validate the
// result of Normalize. The returned error wraps ErrInvalid.
func (m Monitor) Validate() error {
	if err := validate().Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	u, err := url.Parse(m.EndpointURL)
	if err != nil {
		return fmt.Errorf("%w: endpointUrl: %v", ErrInvalid, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: endpointUrl: %q is not an absolute URL", ErrInvalid, m.EndpointURL)
	}
	return nil
}

var (
	vOnce sync.Once
	vInst *validator.Validate
)

func validate() *validator.Validate {
	vOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their JSON names.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		vInst = v
	})
	return vInst
}
