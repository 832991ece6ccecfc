package postlink

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/postlink/internal/action"
	"github.com/hazyhaar/postlink/platform"
	"github.com/hazyhaar/postlink/settings"
)

// Config is the daemon configuration.
type Config struct {
	Browser   BrowserConfig                     `yaml:"browser"`
	Pages     []PageConfig                      `yaml:"pages"`
	Scheduler SchedulerYAML                     `yaml:"scheduler"`
	Batch     BatchConfig                       `yaml:"batch"`
	Settings  SettingsConfig                    `yaml:"settings"`
	Platforms map[platform.ID]platform.Override `yaml:"platforms"`
	Sinks     []SinkConfig                      `yaml:"sinks"`
	HTTP      HTTPConfig                        `yaml:"http"`
	MCP       MCPConfig                         `yaml:"mcp"`

	// MaxAttempts bounds retries of posts without identity or action bar.
	MaxAttempts   int           `yaml:"max_attempts"`
	FeedbackDelay time.Duration `yaml:"feedback_delay"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Headful          bool          `yaml:"headful"`
	Bin              string        `yaml:"bin"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Width            int           `yaml:"width"`
	Height           int           `yaml:"height"`
}

// PageConfig is one timeline to augment.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
	// Platform defaults to the platform owning the URL host.
	Platform  platform.ID `yaml:"platform"`
	NoStealth bool        `yaml:"no_stealth"`
}

// SchedulerYAML is the YAML form of SchedulerConfig.
type SchedulerYAML struct {
	Throttle   time.Duration `yaml:"throttle"`
	Recheck    time.Duration `yaml:"recheck"`
	MaxPending int           `yaml:"max_pending"`
}

// BatchConfig is the YAML form of BatchOptions.
type BatchConfig struct {
	OnlyVisible bool    `yaml:"only_visible"`
	Threshold   float64 `yaml:"threshold"`
}

// SettingsConfig selects the settings provider.
type SettingsConfig struct {
	Source   string        `yaml:"source"` // defaults | file | sqlite
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

// SinkConfig defines an activation backend.
type SinkConfig struct {
	Type    string        `yaml:"type"` // page | stdout | webhook
	URL     string        `yaml:"url"`  // for webhook
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
}

// HTTPConfig controls the admin HTTP surface. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MCPConfig controls the MCP endpoint mounted on the HTTP surface.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("postlink: config: %w", err)
	}
	return ParseConfig(data)
}

// envOverrides are the environment variables that override the file.
// Unset variables leave the file value alone.
type envOverrides struct {
	BrowserRemote  string        `env:"POSTLINK_BROWSER_REMOTE"`
	BrowserBin     string        `env:"POSTLINK_BROWSER_BIN"`
	Headful        bool          `env:"POSTLINK_HEADFUL"`
	SettingsSource string        `env:"POSTLINK_SETTINGS_SOURCE"`
	SettingsPath   string        `env:"POSTLINK_SETTINGS_PATH"`
	SettingsPoll   time.Duration `env:"POSTLINK_SETTINGS_INTERVAL"`
	HTTPAddr       string        `env:"POSTLINK_HTTP_ADDR"`
	MCPEnabled     bool          `env:"POSTLINK_MCP"`
	WebhookURL     string        `env:"POSTLINK_WEBHOOK_URL"`
}

// ApplyEnv overrides configuration from POSTLINK_* environment variables.
// POSTLINK_WEBHOOK_URL adds a webhook sink.
func (c *Config) ApplyEnv() error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("postlink: config: env: %w", err)
	}
	if ov.BrowserRemote != "" {
		c.Browser.Remote = ov.BrowserRemote
	}
	if ov.BrowserBin != "" {
		c.Browser.Bin = ov.BrowserBin
	}
	if ov.Headful {
		c.Browser.Headful = true
	}
	if ov.SettingsSource != "" {
		c.Settings.Source = ov.SettingsSource
	}
	if ov.SettingsPath != "" {
		c.Settings.Path = ov.SettingsPath
	}
	if ov.SettingsPoll > 0 {
		c.Settings.Interval = ov.SettingsPoll
	}
	if ov.HTTPAddr != "" {
		c.HTTP.Addr = ov.HTTPAddr
	}
	if ov.MCPEnabled {
		c.MCP.Enabled = true
	}
	if ov.WebhookURL != "" {
		c.Sinks = append(c.Sinks, SinkConfig{Type: "webhook", URL: ov.WebhookURL})
	}
	return nil
}

// ParseConfig parses YAML configuration and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("postlink: config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		c.Browser.Width, c.Browser.Height = 1280, 900
	}
	if c.Scheduler.Throttle <= 0 {
		c.Scheduler.Throttle = 100 * time.Millisecond
	}
	if c.Scheduler.Recheck == 0 {
		c.Scheduler.Recheck = 5 * time.Second
	}
	if c.Scheduler.MaxPending <= 0 {
		c.Scheduler.MaxPending = 256
	}
	if c.Settings.Source == "" {
		c.Settings.Source = "defaults"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.FeedbackDelay <= 0 {
		c.FeedbackDelay = 1500 * time.Millisecond
	}
	if c.MCP.Path == "" {
		c.MCP.Path = "/mcp"
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "page"}}
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
}

// PlatformSet returns the built-in platforms with the configured overrides.
func (c *Config) PlatformSet() (*platform.Set, error) {
	set := platform.DefaultSet()
	if len(c.Platforms) == 0 {
		return set, nil
	}
	return set.WithOverrides(c.Platforms)
}

// Validate checks pages, sinks and the settings source.
func (c *Config) Validate() error {
	set, err := c.PlatformSet()
	if err != nil {
		return fmt.Errorf("postlink: config: %w", err)
	}
	seen := make(map[string]bool, len(c.Pages))
	for _, p := range c.Pages {
		if seen[p.ID] {
			return fmt.Errorf("postlink: config: duplicate page id %q", p.ID)
		}
		seen[p.ID] = true
		if _, err := url.ParseRequestURI(p.URL); err != nil {
			return fmt.Errorf("postlink: config: page %s: %w", p.ID, err)
		}
		if _, err := resolvePlatform(set, p.Platform, p.URL); err != nil {
			return fmt.Errorf("postlink: config: page %s: %w", p.ID, err)
		}
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "page", "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("postlink: config: webhook sink without url")
			}
		default:
			return fmt.Errorf("postlink: config: unknown sink type %q", s.Type)
		}
	}
	switch c.Settings.Source {
	case "defaults":
	case "file", "sqlite":
		if c.Settings.Path == "" {
			return fmt.Errorf("postlink: config: %s settings without path", c.Settings.Source)
		}
	default:
		return fmt.Errorf("postlink: config: unknown settings source %q", c.Settings.Source)
	}
	return nil
}

// SchedulerConfig returns the scheduler settings.
func (c *Config) SchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Throttle:   c.Scheduler.Throttle,
		Recheck:    c.Scheduler.Recheck,
		MaxPending: c.Scheduler.MaxPending,
	}
}

// BatchOptions returns the batch filter.
func (c *Config) BatchOptions() BatchOptions {
	return BatchOptions{OnlyVisible: c.Batch.OnlyVisible, Threshold: c.Batch.Threshold}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenSettings opens the configured settings provider. The closer
// releases its resources.
func (c *Config) OpenSettings(opts settings.StoreOptions) (settings.Provider, io.Closer, error) {
	switch c.Settings.Source {
	case "file":
		return &settings.File{Path: c.Settings.Path, Interval: c.Settings.Interval}, nopCloser{}, nil
	case "sqlite":
		if c.Settings.Interval > 0 {
			opts.Interval = c.Settings.Interval
		}
		st, err := settings.OpenStore(c.Settings.Path, opts)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return settings.NewMemory(nil), nopCloser{}, nil
	}
}

// SharedSinks builds the sinks that are not bound to a tab.
func (c *Config) SharedSinks(opts ...action.WebhookOption) []action.Sink {
	var out []action.Sink
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
			out = append(out, action.NewStdout(nil))
		case "webhook":
			wopts := append([]action.WebhookOption{}, opts...)
			if s.Retries > 0 {
				wopts = append(wopts, action.WithWebhookRetries(s.Retries))
			}
			if s.Backoff > 0 {
				wopts = append(wopts, action.WithWebhookBackoff(s.Backoff))
			}
			out = append(out, action.NewWebhook(s.URL, wopts...))
		}
	}
	return out
}

// PageSink reports whether activations are performed in the tab.
func (c *Config) PageSink() bool {
	for _, s := range c.Sinks {
		if s.Type == "page" {
			return true
		}
	}
	return false
}
