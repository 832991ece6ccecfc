package postlink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/postlink/platform"
	"github.com/hazyhaar/postlink/settings"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("pages:\n  - url: https://x.com/home\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.MemoryLimit != 1<<30 || cfg.Browser.RecycleInterval != 4*time.Hour {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	if cfg.Scheduler.Throttle != 100*time.Millisecond || cfg.Scheduler.Recheck != 5*time.Second {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Pages[0].ID != "page-1" || cfg.Settings.Source != "defaults" || cfg.MaxAttempts != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.PageSink() || len(cfg.SharedSinks()) != 0 {
		t.Errorf("sinks = %+v", cfg.Sinks)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParseConfig_Full(t *testing.T) {
	yml := `
browser:
  headful: true
  recycle_interval: 1h
  resource_blocking: [images, fonts]
pages:
  - id: home
    url: https://x.com/home
  - id: feed
    url: https://www.instagram.com/
scheduler:
  throttle: 250ms
  recheck: -1s
batch:
  only_visible: true
  threshold: 0.5
settings:
  source: sqlite
  path: /tmp/settings.db
platforms:
  twitter:
    default_target: alt.example
sinks:
  - type: stdout
  - type: webhook
    url: https://hooks.example/postlink
    retries: 1
http:
  addr: 127.0.0.1:8086
mcp:
  enabled: true
`
	cfg, err := ParseConfig([]byte(yml))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if !cfg.Browser.Headful || cfg.Browser.RecycleInterval != time.Hour {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	if sc := cfg.SchedulerConfig(); sc.Throttle != 250*time.Millisecond || sc.Recheck >= 0 {
		t.Errorf("scheduler = %+v", sc)
	}
	if b := cfg.BatchOptions(); !b.OnlyVisible || b.Threshold != 0.5 {
		t.Errorf("batch = %+v", b)
	}
	if cfg.PageSink() || len(cfg.SharedSinks()) != 2 {
		t.Errorf("sinks = %+v", cfg.Sinks)
	}
	if cfg.MCP.Path != "/mcp" {
		t.Errorf("mcp = %+v", cfg.MCP)
	}
	set, err := cfg.PlatformSet()
	if err != nil {
		t.Fatal(err)
	}
	if tw, _ := set.Get(platform.Twitter); tw.DefaultTarget != "alt.example" {
		t.Errorf("override not applied: %q", tw.DefaultTarget)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]string{
		"unknown host":     "pages:\n  - url: https://example.com/\n",
		"duplicate id":     "pages:\n  - {id: a, url: https://x.com/home}\n  - {id: a, url: https://x.com/explore}\n",
		"bad sink":         "sinks:\n  - type: nats\n",
		"webhook no url":   "sinks:\n  - type: webhook\n",
		"settings no path": "settings:\n  source: file\n",
		"bad source":       "settings:\n  source: etcd\n",
		"bad override":     "platforms:\n  myspace:\n    label: x\n",
	}
	for name, yml := range cases {
		cfg, err := ParseConfig([]byte(yml))
		if err != nil {
			t.Fatalf("%s: parse: %v", name, err)
		}
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: validated", name)
		}
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postlink.yaml")
	if err := os.WriteFile(path, []byte("pages:\n  - url: https://x.com/home\n    no_stealth: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Pages[0].NoStealth {
		t.Errorf("page = %+v", cfg.Pages[0])
	}
	if _, err := LoadConfig(path + ".missing"); err == nil {
		t.Error("missing file loaded")
	}
	if _, err := ParseConfig([]byte("pages: {")); err == nil || !strings.Contains(err.Error(), "postlink: config") {
		t.Errorf("bad yaml: %v", err)
	}
}

func TestConfig_OpenSettings(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Settings: SettingsConfig{Source: "sqlite", Path: filepath.Join(dir, "s.db")}}
	p, closer, err := cfg.OpenSettings(settings.StoreOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	if _, ok := p.(*settings.Store); !ok {
		t.Fatalf("provider = %T", p)
	}

	cfg.Settings = SettingsConfig{Source: "file", Path: filepath.Join(dir, "s.yaml")}
	if p, _, _ := cfg.OpenSettings(settings.StoreOptions{}); p.(*settings.File).Path != cfg.Settings.Path {
		t.Fatal("file provider path")
	}
	cfg.Settings = SettingsConfig{Source: "defaults"}
	if p, _, _ := cfg.OpenSettings(settings.StoreOptions{}); p == nil {
		t.Fatal("nil default provider")
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("POSTLINK_SETTINGS_SOURCE", "sqlite")
	t.Setenv("POSTLINK_SETTINGS_PATH", "/tmp/postlink.db")
	t.Setenv("POSTLINK_SETTINGS_INTERVAL", "250ms")
	t.Setenv("POSTLINK_HTTP_ADDR", ":9090")
	t.Setenv("POSTLINK_MCP", "true")
	t.Setenv("POSTLINK_WEBHOOK_URL", "http://hook.local/x")

	cfg, err := ParseConfig([]byte("http:\n  addr: :8080\nbrowser:\n  bin: /usr/bin/chromium\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Settings.Source != "sqlite" || cfg.Settings.Path != "/tmp/postlink.db" || cfg.Settings.Interval != 250*time.Millisecond {
		t.Errorf("settings = %+v", cfg.Settings)
	}
	if cfg.HTTP.Addr != ":9090" || !cfg.MCP.Enabled {
		t.Errorf("http = %+v, mcp = %+v", cfg.HTTP, cfg.MCP)
	}
	if cfg.Browser.Bin != "/usr/bin/chromium" {
		t.Errorf("unset variable overrode bin: %q", cfg.Browser.Bin)
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[1].Type != "webhook" || cfg.Sinks[1].URL != "http://hook.local/x" {
		t.Errorf("sinks = %+v", cfg.Sinks)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestConfig_ApplyEnvBadDuration(t *testing.T) {
	t.Setenv("POSTLINK_SETTINGS_INTERVAL", "soon")
	cfg, _ := ParseConfig(nil)
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("bad duration accepted")
	}
}
