// Package browser runs the Chrome instance postlink augments: launch or
// connect, recycle on age or heap size, notify tabs so they reattach.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config configures the Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an existing Chrome.
	// Empty launches a local one.
	RemoteURL string
	// Headful runs a visible Chrome on an Xvfb display.
	Headful bool
	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string
	// Bin overrides the Chrome binary path.
	Bin string
	// MemoryLimit in bytes of JS heap across tabs. Default: 1GB.
	MemoryLimit int64
	// RecycleInterval is the maximum Chrome lifetime. Default: 4h.
	RecycleInterval time.Duration
	// MonitorInterval is how often age and heap are checked. Default: 30s.
	MonitorInterval time.Duration
	// ResourceBlocking lists resource types tabs refuse to load
	// (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process.
type Manager struct {
	cfg Config

	mu        sync.RWMutex
	browser   *rod.Browser
	lnch      *launcher.Launcher
	xvfb      *exec.Cmd
	startAt   time.Time
	closed    bool
	onRecycle []func(*rod.Browser)
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// OnRecycle registers fn, called with the new browser after each recycle.
// Tabs of the old browser are gone by then.
func (m *Manager) OnRecycle(fn func(*rod.Browser)) {
	m.mu.Lock()
	m.onRecycle = append(m.onRecycle, fn)
	m.mu.Unlock()
}

// Start launches Chrome and the monitor goroutine, which stops with ctx.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()
	go m.monitor(ctx)
	return b, nil
}

// Browser returns the current browser, nil before Start or after Close.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle restarts Chrome and runs the OnRecycle callbacks.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("browser: manager is closed")
	}
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt))
	m.cleanup()
	b, err := m.launch()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	fns := append([]func(*rod.Browser){}, m.onRecycle...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(b)
	}
	m.cfg.Logger.Info("browser: recycled")
	return nil
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger
	if m.cfg.Headful {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(!m.cfg.Headful)
		if m.cfg.Headful {
			l = l.Env("DISPLAY=" + m.cfg.XvfbDisplay)
		}
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

func (m *Manager) monitor(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		closed, b, startAt := m.closed, m.browser, m.startAt
		m.mu.RUnlock()
		if closed {
			return
		}
		if b == nil {
			continue
		}

		if time.Since(startAt) > m.cfg.RecycleInterval {
			log.Info("browser: recycle interval reached")
			if err := m.Recycle(); err != nil {
				log.Error("browser: recycle failed", "error", err)
			}
			continue
		}

		used, err := heapUsage(b)
		if err != nil {
			log.Debug("browser: heap check failed", "error", err)
			continue
		}
		if used > m.cfg.MemoryLimit {
			log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
			if err := m.Recycle(); err != nil {
				log.Error("browser: recycle failed", "error", err)
			}
		}
	}
}

// heapUsage sums the used JS heap of every open page.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("no pages")
	}
	var total int64
	for _, p := range pages {
		res, err := proto.RuntimeGetHeapUsage{}.Call(p)
		if err != nil {
			return 0, err
		}
		total += int64(res.UsedSize)
	}
	return total, nil
}
