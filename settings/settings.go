// Package settings supplies the per-platform user settings (enabled,
// target hostname, page control) and notifies running sessions when they
// change.
//
// Providers may fail; Resolve falls back to built-in defaults so a broken
// provider never stops the augmentation.
package settings

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/hazyhaar/postlink/linkrewrite"
	"github.com/hazyhaar/postlink/platform"
)

// Platform holds the settings of one platform.
type Platform struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Target  string `json:"target" yaml:"target"`
	// PageControl adds a whole-page control next to the per-post ones.
	PageControl bool `json:"page_control" yaml:"page_control"`
}

// Settings maps each platform to its settings.
type Settings map[platform.ID]Platform

// Provider is a source of settings.
type Provider interface {
	// Load returns the current settings.
	Load(ctx context.Context) (Settings, error)
	// Watch calls onChange with fresh settings after every change until
	// ctx is done. It blocks.
	Watch(ctx context.Context, onChange func(Settings)) error
}

// Writer persists the settings of one platform. Store and Memory
// implement it; writes reach watchers through Provider.Watch.
type Writer interface {
	Set(ctx context.Context, id platform.ID, p Platform) error
}

// Defaults returns {enabled, default target} for every platform of set.
func Defaults(set *platform.Set) Settings {
	out := make(Settings)
	for _, id := range set.IDs() {
		cfg, _ := set.Get(id)
		out[id] = Platform{Enabled: true, Target: cfg.DefaultTarget}
	}
	return out
}

// Normalize fills platforms missing from s with defaults and replaces
// invalid target hostnames with the platform default. Unknown platforms
// are dropped.
func Normalize(s Settings, set *platform.Set) Settings {
	out := Defaults(set)
	for id, p := range s {
		def, ok := out[id]
		if !ok {
			continue
		}
		if !linkrewrite.ValidHostname(p.Target) {
			p.Target = def.Target
		}
		out[id] = p
	}
	return out
}

// Resolve loads settings from p, falling back to defaults on failure.
func Resolve(ctx context.Context, p Provider, set *platform.Set, logger *slog.Logger) Settings {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		return Defaults(set)
	}
	s, err := p.Load(ctx)
	if err != nil {
		logger.Warn("settings: provider failed, using defaults", "error", err)
		return Defaults(set)
	}
	return Normalize(s, set)
}

// Memory is an in-process Provider. Set notifies watchers.
type Memory struct {
	mu       sync.Mutex
	current  Settings
	watchers map[int]func(Settings)
	next     int
}

// NewMemory creates a Memory provider holding s.
func NewMemory(s Settings) *Memory {
	return &Memory{current: maps.Clone(s), watchers: make(map[int]func(Settings))}
}

// Load implements Provider.
func (m *Memory) Load(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.current), nil
}

// Set replaces the settings of one platform and notifies watchers
// synchronously.
func (m *Memory) Set(_ context.Context, id platform.ID, p Platform) error {
	m.mu.Lock()
	if m.current == nil {
		m.current = make(Settings)
	}
	m.current[id] = p
	snap := maps.Clone(m.current)
	fns := make([]func(Settings), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(maps.Clone(snap))
	}
	return nil
}

// Watch implements Provider.
func (m *Memory) Watch(ctx context.Context, onChange func(Settings)) error {
	m.mu.Lock()
	id := m.next
	m.next++
	m.watchers[id] = onChange
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.watchers, id)
	m.mu.Unlock()
	return nil
}
