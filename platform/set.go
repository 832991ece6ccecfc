package platform

import (
	"fmt"
	"regexp"
	"sort"
)

// Set is an immutable lookup of platform records.
type Set struct {
	byID map[ID]*Config
}

// NewSet builds a Set from cfgs, validating each.
func NewSet(cfgs ...*Config) (*Set, error) {
	s := &Set{byID: make(map[ID]*Config, len(cfgs))}
	for _, c := range cfgs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		s.byID[c.ID] = c
	}
	return s, nil
}

// DefaultSet returns the built-in platforms.
func DefaultSet() *Set {
	s := &Set{byID: Defaults()}
	return s
}

// Get returns the record for id.
func (s *Set) Get(id ID) (*Config, error) {
	if s == nil {
		return nil, ErrUnknown
	}
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	return c, nil
}

// IDs lists registered platforms in a stable order.
func (s *Set) IDs() []ID {
	ids := make([]ID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ForHost returns the platform whose hostname set contains host.
func (s *Set) ForHost(host string) (*Config, bool) {
	for _, id := range s.IDs() {
		if c := s.byID[id]; c.KnownHost(host) {
			return c, true
		}
	}
	return nil, false
}

// Override carries YAML-provided replacements for selector data. Empty
// fields keep the built-in value; non-empty lists replace it wholesale.
type Override struct {
	PostSelectors         []string `yaml:"post_selectors"`
	FallbackPostSelectors []string `yaml:"fallback_post_selectors"`
	PostMarkers           []string `yaml:"post_markers"`
	InjectionSelectors    []string `yaml:"injection_selectors"`
	ActionMarkers         []string `yaml:"action_markers"`
	ContainerSelector     string   `yaml:"container_selector"`
	MinInteractive        int      `yaml:"min_interactive"`
	Hostnames             []string `yaml:"hostnames"`
	PathPattern           string   `yaml:"path_pattern"`
	DefaultTarget         string   `yaml:"default_target"`
	Label                 string   `yaml:"label"`
}

// WithOverrides returns a new Set with overrides applied on top of s.
func (s *Set) WithOverrides(overrides map[ID]Override) (*Set, error) {
	out := &Set{byID: make(map[ID]*Config, len(s.byID))}
	for id, c := range s.byID {
		out.byID[id] = c.Clone()
	}
	for id, o := range overrides {
		c, ok := out.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: override for %q", ErrUnknown, id)
		}
		if err := o.apply(c); err != nil {
			return nil, fmt.Errorf("platform %s: %w", id, err)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (o Override) apply(c *Config) error {
	if len(o.PostSelectors) > 0 {
		c.PostSelectors = o.PostSelectors
	}
	if len(o.FallbackPostSelectors) > 0 {
		c.FallbackPostSelectors = o.FallbackPostSelectors
	}
	if len(o.PostMarkers) > 0 {
		c.PostMarkers = o.PostMarkers
	}
	if len(o.InjectionSelectors) > 0 {
		c.InjectionSelectors = o.InjectionSelectors
	}
	if len(o.ActionMarkers) > 0 {
		c.ActionMarkers = o.ActionMarkers
	}
	if o.ContainerSelector != "" {
		c.ContainerSelector = o.ContainerSelector
	}
	if o.MinInteractive > 0 {
		c.MinInteractive = o.MinInteractive
	}
	if len(o.Hostnames) > 0 {
		c.Hostnames = o.Hostnames
	}
	if o.PathPattern != "" {
		re, err := regexp.Compile(o.PathPattern)
		if err != nil {
			return fmt.Errorf("path pattern: %w", err)
		}
		c.PathPattern = re
	}
	if o.DefaultTarget != "" {
		c.DefaultTarget = o.DefaultTarget
	}
	if o.Label != "" {
		c.Label = o.Label
	}
	return nil
}
