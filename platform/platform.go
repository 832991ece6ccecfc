// Package platform holds the per-site data records driving post discovery:
// selectors, structural markers, hostnames and identity patterns.
//
// Platforms are data, not behaviour. A new site is a new Config value.
package platform

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ID names a supported platform.
type ID string

const (
	Twitter   ID = "twitter"
	Instagram ID = "instagram"
)

// ErrUnknown is returned for a platform ID with no registered Config.
var ErrUnknown = errors.New("platform: unknown platform")

// Config describes how posts are found and identified on one platform.
// A Config is immutable once registered.
type Config struct {
	ID ID

	// PostTag is the element tag every post container carries.
	PostTag string
	// PostSelectors are tried in order; FallbackPostSelectors only when
	// the primary pass yields no valid post.
	PostSelectors         []string
	FallbackPostSelectors []string
	// PostMarkers: a valid post contains at least one match of any.
	PostMarkers []string

	// InjectionSelectors locate the action bar inside a post.
	InjectionSelectors []string
	// ActionMarkers validate an action bar and seed the fallback walk.
	ActionMarkers []string
	// InteractiveSelector counts button-like children of an action bar.
	InteractiveSelector string
	// MinInteractive is the number of interactive children that alone
	// qualifies an action bar.
	MinInteractive int
	// ContainerSelector is the ancestor the fallback walk stops at.
	ContainerSelector string

	// Hostnames are the canonical hosts post links may point to.
	Hostnames []string
	// PathPattern is the anchored pattern a canonical post path matches.
	// Its last capture group is the post id.
	PathPattern *regexp.Regexp
	// IdentityStrategies are tried in order to find the canonical link.
	IdentityStrategies []Strategy

	// DefaultTarget is the target hostname used when no setting exists.
	DefaultTarget string
	// Label is the control's visible text.
	Label string
}

// StrategyKind selects how a Strategy turns a match into a candidate URL.
type StrategyKind string

const (
	// StrategyLinkAround takes the nearest enclosing <a href> of each match.
	StrategyLinkAround StrategyKind = "link_around"
	// StrategyLink takes the href of each match.
	StrategyLink StrategyKind = "link"
	// StrategyDataAttr scans data-* attribute values of the post subtree.
	StrategyDataAttr StrategyKind = "data_attr"
)

// Strategy is one identity lookup step.
type Strategy struct {
	Kind     StrategyKind
	Selector string
}

// KnownHost reports whether host belongs to the platform.
func (c *Config) KnownHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return slices.Contains(c.Hostnames, host)
}

// PostID returns the id captured by PathPattern, or "".
func (c *Config) PostID(path string) string {
	if c.PathPattern == nil {
		return ""
	}
	m := c.PathPattern.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[len(m)-1]
}

// Validate checks the record is usable.
func (c *Config) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("platform: empty id")
	case c.PostTag == "":
		return fmt.Errorf("platform %s: empty post tag", c.ID)
	case len(c.PostSelectors) == 0 && len(c.FallbackPostSelectors) == 0:
		return fmt.Errorf("platform %s: no post selectors", c.ID)
	case len(c.InjectionSelectors) == 0 && len(c.ActionMarkers) == 0:
		return fmt.Errorf("platform %s: no injection selectors", c.ID)
	case len(c.Hostnames) == 0:
		return fmt.Errorf("platform %s: no hostnames", c.ID)
	case c.PathPattern == nil:
		return fmt.Errorf("platform %s: no path pattern", c.ID)
	case !strings.HasPrefix(c.PathPattern.String(), "^") || !strings.HasSuffix(c.PathPattern.String(), "$"):
		return fmt.Errorf("platform %s: path pattern must be anchored", c.ID)
	case c.DefaultTarget == "":
		return fmt.Errorf("platform %s: no default target", c.ID)
	}
	return nil
}

// Clone returns a deep copy, used when applying overrides.
func (c *Config) Clone() *Config {
	out := *c
	out.PostSelectors = slices.Clone(c.PostSelectors)
	out.FallbackPostSelectors = slices.Clone(c.FallbackPostSelectors)
	out.PostMarkers = slices.Clone(c.PostMarkers)
	out.InjectionSelectors = slices.Clone(c.InjectionSelectors)
	out.ActionMarkers = slices.Clone(c.ActionMarkers)
	out.Hostnames = slices.Clone(c.Hostnames)
	out.IdentityStrategies = slices.Clone(c.IdentityStrategies)
	return &out
}
