// Package matcher finds post containers and their action bars using
// ordered primary/fallback selector strategies with structural validation.
//
// A selector that fails to evaluate contributes zero matches; it never
// aborts a scan.
package matcher

import (
	"log/slog"
	"strings"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/platform"
)

// Matcher runs the selector strategies of a platform record.
type Matcher struct {
	logger *slog.Logger
}

// New creates a Matcher. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger}
}

// FindPosts returns the valid post containers under root in document order.
// Fallback selectors run only when every primary selector produced zero
// valid posts. A nil root or platform yields nil.
func (m *Matcher) FindPosts(cfg *platform.Config, root dom.Element) []dom.Element {
	if cfg == nil || dom.IsNil(root) {
		return nil
	}
	if posts := m.collect(cfg, root, cfg.PostSelectors); len(posts) > 0 {
		return posts
	}
	posts := m.collect(cfg, root, cfg.FallbackPostSelectors)
	if len(posts) > 0 {
		m.logger.Debug("matcher: posts found by fallback selectors",
			"platform", cfg.ID, "count", len(posts))
	}
	return posts
}

func (m *Matcher) collect(cfg *platform.Config, root dom.Element, selectors []string) []dom.Element {
	var out []dom.Element
	seen := make(map[any]struct{})
	for _, sel := range selectors {
		for _, el := range m.query(cfg, root, sel) {
			key := el.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			if !m.Validate(cfg, el) {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, el)
		}
	}
	return out
}

// Validate applies the structural checks a post container must pass: the
// platform's post tag, non-blank text, a non-empty rendered box, and at
// least one platform marker in its subtree.
func (m *Matcher) Validate(cfg *platform.Config, el dom.Element) bool {
	if cfg == nil || dom.IsNil(el) {
		return false
	}
	if !strings.EqualFold(el.Tag(), cfg.PostTag) {
		return false
	}
	if strings.TrimSpace(el.Text()) == "" {
		return false
	}
	r, err := el.Rect()
	if err != nil || r.Empty() {
		return false
	}
	if len(cfg.PostMarkers) == 0 {
		return true
	}
	for _, marker := range cfg.PostMarkers {
		if len(m.query(cfg, el, marker)) > 0 {
			return true
		}
	}
	return false
}

// MatchesPost reports whether el is selected by one of the platform's post
// selectors and passes validation. Used for targeted scans of freshly
// added nodes.
func (m *Matcher) MatchesPost(cfg *platform.Config, el dom.Element) bool {
	if cfg == nil || dom.IsNil(el) {
		return false
	}
	for _, list := range [][]string{cfg.PostSelectors, cfg.FallbackPostSelectors} {
		for _, sel := range list {
			ok, err := el.Matches(sel)
			if err != nil {
				m.selectorFailed(cfg, sel, err)
				continue
			}
			if ok {
				return m.Validate(cfg, el)
			}
		}
	}
	return false
}

func (m *Matcher) query(cfg *platform.Config, root dom.Element, sel string) []dom.Element {
	els, err := root.QueryAll(sel)
	if err != nil {
		m.selectorFailed(cfg, sel, err)
		return nil
	}
	return els
}

func (m *Matcher) selectorFailed(cfg *platform.Config, sel string, err error) {
	m.logger.Warn("matcher: selector failed",
		"platform", cfg.ID, "selector", sel, "error", err)
}
