package matcher

import (
	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/platform"
)

// FindInjectionPoint returns the action bar inside post the control is
// appended to, or nil. Primary selectors must validate as an action bar;
// the fallback locates any action marker and walks up to its nearest
// container inside post. Hidden (zero-height) candidates are rejected.
func (m *Matcher) FindInjectionPoint(cfg *platform.Config, post dom.Element) dom.Element {
	if cfg == nil || dom.IsNil(post) {
		return nil
	}

	for _, sel := range cfg.InjectionSelectors {
		for _, cand := range m.query(cfg, post, sel) {
			if visible(cand) && m.isActionBar(cfg, cand) {
				return cand
			}
		}
	}

	postKey := post.Key()
	for _, marker := range cfg.ActionMarkers {
		for _, action := range m.query(cfg, post, marker) {
			if c := m.containerOf(cfg, action, postKey); c != nil && visible(c) {
				m.logger.Debug("matcher: injection point found by fallback",
					"platform", cfg.ID, "marker", marker)
				return c
			}
		}
	}
	return nil
}

func (m *Matcher) isActionBar(cfg *platform.Config, el dom.Element) bool {
	if cfg.InteractiveSelector != "" && cfg.MinInteractive > 0 {
		if len(m.query(cfg, el, cfg.InteractiveSelector)) >= cfg.MinInteractive {
			return true
		}
	}
	for _, marker := range cfg.ActionMarkers {
		if len(m.query(cfg, el, marker)) > 0 {
			return true
		}
	}
	return false
}

// containerOf walks from action's parent towards the post and returns the
// first ancestor matching the container selector. The post itself is never
// returned.
func (m *Matcher) containerOf(cfg *platform.Config, action dom.Element, postKey any) dom.Element {
	for p := action.Parent(); !dom.IsNil(p); p = p.Parent() {
		if p.Key() == postKey {
			return nil
		}
		if cfg.ContainerSelector == "" {
			return p
		}
		ok, err := p.Matches(cfg.ContainerSelector)
		if err != nil {
			m.selectorFailed(cfg, cfg.ContainerSelector, err)
			return nil
		}
		if ok {
			return p
		}
	}
	return nil
}

func visible(el dom.Element) bool {
	r, err := el.Rect()
	return err == nil && r.Height > 0
}
