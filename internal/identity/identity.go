// Package identity derives the logical identity of a post from its
// canonical link, independently of which DOM node currently renders it.
package identity

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/platform"
)

// Identity names one logical post. The zero value means "untrackable".
type Identity struct {
	// Key is stable across DOM node replacement: "<platform>:<id>".
	Key string
	// ID is the platform's post id as found in the path.
	ID string
	// URL is the canonical link as found, made absolute. Query and
	// fragment are kept verbatim.
	URL string
}

// Zero reports whether no identity could be extracted.
func (id Identity) Zero() bool { return id.Key == "" }

// Extractor resolves candidate links against a document URL.
type Extractor struct {
	base *url.URL
}

// NewExtractor creates an Extractor resolving relative links against
// documentURL. An empty or invalid documentURL only accepts absolute links.
func NewExtractor(documentURL string) *Extractor {
	e := &Extractor{}
	if u, err := url.Parse(documentURL); err == nil && u.IsAbs() {
		e.base = u
	}
	return e
}

// Extract runs the platform strategies in order; the first accepted
// candidate wins. A zero Identity with a nil error means the post carries
// no usable link. Errors come from the DOM backend only.
func (e *Extractor) Extract(post dom.Element, cfg *platform.Config) (Identity, error) {
	if dom.IsNil(post) || cfg == nil {
		return Identity{}, nil
	}
	for _, st := range cfg.IdentityStrategies {
		candidates, err := e.candidates(post, st)
		if err != nil {
			return Identity{}, fmt.Errorf("identity: %s strategy %q: %w", st.Kind, st.Selector, err)
		}
		for _, raw := range candidates {
			if id, ok := e.Accept(raw, cfg); ok {
				return id, nil
			}
		}
	}
	return Identity{}, nil
}

// Accept validates one candidate link: absolute after resolution, https,
// a platform hostname, and a path matching the anchored id pattern.
func (e *Extractor) Accept(raw string, cfg *platform.Config) (Identity, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Identity{}, false
	}
	if !u.IsAbs() {
		if e.base == nil || strings.HasPrefix(raw, "//") {
			return Identity{}, false
		}
		u = e.base.ResolveReference(u)
		raw = u.String()
	}
	if u.Scheme != "https" || !cfg.KnownHost(u.Hostname()) {
		return Identity{}, false
	}
	id := cfg.PostID(u.Path)
	if id == "" {
		return Identity{}, false
	}
	return Identity{
		Key: string(cfg.ID) + ":" + id,
		ID:  id,
		URL: raw,
	}, true
}

func (e *Extractor) candidates(post dom.Element, st platform.Strategy) ([]string, error) {
	switch st.Kind {
	case platform.StrategyLink:
		els, err := post.QueryAll(st.Selector)
		if err != nil {
			return nil, err
		}
		return hrefs(els), nil

	case platform.StrategyLinkAround:
		els, err := post.QueryAll(st.Selector)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, el := range els {
			a, err := el.Closest("a[href]")
			if err != nil {
				return nil, err
			}
			if !dom.IsNil(a) {
				out = append(out, hrefs([]dom.Element{a})...)
			}
		}
		return out, nil

	case platform.StrategyDataAttr:
		return dataValues(post)
	}
	return nil, fmt.Errorf("unknown strategy kind %q", st.Kind)
}

func hrefs(els []dom.Element) []string {
	out := make([]string, 0, len(els))
	for _, el := range els {
		if h, ok := el.Attr("href"); ok {
			out = append(out, h)
		}
	}
	return out
}

// dataValues returns every data-* attribute value in the post subtree,
// the post itself first.
func dataValues(post dom.Element) ([]string, error) {
	els, err := post.QueryAll("*")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, el := range append([]dom.Element{post}, els...) {
		attrs, err := el.Attributes()
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			if strings.HasPrefix(a.Name, "data-") && strings.Contains(a.Value, "/") {
				out = append(out, a.Value)
			}
		}
	}
	return out, nil
}
