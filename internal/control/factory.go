// Package control builds the redirect/copy controls and places them in
// post action bars.
package control

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/internal/identity"
	"github.com/hazyhaar/postlink/linkrewrite"
	"github.com/hazyhaar/postlink/platform"
)

// Attributes carried by injected elements.
const (
	AttrControl  = "data-postlink-control"
	AttrURL      = "data-postlink-url"
	AttrMode     = "data-postlink-mode"
	AttrPost     = "data-postlink-post"
	AttrWrapper  = "data-postlink-wrapper"
	AttrInjected = "data-postlink-injected"
	AttrPage     = "data-postlink-page"
)

// Mode is what activating a control does with its URL.
type Mode string

const (
	// ModeCopy copies the rewritten post URL (per-post controls).
	ModeCopy Mode = "copy"
	// ModeNavigate opens the rewritten page URL (page control).
	ModeNavigate Mode = "navigate"
)

// ErrDeclined is returned when there is nothing to build a control for:
// no identity, or a URL the rewrite rejects.
var ErrDeclined = errors.New("control: declined")

// Factory creates detached control elements in one document.
type Factory struct {
	doc dom.Document
}

// NewFactory creates a Factory for doc.
func NewFactory(doc dom.Document) *Factory {
	return &Factory{doc: doc}
}

// Create builds the per-post control pointing at id.URL rewritten to
// target. The element is detached; Injector places it.
func (f *Factory) Create(id identity.Identity, cfg *platform.Config, target string) (dom.Element, error) {
	if id.Zero() || cfg == nil {
		return nil, ErrDeclined
	}
	rewritten, err := linkrewrite.TransformURL(id.URL, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeclined, err)
	}
	el, err := f.button(cfg, rewritten, ModeCopy)
	if err != nil {
		return nil, err
	}
	if err := el.SetAttr(AttrPost, id.Key); err != nil {
		return nil, fmt.Errorf("control: create: %w", err)
	}
	return el, nil
}

// CreatePageControl builds the whole-page control: it navigates to the
// current page on target. Pages outside the platform are declined.
func (f *Factory) CreatePageControl(pageURL string, cfg *platform.Config, target string) (dom.Element, error) {
	if cfg == nil {
		return nil, ErrDeclined
	}
	u, err := url.Parse(pageURL)
	if err != nil || !cfg.KnownHost(u.Hostname()) {
		return nil, ErrDeclined
	}
	rewritten, err := linkrewrite.TransformURL(pageURL, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeclined, err)
	}
	return f.button(cfg, rewritten, ModeNavigate)
}

func (f *Factory) button(cfg *platform.Config, href string, mode Mode) (dom.Element, error) {
	if f.doc == nil {
		return nil, fmt.Errorf("control: create: no document")
	}
	el, err := f.doc.CreateElement("button")
	if err != nil {
		return nil, fmt.Errorf("control: create: %w", err)
	}
	label := cfg.Label
	if label == "" {
		label = "Copy link"
	}
	if mode == ModeNavigate {
		label = "Open on " + hostOf(href)
	}
	attrs := []dom.Attr{
		{Name: "type", Value: "button"},
		{Name: "role", Value: "button"},
		{Name: AttrControl, Value: string(cfg.ID)},
		{Name: AttrURL, Value: href},
		{Name: AttrMode, Value: string(mode)},
		{Name: "aria-label", Value: label},
		{Name: "title", Value: href},
	}
	for _, a := range attrs {
		if err := el.SetAttr(a.Name, a.Value); err != nil {
			return nil, fmt.Errorf("control: create: %w", err)
		}
	}
	if err := el.SetText(label); err != nil {
		return nil, fmt.Errorf("control: create: %w", err)
	}
	return el, nil
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return raw
}
