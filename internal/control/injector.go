package control

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/platform"
)

var (
	// ErrInvalidArgument is returned when a required element is missing.
	ErrInvalidArgument = errors.New("control: invalid argument")
	// ErrAlreadyInjected is returned when a control already exists under
	// the post, whatever the registry believes.
	ErrAlreadyInjected = errors.New("control: already injected")
)

const (
	controlSelector = "[" + AttrControl + "]"
	wrapperSelector = "[" + AttrWrapper + "]"
	markerSelector  = "[" + AttrInjected + "]"
	pageSelector    = "[" + AttrPage + "]"

	wrapperStyle = "display:inline-flex;align-items:center;margin-left:8px;"
	pageStyle    = "position:fixed;right:16px;bottom:16px;z-index:9999;"
)

// Injector places controls. It only touches the subtree it is given.
type Injector struct {
	doc    dom.Document
	logger *slog.Logger
}

// NewInjector creates an Injector for doc. A nil logger uses slog.Default.
func NewInjector(doc dom.Document, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{doc: doc, logger: logger}
}

// Inject wraps control and appends the wrapper as the last child of point,
// then marks post. It refuses when a control is already present under post.
func (in *Injector) Inject(control, point, post dom.Element, cfg *platform.Config) error {
	if dom.IsNil(control) || dom.IsNil(point) || dom.IsNil(post) || cfg == nil || in.doc == nil {
		return ErrInvalidArgument
	}
	if in.HasControl(post) {
		return ErrAlreadyInjected
	}

	wrapper, err := in.doc.CreateElement("div")
	if err != nil {
		return fmt.Errorf("control: inject: %w", err)
	}
	if err := wrapper.SetAttr(AttrWrapper, string(cfg.ID)); err != nil {
		return fmt.Errorf("control: inject: %w", err)
	}
	if err := wrapper.SetAttr("style", wrapperStyle); err != nil {
		return fmt.Errorf("control: inject: %w", err)
	}
	if err := wrapper.AppendChild(control); err != nil {
		return fmt.Errorf("control: inject: %w", err)
	}
	if err := point.AppendChild(wrapper); err != nil {
		return fmt.Errorf("control: inject: %w", err)
	}
	if err := post.SetAttr(AttrInjected, string(cfg.ID)); err != nil {
		// The control is in place; the marker only speeds up lookups.
		in.logger.Warn("control: presence marker not set", "platform", cfg.ID, "error", err)
	}
	return nil
}

// HasControl reports whether a control physically exists under post.
func (in *Injector) HasControl(post dom.Element) bool {
	if dom.IsNil(post) {
		return false
	}
	found, err := post.QueryAll(controlSelector)
	if err != nil {
		in.logger.Warn("control: presence query failed", "error", err)
		return false
	}
	return len(found) > 0
}

// Remove takes the control out of post: the wrapper when present, else
// the bare control. It reports whether anything was removed.
func (in *Injector) Remove(post dom.Element) bool {
	if dom.IsNil(post) {
		return false
	}
	removed := in.removeAll(post, wrapperSelector) > 0
	if !removed {
		removed = in.removeAll(post, controlSelector) > 0
	}
	if err := post.RemoveAttr(AttrInjected); err != nil {
		in.logger.Debug("control: clear marker", "error", err)
	}
	return removed
}

// RemoveAll removes every control, wrapper, page control and presence
// marker below root. It returns the number of controls removed.
func (in *Injector) RemoveAll(root dom.Element) int {
	if dom.IsNil(root) {
		return 0
	}
	n := in.removeAll(root, wrapperSelector)
	n += in.removeAll(root, pageSelector)
	n += in.removeAll(root, controlSelector)
	marked, err := root.QueryAll(markerSelector)
	if err != nil {
		return n
	}
	for _, p := range marked {
		_ = p.RemoveAttr(AttrInjected)
	}
	return n
}

// InjectPage appends the page control to the document body in a fixed
// corner wrapper. At most one page control exists at a time.
func (in *Injector) InjectPage(control dom.Element) error {
	if dom.IsNil(control) || in.doc == nil {
		return ErrInvalidArgument
	}
	body := in.doc.Body()
	if dom.IsNil(body) {
		return fmt.Errorf("control: inject page: no body")
	}
	if existing, err := body.QueryAll(pageSelector); err == nil && len(existing) > 0 {
		return ErrAlreadyInjected
	}
	wrapper, err := in.doc.CreateElement("div")
	if err != nil {
		return fmt.Errorf("control: inject page: %w", err)
	}
	if err := wrapper.SetAttr(AttrPage, ""); err != nil {
		return fmt.Errorf("control: inject page: %w", err)
	}
	if err := wrapper.SetAttr("style", pageStyle); err != nil {
		return fmt.Errorf("control: inject page: %w", err)
	}
	if err := wrapper.AppendChild(control); err != nil {
		return fmt.Errorf("control: inject page: %w", err)
	}
	if err := body.AppendChild(wrapper); err != nil {
		return fmt.Errorf("control: inject page: %w", err)
	}
	return nil
}

// RemovePage removes the page control, reporting whether one existed.
func (in *Injector) RemovePage() bool {
	if in.doc == nil {
		return false
	}
	body := in.doc.Body()
	if dom.IsNil(body) {
		return false
	}
	return in.removeAll(body, pageSelector) > 0
}

func (in *Injector) removeAll(root dom.Element, selector string) int {
	els, err := root.QueryAll(selector)
	if err != nil {
		in.logger.Warn("control: query failed", "selector", selector, "error", err)
		return 0
	}
	n := 0
	for _, el := range els {
		if !el.Connected() {
			continue
		}
		if err := el.Remove(); err == nil {
			n++
		}
	}
	return n
}
