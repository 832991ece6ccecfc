// Package roddom implements the dom interfaces over a live Chrome tab
// driven by go-rod.
//
// Every element operation is a DevTools round trip. Mutations come from a
// MutationObserver injected per subscription which tags added posts and
// pings Go through a runtime binding; Go then collects the tagged nodes.
package roddom

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/postlink/dom"
)

//go:embed observe.js
var observeJS string

//go:embed activate.js
var activateJS string

const (
	bindingName   = "__postlink_binding"
	attrPending   = "data-postlink-pending"
	attrActivated = "data-postlink-activated"
)

// Options configures a Document.
type Options struct {
	// ActivateSelector matches the injected controls whose clicks are
	// reported to OnActivate handlers.
	ActivateSelector string
	// FeedBuffer is the per-subscription channel capacity. Default: 64.
	FeedBuffer int
	Logger     *slog.Logger
}

// Document wraps a rod page.
type Document struct {
	page   *rod.Page
	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	subs      map[string]*subscription
	nextSub   int
	activate  []func(dom.Element)
	activated chan struct{}
}

// New attaches to page: it registers the runtime binding and starts the
// event listener, which stops with ctx or Close.
func New(ctx context.Context, page *rod.Page, opts Options) (*Document, error) {
	if opts.FeedBuffer <= 0 {
		opts.FeedBuffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	d := &Document{
		page:      page.Context(ctx),
		opts:      opts,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[string]*subscription),
		activated: make(chan struct{}, 1),
	}
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(d.page); err != nil {
		d.logger.Warn("roddom: addBinding failed (may already exist)", "error", err)
	}
	go d.listen()
	go d.activationLoop()
	return d, nil
}

// Page returns the underlying page.
func (d *Document) Page() *rod.Page { return d.page }

// Close stops the listener and every subscription.
func (d *Document) Close() {
	d.mu.Lock()
	subs := make([]*subscription, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.mu.Unlock()
	for _, s := range subs {
		s.Stop()
	}
	d.cancel()
}

func (d *Document) wrap(el *rod.Element) *Element {
	if el == nil {
		return nil
	}
	return &Element{doc: d, el: el}
}

// elementByJS evaluates js on the page and wraps the resulting node, or
// returns nil when it evaluates to null.
func (d *Document) elementByJS(js string, args ...any) (*Element, error) {
	res, err := d.page.Evaluate(rod.Eval(js, args...).ByObject())
	if err != nil {
		return nil, err
	}
	return d.fromObject(res)
}

func (d *Document) fromObject(obj *proto.RuntimeRemoteObject) (*Element, error) {
	if obj == nil || obj.ObjectID == "" || obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil, nil
	}
	el, err := d.page.ElementFromObject(obj)
	if err != nil {
		return nil, err
	}
	return d.wrap(el), nil
}

// Root implements dom.Document.
func (d *Document) Root() dom.Element {
	el, err := d.elementByJS(`() => document.documentElement`)
	if err != nil || el == nil {
		return nil
	}
	return el
}

// Body implements dom.Document.
func (d *Document) Body() dom.Element {
	el, err := d.elementByJS(`() => document.body`)
	if err != nil || el == nil {
		return nil
	}
	return el
}

// URL implements dom.Document.
func (d *Document) URL() string {
	v, err := d.page.Eval(`() => location.href`)
	if err != nil {
		return ""
	}
	return v.Value.Str()
}

// CreateElement implements dom.Document. The element is detached until
// appended.
func (d *Document) CreateElement(tag string) (dom.Element, error) {
	el, err := d.elementByJS(`(t) => document.createElement(t)`, tag)
	if err != nil {
		return nil, fmt.Errorf("roddom: create %s: %w", tag, err)
	}
	if el == nil {
		return nil, fmt.Errorf("roddom: create %s: null element", tag)
	}
	return el, nil
}

// Viewport implements dom.Document in the coordinate space of
// getBoundingClientRect.
func (d *Document) Viewport() (dom.Rect, error) {
	v, err := d.page.Eval(`() => ({ w: window.innerWidth, h: window.innerHeight })`)
	if err != nil {
		return dom.Rect{}, fmt.Errorf("roddom: viewport: %w", err)
	}
	return dom.Rect{Width: v.Value.Get("w").Num(), Height: v.Value.Get("h").Num()}, nil
}

// OnActivate implements dom.Activator. The first registration installs a
// capturing click listener for Options.ActivateSelector.
func (d *Document) OnActivate(fn func(control dom.Element)) {
	d.mu.Lock()
	d.activate = append(d.activate, fn)
	first := len(d.activate) == 1
	d.mu.Unlock()
	if first {
		if err := d.InstallActivation(); err != nil {
			d.logger.Warn("roddom: install click listener", "error", err)
		}
	}
}

// InstallActivation (re)installs the click listener. Call it after the
// page navigated.
func (d *Document) InstallActivation() error {
	if d.opts.ActivateSelector == "" {
		return errors.New("roddom: no activate selector")
	}
	_, err := d.page.Eval(activateJS, bindingName, d.opts.ActivateSelector)
	return err
}

type bindingPayload struct {
	Kind  string `json:"kind"`
	Sub   string `json:"sub"`
	Count int    `json:"count"`
}

func parsePayload(raw string) (bindingPayload, error) {
	var p bindingPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, err
	}
	switch p.Kind {
	case "mutation":
		if p.Sub == "" {
			return p, errors.New("mutation without subscription")
		}
	case "activate":
	default:
		return p, fmt.Errorf("unknown kind %q", p.Kind)
	}
	return p, nil
}

// listen routes binding calls. Page work happens on other goroutines: the
// event loop must not block on DevTools round trips.
func (d *Document) listen() {
	d.page.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		p, err := parsePayload(e.Payload)
		if err != nil {
			d.logger.Warn("roddom: bad binding payload", "error", err)
			return
		}
		switch p.Kind {
		case "mutation":
			d.mu.Lock()
			s := d.subs[p.Sub]
			d.mu.Unlock()
			if s != nil {
				s.signal()
			}
		case "activate":
			select {
			case d.activated <- struct{}{}:
			default:
			}
		}
	})()
}

func (d *Document) activationLoop() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.activated:
		}
		root := d.Root()
		if root == nil {
			continue
		}
		hits, err := root.QueryAll("[" + attrActivated + "]")
		if err != nil {
			d.logger.Warn("roddom: collect activations", "error", err)
			continue
		}
		d.mu.Lock()
		fns := append([]func(dom.Element){}, d.activate...)
		d.mu.Unlock()
		for _, h := range hits {
			h.RemoveAttr(attrActivated)
			for _, fn := range fns {
				fn(h)
			}
		}
	}
}
