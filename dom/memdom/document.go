// Package memdom is an in-memory dom backend built on golang.org/x/net/html.
//
// It carries a small layout stub (per-node rects and a viewport) so that
// structural validation and visibility filtering behave like a rendered
// page, and a native change-notification feed so the scheduler can be
// driven without a browser.
package memdom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/postlink/dom"
)

// ErrForeignElement is returned when an element from another document or
// backend is passed to a Document operation.
var ErrForeignElement = errors.New("memdom: element does not belong to this document")

// ErrDetached is returned when removing a node that has no parent.
var ErrDetached = errors.New("memdom: element is detached")

const (
	defaultFeedBuffer = 256
	controlSelector   = "[data-postlink-control]"
)

// Document is an in-memory page. All methods are safe for concurrent use.
type Document struct {
	mu          sync.Mutex
	node        *html.Node
	url         string
	viewport    dom.Rect
	defaultRect dom.Rect
	layout      map[*html.Node]dom.Rect
	subs        []*subscription
	feedBuffer  int
	activate    func(dom.Element)
}

// Option configures a Document.
type Option func(*Document)

// WithURL sets the document URL used to resolve relative links.
func WithURL(u string) Option { return func(d *Document) { d.url = u } }

// WithViewport sets the viewport rect. Default: 0,0 1280x800.
func WithViewport(r dom.Rect) Option { return func(d *Document) { d.viewport = r } }

// WithDefaultRect sets the rect reported for rendered nodes without an
// explicit layout entry. Default: 0,0 600x200.
func WithDefaultRect(r dom.Rect) Option { return func(d *Document) { d.defaultRect = r } }

// WithFeedBuffer sets the per-subscription channel capacity.
func WithFeedBuffer(n int) Option { return func(d *Document) { d.feedBuffer = n } }

// Parse reads an HTML page into a Document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("memdom: parse: %w", err)
	}
	if len(gq.Nodes) == 0 {
		return nil, fmt.Errorf("memdom: parse: empty document")
	}

	d := &Document{
		node:        gq.Nodes[0],
		viewport:    dom.Rect{Width: 1280, Height: 800},
		defaultRect: dom.Rect{Width: 600, Height: 200},
		layout:      make(map[*html.Node]dom.Rect),
		feedBuffer:  defaultFeedBuffer,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// ParseString is Parse for a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

func (d *Document) wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	return &Element{doc: d, n: n}
}

// Root returns the <html> element.
func (d *Document) Root() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := d.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrap(c)
		}
	}
	return nil
}

// Body returns the <body> element.
func (d *Document) Body() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := compile("body")
	if err != nil {
		return nil
	}
	if n := sel.MatchFirst(d.node); n != nil {
		return d.wrap(n)
	}
	return nil
}

// URL returns the document URL.
func (d *Document) URL() string { return d.url }

// CreateElement returns a new detached element.
func (d *Document) CreateElement(tag string) (dom.Element, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil, fmt.Errorf("memdom: create element: empty tag")
	}
	return d.wrap(&html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}), nil
}

// Fragment parses markup in a <body> context and returns its top-level
// elements, detached.
func (d *Document) Fragment(markup string) ([]*Element, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("memdom: fragment: %w", err)
	}
	var out []*Element
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, d.wrap(n))
		}
	}
	return out, nil
}

// Viewport returns the viewport rect.
func (d *Document) Viewport() (dom.Rect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport, nil
}

// SetViewport moves or resizes the viewport, e.g. to simulate scrolling.
func (d *Document) SetViewport(r dom.Rect) {
	d.mu.Lock()
	d.viewport = r
	d.mu.Unlock()
}

// SetRect records the rendered box of el.
func (d *Document) SetRect(el dom.Element, r dom.Rect) error {
	e, err := d.own(el)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.layout[e.n] = r
	d.mu.Unlock()
	return nil
}

// OnActivate registers the activation handler for injected controls.
func (d *Document) OnActivate(fn func(control dom.Element)) {
	d.mu.Lock()
	d.activate = fn
	d.mu.Unlock()
}

// Click simulates a user click on el. If el is, or is inside, an injected
// control the activation handler runs synchronously.
func (d *Document) Click(el dom.Element) bool {
	ctrl, err := el.Closest(controlSelector)
	if err != nil || ctrl == nil {
		return false
	}
	d.mu.Lock()
	fn := d.activate
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ctrl)
	return true
}

// HTML renders the whole document.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.node); err != nil {
		return "", fmt.Errorf("memdom: render: %w", err)
	}
	return buf.String(), nil
}

func (d *Document) own(el dom.Element) (*Element, error) {
	e, ok := el.(*Element)
	if !ok || e == nil || e.doc != d {
		return nil, ErrForeignElement
	}
	return e, nil
}

// connectedLocked reports whether n hangs below the document node.
func (d *Document) connectedLocked(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.node {
			return true
		}
	}
	return false
}

// rectLocked resolves the layout stub for n.
func (d *Document) rectLocked(n *html.Node) dom.Rect {
	if !d.connectedLocked(n) {
		return dom.Rect{}
	}
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if isHidden(p) {
			return dom.Rect{}
		}
	}
	if r, ok := d.layout[n]; ok {
		return r
	}
	return d.defaultRect
}

func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			s := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(s, "display:none") {
				return true
			}
		}
	}
	return false
}
