package memdom

import (
	"runtime"
	"strings"
	"weak"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/postlink/dom"
)

// Element is a handle on an *html.Node owned by a Document.
type Element struct {
	doc *Document
	n   *html.Node
}

// Node exposes the underlying node.
func (e *Element) Node() *html.Node { return e.n }

// Key returns a weak pointer to the node: equal for every handle on the
// same node, and it does not keep the node alive.
func (e *Element) Key() any { return weak.Make(e.n) }

// AfterCollect runs fn once the node has been garbage collected.
func (e *Element) AfterCollect(fn func()) {
	runtime.AddCleanup(e.n, func(f func()) { f() }, fn)
}

func (e *Element) Tag() string { return strings.ToLower(e.n.Data) }

func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return goquery.NewDocumentFromNode(e.n).Text()
}

func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for _, a := range e.n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *Element) Attributes() ([]dom.Attr, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	out := make([]dom.Attr, 0, len(e.n.Attr))
	for _, a := range e.n.Attr {
		out = append(out, dom.Attr{Name: a.Key, Value: a.Val})
	}
	return out, nil
}

func (e *Element) SetAttr(name, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	set := false
	for i := range e.n.Attr {
		if e.n.Attr[i].Key == name {
			e.n.Attr[i].Val = value
			set = true
			break
		}
	}
	if !set {
		e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
	}
	e.doc.notifyLocked(dom.MutationRecord{Type: dom.MutationAttributes, Target: e, Name: name}, e.n)
	return nil
}

func (e *Element) RemoveAttr(name string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	kept := e.n.Attr[:0]
	removed := false
	for _, a := range e.n.Attr {
		if a.Key == name {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	e.n.Attr = kept
	if removed {
		e.doc.notifyLocked(dom.MutationRecord{Type: dom.MutationAttributes, Target: e, Name: name}, e.n)
	}
	return nil
}

func (e *Element) SetText(text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	e.doc.notifyLocked(dom.MutationRecord{Type: dom.MutationText, Target: e}, e.n)
	return nil
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	found := goquery.NewDocumentFromNode(e.n).FindMatcher(sel)
	out := make([]dom.Element, 0, len(found.Nodes))
	for _, n := range found.Nodes {
		out = append(out, e.doc.wrap(n))
	}
	return out, nil
}

func (e *Element) Matches(selector string) (bool, error) {
	sel, err := compile(selector)
	if err != nil {
		return false, err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return sel.Match(e.n), nil
}

func (e *Element) Closest(selector string) (dom.Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for p := e.n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if sel.Match(p) {
			return e.doc.wrap(p), nil
		}
	}
	return nil, nil
}

func (e *Element) Parent() dom.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if p := e.n.Parent; p != nil && p.Type == html.ElementNode {
		return e.doc.wrap(p)
	}
	return nil
}

func (e *Element) ChildCount() int {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	count := 0
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			count++
		}
	}
	return count
}

func (e *Element) LastChild() dom.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for c := e.n.LastChild; c != nil; c = c.PrevSibling {
		if c.Type == html.ElementNode {
			return e.doc.wrap(c)
		}
	}
	return nil
}

func (e *Element) Rect() (dom.Rect, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.rectLocked(e.n), nil
}

func (e *Element) Connected() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.connectedLocked(e.n)
}

// AppendChild moves child to the end of e's children, detaching it from
// any previous parent first.
func (e *Element) AppendChild(child dom.Element) error {
	c, err := e.doc.own(child)
	if err != nil {
		return err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if old := c.n.Parent; old != nil {
		old.RemoveChild(c.n)
		e.doc.notifyLocked(dom.MutationRecord{
			Type:    dom.MutationChildList,
			Target:  e.doc.wrap(old),
			Removed: []dom.Element{c},
		}, old)
	}
	e.n.AppendChild(c.n)
	e.doc.notifyLocked(dom.MutationRecord{
		Type:   dom.MutationChildList,
		Target: e,
		Added:  []dom.Element{c},
	}, e.n)
	return nil
}

func (e *Element) Remove() error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	parent := e.n.Parent
	if parent == nil {
		return ErrDetached
	}
	parent.RemoveChild(e.n)
	e.doc.notifyLocked(dom.MutationRecord{
		Type:    dom.MutationChildList,
		Target:  e.doc.wrap(parent),
		Removed: []dom.Element{e},
	}, parent)
	return nil
}

// OuterHTML renders the element and its subtree.
func (e *Element) OuterHTML() (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return goquery.OuterHtml(goquery.NewDocumentFromNode(e.n).Selection)
}
