package roddom

import (
	"errors"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/postlink/dom"
)

// Element wraps a rod element.
type Element struct {
	doc *Document
	el  *rod.Element
	key any
}

// Rod returns the underlying rod element.
func (e *Element) Rod() *rod.Element { return e.el }

// Key implements dom.Element with the backend node id, stable for the
// node's lifetime across handles. The remote object id is used when the
// node cannot be described.
func (e *Element) Key() any {
	if e.key != nil {
		return e.key
	}
	node, err := e.el.Describe(0, false)
	if err != nil || node == nil {
		e.key = string(e.el.Object.ObjectID)
	} else {
		e.key = node.BackendNodeID
	}
	return e.key
}

func (e *Element) str(js string, args ...any) string {
	v, err := e.el.Eval(js, args...)
	if err != nil {
		return ""
	}
	return v.Value.Str()
}

func (e *Element) Tag() string { return e.str(`() => this.tagName.toLowerCase()`) }

func (e *Element) Text() string { return e.str(`() => this.textContent`) }

func (e *Element) Attr(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e *Element) Attributes() ([]dom.Attr, error) {
	v, err := e.el.Eval(`() => Array.from(this.attributes, (a) => [a.name, a.value])`)
	if err != nil {
		return nil, fmt.Errorf("roddom: attributes: %w", err)
	}
	var out []dom.Attr
	for _, pair := range v.Value.Arr() {
		kv := pair.Arr()
		if len(kv) != 2 {
			continue
		}
		out = append(out, dom.Attr{Name: kv[0].Str(), Value: kv[1].Str()})
	}
	return out, nil
}

func (e *Element) SetAttr(name, value string) error {
	if _, err := e.el.Eval(`(n, v) => this.setAttribute(n, v)`, name, value); err != nil {
		return fmt.Errorf("roddom: set %s: %w", name, err)
	}
	return nil
}

func (e *Element) RemoveAttr(name string) error {
	if _, err := e.el.Eval(`(n) => this.removeAttribute(n)`, name); err != nil {
		return fmt.Errorf("roddom: remove %s: %w", name, err)
	}
	return nil
}

func (e *Element) SetText(text string) error {
	if _, err := e.el.Eval(`(t) => { this.textContent = t }`, text); err != nil {
		return fmt.Errorf("roddom: set text: %w", err)
	}
	return nil
}

func (e *Element) QueryAll(selector string) ([]dom.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("roddom: query %q: %w", selector, err)
	}
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, e.doc.wrap(el))
	}
	return out, nil
}

func (e *Element) Matches(selector string) (bool, error) {
	ok, err := e.el.Matches(selector)
	if err != nil {
		return false, fmt.Errorf("roddom: matches %q: %w", selector, err)
	}
	return ok, nil
}

func (e *Element) Closest(selector string) (dom.Element, error) {
	el, err := e.relative(`(s) => this.closest(s)`, selector)
	if err != nil {
		return nil, fmt.Errorf("roddom: closest %q: %w", selector, err)
	}
	if el == nil {
		return nil, nil
	}
	return el, nil
}

func (e *Element) Parent() dom.Element {
	el, err := e.relative(`() => this.parentElement`)
	if err != nil || el == nil {
		return nil
	}
	return el
}

func (e *Element) ChildCount() int {
	v, err := e.el.Eval(`() => this.childElementCount`)
	if err != nil {
		return 0
	}
	return v.Value.Int()
}

func (e *Element) LastChild() dom.Element {
	el, err := e.relative(`() => this.lastElementChild`)
	if err != nil || el == nil {
		return nil
	}
	return el
}

// relative evaluates js on the element and wraps the node it returns.
func (e *Element) relative(js string, args ...any) (*Element, error) {
	res, err := e.el.Evaluate(rod.Eval(js, args...).ByObject())
	if err != nil {
		return nil, err
	}
	return e.doc.fromObject(res)
}

func (e *Element) Rect() (dom.Rect, error) {
	v, err := e.el.Eval(`() => {
		const r = this.getBoundingClientRect();
		return { x: r.x, y: r.y, w: r.width, h: r.height };
	}`)
	if err != nil {
		return dom.Rect{}, fmt.Errorf("roddom: rect: %w", err)
	}
	return dom.Rect{
		X:      v.Value.Get("x").Num(),
		Y:      v.Value.Get("y").Num(),
		Width:  v.Value.Get("w").Num(),
		Height: v.Value.Get("h").Num(),
	}, nil
}

func (e *Element) Connected() bool {
	v, err := e.el.Eval(`() => this.isConnected`)
	if err != nil {
		return false
	}
	return v.Value.Bool()
}

func (e *Element) AppendChild(child dom.Element) error {
	c, ok := child.(*Element)
	if !ok || c == nil {
		return errors.New("roddom: append: foreign element")
	}
	if _, err := e.el.Eval(`(c) => { this.appendChild(c) }`, c.el.Object); err != nil {
		return fmt.Errorf("roddom: append: %w", err)
	}
	return nil
}

func (e *Element) Remove() error {
	if err := e.el.Remove(); err != nil {
		return fmt.Errorf("roddom: remove: %w", err)
	}
	return nil
}

// OuterHTML returns the serialized element.
func (e *Element) OuterHTML() (string, error) {
	return e.el.HTML()
}
