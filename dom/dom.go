// Package dom defines the minimal document model postlink operates on.
//
// The host page owns every node. Implementations wrap a live browser tab
// (roddom) or an in-memory HTML tree (memdom); the pipeline never assumes a
// node survives between two scans.
package dom

import "reflect"

// Element is a handle on a live DOM element.
type Element interface {
	// Key identifies the underlying node for as long as it lives. Two
	// handles on the same node return equal keys.
	Key() any
	// Tag returns the lower-case tag name.
	Tag() string
	// Text returns the text content of the subtree.
	Text() string
	Attr(name string) (string, bool)
	Attributes() ([]Attr, error)
	SetAttr(name, value string) error
	RemoveAttr(name string) error
	// SetText replaces all children with a single text node.
	SetText(text string) error

	// QueryAll returns descendants matching selector in document order.
	QueryAll(selector string) ([]Element, error)
	// Matches reports whether the element itself matches selector.
	Matches(selector string) (bool, error)
	// Closest returns the nearest inclusive ancestor matching selector,
	// or nil.
	Closest(selector string) (Element, error)
	Parent() Element
	ChildCount() int
	LastChild() Element

	// Rect returns the rendered bounding box.
	Rect() (Rect, error)
	// Connected reports whether the element is attached to its document.
	Connected() bool

	AppendChild(child Element) error
	Remove() error
}

// Attr is one attribute of an element.
type Attr struct {
	Name  string
	Value string
}

// Document is the page hosting the elements.
type Document interface {
	Root() Element
	Body() Element
	// URL is the document URL used to resolve relative links.
	URL() string
	CreateElement(tag string) (Element, error)
	Viewport() (Rect, error)
}

// Collectable is implemented by elements whose backing node can report
// garbage collection. fn runs once, on an arbitrary goroutine, after the
// node became unreachable.
type Collectable interface {
	AfterCollect(fn func())
}

// Activator is implemented by documents that deliver activations (clicks)
// of injected controls.
type Activator interface {
	OnActivate(fn func(control Element))
}

// IsNil reports whether el is nil, including a typed nil pointer stored in
// the interface.
func IsNil(el Element) bool {
	if el == nil {
		return true
	}
	v := reflect.ValueOf(el)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
