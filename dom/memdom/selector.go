package memdom

import (
	"fmt"
	"sync"

	"github.com/andybalholm/cascadia"
)

var selectorCache sync.Map // string -> cascadia.Selector

// compile parses selector once and caches the result. Invalid selectors
// return an error every time; they are not cached.
func compile(selector string) (cascadia.Selector, error) {
	if v, ok := selectorCache.Load(selector); ok {
		return v.(cascadia.Selector), nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("memdom: selector %q: %w", selector, err)
	}
	selectorCache.Store(selector, sel)
	return sel, nil
}
