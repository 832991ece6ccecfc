// Package registry remembers which logical posts have been handled.
//
// Two tracks are kept: an ephemeral one keyed by the live node, and a
// durable one keyed by the post identity. Neither is trusted on its own
// when physical verification is requested: only a control actually
// present under the post proves it is handled.
package registry

import (
	"sync"

	"github.com/hazyhaar/postlink/dom"
)

const (
	defaultMaxEphemeral = 4096
	defaultMaxAttempts  = 3
)

// Options configures a Registry.
type Options struct {
	// Presence reports whether a control physically exists under post.
	// Required for verified lookups; without it verification always fails.
	Presence func(post dom.Element) bool
	// Identify returns the durable key of post, "" when unknown. Used by
	// unverified lookups that miss the ephemeral track.
	Identify func(post dom.Element) string
	// MaxEphemeral bounds the ephemeral track for nodes that cannot
	// report their own collection. Oldest entries go first.
	MaxEphemeral int
	// MaxAttempts is how many times an untrackable post is retried
	// before it is left alone.
	MaxAttempts int
}

func (o *Options) defaults() {
	if o.MaxEphemeral <= 0 {
		o.MaxEphemeral = defaultMaxEphemeral
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
}

// Registry is safe for concurrent use.
type Registry struct {
	opts Options

	mu        sync.Mutex
	ephemeral map[any]struct{}
	skips     map[any]int
	durable   map[string]struct{}
	// order tracks insertion of keys without a collection hook.
	order   []any
	tracked map[any]bool
	gen     uint64
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	opts.defaults()
	return &Registry{
		opts:      opts,
		ephemeral: make(map[any]struct{}),
		skips:     make(map[any]int),
		durable:   make(map[string]struct{}),
		tracked:   make(map[any]bool),
	}
}

// IsProcessed reports whether post has been handled.
//
// With verify, the answer is the physical presence of a control and
// nothing else: a registry hit whose control vanished (node replaced by
// virtual scrolling) reports false so the post gets a new control.
func (r *Registry) IsProcessed(post dom.Element, verify bool) bool {
	if dom.IsNil(post) {
		return false
	}
	if verify {
		return r.opts.Presence != nil && r.opts.Presence(post)
	}

	r.mu.Lock()
	_, hit := r.ephemeral[post.Key()]
	r.mu.Unlock()
	if hit || r.opts.Identify == nil {
		return hit
	}
	return r.Known(r.opts.Identify(post))
}

// Known reports whether the durable track holds key.
func (r *Registry) Known(key string) bool {
	if key == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.durable[key]
	return ok
}

// MarkProcessed records post in the ephemeral track and, when key is
// non-empty, key in the durable track. Any skip memo for post is dropped.
func (r *Registry) MarkProcessed(post dom.Element, key string) {
	if dom.IsNil(post) {
		return
	}
	k := post.Key()
	r.mu.Lock()
	r.ephemeral[k] = struct{}{}
	delete(r.skips, k)
	if key != "" {
		r.durable[key] = struct{}{}
	}
	r.mu.Unlock()
	r.track(post, k)
}

// MarkSkipped counts one more attempt on a post that could not be
// handled (no identity, no injection point). It reports true once the
// post has used up its attempts.
func (r *Registry) MarkSkipped(post dom.Element) bool {
	if dom.IsNil(post) {
		return false
	}
	k := post.Key()
	r.mu.Lock()
	r.skips[k]++
	n := r.skips[k]
	r.mu.Unlock()
	r.track(post, k)
	return n >= r.opts.MaxAttempts
}

// Exhausted reports whether post used up its skip attempts.
func (r *Registry) Exhausted(post dom.Element) bool {
	if dom.IsNil(post) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skips[post.Key()] >= r.opts.MaxAttempts
}

// Clear drops every entry of both tracks and all skip memos.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ephemeral = make(map[any]struct{})
	r.skips = make(map[any]int)
	r.durable = make(map[string]struct{})
	r.tracked = make(map[any]bool)
	r.order = nil
	r.gen++
}

// Len returns the sizes of the ephemeral and durable tracks.
func (r *Registry) Len() (ephemeral, durable int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ephemeral), len(r.durable)
}

// track arranges for k to be evicted: on collection when the node
// supports it, otherwise by FIFO once MaxEphemeral is exceeded.
func (r *Registry) track(post dom.Element, k any) {
	r.mu.Lock()
	if r.tracked[k] {
		r.mu.Unlock()
		return
	}
	r.tracked[k] = true
	gen := r.gen

	c, collectable := post.(dom.Collectable)
	if !collectable {
		r.order = append(r.order, k)
		for len(r.order) > r.opts.MaxEphemeral {
			r.dropLocked(r.order[0])
			r.order = r.order[1:]
		}
	}
	r.mu.Unlock()

	if collectable {
		c.AfterCollect(func() { r.evict(k, gen) })
	}
}

func (r *Registry) evict(k any, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return
	}
	r.dropLocked(k)
}

func (r *Registry) dropLocked(k any) {
	delete(r.ephemeral, k)
	delete(r.skips, k)
	delete(r.tracked, k)
}
