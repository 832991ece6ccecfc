package memdom

import (
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/postlink/dom"
)

// subscription delivers records for changes under root. Sends never block
// the mutating goroutine: when the channel is full the record is dropped
// and an overflow record is queued in front of the next delivery.
type subscription struct {
	doc      *Document
	root     *html.Node
	ch       chan []dom.MutationRecord
	overflow bool
	stopped  bool
	once     sync.Once
}

// Observe implements dom.MutationSource. interest is ignored: every record
// under root is delivered.
func (d *Document) Observe(root dom.Element, _ string) (dom.Subscription, error) {
	e, err := d.own(root)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &subscription{
		doc:  d,
		root: e.n,
		ch:   make(chan []dom.MutationRecord, d.feedBuffer),
	}
	d.subs = append(d.subs, s)
	return s, nil
}

func (s *subscription) C() <-chan []dom.MutationRecord { return s.ch }

func (s *subscription) Stop() {
	s.once.Do(func() {
		d := s.doc
		d.mu.Lock()
		defer d.mu.Unlock()
		kept := d.subs[:0]
		for _, other := range d.subs {
			if other != s {
				kept = append(kept, other)
			}
		}
		d.subs = kept
		s.stopped = true
		close(s.ch)
	})
}

// notifyLocked fans rec out to subscriptions whose root contains at.
// Callers hold d.mu.
func (d *Document) notifyLocked(rec dom.MutationRecord, at *html.Node) {
	for _, s := range d.subs {
		if s.stopped || !contains(s.root, at) {
			continue
		}
		batch := []dom.MutationRecord{rec}
		if s.overflow {
			batch = append([]dom.MutationRecord{{Type: dom.MutationOverflow}}, batch...)
		}
		select {
		case s.ch <- batch:
			s.overflow = false
		default:
			s.overflow = true
		}
	}
}

func contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}
