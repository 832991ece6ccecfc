package roddom

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/hazyhaar/postlink/dom"
)

type subscription struct {
	doc      *Document
	id       string
	root     *Element
	ch       chan []dom.MutationRecord
	wake     chan struct{}
	stop     chan struct{}
	once     sync.Once
	overflow bool
}

// Observe implements dom.MutationSource. Only additions of nodes matching
// interest are reported, as one childList record per collection.
func (d *Document) Observe(root dom.Element, interest string) (dom.Subscription, error) {
	r, ok := root.(*Element)
	if !ok || r == nil {
		return nil, fmt.Errorf("roddom: observe: foreign element")
	}
	if interest == "" {
		interest = "*"
	}

	d.mu.Lock()
	d.nextSub++
	id := "s" + strconv.Itoa(d.nextSub)
	s := &subscription{
		doc:  d,
		id:   id,
		root: r,
		ch:   make(chan []dom.MutationRecord, d.opts.FeedBuffer),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	d.subs[id] = s
	d.mu.Unlock()

	if _, err := r.el.Eval(observeJS, interest, bindingName, id); err != nil {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
		return nil, fmt.Errorf("roddom: inject observer: %w", err)
	}
	go s.loop()
	return s, nil
}

func (s *subscription) C() <-chan []dom.MutationRecord { return s.ch }

func (s *subscription) Stop() {
	s.once.Do(func() {
		d := s.doc
		d.mu.Lock()
		delete(d.subs, s.id)
		d.mu.Unlock()
		close(s.stop)
		if _, err := d.page.Eval(`(id) => {
			const r = window.__postlink_observers;
			if (r && r[id]) { r[id].disconnect(); delete r[id]; }
		}`, s.id); err != nil {
			d.logger.Debug("roddom: disconnect observer", "sub", s.id, "error", err)
		}
	})
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) loop() {
	defer close(s.ch)
	for {
		select {
		case <-s.stop:
			return
		case <-s.doc.ctx.Done():
			return
		case <-s.wake:
		}
		rec, err := s.collect()
		if err != nil {
			s.doc.logger.Warn("roddom: collect mutations", "sub", s.id, "error", err)
			s.overflow = true
			continue
		}
		if len(rec.Added) == 0 {
			continue
		}
		batch := []dom.MutationRecord{rec}
		if s.overflow {
			batch = append([]dom.MutationRecord{{Type: dom.MutationOverflow}}, batch...)
		}
		select {
		case s.ch <- batch:
			s.overflow = false
		case <-s.stop:
			return
		default:
			s.overflow = true
		}
	}
}

// collect gathers and untags the nodes the observer marked for this
// subscription.
func (s *subscription) collect() (dom.MutationRecord, error) {
	sel := "[" + attrPending + "=\"" + s.id + "\"]"
	rec := dom.MutationRecord{Type: dom.MutationChildList, Target: s.root}
	if ok, err := s.root.Matches(sel); err == nil && ok {
		s.root.RemoveAttr(attrPending)
		rec.Added = append(rec.Added, s.root)
	}
	hits, err := s.root.QueryAll(sel)
	if err != nil {
		return rec, err
	}
	for _, h := range hits {
		h.RemoveAttr(attrPending)
		rec.Added = append(rec.Added, h)
	}
	return rec, nil
}
