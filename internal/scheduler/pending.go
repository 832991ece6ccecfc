package scheduler

import (
	"time"

	"github.com/hazyhaar/postlink/dom"
)

// pending accumulates one throttle window. It is owned by the loop
// goroutine.
type pending struct {
	cfg     Config
	posts   []dom.Element
	seen    map[any]struct{}
	full    string
	dirty   bool
	timer   *time.Timer
	timerCh <-chan time.Time
}

func newPending(cfg Config) *pending {
	return &pending{cfg: cfg, seen: make(map[any]struct{})}
}

// add queues post and restarts the throttle timer.
func (p *pending) add(post dom.Element) {
	if p.full == "" {
		k := post.Key()
		if _, dup := p.seen[k]; !dup {
			p.seen[k] = struct{}{}
			p.posts = append(p.posts, post)
		}
		if len(p.posts) >= p.cfg.MaxPending {
			p.markFull(ReasonMaxPending)
			return
		}
	}
	p.touch()
}

// markFull turns the window into a full rescan.
func (p *pending) markFull(reason string) {
	p.full = reason
	p.posts = nil
	clear(p.seen)
	p.touch()
}

func (p *pending) overLimit() bool { return p.full == ReasonMaxPending }

func (p *pending) touch() {
	p.dirty = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.NewTimer(p.cfg.Throttle)
	p.timerCh = p.timer.C
}

// timerC fires when the window closes. Nil while idle.
func (p *pending) timerC() <-chan time.Time { return p.timerCh }

// take closes the window, returning its batch if it was dirty.
func (p *pending) take() (Batch, bool) {
	if !p.dirty {
		p.reset()
		return Batch{}, false
	}
	b := Batch{Posts: p.posts, Reason: ReasonMutation}
	if p.full != "" {
		b = Batch{Full: true, Reason: p.full}
	}
	p.reset()
	return b, true
}

func (p *pending) reset() {
	p.posts = nil
	clear(p.seen)
	p.full = ""
	p.dirty = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
		p.timerCh = nil
	}
}
