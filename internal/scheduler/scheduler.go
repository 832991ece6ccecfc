// Package scheduler turns a raw mutation feed into throttled scan batches.
//
// Added nodes that are or contain a post mark the scheduler dirty and
// (re)start a short throttle timer; when it fires, one batch carries every
// post added during the window. A coarser periodic timer asks for a full
// rescan regardless of mutations, catching changes the classification
// misses.
package scheduler

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/internal/idgen"
)

// Batch reasons.
const (
	ReasonMutation   = "mutation"
	ReasonRecheck    = "recheck"
	ReasonOverflow   = "overflow"
	ReasonQueryError = "query_error"
	ReasonMaxPending = "max_pending"
)

// ErrNoSource is returned by Observe when the scheduler has no feed.
var ErrNoSource = errors.New("scheduler: no mutation source")

// Config controls throttling and rechecks.
type Config struct {
	// Throttle is the quiet period after the last relevant mutation.
	// Default: 100ms.
	Throttle time.Duration
	// Recheck is the full-rescan interval. Default: 5s. Negative disables.
	Recheck time.Duration
	// MaxPending switches a window to a full rescan once this many posts
	// are pending. Default: 256.
	MaxPending int
	// PostTag is the element tag that makes a mutation relevant.
	// Default: "article".
	PostTag string
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.Throttle <= 0 {
		c.Throttle = 100 * time.Millisecond
	}
	if c.Recheck == 0 {
		c.Recheck = 5 * time.Second
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 256
	}
	if c.PostTag == "" {
		c.PostTag = "article"
	}
	c.PostTag = strings.ToLower(c.PostTag)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Batch is one scan request. Full batches ask for a scan of the whole
// observed root; otherwise Posts lists the newly added post elements in
// arrival order.
type Batch struct {
	ID     string
	Posts  []dom.Element
	Full   bool
	Reason string
}

// Scheduler owns at most one live subscription.
type Scheduler struct {
	source dom.MutationSource
	cfg    Config

	mu      sync.Mutex
	current *Subscription
}

// New creates a Scheduler fed by source.
func New(source dom.MutationSource, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{source: source, cfg: cfg}
}

// Observe subscribes to mutations under root and calls onBatch from a
// single goroutine, one batch at a time. A previous subscription of this
// scheduler is stopped first, so timers never stack.
func (s *Scheduler) Observe(root dom.Element, onBatch func(Batch)) (*Subscription, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	if dom.IsNil(root) || onBatch == nil {
		return nil, errors.New("scheduler: observe: nil root or callback")
	}

	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	feed, err := s.source.Observe(root, s.cfg.PostTag)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		cfg:     s.cfg,
		feed:    feed,
		onBatch: onBatch,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		pending: newPending(s.cfg),
	}

	s.mu.Lock()
	s.current = sub
	s.mu.Unlock()

	go sub.loop()
	s.cfg.Logger.Debug("scheduler: observing",
		"throttle", s.cfg.Throttle, "recheck", s.cfg.Recheck)
	return sub, nil
}

// Stop stops the current subscription, if any.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	sub := s.current
	s.current = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Stop()
	}
}

// Subscription is a live observation.
type Subscription struct {
	cfg     Config
	feed    dom.Subscription
	onBatch func(Batch)
	pending *pending

	stop       chan struct{}
	done       chan struct{}
	once       sync.Once
	stopped    atomic.Bool
	inCallback atomic.Bool
	batches    atomic.Uint64
}

// Stop halts the feed and both timers. It is idempotent. Once Stop
// returns no new batch is delivered. It waits for the loop to exit unless
// a batch is being delivered, so it may be called from inside onBatch.
func (sub *Subscription) Stop() {
	sub.once.Do(func() {
		sub.stopped.Store(true)
		close(sub.stop)
		sub.feed.Stop()
	})
	if !sub.inCallback.Load() {
		<-sub.done
	}
}

// Done is closed once the loop has exited.
func (sub *Subscription) Done() <-chan struct{} { return sub.done }

// Batches returns the number of batches delivered so far.
func (sub *Subscription) Batches() uint64 { return sub.batches.Load() }

func (sub *Subscription) loop() {
	defer close(sub.done)
	defer sub.pending.reset()

	var tickC <-chan time.Time
	if sub.cfg.Recheck > 0 {
		ticker := time.NewTicker(sub.cfg.Recheck)
		defer ticker.Stop()
		tickC = ticker.C
	}

	feed := sub.feed.C()
	for {
		select {
		case <-sub.stop:
			return

		case recs, ok := <-feed:
			if !ok {
				sub.cfg.Logger.Debug("scheduler: feed closed")
				return
			}
			if full := sub.classify(recs); full != "" {
				sub.pending.markFull(full)
			}
			if sub.pending.overLimit() {
				sub.flush()
			}

		case <-sub.pending.timerC():
			sub.flush()

		case <-tickC:
			sub.pending.reset()
			sub.emit(Batch{Full: true, Reason: ReasonRecheck})
		}
	}
}

// classify adds the post elements found in recs to the pending window.
// It returns a reason when the records cannot be attributed to specific
// posts.
func (sub *Subscription) classify(recs []dom.MutationRecord) string {
	reason := ""
	for _, rec := range recs {
		switch rec.Type {
		case dom.MutationOverflow:
			reason = ReasonOverflow
		case dom.MutationChildList:
			for _, added := range rec.Added {
				if dom.IsNil(added) {
					continue
				}
				if added.Tag() == sub.cfg.PostTag {
					sub.pending.add(added)
					continue
				}
				inner, err := added.QueryAll(sub.cfg.PostTag)
				if err != nil {
					sub.cfg.Logger.Warn("scheduler: classify query failed", "error", err)
					reason = ReasonQueryError
					continue
				}
				for _, p := range inner {
					sub.pending.add(p)
				}
			}
		}
	}
	return reason
}

func (sub *Subscription) flush() {
	b, ok := sub.pending.take()
	if !ok {
		return
	}
	sub.emit(b)
}

func (sub *Subscription) emit(b Batch) {
	if sub.stopped.Load() {
		return
	}
	b.ID = idgen.Batch()
	sub.batches.Add(1)
	sub.inCallback.Store(true)
	defer sub.inCallback.Store(false)
	sub.onBatch(b)
}
