package postlink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/internal/action"
	"github.com/hazyhaar/postlink/internal/control"
	"github.com/hazyhaar/postlink/internal/idgen"
	"github.com/hazyhaar/postlink/internal/matcher"
	"github.com/hazyhaar/postlink/internal/pipeline"
	"github.com/hazyhaar/postlink/internal/scheduler"
	"github.com/hazyhaar/postlink/linkrewrite"
	"github.com/hazyhaar/postlink/platform"
	"github.com/hazyhaar/postlink/settings"
)

const attrFeedback = "data-postlink-feedback"

// SessionConfig configures a Session.
type SessionConfig struct {
	Platform platform.ID
	// Platforms resolves Platform. Default: platform.DefaultSet().
	Platforms *platform.Set
	// Settings supplies enabled/target/page control. Nil means defaults.
	Settings  settings.Provider
	Scheduler SchedulerConfig
	Batch     BatchOptions
	// MaxAttempts bounds retries of posts without identity or action bar.
	MaxAttempts  int
	MaxEphemeral int
	// Sink receives activations. Nil accepts them silently.
	Sink action.Sink
	// FeedbackDelay is how long "Copied"/"Failed" stays on a control.
	// Default: 1.5s.
	FeedbackDelay time.Duration
	// DeliverTimeout bounds one activation delivery. Default: 10s.
	DeliverTimeout time.Duration
	Logger         *slog.Logger
}

func (c *SessionConfig) defaults() {
	if c.Platforms == nil {
		c.Platforms = platform.DefaultSet()
	}
	if c.FeedbackDelay <= 0 {
		c.FeedbackDelay = 1500 * time.Millisecond
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session augments one document for one platform.
type Session struct {
	doc    dom.Document
	cfg    SessionConfig
	pcfg   *platform.Config
	pipe   *pipeline.Pipeline
	sched  *scheduler.Scheduler
	logger *slog.Logger

	// docMu serializes page work: scans, removals, feedback.
	docMu sync.Mutex

	mu         sync.Mutex
	current    settings.Platform
	applied    bool
	sub        *scheduler.Subscription
	pageTarget string
	pageURL    string
	cancel     context.CancelFunc
	closed     bool

	activations atomic.Uint64
	batches     atomic.Uint64
}

// NewSession creates a Session over doc. source may be nil: the session
// then only scans on Start, settings changes and Rescan.
func NewSession(doc dom.Document, source dom.MutationSource, cfg SessionConfig) (*Session, error) {
	cfg.defaults()
	if doc == nil {
		return nil, fmt.Errorf("postlink: session: no document")
	}
	pcfg, err := cfg.Platforms.Get(cfg.Platform)
	if err != nil {
		return nil, fmt.Errorf("postlink: session: %w", err)
	}
	logger := cfg.Logger.With("platform", cfg.Platform)

	sc := cfg.Scheduler
	sc.PostTag = pcfg.PostTag
	sc.Logger = logger

	s := &Session{
		doc:  doc,
		cfg:  cfg,
		pcfg: pcfg,
		pipe: pipeline.New(doc, pipeline.Config{
			Platforms:    cfg.Platforms,
			MaxAttempts:  cfg.MaxAttempts,
			MaxEphemeral: cfg.MaxEphemeral,
			Batch:        cfg.Batch,
			Logger:       logger,
		}),
		logger: logger,
	}
	if source != nil {
		s.sched = scheduler.New(source, sc)
	}
	if a, ok := doc.(dom.Activator); ok {
		a.OnActivate(s.activate)
	}
	return s, nil
}

// Start resolves the settings, applies them and follows provider changes
// until ctx is done or Close is called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("postlink: session closed")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	all := settings.Resolve(ctx, s.cfg.Settings, s.cfg.Platforms, s.logger)
	s.Apply(all[s.cfg.Platform])

	if p := s.cfg.Settings; p != nil {
		go func() {
			err := p.Watch(ctx, func(next settings.Settings) {
				s.Apply(settings.Normalize(next, s.cfg.Platforms)[s.cfg.Platform])
			})
			if err != nil {
				s.logger.Warn("postlink: settings watch ended", "error", err)
			}
		}()
	}
	return nil
}

// Apply switches the session to p. Disabling stops scanning and removes
// every control; a new target clears the registry, removes every control
// and rescans.
func (s *Session) Apply(p settings.Platform) {
	if !linkrewrite.ValidHostname(p.Target) {
		p.Target = s.pcfg.DefaultTarget
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev, applied := s.current, s.applied
	s.current, s.applied = p, true
	sub := s.sub
	if !p.Enabled {
		s.sub = nil
	}
	s.mu.Unlock()

	switch {
	case !p.Enabled:
		if sub != nil {
			sub.Stop()
		}
		s.docMu.Lock()
		n := s.removeAllLocked()
		s.docMu.Unlock()
		s.logger.Info("postlink: disabled", "removed", n)
		return
	case !applied || !prev.Enabled:
		s.logger.Info("postlink: enabled", "target", p.Target)
		s.begin(p)
	case prev.Target != p.Target:
		s.docMu.Lock()
		n := s.removeAllLocked()
		res := s.pipe.ProcessAllPosts(s.cfg.Platform, p.Target, nil)
		s.docMu.Unlock()
		s.logger.Info("postlink: target changed",
			"from", prev.Target, "to", p.Target, "removed", n, "injected", res.Succeeded)
	}

	s.docMu.Lock()
	s.syncPageControlLocked(p)
	s.docMu.Unlock()
}

// begin runs the initial scan and starts observing.
func (s *Session) begin(p settings.Platform) {
	s.docMu.Lock()
	res := s.pipe.ProcessAllPosts(s.cfg.Platform, p.Target, nil)
	s.docMu.Unlock()
	s.logger.Info("postlink: initial scan", "total", res.Total, "injected", res.Succeeded, "failed", res.Failed)

	if s.sched == nil {
		return
	}
	root := s.doc.Body()
	if dom.IsNil(root) {
		root = s.doc.Root()
	}
	sub, err := s.sched.Observe(root, s.onBatch)
	if err != nil {
		s.logger.Warn("postlink: observe failed, scanning on demand only", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed || !s.current.Enabled {
		s.mu.Unlock()
		sub.Stop()
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

func (s *Session) onBatch(b scheduler.Batch) {
	s.mu.Lock()
	p, closed := s.current, s.closed
	s.mu.Unlock()
	if closed || !p.Enabled {
		return
	}
	s.batches.Add(1)

	s.docMu.Lock()
	defer s.docMu.Unlock()
	// Apply may have run while this batch waited for the document.
	s.mu.Lock()
	p, closed = s.current, s.closed
	s.mu.Unlock()
	if closed || !p.Enabled {
		return
	}

	var res pipeline.BatchResult
	if b.Full {
		res = s.pipe.ProcessAllPosts(s.cfg.Platform, p.Target, nil)
		s.syncPageControlLocked(p)
	} else {
		res = s.pipe.ProcessBatch(s.targeted(b.Posts), s.cfg.Platform, p.Target, s.cfg.Batch)
	}
	if res.Succeeded > 0 || res.Failed > 0 {
		s.logger.Debug("postlink: batch",
			"id", b.ID, "reason", b.Reason, "full", b.Full,
			"total", res.Total, "injected", res.Succeeded, "failed", res.Failed)
	}
}

// targeted keeps the added elements that the platform's post selectors
// select. An element whose backend fails is dropped; the next recheck
// scans it again.
func (s *Session) targeted(els []dom.Element) []dom.Element {
	m := s.pipe.Matcher()
	out := els[:0:0]
	for _, el := range els {
		if s.matchesPost(m, el) {
			out = append(out, el)
		}
	}
	return out
}

func (s *Session) matchesPost(m *matcher.Matcher, el dom.Element) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			s.logger.Warn("postlink: targeted match failed", "error", v)
			ok = false
		}
	}()
	return m.MatchesPost(s.pcfg, el)
}

// Rescan processes every post of the document now.
func (s *Session) Rescan() BatchResult {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if !p.Enabled {
		return BatchResult{}
	}
	return s.pipe.ProcessAllPosts(s.cfg.Platform, p.Target, nil)
}

func (s *Session) removeAllLocked() int {
	s.pipe.Clear(s.cfg.Platform)
	s.mu.Lock()
	s.pageTarget, s.pageURL = "", ""
	s.mu.Unlock()
	root := s.doc.Root()
	if dom.IsNil(root) {
		return 0
	}
	return s.pipe.Injector().RemoveAll(root)
}

// syncPageControlLocked adds, refreshes or removes the page control.
func (s *Session) syncPageControlLocked(p settings.Platform) {
	in := s.pipe.Injector()
	if !p.Enabled || !p.PageControl {
		if in.RemovePage() {
			s.logger.Debug("postlink: page control removed")
		}
		s.mu.Lock()
		s.pageTarget, s.pageURL = "", ""
		s.mu.Unlock()
		return
	}

	pageURL := s.doc.URL()
	s.mu.Lock()
	fresh := s.pageTarget == p.Target && s.pageURL == pageURL
	s.mu.Unlock()
	if fresh {
		return
	}

	in.RemovePage()
	ctl, err := s.pipe.Factory().CreatePageControl(pageURL, s.pcfg, p.Target)
	if err != nil {
		s.logger.Debug("postlink: no page control", "url", pageURL, "error", err)
		return
	}
	if err := in.InjectPage(ctl); err != nil {
		s.logger.Warn("postlink: page control injection failed", "error", err)
		return
	}
	s.mu.Lock()
	s.pageTarget, s.pageURL = p.Target, pageURL
	s.mu.Unlock()
}

// activate handles a click on an injected control.
func (s *Session) activate(ctl dom.Element) {
	if id, _ := ctl.Attr(control.AttrControl); platform.ID(id) != s.cfg.Platform {
		return
	}
	href, ok := ctl.Attr(control.AttrURL)
	if !ok || href == "" {
		return
	}
	mode, _ := ctl.Attr(control.AttrMode)
	postKey, _ := ctl.Attr(control.AttrPost)

	a := action.Activation{
		ID:       idgen.Activation(),
		Mode:     action.Mode(mode),
		URL:      href,
		PostKey:  postKey,
		Platform: s.cfg.Platform,
		PageURL:  s.doc.URL(),
		At:       time.Now(),
	}
	s.activations.Add(1)

	var err error
	if s.cfg.Sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DeliverTimeout)
		err = s.cfg.Sink.Deliver(ctx, a)
		cancel()
	}
	if err != nil {
		s.logger.Warn("postlink: activation failed", "id", a.ID, "mode", a.Mode, "error", err)
		s.feedback(ctl, "Failed", "error")
		return
	}
	s.logger.Info("postlink: activation", "id", a.ID, "mode", a.Mode, "url", a.URL)
	if a.Mode != action.ModeNavigate {
		s.feedback(ctl, "Copied", "ok")
	}
}

// feedback shows text on ctl, then restores its label after FeedbackDelay.
func (s *Session) feedback(ctl dom.Element, text, state string) {
	s.docMu.Lock()
	ctl.SetText(text)
	ctl.SetAttr(attrFeedback, state)
	s.docMu.Unlock()

	time.AfterFunc(s.cfg.FeedbackDelay, func() {
		s.docMu.Lock()
		defer s.docMu.Unlock()
		if !ctl.Connected() {
			return
		}
		if cur, _ := ctl.Attr(attrFeedback); cur != state {
			return
		}
		label, _ := ctl.Attr("aria-label")
		ctl.SetText(label)
		ctl.RemoveAttr(attrFeedback)
	})
}

// SessionStats is a snapshot of a session.
type SessionStats struct {
	Platform    platform.ID   `json:"platform"`
	Enabled     bool          `json:"enabled"`
	Target      string        `json:"target"`
	PageControl bool          `json:"page_control"`
	URL         string        `json:"url"`
	Batches     uint64        `json:"batches"`
	Activations uint64        `json:"activations"`
	Pipeline    PipelineStats `json:"pipeline"`
}

// Stats returns the session counters.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	return SessionStats{
		Platform:    s.cfg.Platform,
		Enabled:     p.Enabled,
		Target:      p.Target,
		PageControl: p.PageControl,
		URL:         s.doc.URL(),
		Batches:     s.batches.Load(),
		Activations: s.activations.Load(),
		Pipeline:    s.pipe.Stats(),
	}
}

// Close stops observing and the settings watch. Controls stay on the page.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub, cancel := s.sub, s.cancel
	s.sub = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Stop()
	}
	if s.sched != nil {
		s.sched.Stop()
	}
}
