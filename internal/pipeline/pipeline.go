// Package pipeline orchestrates post handling: registry check, identity,
// control creation, injection point lookup, injection.
//
// No public operation panics or returns a Go error; every outcome is a
// structured Result.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/internal/control"
	"github.com/hazyhaar/postlink/internal/identity"
	"github.com/hazyhaar/postlink/internal/matcher"
	"github.com/hazyhaar/postlink/internal/registry"
	"github.com/hazyhaar/postlink/linkrewrite"
	"github.com/hazyhaar/postlink/platform"
)

// Config configures a Pipeline.
type Config struct {
	// Platforms resolves platform IDs. Default: platform.DefaultSet().
	Platforms *platform.Set
	// MaxAttempts bounds retries of posts without identity or action bar.
	MaxAttempts int
	// MaxEphemeral bounds the per-node registry track.
	MaxEphemeral int
	// Batch applies to ProcessAllPosts.
	Batch  BatchOptions
	Logger *slog.Logger
}

// BatchOptions filters a batch before processing.
type BatchOptions struct {
	// OnlyVisible skips posts outside the viewport.
	OnlyVisible bool
	// Threshold is the minimum visible share of a post's box, in [0,1].
	// Zero means any overlap.
	Threshold float64
}

// Pipeline is bound to one document. It is safe for concurrent use:
// the registry check and the injection of one post run under a single
// lock, so concurrent calls never put two controls on a post.
type Pipeline struct {
	doc       dom.Document
	platforms *platform.Set
	cfg       Config
	logger    *slog.Logger

	matcher   *matcher.Matcher
	extractor *identity.Extractor
	factory   *control.Factory
	injector  *control.Injector

	mu         sync.Mutex
	registries map[platform.ID]*registry.Registry

	// work serialises check-then-inject.
	work sync.Mutex

	stats stats
}

// New creates a Pipeline for doc.
func New(doc dom.Document, cfg Config) *Pipeline {
	if cfg.Platforms == nil {
		cfg.Platforms = platform.DefaultSet()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	docURL := ""
	if doc != nil {
		docURL = doc.URL()
	}
	return &Pipeline{
		doc:        doc,
		platforms:  cfg.Platforms,
		cfg:        cfg,
		logger:     cfg.Logger,
		matcher:    matcher.New(cfg.Logger),
		extractor:  identity.NewExtractor(docURL),
		factory:    control.NewFactory(doc),
		injector:   control.NewInjector(doc, cfg.Logger),
		registries: make(map[platform.ID]*registry.Registry),
		stats:      stats{reasons: make(map[Reason]uint64)},
	}
}

// Matcher exposes the post matcher the pipeline uses.
func (p *Pipeline) Matcher() *matcher.Matcher { return p.matcher }

// Injector exposes the injector the pipeline uses.
func (p *Pipeline) Injector() *control.Injector { return p.injector }

// Factory exposes the control factory the pipeline uses.
func (p *Pipeline) Factory() *control.Factory { return p.factory }

// Registry returns the registry of platform id, creating it on first use.
func (p *Pipeline) Registry(cfg *platform.Config) *registry.Registry {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.registries[cfg.ID]
	if !ok {
		r = registry.New(registry.Options{
			Presence: p.injector.HasControl,
			Identify: func(el dom.Element) string {
				id, err := p.extractor.Extract(el, cfg)
				if err != nil {
					return ""
				}
				return id.Key
			},
			MaxEphemeral: p.cfg.MaxEphemeral,
			MaxAttempts:  p.cfg.MaxAttempts,
		})
		p.registries[cfg.ID] = r
	}
	return r
}

// Clear drops the registry of one platform. Controls already on the page
// are left alone; callers remove them through the injector.
func (p *Pipeline) Clear(id platform.ID) {
	p.mu.Lock()
	r := p.registries[id]
	p.mu.Unlock()
	if r != nil {
		r.Clear()
	}
	p.logger.Info("pipeline: registry cleared", "platform", id)
}

// ProcessPost handles one post element.
func (p *Pipeline) ProcessPost(el dom.Element, id platform.ID, target string) (res Result) {
	res = Result{Platform: id, Element: el}
	defer func() {
		if v := recover(); v != nil {
			res = Result{
				Status:   StatusFailed,
				Reason:   ReasonUnexpected,
				Platform: id,
				PostKey:  res.PostKey,
				Element:  el,
				Err:      fmt.Errorf("pipeline: panic: %v", v),
			}
		}
		p.record(res, target)
	}()

	if dom.IsNil(el) {
		return fail(res, ReasonInvalidElement, errors.New("pipeline: nil element"))
	}
	cfg, err := p.platforms.Get(id)
	if err != nil {
		return fail(res, ReasonInvalidPlatform, err)
	}
	if !linkrewrite.ValidHostname(target) {
		return fail(res, ReasonInvalidHostname, fmt.Errorf("%w: %q", linkrewrite.ErrInvalidHostname, target))
	}
	if !p.matcher.Validate(cfg, el) {
		return fail(res, ReasonInvalidElement, errors.New("pipeline: element is not a rendered post"))
	}

	reg := p.Registry(cfg)
	p.work.Lock()
	defer p.work.Unlock()
	if reg.IsProcessed(el, true) {
		return skip(res, ReasonAlreadyProcessed)
	}
	if reg.Exhausted(el) {
		return skip(res, ReasonRetryExhausted)
	}

	ident, err := p.extractor.Extract(el, cfg)
	if err != nil {
		return fail(res, ReasonURLExtractionFailed, err)
	}
	if ident.Zero() {
		reg.MarkSkipped(el)
		return skip(res, ReasonNoURLFound)
	}
	res.PostKey = ident.Key

	ctrl, err := p.factory.Create(ident, cfg, target)
	if errors.Is(err, control.ErrDeclined) {
		return skip(res, ReasonControlDeclined)
	}
	if err != nil {
		return fail(res, ReasonButtonCreation, err)
	}

	point := p.matcher.FindInjectionPoint(cfg, el)
	if dom.IsNil(point) {
		reg.MarkSkipped(el)
		return skip(res, ReasonNoInjectionPoint)
	}

	if err := p.injector.Inject(ctrl, point, el, cfg); err != nil {
		if errors.Is(err, control.ErrAlreadyInjected) {
			reg.MarkProcessed(el, ident.Key)
			return skip(res, ReasonAlreadyProcessed)
		}
		return fail(res, ReasonButtonInjection, err)
	}
	reg.MarkProcessed(el, ident.Key)

	res.Status = StatusSuccess
	res.URL, _ = ctrl.Attr(control.AttrURL)
	return res
}

// ProcessBatch handles els in order, optionally dropping posts outside the
// viewport first.
func (p *Pipeline) ProcessBatch(els []dom.Element, id platform.ID, target string, opts BatchOptions) BatchResult {
	var out BatchResult
	var viewport dom.Rect
	if opts.OnlyVisible && p.doc != nil {
		err := guard(func() (err error) {
			viewport, err = p.doc.Viewport()
			return err
		})
		if err != nil {
			p.logger.Warn("pipeline: viewport unavailable, visibility filter off", "error", err)
			opts.OnlyVisible = false
		}
	}

	for _, el := range els {
		if opts.OnlyVisible && !dom.IsNil(el) {
			var vis bool
			err := guard(func() error {
				vis = p.visible(el, viewport, opts.Threshold)
				return nil
			})
			if err != nil {
				r := fail(Result{Platform: id, Element: el}, ReasonUnexpected, err)
				p.record(r, target)
				out.add(r)
				continue
			}
			if !vis {
				r := skip(Result{Platform: id, Element: el}, ReasonNotVisible)
				p.record(r, target)
				out.add(r)
				continue
			}
		}
		out.add(p.ProcessPost(el, id, target))
	}
	p.stats.batches.Add(1)
	return out
}

// ProcessAllPosts finds every post under root and processes them with the
// pipeline's batch options. A nil root scans the whole document.
func (p *Pipeline) ProcessAllPosts(id platform.ID, target string, root dom.Element) BatchResult {
	cfg, err := p.platforms.Get(id)
	if err != nil {
		var out BatchResult
		r := fail(Result{Platform: id}, ReasonInvalidPlatform, err)
		p.record(r, target)
		out.add(r)
		return out
	}
	var posts []dom.Element
	err = guard(func() error {
		if dom.IsNil(root) && p.doc != nil {
			root = p.doc.Root()
		}
		posts = p.matcher.FindPosts(cfg, root)
		return nil
	})
	if err != nil {
		var out BatchResult
		r := fail(Result{Platform: id, Element: root}, ReasonUnexpected, err)
		p.record(r, target)
		out.add(r)
		p.stats.batches.Add(1)
		return out
	}
	return p.ProcessBatch(posts, id, target, p.cfg.Batch)
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("pipeline: panic: %v", v)
		}
	}()
	return fn()
}

func (p *Pipeline) visible(el dom.Element, viewport dom.Rect, threshold float64) bool {
	r, err := el.Rect()
	if err != nil {
		return false
	}
	frac := r.VisibleFraction(viewport)
	if threshold <= 0 {
		return frac > 0
	}
	return frac >= threshold
}

func fail(r Result, reason Reason, err error) Result {
	r.Status = StatusFailed
	r.Reason = reason
	r.Err = err
	return r
}

func skip(r Result, reason Reason) Result {
	r.Status = StatusSkipped
	r.Reason = reason
	return r
}

func (p *Pipeline) record(r Result, target string) {
	p.stats.add(r)
	switch r.Status {
	case StatusFailed:
		p.logger.Warn("pipeline: post failed",
			"platform", r.Platform, "hostname", target, "post", r.PostKey,
			"element", describe(r.Element), "reason", r.Reason, "error", r.Err)
	case StatusSkipped:
		p.logger.Debug("pipeline: post skipped",
			"platform", r.Platform, "post", r.PostKey,
			"element", describe(r.Element), "reason", r.Reason)
	default:
		p.logger.Debug("pipeline: control injected",
			"platform", r.Platform, "hostname", target, "post", r.PostKey)
	}
}

// describe names el for logs as tag#id or tag@key.
func describe(el dom.Element) (out string) {
	if dom.IsNil(el) {
		return "<nil>"
	}
	defer func() {
		if recover() != nil {
			out = "<unavailable>"
		}
	}()
	if id, ok := el.Attr("id"); ok && id != "" {
		return el.Tag() + "#" + id
	}
	return fmt.Sprintf("%s@%v", el.Tag(), el.Key())
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Processed uint64            `json:"processed"`
	Injected  uint64            `json:"injected"`
	Skipped   uint64            `json:"skipped"`
	Failed    uint64            `json:"failed"`
	Batches   uint64            `json:"batches"`
	Reasons   map[Reason]uint64 `json:"reasons"`
}

type stats struct {
	processed atomic.Uint64
	injected  atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
	batches   atomic.Uint64

	mu      sync.Mutex
	reasons map[Reason]uint64
}

func (s *stats) add(r Result) {
	s.processed.Add(1)
	switch r.Status {
	case StatusSuccess:
		s.injected.Add(1)
	case StatusSkipped:
		s.skipped.Add(1)
	default:
		s.failed.Add(1)
	}
	if r.Reason != "" {
		s.mu.Lock()
		s.reasons[r.Reason]++
		s.mu.Unlock()
	}
}

// Stats returns the counters accumulated since New.
func (p *Pipeline) Stats() Stats {
	p.stats.mu.Lock()
	reasons := make(map[Reason]uint64, len(p.stats.reasons))
	for k, v := range p.stats.reasons {
		reasons[k] = v
	}
	p.stats.mu.Unlock()
	return Stats{
		Processed: p.stats.processed.Load(),
		Injected:  p.stats.injected.Load(),
		Skipped:   p.stats.skipped.Load(),
		Failed:    p.stats.failed.Load(),
		Batches:   p.stats.batches.Load(),
		Reasons:   reasons,
	}
}
