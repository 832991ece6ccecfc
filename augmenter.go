package postlink

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/postlink/dom/roddom"
	"github.com/hazyhaar/postlink/internal/action"
	"github.com/hazyhaar/postlink/internal/browser"
	"github.com/hazyhaar/postlink/internal/control"
	"github.com/hazyhaar/postlink/platform"
	"github.com/hazyhaar/postlink/settings"
)

// Augmenter runs one Session per configured page in a managed Chrome.
// After a browser recycle every page is reopened and its session rebuilt.
type Augmenter struct {
	cfg       *Config
	platforms *platform.Set
	provider  settings.Provider
	mgr       *browser.Manager
	shared    []action.Sink
	logger    *slog.Logger

	mu    sync.Mutex
	ctx   context.Context
	pages map[string]*pageSession
}

type pageSession struct {
	cfg  PageConfig
	tab  *browser.Tab
	doc  *roddom.Document
	sess *Session
}

// NewAugmenter creates an Augmenter. provider may be nil (defaults).
// sinks receive every activation in addition to the configured ones.
func NewAugmenter(cfg *Config, provider settings.Provider, logger *slog.Logger, sinks ...action.Sink) (*Augmenter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	set, err := cfg.PlatformSet()
	if err != nil {
		return nil, err
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headful:          cfg.Browser.Headful,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Bin:              cfg.Browser.Bin,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})
	shared := append(cfg.SharedSinks(action.WithWebhookLogger(logger)), sinks...)
	return &Augmenter{
		cfg:       cfg,
		platforms: set,
		provider:  provider,
		mgr:       mgr,
		shared:    shared,
		logger:    logger,
		pages:     make(map[string]*pageSession),
	}, nil
}

// Start launches the browser and opens every configured page. A page that
// fails to open is logged and skipped.
func (a *Augmenter) Start(ctx context.Context) error {
	if _, err := a.mgr.Start(ctx); err != nil {
		return fmt.Errorf("postlink: start browser: %w", err)
	}
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	a.mgr.OnRecycle(func(*rod.Browser) { a.reconnect() })

	for _, pc := range a.cfg.Pages {
		if err := a.OpenPage(ctx, pc); err != nil {
			a.logger.Error("postlink: failed to open page", "url", pc.URL, "error", err)
		}
	}
	return nil
}

// OpenPage opens pc in a new tab and starts its session, replacing any
// session with the same page ID.
func (a *Augmenter) OpenPage(ctx context.Context, pc PageConfig) error {
	pcfg, err := resolvePlatform(a.platforms, pc.Platform, pc.URL)
	if err != nil {
		return fmt.Errorf("postlink: page %s: %w", pc.ID, err)
	}

	tab, err := a.mgr.OpenTab(ctx, pc.URL, browser.TabOptions{
		Stealth: !pc.NoStealth,
		Width:   a.cfg.Browser.Width,
		Height:  a.cfg.Browser.Height,
	})
	if err != nil {
		return err
	}
	logger := a.logger.With("page", pc.ID)
	doc, err := roddom.New(ctx, tab.Page, roddom.Options{
		ActivateSelector: "[" + control.AttrControl + "]",
		Logger:           logger,
	})
	if err != nil {
		tab.Close()
		return fmt.Errorf("postlink: page %s: %w", pc.ID, err)
	}

	sinks := append([]action.Sink{}, a.shared...)
	if a.cfg.PageSink() {
		sinks = append([]action.Sink{action.NewPage(tab.Page)}, sinks...)
	}
	sess, err := NewSession(doc, doc, SessionConfig{
		Platform:      pcfg.ID,
		Platforms:     a.platforms,
		Settings:      a.provider,
		Scheduler:     a.cfg.SchedulerConfig(),
		Batch:         a.cfg.BatchOptions(),
		MaxAttempts:   a.cfg.MaxAttempts,
		Sink:          action.NewRouter(logger, sinks...),
		FeedbackDelay: a.cfg.FeedbackDelay,
		Logger:        logger,
	})
	if err != nil {
		doc.Close()
		tab.Close()
		return err
	}
	if err := sess.Start(ctx); err != nil {
		doc.Close()
		tab.Close()
		return err
	}

	ps := &pageSession{cfg: pc, tab: tab, doc: doc, sess: sess}
	a.mu.Lock()
	old := a.pages[pc.ID]
	a.pages[pc.ID] = ps
	a.mu.Unlock()
	if old != nil {
		old.close()
	}
	a.logger.Info("postlink: augmenting page", "id", pc.ID, "url", pc.URL, "platform", pcfg.ID)
	return nil
}

// ClosePage stops the session of page id and closes its tab.
func (a *Augmenter) ClosePage(id string) bool {
	a.mu.Lock()
	ps := a.pages[id]
	delete(a.pages, id)
	a.mu.Unlock()
	if ps == nil {
		return false
	}
	ps.close()
	return true
}

func (ps *pageSession) close() {
	ps.sess.Close()
	ps.doc.Close()
	ps.tab.Close()
}

// reconnect rebuilds every session on the recycled browser.
func (a *Augmenter) reconnect() {
	a.mu.Lock()
	ctx := a.ctx
	old := a.pages
	a.pages = make(map[string]*pageSession)
	a.mu.Unlock()

	for _, ps := range old {
		ps.sess.Close()
		ps.doc.Close()
	}
	if ctx == nil || ctx.Err() != nil {
		return
	}
	for _, ps := range old {
		if err := a.OpenPage(ctx, ps.cfg); err != nil {
			a.logger.Error("postlink: reopen page after recycle", "id", ps.cfg.ID, "error", err)
		}
	}
}

// Stats returns the stats of every live session, ordered by page ID.
func (a *Augmenter) Stats() []SessionStats {
	a.mu.Lock()
	ids := make([]string, 0, len(a.pages))
	for id := range a.pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sessions = append(sessions, a.pages[id].sess)
	}
	a.mu.Unlock()

	out := make([]SessionStats, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Stats())
	}
	return out
}

// Close stops every session, the sinks and the browser.
func (a *Augmenter) Close() error {
	a.mu.Lock()
	pages := a.pages
	a.pages = make(map[string]*pageSession)
	a.mu.Unlock()
	for _, ps := range pages {
		ps.close()
	}
	for _, s := range a.shared {
		s.Close()
	}
	return a.mgr.Close()
}
