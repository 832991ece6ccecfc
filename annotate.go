package postlink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hazyhaar/postlink/dom/memdom"
	"github.com/hazyhaar/postlink/internal/pipeline"
	"github.com/hazyhaar/postlink/platform"
)

// AnnotateOptions configures AnnotateHTML.
type AnnotateOptions struct {
	// BaseURL is the page the markup was saved from. It resolves relative
	// post links and, when Platform is empty, selects the platform.
	BaseURL string
	// Platform forces the platform.
	Platform platform.ID
	// Target is the rewrite hostname. Default: the platform default.
	Target    string
	Platforms *platform.Set
	Logger    *slog.Logger
}

// AnnotateHTML runs one full pass of the pipeline over a saved timeline
// page and returns the markup with controls injected.
func AnnotateHTML(ctx context.Context, markup string, opts AnnotateOptions) (string, BatchResult, error) {
	if opts.Platforms == nil {
		opts.Platforms = platform.DefaultSet()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := ctx.Err(); err != nil {
		return "", BatchResult{}, err
	}

	cfg, err := resolvePlatform(opts.Platforms, opts.Platform, opts.BaseURL)
	if err != nil {
		return "", BatchResult{}, fmt.Errorf("postlink: annotate: %w", err)
	}
	target := opts.Target
	if target == "" {
		target = cfg.DefaultTarget
	}

	doc, err := memdom.ParseString(markup, memdom.WithURL(opts.BaseURL))
	if err != nil {
		return "", BatchResult{}, fmt.Errorf("postlink: annotate: %w", err)
	}
	pipe := pipeline.New(doc, pipeline.Config{Platforms: opts.Platforms, Logger: opts.Logger})
	res := pipe.ProcessAllPosts(cfg.ID, target, nil)

	out, err := doc.HTML()
	if err != nil {
		return "", res, fmt.Errorf("postlink: annotate: %w", err)
	}
	opts.Logger.Info("postlink: annotated",
		"platform", cfg.ID, "target", target, "total", res.Total, "injected", res.Succeeded)
	return out, res, nil
}

// resolvePlatform picks id when set, else the platform owning pageURL.
func resolvePlatform(set *platform.Set, id platform.ID, pageURL string) (*platform.Config, error) {
	if id != "" {
		return set.Get(id)
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: no platform and no page URL", platform.ErrUnknown)
	}
	cfg, ok := set.ForHost(u.Hostname())
	if !ok {
		return nil, fmt.Errorf("%w: host %s", platform.ErrUnknown, u.Hostname())
	}
	return cfg, nil
}
