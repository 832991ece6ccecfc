package postlink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hazyhaar/postlink/internal/idgen"
	"github.com/hazyhaar/postlink/kit"
	"github.com/hazyhaar/postlink/linkrewrite"
	"github.com/hazyhaar/postlink/platform"
	"github.com/hazyhaar/postlink/settings"
)

// Service exposes postlink operations to MCP and HTTP clients.
type Service struct {
	platforms *platform.Set
	provider  settings.Provider
	writer    settings.Writer
	sessions  func() []SessionStats
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPlatforms sets the platform records. Default: platform.DefaultSet().
func WithPlatforms(set *platform.Set) ServiceOption {
	return func(s *Service) { s.platforms = set }
}

// WithSettings sets the settings source. Providers that also implement
// settings.Writer accept updates.
func WithSettings(p settings.Provider) ServiceOption {
	return func(s *Service) {
		s.provider = p
		if w, ok := p.(settings.Writer); ok {
			s.writer = w
		}
	}
}

// WithSessions sets the live session stats source.
func WithSessions(fn func() []SessionStats) ServiceOption {
	return func(s *Service) { s.sessions = fn }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{platforms: platform.DefaultSet(), logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TransformRequest asks for the rewrite of one post or page URL.
type TransformRequest struct {
	URL string `json:"url"`
	// Target overrides the configured target hostname.
	Target string `json:"target,omitempty"`
}

// TransformResponse is the rewritten URL.
type TransformResponse struct {
	URL      string      `json:"url"`
	Platform platform.ID `json:"platform"`
	PostID   string      `json:"post_id,omitempty"`
	Target   string      `json:"target"`
}

// TransformURL rewrites a URL of a known platform to its target host.
func (s *Service) TransformURL(ctx context.Context, req *TransformRequest) (*TransformResponse, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", linkrewrite.ErrInvalidURL, req.URL)
	}
	cfg, ok := s.platforms.ForHost(u.Hostname())
	if !ok {
		return nil, fmt.Errorf("%w: host %s", platform.ErrUnknown, u.Hostname())
	}
	target := req.Target
	if target == "" {
		target = s.Settings(ctx)[cfg.ID].Target
	}
	out, err := linkrewrite.TransformURL(req.URL, target)
	if err != nil {
		return nil, err
	}
	return &TransformResponse{URL: out, Platform: cfg.ID, PostID: cfg.PostID(u.EscapedPath()), Target: target}, nil
}

// AnnotateRequest carries saved timeline markup.
type AnnotateRequest struct {
	HTML     string      `json:"html"`
	BaseURL  string      `json:"base_url"`
	Platform platform.ID `json:"platform,omitempty"`
	Target   string      `json:"target,omitempty"`
}

// AnnotateResponse is the annotated markup and the batch outcome.
type AnnotateResponse struct {
	HTML   string      `json:"html"`
	Result BatchResult `json:"result"`
}

// Annotate runs AnnotateHTML. An empty target uses the current settings.
func (s *Service) Annotate(ctx context.Context, req *AnnotateRequest) (*AnnotateResponse, error) {
	target := req.Target
	if target == "" {
		if cfg, err := resolvePlatform(s.platforms, req.Platform, req.BaseURL); err == nil {
			target = s.Settings(ctx)[cfg.ID].Target
		}
	}
	out, res, err := AnnotateHTML(ctx, req.HTML, AnnotateOptions{
		BaseURL:   req.BaseURL,
		Platform:  req.Platform,
		Target:    target,
		Platforms: s.platforms,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, err
	}
	return &AnnotateResponse{HTML: out, Result: res}, nil
}

// Settings returns the normalized current settings.
func (s *Service) Settings(ctx context.Context) settings.Settings {
	return settings.Resolve(ctx, s.provider, s.platforms, s.logger)
}

// SetPlatform stores the settings of one platform.
func (s *Service) SetPlatform(ctx context.Context, id platform.ID, p settings.Platform) error {
	if s.writer == nil {
		return ErrReadOnlySettings
	}
	if _, err := s.platforms.Get(id); err != nil {
		return err
	}
	if !linkrewrite.ValidHostname(p.Target) {
		return fmt.Errorf("%w: %q", linkrewrite.ErrInvalidHostname, p.Target)
	}
	return s.writer.Set(ctx, id, p)
}

// Stats returns the live session stats.
func (s *Service) Stats(context.Context) []SessionStats {
	if s.sessions == nil {
		return []SessionStats{}
	}
	return s.sessions()
}

func (s *Service) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(
		kit.WithRequestID(idgen.Request),
		kit.WithLogging(s.logger, name),
	)(ep)
}
