// Command postlink attaches copy-link controls to social timeline posts.
//
// Usage:
//
//	postlink -config postlink.yaml                  # augment the configured pages
//	postlink -url https://x.com/home                # augment one page
//	postlink -annotate saved.html -base https://x.com/home > out.html
//	postlink -mcp-stdio                             # serve the MCP tools on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/postlink"
	"github.com/hazyhaar/postlink/internal/shield"
	"github.com/hazyhaar/postlink/platform"
	"github.com/hazyhaar/postlink/settings"
)

const version = "0.3.0"

type options struct {
	configPath string
	singleURL  string
	platform   string
	annotate   string
	out        string
	base       string
	target     string
	httpAddr   string
	mcpStdio   bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to postlink.yaml config file")
	flag.StringVar(&o.singleURL, "url", "", "augment a single timeline URL")
	flag.StringVar(&o.platform, "platform", "", "platform: twitter, instagram (default: from URL)")
	flag.StringVar(&o.annotate, "annotate", "", "annotate a saved HTML page (- for stdin) and exit")
	flag.StringVar(&o.out, "out", "", "annotated HTML output file (default stdout)")
	flag.StringVar(&o.base, "base", "", "URL the annotated page was saved from")
	flag.StringVar(&o.target, "target", "", "target hostname for rewritten links")
	flag.StringVar(&o.httpAddr, "http", "", "admin HTTP listen address (overrides config)")
	flag.BoolVar(&o.mcpStdio, "mcp-stdio", false, "serve MCP tools on stdin/stdout")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("postlink: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	if o.annotate != "" {
		return runAnnotate(ctx, logger, o)
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	provider, closer, err := cfg.OpenSettings(settings.StoreOptions{Logger: logger})
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer closer.Close()

	if o.target != "" {
		if err := seedTarget(ctx, cfg, provider, o.target); err != nil {
			return err
		}
	}

	if o.mcpStdio {
		return runMCPStdio(ctx, logger, cfg, provider)
	}
	if len(cfg.Pages) == 0 {
		return errors.New("no pages: use -config <file>, -url <url>, -annotate <file> or -mcp-stdio")
	}
	return runDaemon(ctx, logger, cfg, provider)
}

func loadConfig(o options) (*postlink.Config, error) {
	var cfg *postlink.Config
	var err error
	if o.configPath != "" {
		cfg, err = postlink.LoadConfig(o.configPath)
	} else {
		cfg, err = postlink.ParseConfig(nil)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if o.singleURL != "" {
		cfg.Pages = []postlink.PageConfig{{
			ID:       "cli",
			URL:      o.singleURL,
			Platform: platform.ID(o.platform),
		}}
	}
	if o.httpAddr != "" {
		cfg.HTTP.Addr = o.httpAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedTarget stores -target for every enabled platform that has no
// explicit setting yet.
func seedTarget(ctx context.Context, cfg *postlink.Config, p settings.Provider, target string) error {
	w, ok := p.(settings.Writer)
	if !ok {
		return fmt.Errorf("-target needs a writable settings source, have %q", cfg.Settings.Source)
	}
	set, err := cfg.PlatformSet()
	if err != nil {
		return err
	}
	current, err := p.Load(ctx)
	if err != nil {
		current = nil
	}
	for _, id := range set.IDs() {
		if _, exists := current[id]; exists {
			continue
		}
		if err := w.Set(ctx, id, settings.Platform{Enabled: true, Target: target}); err != nil {
			return fmt.Errorf("seed target: %w", err)
		}
	}
	return nil
}

func runAnnotate(ctx context.Context, logger *slog.Logger, o options) error {
	var in io.Reader = os.Stdin
	if o.annotate != "-" {
		f, err := os.Open(o.annotate)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	out, res, err := postlink.AnnotateHTML(ctx, string(data), postlink.AnnotateOptions{
		BaseURL:  o.base,
		Platform: platform.ID(o.platform),
		Target:   o.target,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if o.out != "" {
		f, err := os.Create(o.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if _, err := io.WriteString(w, out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logger.Info("postlink: annotate done",
		"total", res.Total, "injected", res.Succeeded, "skipped", res.Skipped, "failed", res.Failed)
	return nil
}

func newMCPServer(svc *postlink.Service) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "postlink", Version: version}, nil)
	svc.RegisterMCP(srv)
	return srv
}

func runMCPStdio(ctx context.Context, logger *slog.Logger, cfg *postlink.Config, provider settings.Provider) error {
	set, err := cfg.PlatformSet()
	if err != nil {
		return err
	}
	svc := postlink.NewService(
		postlink.WithPlatforms(set),
		postlink.WithSettings(provider),
		postlink.WithServiceLogger(logger),
	)
	logger.Info("postlink: MCP on stdio")
	return newMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}

func runDaemon(ctx context.Context, logger *slog.Logger, cfg *postlink.Config, provider settings.Provider) error {
	aug, err := postlink.NewAugmenter(cfg, provider, logger)
	if err != nil {
		return err
	}
	defer aug.Close()
	if err := aug.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if cfg.HTTP.Addr != "" {
		set, err := cfg.PlatformSet()
		if err != nil {
			return err
		}
		svc := postlink.NewService(
			postlink.WithPlatforms(set),
			postlink.WithSettings(provider),
			postlink.WithSessions(aug.Stats),
			postlink.WithServiceLogger(logger),
		)
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		for _, mw := range shield.Stack(16 << 20) {
			r.Use(mw)
		}
		svc.RegisterHTTP(r)
		if cfg.MCP.Enabled {
			mcpSrv := newMCPServer(svc)
			r.Handle(cfg.MCP.Path, mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
		}

		httpSrv := &http.Server{Addr: cfg.HTTP.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("postlink: HTTP listening", "addr", cfg.HTTP.Addr, "mcp", cfg.MCP.Enabled)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("postlink: HTTP server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Info("postlink: shutting down")
	return nil
}
