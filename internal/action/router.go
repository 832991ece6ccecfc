package action

import (
	"context"
	"log/slog"
)

// Router fans an activation out to every sink. A failing sink does not
// block the others; the first error is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Deliver(ctx context.Context, a Activation) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Deliver(ctx, a); err != nil {
			r.logger.Warn("action: deliver failed", "id", a.ID, "mode", a.Mode, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
