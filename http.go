package postlink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/postlink/internal/shield"
	"github.com/hazyhaar/postlink/linkrewrite"
	"github.com/hazyhaar/postlink/platform"
	"github.com/hazyhaar/postlink/settings"
)

// maxBody caps admin request bodies; saved timeline pages are large.
const maxBody = 16 << 20

// RegisterHTTP mounts the admin routes on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/stats", s.handleStats)
	r.Get("/settings", s.handleGetSettings)
	r.Put("/settings/{platform}", s.handlePutSettings)
	r.Get("/transform", s.handleTransform)
	r.Post("/annotate", s.handleAnnotate)
}

// Handler returns a router with the admin routes.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.Stack(maxBody) {
		r.Use(mw)
	}
	s.RegisterHTTP(r)
	return r
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.Stats(r.Context())})
}

func (s *Service) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Settings(r.Context()))
}

func (s *Service) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	id := platform.ID(chi.URLParam(r, "platform"))
	var p settings.Platform
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.SetPlatform(r.Context(), id, p)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.Settings(r.Context())[id])
	case errors.Is(err, ErrReadOnlySettings):
		writeError(w, http.StatusMethodNotAllowed, err)
	case errors.Is(err, platform.ErrUnknown):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, linkrewrite.ErrInvalidHostname):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Service) handleTransform(w http.ResponseWriter, r *http.Request) {
	ep := s.endpoint("transform", func(ctx context.Context, req any) (any, error) {
		return s.TransformURL(ctx, req.(*TransformRequest))
	})
	resp, err := ep(r.Context(), &TransformRequest{
		URL:    r.URL.Query().Get("url"),
		Target: r.URL.Query().Get("target"),
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	var req AnnotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.Annotate(r.Context(), &req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, platform.ErrUnknown):
		return http.StatusNotFound
	case errors.Is(err, linkrewrite.ErrInvalidURL), errors.Is(err, linkrewrite.ErrInvalidHostname):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
