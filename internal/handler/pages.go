package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is the database health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PageHandler serves the pages that need no service: home and health.
type PageHandler struct {
	views  *Renderer
	db     Pinger
	logger *slog.Logger
}

func NewPageHandler(views *Renderer, db Pinger, logger *slog.Logger) *PageHandler {
	return &PageHandler{views: views, db: db, logger: logger}
}

// HandleHome renders the landing page, personalised when logged in.
//
// HTTP: GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"User": currentUser(r)}
	if err := h.views.Page(w, http.StatusOK, "index", data); err != nil {
		renderFailed(w, h.logger, err)
	}
}

// HandleHealth reports whether the database answers.
//
// HTTP: GET /healthz
func (h *PageHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
