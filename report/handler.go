package report

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eansheet/eansheet/internal/platform/httpx"
)

// Handler exposes backend reachability.
type Handler struct {
	client *Client
	logger *slog.Logger
}

// NewHandler creates a backend handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	return &Handler{client: client, logger: logger}
}

// MountRoutes registers backend routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("backend ping failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Backend Unavailable", "barcode backend did not answer")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
