package form

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eansheet/eansheet/internal/generator"
	"github.com/eansheet/eansheet/internal/platform/httpx"
)

type apiRequest struct {
	Codes  string `json:"codes"`
	Preset string `json:"preset" validate:"omitempty,oneof=3 4 6"`
}

// MountAPI registers the JSON generation endpoint.
func (h *Handler) MountAPI(r chi.Router) {
	r.Post("/generate", h.handleAPIGenerate)
}

func (h *Handler) handleAPIGenerate(w http.ResponseWriter, r *http.Request) {
	var req apiRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		problem(w, fmt.Errorf("%w: %q", generator.ErrInvalidPreset, req.Preset))
		return
	}

	pdf := &pdfCapture{}
	opts := []generator.Option{generator.WithLogger(h.logger)}
	if h.recorder != nil {
		opts = append(opts, generator.WithRecorder(h.recorder))
	}
	ctrl := generator.NewController(h.cfg, h.backend, pdf, opts...)
	if req.Preset != "" {
		_ = ctrl.SetPreset(generator.Preset(req.Preset))
	}
	ctrl.SetCodes(req.Codes)

	if err := ctrl.Submit(r.Context()); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		problem(w, err)
		return
	}
	writePDF(w, pdf.name, pdf.data)
}

func problem(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	httpx.Problem(w, status, http.StatusText(status), generator.Message(err))
}
