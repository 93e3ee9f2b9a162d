package form

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/eansheet/eansheet/internal/codes"
	"github.com/eansheet/eansheet/internal/generator"
	"github.com/eansheet/eansheet/internal/shared"
	"github.com/eansheet/eansheet/internal/view"
)

// Session keys holding the form state.
const (
	sessionCodes  = "codes"
	sessionPreset = "preset"
	sessionTheme  = "theme"
)

const (
	pageTitle      = "EAN Barcode Generator"
	fetchHeader    = "X-Requested-With"
	toastHeader    = "X-Toast"
	toastTTLHeader = "X-Toast-TTL"
	// lockSlack keeps the lock alive while the response is written.
	lockSlack = 15 * time.Second
	// unboundedLockTTL caps the lock when generation has no deadline.
	unboundedLockTTL = 10 * time.Minute
)

// Locker serialises generation per session.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
	Held(ctx context.Context, key string) (bool, error)
}

// Params groups the handler dependencies.
type Params struct {
	Logger         *slog.Logger
	Backend        generator.Backend
	Config         generator.Config
	MaxImportBytes int64
	Templates      *view.Engine
	CSRF           *shared.CSRFManager
	Locker         Locker
	Recorder       generator.Recorder
}

// Handler serves the generator form and its JSON counterpart.
type Handler struct {
	logger    *slog.Logger
	backend   generator.Backend
	cfg       generator.Config
	maxImport int64
	templates *view.Engine
	csrf      *shared.CSRFManager
	locker    Locker
	recorder  generator.Recorder
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(p Params) *Handler {
	maxImport := p.MaxImportBytes
	if maxImport <= 0 {
		maxImport = codes.DefaultImportLimit
	}
	cfg := p.Config
	if cfg.DefaultPreset == "" {
		cfg.DefaultPreset = generator.PresetFour
	}
	if cfg.DefaultTheme == "" {
		cfg.DefaultTheme = generator.ThemeDark
	}
	return &Handler{
		logger:    p.Logger,
		backend:   p.Backend,
		cfg:       cfg,
		maxImport: maxImport,
		templates: p.Templates,
		csrf:      p.CSRF,
		locker:    p.Locker,
		recorder:  p.Recorder,
		validator: validator.New(),
	}
}

// MountRoutes registers the form routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showForm)
	r.Post("/generate", h.handleGenerate)
	r.Post("/import", h.handleImport)
	r.Post("/clear", h.handleClear)
	r.Post("/theme", h.handleTheme)
}

type generateForm struct {
	Preset string `validate:"required,oneof=3 4 6"`
}

type pageData struct {
	Codes            string
	Count            int
	Preset           generator.Preset
	Presets          []generator.Preset
	Error            string
	ThemeToggleLabel string
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "")
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(r); err != nil {
		h.renderError(w, r, err)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := generateForm{Preset: r.PostFormValue("preset")}
	if err := h.validator.Struct(form); err != nil {
		if sess != nil {
			sess.Set(sessionCodes, codes.Normalize(r.PostFormValue("codes")))
		}
		h.renderError(w, r, generator.ErrInvalidPreset)
		return
	}

	pdf := &pdfCapture{}
	toast := &toastCapture{}
	opts := []generator.Option{generator.WithLogger(h.logger), generator.WithNotifier(toast)}
	if h.recorder != nil {
		opts = append(opts, generator.WithRecorder(h.recorder))
	}
	ctrl := generator.NewController(h.cfg, h.backend, pdf, opts...)
	_ = ctrl.SetPreset(generator.Preset(form.Preset))

	imported, err := h.importUpload(r, ctrl)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if !imported {
		ctrl.SetCodes(r.PostFormValue("codes"))
	}
	state := ctrl.Snapshot()
	if sess != nil {
		sess.Set(sessionCodes, state.Codes)
		sess.Set(sessionPreset, string(state.Preset))
	}

	release, err := h.acquire(r.Context(), sess)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	err = ctrl.Submit(r.Context())
	release()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.renderError(w, r, err)
		return
	}

	if r.Header.Get(fetchHeader) == "fetch" {
		w.Header().Set(toastHeader, url.PathEscape(toast.message))
		w.Header().Set(toastTTLHeader, strconv.FormatInt(toast.ttl.Milliseconds(), 10))
	} else if sess != nil {
		sess.Notify(toast.message, toast.ttl)
	}
	writePDF(w, pdf.name, pdf.data)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(r); err != nil {
		h.renderError(w, r, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderError(w, r, codes.ErrUnsupportedFile)
		return
	}
	defer file.Close()

	normalized, err := codes.Import(header.Filename, file, h.maxImport)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Set(sessionCodes, normalized)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil && h.locker != nil {
		held, err := h.locker.Held(r.Context(), shared.GenerateLockKey(sess.ID))
		if err != nil {
			h.logger.Warn("check generate lock", slog.Any("error", err))
		}
		if held {
			h.renderError(w, r, generator.ErrBusy)
			return
		}
	}
	if sess != nil {
		sess.Delete(sessionCodes)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleTheme(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Set(sessionTheme, string(h.theme(sess).Toggle()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) parseForm(r *http.Request) error {
	if err := r.ParseMultipartForm(h.maxImport); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return codes.ErrFileTooLarge
		}
		return err
	}
	return nil
}

// importUpload loads an uploaded file into ctrl. It reports false when the
// request carries no file.
func (h *Handler) importUpload(r *http.Request, ctrl *generator.Controller) (bool, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return false, nil
	}
	defer file.Close()
	if header.Filename == "" || header.Size == 0 {
		return false, nil
	}
	if err := ctrl.Import(header.Filename, file, h.maxImport); err != nil {
		return false, err
	}
	return true, nil
}

// acquire takes the per-session generate lock. A Redis outage degrades to the
// controller's own single-flight guard.
func (h *Handler) acquire(ctx context.Context, sess *shared.Session) (func(), error) {
	noop := func() {}
	if h.locker == nil || sess == nil {
		return noop, nil
	}
	ttl := unboundedLockTTL
	if h.cfg.Timeout > 0 {
		ttl = h.cfg.Timeout + lockSlack
	}
	key := shared.GenerateLockKey(sess.ID)
	release, err := h.locker.Acquire(ctx, key, ttl)
	switch {
	case errors.Is(err, shared.ErrLockHeld):
		return nil, generator.ErrBusy
	case err != nil:
		h.logger.Warn("acquire generate lock", slog.String("key", key), slog.Any("error", err))
		return noop, nil
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			h.logger.Warn("release generate lock", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	h.render(w, r, StatusFor(err), generator.Message(err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, message string) {
	sess := shared.SessionFromContext(r.Context())
	var (
		csrfToken string
		flash     *shared.FlashMessage
		codesText string
	)
	if sess != nil {
		csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
		flash = sess.PopFlash()
		codesText = sess.Get(sessionCodes)
	}
	theme := h.theme(sess)
	data := pageData{
		Codes:            codesText,
		Count:            codes.Count(codesText),
		Preset:           h.preset(sess),
		Presets:          generator.Presets(),
		Error:            message,
		ThemeToggleLabel: theme.ToggleLabel(),
	}
	viewData := view.TemplateData{
		Title:       pageTitle,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Theme:       string(theme),
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/generator.html", viewData); err != nil {
		h.logger.Error("render generator form", slog.Any("error", err))
	}
}

func (h *Handler) preset(sess *shared.Session) generator.Preset {
	if sess != nil {
		if p, err := generator.ParsePreset(sess.Get(sessionPreset)); err == nil {
			return p
		}
	}
	return h.cfg.DefaultPreset
}

func (h *Handler) theme(sess *shared.Session) generator.Theme {
	if sess != nil {
		if t, err := generator.ParseTheme(sess.Get(sessionTheme)); err == nil {
			return t
		}
	}
	return h.cfg.DefaultTheme
}
