package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/eansheet/eansheet/internal/form"
	"github.com/eansheet/eansheet/internal/observability"
	"github.com/eansheet/eansheet/internal/shared"
	"github.com/eansheet/eansheet/internal/view"
	"github.com/eansheet/eansheet/jobs"
	"github.com/eansheet/eansheet/report"
	"github.com/eansheet/eansheet/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	FormHandler    *form.Handler
	BackendHandler *report.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with eansheet defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		theme := ""
		if params.Config != nil {
			theme = params.Config.DefaultTheme
		}
		if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.Get("theme") != "" {
			theme = sess.Get("theme")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		if err := params.Templates.Render(w, "pages/error.html", view.TemplateData{
			Title:       "Page not found",
			CurrentPath: r.URL.Path,
			Theme:       theme,
		}); err != nil {
			params.Logger.Error("render not found", slog.Any("error", err))
		}
	})

	params.FormHandler.MountRoutes(r)

	origins := []string{"*"}
	if params.Config != nil && len(params.Config.CORSAllowedOrigins) > 0 {
		origins = params.Config.CORSAllowedOrigins
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
			MaxAge:         300,
		}))
		params.FormHandler.MountAPI(r)
	})

	if params.BackendHandler != nil {
		r.Route("/backend", params.BackendHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler caches embedded assets in the browser for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
