package app

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/eansheet/eansheet/internal/form"
	"github.com/eansheet/eansheet/internal/observability"
	"github.com/eansheet/eansheet/internal/shared"
	"github.com/eansheet/eansheet/internal/view"
	"github.com/eansheet/eansheet/report"
	_ "github.com/eansheet/eansheet/testing"
)

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(backend.Close)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	cfg := &Config{
		ClientConfig: ClientConfig{
			BackendURL:      backend.URL,
			GenerateTimeout: 5 * time.Second,
			DefaultPreset:   "4",
			DefaultTheme:    "dark",
			ToastTTL:        3 * time.Second,
			MaxImportBytes:  1 << 20,
		},
		AppEnv:             "test",
		AppRequestTimeout:  10 * time.Second,
		RateLimitPerMinute: 1000,
		CORSAllowedOrigins: []string{"https://shop.example"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager(redisClient, "eansheet_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	metrics := observability.NewMetrics()
	client := report.NewClient(cfg.BackendURL)

	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      engine,
		SessionManager: sessions,
		CSRFManager:    csrf,
		FormHandler: form.NewHandler(form.Params{
			Logger:         logger,
			Backend:        client,
			Config:         cfg.Generator(),
			MaxImportBytes: cfg.MaxImportBytes,
			Templates:      engine,
			CSRF:           csrf,
			Locker:         shared.NewLocker(redisClient),
			Recorder:       metrics,
		}),
		BackendHandler: report.NewHandler(client, logger),
		Metrics:        metrics,
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestFormFlowWithSessionAndCSRF(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	match := csrfInput.FindStringSubmatch(rr.Body.String())
	require.Len(t, match, 2)

	post := func(values url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		return res
	}

	rr = post(url.Values{"codes": {"6415712400071"}, "preset": {"4"}})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = post(url.Values{"codes": {"6415712400071"}, "preset": {"4"}, "csrf_token": {match[1]}})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	require.Equal(t, "%PDF-1.4", rr.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	body := rr.Body.String()
	require.Contains(t, body, "PDF ready ✓")
	require.Contains(t, body, `data-dismiss-ms="3000"`)
	require.Contains(t, body, ">6415712400071</textarea>")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rr.Body.String(), `eansheet_generate_total{outcome="success"} 1`)
}

func TestOversizedUploadReportsTooLarge(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rr.Result().Cookies()
	match := csrfInput.FindStringSubmatch(rr.Body.String())
	require.Len(t, match, 2)

	upload := func(size int, header bool) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("csrf_token", match[1]))
		require.NoError(t, mw.WriteField("preset", "4"))
		part, err := mw.CreateFormFile("file", "codes.txt")
		require.NoError(t, err)
		_, err = part.Write(bytes.Repeat([]byte("6415712400071\n"), size/14+1))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/generate", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if header {
			req.Header.Set(shared.CSRFHeader, match[1])
		}
		for _, c := range cookies {
			req.AddCookie(c)
		}
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		return res
	}

	rr = upload(1<<10, false)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))

	for _, header := range []bool{false, true} {
		rr = upload(2<<20, header)
		require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		require.Contains(t, rr.Body.String(), "The imported file is too large.")
	}
}

func TestAPIIsCookielessAndCORS(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"codes":"1;2","preset":"6"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://shop.example")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "https://shop.example", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rr.Result().Cookies())

	preflight := httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
	preflight.Header.Set("Origin", "https://shop.example")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, preflight)
	require.Equal(t, "https://shop.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestBackendPingAndNotFound(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/backend/ping", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "Page not found")
}

func TestStaticAssetsAreCached(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/js/form.js", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
}
