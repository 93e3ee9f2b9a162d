package report

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eansheet/eansheet/internal/generator"
)

func TestGenerateSendsJSONAndReturnsPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/generate", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NotEmpty(t, r.Header.Get("X-Request-Id"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"codes":"6415712400071\n7340191139510","preset":"4"}`, string(raw))

		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 sheet"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL + "/")
	pdf, err := client.Generate(context.Background(), generator.Request{
		Codes:  "6415712400071\n7340191139510",
		Preset: generator.PresetFour,
	})
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 sheet", string(pdf))
}

func TestGenerateNonSuccessCarriesBodyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("invalid code at line 2\n"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Generate(context.Background(), generator.Request{Codes: "1", Preset: generator.PresetThree})

	var backendErr *generator.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, http.StatusUnprocessableEntity, backendErr.Status)
	require.Equal(t, "invalid code at line 2", backendErr.Detail)
	require.Contains(t, generator.Message(err), "invalid code at line 2")
}

func TestGenerateJSONErrorBodyIsForwardedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "No valid codes"})
	}))
	defer srv.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	_, err := NewClient(srv.URL, WithLogger(logger)).Generate(context.Background(), generator.Request{Codes: "x", Preset: generator.PresetFour})
	require.Equal(t, `Backend error: {"error":"No valid codes"}`, generator.Message(err))
	require.Contains(t, logs.String(), "backend rejected generate")
	require.Contains(t, logs.String(), "status=400")
}

func TestErrorDetailCapsAndCleansBody(t *testing.T) {
	require.Equal(t, "oops", errorDetail([]byte("  oops\n")))
	require.Equal(t, "bad \uFFFD", errorDetail([]byte("bad \xe2\x9c")))
}

func TestGenerateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr).Generate(context.Background(), generator.Request{Codes: "1", Preset: generator.PresetFour})
	require.ErrorIs(t, err, generator.ErrConnectivity)
	require.Equal(t, "Could not connect to backend!", generator.Message(err))
}

func TestGenerateHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL).Generate(ctx, generator.Request{Codes: "1", Preset: generator.PresetFour})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, generator.ErrConnectivity)
}

func TestControllerAgainstClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	var saved []string
	saver := generator.SaverFunc(func(name string, _ []byte) error {
		saved = append(saved, name)
		return nil
	})
	ctrl := generator.NewController(generator.Config{Timeout: time.Second}, NewClient(srv.URL), saver)
	ctrl.SetCodes("6415712400071, 7340191139510")

	require.NoError(t, ctrl.Submit(context.Background()))
	require.Equal(t, []string{"barcodes.pdf"}, saved)
}

func TestPingTreatsServerErrorsAsDown(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.Ping(context.Background()))

	status.Store(http.StatusServiceUnavailable)
	err := client.Ping(context.Background())
	var backendErr *generator.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, http.StatusServiceUnavailable, backendErr.Status)
}

func TestPingHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	handler := NewHandler(NewClient(srv.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rr := httptest.NewRecorder()
	handler.ping(rr, httptest.NewRequest(http.MethodGet, "/backend/ping", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	down := NewHandler(NewClient(""), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rr = httptest.NewRecorder()
	down.ping(rr, httptest.NewRequest(http.MethodGet, "/backend/ping", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
