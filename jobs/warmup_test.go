package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/eansheet/eansheet/internal/jobs"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWarmupTask(t *testing.T) {
	task, err := NewWarmupTask("")
	require.NoError(t, err)
	require.Equal(t, TaskBackendWarmup, task.Type())

	var payload WarmupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "schedule", payload.Reason)
}

func TestWarmupJobPingsWithDeadline(t *testing.T) {
	var hadDeadline bool
	job := NewWarmupJob(pingFunc(func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}), discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewWarmupTask("startup")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.True(t, hadDeadline)
}

func TestWarmupJobReportsFailure(t *testing.T) {
	unreachable := errors.New("dial tcp: connection refused")
	job := NewWarmupJob(pingFunc(func(ctx context.Context) error {
		return unreachable
	}), discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.Timeout = 10 * time.Millisecond

	err := job.Handle(context.Background(), asynq.NewTask(TaskBackendWarmup, nil))
	require.ErrorIs(t, err, unreachable)
}

func TestWarmupJobSkipsMalformedPayload(t *testing.T) {
	job := NewWarmupJob(pingFunc(func(ctx context.Context) error { return nil }), discardLogger(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskBackendWarmup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWarmupJobRequiresBackend(t *testing.T) {
	var job *WarmupJob
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskBackendWarmup, nil)))
}

func TestNewWorkerRegistersCron(t *testing.T) {
	mr := miniredis.RunT(t)
	task, err := NewWarmupTask("schedule")
	require.NoError(t, err)

	worker, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Logger:    discardLogger(),
		Handlers:  []TaskHandler{{Type: TaskBackendWarmup, Handler: func(context.Context, *asynq.Task) error { return nil }}},
		Cron:      []CronRegistration{{Spec: "*/10 * * * *", Task: task}},
	})
	require.NoError(t, err)
	require.NotNil(t, worker.scheduler)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Logger:    discardLogger(),
		Cron:      []CronRegistration{{Spec: "every tuesday", Task: task}},
	})
	require.Error(t, err)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, discardLogger()).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"paused":false}`, rr.Body.String())
}

type inspectorFunc func(queue string) (*asynq.QueueInfo, error)

func (f inspectorFunc) GetQueueInfo(queue string) (*asynq.QueueInfo, error) { return f(queue) }

func TestHealthReportsQueueCounts(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(inspectorFunc(func(queue string) (*asynq.QueueInfo, error) {
		return &asynq.QueueInfo{Queue: queue, Pending: 2, Active: 1, Scheduled: 3, Retry: 1}, nil
	}), discardLogger()).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":2,"active":1,"scheduled":3,"retry":1,"paused":false}`, rr.Body.String())

	r = chi.NewRouter()
	NewHandler(inspectorFunc(func(string) (*asynq.QueueInfo, error) {
		return nil, errors.New("redis down")
	}), discardLogger()).MountRoutes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestWorkerServesJobMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	tracker := jobmetrics.NewMetrics(registry)
	job := NewWarmupJob(pingFunc(func(ctx context.Context) error { return nil }), discardLogger(), tracker)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskBackendWarmup, nil)))

	mr := miniredis.RunT(t)
	worker, err := NewWorker(WorkerConfig{
		RedisOpts:      asynq.RedisClientOpt{Addr: mr.Addr()},
		Logger:         discardLogger(),
		MetricsAddr:    "127.0.0.1:0",
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	require.NoError(t, err)
	require.NotNil(t, worker.metrics)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveMetrics(ctx, worker.metrics, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `eansheet_jobs_total{job="backend:warmup",status="success"} 1`)
	require.Contains(t, string(body), "eansheet_backend_up 1")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestWorkerWithoutMetricsAddr(t *testing.T) {
	mr := miniredis.RunT(t)
	worker, err := NewWorker(WorkerConfig{
		RedisOpts:      asynq.RedisClientOpt{Addr: mr.Addr()},
		MetricsHandler: http.NotFoundHandler(),
	})
	require.NoError(t, err)
	require.Nil(t, worker.metrics)
}
