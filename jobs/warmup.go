package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/eansheet/eansheet/internal/jobs"
)

// DefaultWarmupTimeout bounds a single warmup ping. Cold starts of the
// backend can take most of a minute.
const DefaultWarmupTimeout = 60 * time.Second

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Pinger reaches the barcode backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WarmupJob keeps the barcode backend from idling into a cold start.
type WarmupJob struct {
	Backend Pinger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(backend Pinger, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Backend: backend,
		Logger:  logger,
		Metrics: metrics,
		Timeout: DefaultWarmupTimeout,
	}
}

// Handle processes backend warmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Backend == nil {
		return errors.New("backend warmup: handler not configured")
	}
	var payload WarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskBackendWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = DefaultWarmupTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := j.Backend.Ping(pingCtx); err != nil {
		j.metrics().SetBackendUp(false)
		resultErr = err
		logger.Warn("backend warmup failed", slog.Duration("duration", time.Since(start)), slog.Any("error", err))
		return resultErr
	}
	j.metrics().SetBackendUp(true)
	logger.Info("backend warm", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBackendWarmup))
	}
	return slog.Default().With(slog.String("job", TaskBackendWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
