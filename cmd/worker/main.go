package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/eansheet/eansheet/internal/app"
	jobmetrics "github.com/eansheet/eansheet/internal/jobs"
	"github.com/eansheet/eansheet/internal/observability"
	"github.com/eansheet/eansheet/jobs"
	"github.com/eansheet/eansheet/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(&cfg.ClientConfig)

	backend := report.NewClient(cfg.BackendURL, report.WithLogger(logger))
	metrics := observability.NewMetrics()
	warmupJob := jobs.NewWarmupJob(backend, logger, jobmetrics.NewMetrics(metrics.Registerer()))

	warmupTask, err := jobs.NewWarmupTask("schedule")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if cfg.WarmupSchedule != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.WarmupSchedule,
			Task:    warmupTask,
			Options: []asynq.Option{asynq.MaxRetry(1), asynq.Timeout(2 * jobs.DefaultWarmupTimeout)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  []jobs.TaskHandler{
			{Type: jobs.TaskBackendWarmup, Handler: warmupJob.Handle},
		},
		Cron:           cron,
		MetricsAddr:    cfg.WorkerMetricsAddr,
		MetricsHandler: metrics.Handler(),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker",
		slog.String("warmup_schedule", cfg.WarmupSchedule),
		slog.String("metrics_addr", cfg.WorkerMetricsAddr),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
