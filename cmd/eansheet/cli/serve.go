package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eansheet/eansheet/internal/app"
	"github.com/eansheet/eansheet/internal/form"
	"github.com/eansheet/eansheet/internal/observability"
	"github.com/eansheet/eansheet/internal/platform/cache"
	"github.com/eansheet/eansheet/internal/shared"
	"github.com/eansheet/eansheet/internal/view"
	"github.com/eansheet/eansheet/jobs"
	"github.com/eansheet/eansheet/report"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web form",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return nil
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(&cfg.ClientConfig)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "eansheet_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()
	backend := report.NewClient(cfg.BackendURL, report.WithLogger(logger))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		FormHandler: form.NewHandler(form.Params{
			Logger:         logger,
			Backend:        backend,
			Config:         cfg.Generator(),
			MaxImportBytes: cfg.MaxImportBytes,
			Templates:      templates,
			CSRF:           csrfManager,
			Locker:         shared.NewLocker(redisClient),
			Recorder:       metrics,
		}),
		BackendHandler: report.NewHandler(backend, logger),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	queueStartupWarmup(ctx, redisOpts, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// in-flight generations may run up to the write timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppWriteTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// queueStartupWarmup asks the worker to wake the backend before the first user does.
func queueStartupWarmup(ctx context.Context, redisOpts asynq.RedisClientOpt, logger *slog.Logger) {
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Warn("jobs client", slog.Any("error", err))
		return
	}
	defer func() { _ = client.Close() }()
	enqueueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.EnqueueWarmup(enqueueCtx, "startup"); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		logger.Warn("queue startup warmup", slog.Any("error", err))
	}
}
