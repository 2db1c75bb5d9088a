package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/callgrade/callgrade/internal/app"
	"github.com/callgrade/callgrade/internal/observability"
	"github.com/callgrade/callgrade/internal/platform/cache"
	"github.com/callgrade/callgrade/internal/platform/db"
	"github.com/callgrade/callgrade/internal/shared"
	"github.com/callgrade/callgrade/internal/users"
	"github.com/callgrade/callgrade/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "callgrade_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	usersRepo := users.NewRepository(pool)

	mailer, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailer.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	sweepJob := jobs.NewSessionSweepJob(usersRepo, sessionManager, logger, metrics)
	noticeJob := jobs.NewAssignmentNoticeJob(pool, mailer, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionSweep, Handler: sweepJob.HandleTargeted},
			{Type: jobs.TaskSuspensionSweep, Handler: sweepJob.HandleFull},
			{Type: jobs.TaskAssignmentNotice, Handler: noticeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepInterval, Task: jobs.NewSuspensionSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
