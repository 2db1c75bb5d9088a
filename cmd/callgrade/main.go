package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/callgrade/callgrade/internal/app"
	"github.com/callgrade/callgrade/internal/assignments"
	"github.com/callgrade/callgrade/internal/auth"
	"github.com/callgrade/callgrade/internal/evaluations"
	"github.com/callgrade/callgrade/internal/observability"
	"github.com/callgrade/callgrade/internal/platform/cache"
	"github.com/callgrade/callgrade/internal/platform/db"
	"github.com/callgrade/callgrade/internal/rbac"
	"github.com/callgrade/callgrade/internal/roles"
	"github.com/callgrade/callgrade/internal/rubrics"
	"github.com/callgrade/callgrade/internal/sessionmon"
	"github.com/callgrade/callgrade/internal/shared"
	"github.com/callgrade/callgrade/internal/users"
	"github.com/callgrade/callgrade/internal/view"
	"github.com/callgrade/callgrade/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "callgrade_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	rbacStore := rbac.NewStore(dbpool)
	rbacResolver := rbac.NewResolver(rbacStore)
	rbacService := rbac.NewService(rbacStore, auditLogger)
	rbacMiddleware := rbac.Middleware{Resolver: rbacResolver, Logger: logger, Metrics: metrics}

	statusStore := sessionmon.NewStatusStore(dbpool)
	notifier := sessionmon.NewNotifier(redisClient)
	guard := &sessionmon.Guard{Status: statusStore, Sessions: sessionManager, Logger: logger, Metrics: metrics}
	monitorHandler := sessionmon.NewHandler(logger, statusStore, notifier, sessionManager, metrics)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditLogger, notifier, sessionManager, jobClient, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacService, templates, csrfManager, sessionManager, rbacMiddleware)

	rolesHandler := roles.NewHandler(logger, rbacService, templates, csrfManager, sessionManager, rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, templates, csrfManager, sessionManager, rbacMiddleware)

	rubricRepo := rubrics.NewRepository(dbpool)
	rubricService := rubrics.NewService(rubricRepo)
	rubricsHandler := rubrics.NewHandler(logger, rubricService, templates, csrfManager, sessionManager, rbacMiddleware)

	assignmentRepo := assignments.NewRepository(dbpool)
	assignmentService := assignments.NewService(assignmentRepo, rubricService, jobClient, logger)
	assignmentsHandler := assignments.NewHandler(logger, assignmentService, rubricService, usersService, templates, csrfManager, sessionManager, rbacMiddleware)

	evaluationRepo := evaluations.NewRepository(dbpool)
	evaluationService := evaluations.NewService(evaluationRepo, assignmentService, rubricService, auditLogger)
	evaluationsHandler := evaluations.NewHandler(logger, evaluationService, templates, csrfManager, sessionManager, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		RubricsHandler:     rubricsHandler,
		AssignmentsHandler: assignmentsHandler,
		EvaluationsHandler: evaluationsHandler,
		PermissionsHandler: permissionsHandler,
		MonitorHandler:     monitorHandler,
		JobsHandler:        jobsHandler,
		Guard:              guard,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
