package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/portfolio-admin/internal/api/http"
	"github.com/spec-kit/portfolio-admin/internal/api/http/handlers"
	"github.com/spec-kit/portfolio-admin/internal/auth"
	"github.com/spec-kit/portfolio-admin/internal/backend"
	"github.com/spec-kit/portfolio-admin/internal/config"
	"github.com/spec-kit/portfolio-admin/internal/events"
	"github.com/spec-kit/portfolio-admin/internal/observability"
	"github.com/spec-kit/portfolio-admin/internal/persistence"
	"github.com/spec-kit/portfolio-admin/internal/repository"
	"github.com/spec-kit/portfolio-admin/internal/service"
	"github.com/spec-kit/portfolio-admin/internal/session"
	"github.com/spec-kit/portfolio-admin/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conns, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}
	defer conns.Close()

	sealer, err := session.NewAEADSealer(cfg.Auth.SealSecret)
	if err != nil {
		logger.Fatal("failed to init token sealer", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	client := backend.NewClient(cfg.Backend, cfg.App.Name+"/"+cfg.App.Version)

	store := session.NewTokenStore(credentialRepository(cfg, conns), sealer, client, logger)
	evaluator := session.NewEvaluator(store, time.Now, dispatcher, logger)

	loginPolicy, err := session.PolicyByName(cfg.Session.LoginGatePolicy, cfg.Session.EarlyRefreshSkew)
	if err != nil {
		logger.Fatal("invalid login gate policy", zap.Error(err))
	}
	gate := auth.NewSessionGate(auth.GateConfig{
		Evaluator:       evaluator,
		Scopes:          auth.NewScopeSigner(cfg.Auth.ScopeSecret, cfg.Auth.ScopeTTL, time.Now),
		CookieName:      cfg.Auth.ScopeCookieName,
		CookieSecure:    cfg.Auth.CookieSecure,
		LoginPath:       cfg.Session.LoginPath,
		DashboardPath:   cfg.Session.DashboardPath,
		LoginGatePolicy: loginPolicy,
		Metrics:         metrics,
		Logger:          logger,
	})

	authService := service.NewAuthService(service.AuthDependencies{
		Backend:   client,
		Evaluator: evaluator,
		Logger:    logger,
	})
	worker.StartSessionAuditWorker(service.NewSessionAuditService(dispatcher, logger))

	views, err := handlers.NewViews()
	if err != nil {
		logger.Fatal("failed to parse templates", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, cfg.Session.Store, conns.Checks(), metrics),
		Session: handlers.NewSessionHandler(handlers.SessionHandlerDeps{
			Auth:         authService,
			Gate:         gate,
			Evaluator:    evaluator,
			StatusPolicy: session.EarlyRefreshPolicy(cfg.Session.EarlyRefreshSkew),
			Views:        views,
		}),
		Resources: handlers.NewResourcesHandler(client, gate, evaluator, logger),
		Gate:      gate,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("dashboard started",
		zap.String("addr", cfg.App.Addr()),
		zap.String("session_store", cfg.Session.Store),
		zap.String("login_gate_policy", loginPolicy.Name))

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func credentialRepository(cfg *config.Config, conns *persistence.Connections) repository.CredentialRepository {
	switch cfg.Session.Store {
	case config.StorePostgres:
		return repository.NewPostgresCredentialRepository(conns.Postgres.PoolHandle())
	case config.StoreRedis:
		return repository.NewRedisCredentialRepository(conns.Redis.Client, cfg.Redis.KeyPrefix)
	default:
		return repository.NewMemoryCredentialRepository(nil)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
