// Server runs the HTTP API.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appdomain "gymhub/backend/internal/application/domain"
	"gymhub/backend/internal/application/promotion"
	apprepo "gymhub/backend/internal/application/repository"
	appservice "gymhub/backend/internal/application/service"
	"gymhub/backend/internal/audit"
	auditrepo "gymhub/backend/internal/audit/repository"
	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/config"
	gymrepo "gymhub/backend/internal/gym/repository"
	gymservice "gymhub/backend/internal/gym/service"
	healthhandler "gymhub/backend/internal/health/handler"
	"gymhub/backend/internal/logger"
	membershiprepo "gymhub/backend/internal/membership/repository"
	membershipservice "gymhub/backend/internal/membership/service"
	"gymhub/backend/internal/metrics"
	"gymhub/backend/internal/policy/engine"
	rolerepo "gymhub/backend/internal/role/repository"
	roleservice "gymhub/backend/internal/role/service"
	"gymhub/backend/internal/server"
	"gymhub/backend/internal/server/middleware"
	"gymhub/backend/internal/telemetry"
	telemetryotel "gymhub/backend/internal/telemetry/otel"
	"gymhub/backend/internal/telemetry/producer"
	userrepo "gymhub/backend/internal/user/repository"
	userservice "gymhub/backend/internal/user/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()

	infra, err := openBackend(cfg, zl)
	if err != nil {
		return err
	}
	defer infra.Close()
	store := backend.WithTimeout(infra.store, cfg.BackendTimeout())

	policy, err := loadPolicy(ctx, cfg.AccessPolicyFile, zl)
	if err != nil {
		return err
	}

	queue, closeQueue, err := openQueue(cfg, store, zl)
	if err != nil {
		return err
	}
	defer closeQueue()

	kafka, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.EventsKafkaTopic, zl)
	if err != nil {
		return err
	}
	events := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kafka != nil {
		events = append(events, kafka)
		zl.Info("publishing application events to kafka", zap.String("topic", cfg.EventsKafkaTopic))
	}

	m := metrics.New()
	profiles := userrepo.NewStoreRepository(store)
	roleRepo := rolerepo.NewStoreRepository(store)
	roles := roleservice.NewService(roleRepo, profiles, zl)
	auditLogs := auditrepo.NewStoreRepository(store)
	auditLogger := audit.NewLogger(auditLogs, middleware.ClientIP, zl)

	apps := apprepo.NewStoreRepository(store, roles, appdomain.ReapplyPolicy(cfg.ReapplyPolicy))
	workflow := appservice.NewWorkflow(apps, roles, queue, zl).
		WithEvents(telemetry.Multi(events...)).
		WithAudit(auditLogger).
		WithMetrics(m)
	if tx, ok := store.(backend.Transactor); ok {
		workflow = workflow.WithTransactions(tx, func(s backend.Store) (apprepo.Repository, appservice.RoleAssigner) {
			return apps.WithStore(s), roleservice.NewService(rolerepo.NewStoreRepository(s), userrepo.NewStoreRepository(s), zl)
		})
	}

	users := userservice.NewService(profiles, roles, roleRepo, workflow, auditLogger, zl)
	gyms := gymservice.NewService(gymrepo.NewStoreRepository(store), roles, policy, infra.files, cfg.StorageBucket, zl)
	memberships := membershipservice.NewService(membershiprepo.NewStoreRepository(store), gyms, zl)
	if tx, ok := store.(backend.Transactor); ok {
		memberships = memberships.WithTransactions(tx, func(s backend.Store) membershiprepo.Repository {
			return membershiprepo.NewStoreRepository(s)
		})
	}

	scheduler, err := promotion.NewScheduler(cfg.PromotionRetrySchedule, workflow, cfg.BackendTimeout()*4, zl)
	if err != nil {
		return err
	}
	scheduler.Start()

	var pinger healthhandler.Pinger
	if p, ok := store.(healthhandler.Pinger); ok {
		pinger = p
	}
	router := server.NewRouter(server.Deps{
		Authenticator:       infra.authn,
		Roles:               roles,
		Users:               users,
		Workflow:            workflow,
		Gyms:                gyms,
		Memberships:         memberships,
		Audit:               auditLogger,
		AuditLogs:           auditLogs,
		Metrics:             m,
		RateLimiter:         middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		TrustedProxies:      cfg.TrustedProxyList(),
		HealthPinger:        pinger,
		HealthPolicyChecker: policy,
		ServiceName:         cfg.OTelServiceName,
		Logger:              zl,
	})
	srv := server.NewHTTPServer(cfg.HTTPAddr, router)

	serveErr := make(chan error, 1)
	go func() {
		zl.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("backend", cfg.BackendDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	if err := telemetry.Drain(drainCtx); err != nil {
		zl.Warn("event drain incomplete", zap.Error(err))
	}
	drainCancel()
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			zl.Warn("kafka producer close", zap.Error(err))
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		zl.Warn("otel shutdown", zap.Error(err))
	}
	zl.Info("server stopped")
	return nil
}

// loadPolicy builds the gym access evaluator from path, or from the built-in policy when path is empty.
func loadPolicy(ctx context.Context, path string, zl *zap.Logger) (*engine.OPAEvaluator, error) {
	var rego string
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		rego = string(b)
		zl.Info("loaded access policy", zap.String("file", path))
	}
	return engine.NewOPAEvaluator(ctx, rego, zl)
}

// openQueue returns the promotion retry queue: Redis when REDIS_URL is set, else the backend table.
func openQueue(cfg *config.Config, store backend.Store, zl *zap.Logger) (promotion.Queue, func(), error) {
	if cfg.RedisURL == "" {
		return promotion.NewStoreQueue(store), func() {}, nil
	}
	client, err := promotion.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	zl.Info("promotion retry queue on redis", zap.String("key", promotion.DefaultRedisKey))
	return promotion.NewRedisQueue(client, ""), func() {
		if err := client.Close(); err != nil {
			zl.Warn("redis close", zap.Error(err))
		}
	}, nil
}
