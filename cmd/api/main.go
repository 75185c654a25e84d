// Package main is the entrypoint of the FitCoach Client Hub API server.
//
// The server exposes organization signup, student onboarding with
// pipeline-card provisioning, and the relationship-task views
// (filtered lists, status transitions and bucket counts).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fitcoach-hub/fitcoach-client-hub/config"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/command"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/eventhandler"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/query"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/saga"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/student"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/trainer"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/infrastructure/external/postgrest"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/infrastructure/idgen"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/infrastructure/messaging"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/infrastructure/persistence/postgres"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/infrastructure/persistence/redis"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/infrastructure/scheduler"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/fitcoach-hub/fitcoach-client-hub/internal/interface/http"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// stores bundles the persistence ports so the backends stay swappable.
type stores struct {
	orgs     trainer.OrgRepository
	orgList  jobs.OrgLister
	trainers trainer.Repository
	students student.Repository
	stages   pipeline.StageRepository
	cards    pipeline.CardRepository
	tasks    task.Repository
	limiter  saga.OrgLimiter
	health   httpapi.HealthChecker
	close    func()
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})
	log.Info("starting fitcoach client hub",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("store_backend", string(cfg.App.StoreBackend)),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ENTITY STORE
	// ─────────────────────────────────────────────────────────────────────────
	st, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional, caches dashboard bucket counts)
	// ─────────────────────────────────────────────────────────────────────────
	var countsCache query.CountsCache
	var redisCache *redis.Cache

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("redis unavailable, counts caching disabled", logger.Err(err))
		} else {
			defer redisCache.Close()
			countsCache = redis.NewCountsCache(redisCache, log)
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Warn("event bus close failed", logger.Err(err))
		}
	}()

	if err := eventhandler.RegisterAll(eventBus, log); err != nil {
		return fmt.Errorf("registering event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	idGen := idgen.New()
	resolver := pipeline.NewStageResolver(st.stages)

	signupSaga := saga.NewSignupSaga(st.orgs, st.trainers, st.stages, eventBus, idGen, log)
	provisioningSaga := saga.NewProvisioningSaga(
		st.students, st.cards, resolver, st.limiter, eventBus, idGen, log)

	listStudents := query.NewListStudentsHandler(st.students, log)
	listTasks := query.NewListTasksHandler(st.tasks, nil, log)
	bucketCounts := query.NewBucketCountsHandler(st.tasks, countsCache, redis.TTLCounts, nil, log)
	updateTaskStatus := command.NewUpdateTaskStatusHandler(st.tasks, eventBus, bucketCounts, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = log
		sched = scheduler.NewScheduler(schedCfg)

		refreshJob := jobs.NewRefreshCountsJob(st.orgList, bucketCounts, log)
		if err := sched.Register(refreshJob, scheduler.NewIntervalSchedule(cfg.Scheduler.RefreshCountsInterval)); err != nil {
			return fmt.Errorf("registering refresh job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				log.Warn("scheduler stop failed", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	healthChecks := map[string]httpapi.HealthChecker{"store": st.health}
	if redisCache != nil {
		healthChecks["cache"] = redisCache
	}

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		SignupSaga:       signupSaga,
		ProvisioningSaga: provisioningSaga,
		ListStudents:     listStudents,
		ListTasks:        listTasks,
		BucketCounts:     bucketCounts,
		UpdateTaskStatus: updateTaskStatus,
		HealthChecks:     healthChecks,
		Logger:           log,
	})

	serverErr := server.StartAsync()
	log.Info("api server listening", logger.String("addr", serverCfg.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("shutdown completed")
	return nil
}

// buildStores wires the selected persistence backend.
func buildStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	switch cfg.App.StoreBackend {
	case config.BackendPostgres:
		return buildPostgresStores(ctx, cfg, log)
	case config.BackendPostgREST:
		return buildPostgRESTStores(cfg, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.App.StoreBackend)
	}
}

func buildPostgresStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database schema is up to date")

	orgs := postgres.NewOrgRepository(conn)
	students := postgres.NewStudentRepository(conn)

	return &stores{
		orgs:     orgs,
		orgList:  orgs,
		trainers: postgres.NewTrainerRepository(conn),
		students: students,
		stages:   postgres.NewStageRepository(conn),
		cards:    postgres.NewCardRepository(conn),
		tasks:    postgres.NewTaskRepository(conn),
		limiter:  postgres.NewOrgLimiter(orgs, students),
		health:   conn,
		close:    conn.Close,
	}, nil
}

func buildPostgRESTStores(cfg *config.Config, log *logger.Logger) (*stores, error) {
	clientCfg := postgrest.DefaultClientConfig(cfg.PostgREST.BaseURL)
	clientCfg.APIKey = cfg.PostgREST.APIKey
	clientCfg.Timeout = cfg.PostgREST.RequestTimeout
	clientCfg.RetryConfig = retry.Config{
		MaxAttempts:  cfg.PostgREST.MaxRetries,
		InitialDelay: cfg.PostgREST.RetryBaseDelay,
		MaxDelay:     cfg.PostgREST.RetryMaxDelay,
		Multiplier:   2,
	}
	clientCfg.Logger = log
	client := postgrest.NewClient(clientCfg)

	orgs := postgrest.NewOrgRepository(client)
	students := postgrest.NewStudentRepository(client)

	return &stores{
		orgs:     orgs,
		orgList:  orgs,
		trainers: postgrest.NewTrainerRepository(client),
		students: students,
		stages:   postgrest.NewStageRepository(client),
		cards:    postgrest.NewCardRepository(client),
		tasks:    postgrest.NewTaskRepository(client),
		limiter:  postgrest.NewOrgLimiter(orgs, students),
		health:   client,
		close:    func() {},
	}, nil
}
