package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/GoPolymarket/burngate/internal/handler"
	"github.com/GoPolymarket/burngate/internal/market"
	"github.com/GoPolymarket/burngate/internal/middleware"
	"github.com/GoPolymarket/burngate/internal/oracle"
	"github.com/GoPolymarket/burngate/internal/pkg/logger"
	"github.com/GoPolymarket/burngate/internal/repository"
	"github.com/GoPolymarket/burngate/internal/scheduler"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/GoPolymarket/burngate/internal/venue"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

func main() {
	// 0. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	logger.Init(cfg.Log.Level)
	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()

	// 1. Initialize Persistence
	// State / Policy / Roles (Postgres > Memory)
	var (
		db          *sqlx.DB
		stateRepo   service.StateRepo = service.NewMemoryStateStore()
		policyRepo  service.PolicyRepo = service.NewMemoryPolicyRepo()
		roleRepo    service.RoleRepo = service.NewMemoryRoleStore()
		idempotency middleware.IdempotencyStore
		retention   []scheduler.Retention
	)
	if cfg.Database.DSN != "" {
		db, err = repository.NewDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		logger.Info("connected to PostgreSQL")
		if stateRepo, err = repository.NewPostgresStateRepo(db); err != nil {
			log.Fatalf("Failed to prepare state store: %v", err)
		}
		if policyRepo, err = repository.NewPostgresPolicyRepo(db); err != nil {
			log.Fatalf("Failed to prepare policy store: %v", err)
		}
		if roleRepo, err = repository.NewPostgresRoleRepo(db); err != nil {
			log.Fatalf("Failed to prepare role store: %v", err)
		}
		pgIdem := repository.NewPostgresIdempotencyStore(db)
		idempotency = pgIdem
		retention = append(retention, scheduler.Retention{
			Name:      "idempotency",
			Store:     pgIdem,
			OlderThan: time.Duration(cfg.Database.IdempotencyRetentionHours) * time.Hour,
		})
	} else {
		logger.Warn("database.dsn not set, engine state lives in memory only")
	}

	// Lock / Idempotency (Redis > Postgres > Memory)
	var (
		redisClient *repository.RedisClient
		locker      service.Locker
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("connected to Redis")
			locker = repository.NewRedisLocker(redisClient, cfg.Redis.LockKey)
			idempotency = repository.NewRedisIdempotencyStore(redisClient,
				time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second)
		} else {
			logger.Error("failed to connect to Redis, falling back to in-process lock", "error", err)
			redisClient = nil
		}
	}
	if idempotency == nil {
		idempotency = middleware.NewInMemIdempotencyStore()
	}

	// Events (memory | postgres | redis | sqlite)
	var eventRepo service.EventRepo
	eventRetention := time.Duration(cfg.Database.EventRetentionDays) * 24 * time.Hour
	var sqliteEvents *repository.SQLiteEventRepo
	switch cfg.Events.Backend {
	case "postgres":
		if db == nil {
			log.Fatalf("events.backend=postgres requires database.dsn")
		}
		pgEvents := repository.NewPostgresEventRepo(db)
		eventRepo = pgEvents
		retention = append(retention, scheduler.Retention{Name: "events", Store: pgEvents, OlderThan: eventRetention})
	case "redis":
		if redisClient == nil {
			log.Fatalf("events.backend=redis requires a reachable redis.addr")
		}
		eventRepo = repository.NewRedisEventRepo(redisClient, cfg.Redis.EventListKey, cfg.Redis.EventListMax)
	case "sqlite":
		sqliteEvents, err = repository.NewSQLiteEventRepo(cfg.Events.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite event store: %v", err)
		}
		eventRepo = sqliteEvents
		retention = append(retention, scheduler.Retention{Name: "events", Store: sqliteEvents, OlderThan: eventRetention})
	}

	eventSvc, err := service.NewEventService(cfg.Events.LogDir, eventRepo, cfg.Events.BufferSize)
	if err != nil {
		log.Fatalf("Failed to initialize event service: %v", err)
	}

	// 2. Policy and capabilities
	initial, err := cfg.Policy()
	if err != nil {
		log.Fatalf("%v", err)
	}
	policies, err := service.NewPolicyStore(ctx, policyRepo, initial)
	if err != nil {
		log.Fatalf("Failed to load policy: %v", err)
	}
	if err := service.SeedActorRoles(ctx, roleRepo, cfg.Actors); err != nil {
		log.Fatalf("Failed to seed roles: %v", err)
	}

	// 3. Market data, oracle and venue
	var marketSvc *market.MarketService
	if cfg.Oracle.Backend == "feed" || cfg.Venue.Backend == "book" {
		if cfg.Market.TokenID == "" {
			log.Fatalf("market.token_id is required for the feed oracle and the book venue")
		}
		marketSvc = market.NewMarketService(cfg.Market.WSURL)
		marketSvc.Start()
		marketSvc.Subscribe(append([]string{cfg.Market.TokenID}, cfg.Market.Extra...))
	}

	var source oracle.Source
	switch cfg.Oracle.Backend {
	case "feed":
		source = oracle.NewFeed(marketSvc, cfg.Market.TokenID)
	case "chainlink":
		source, err = oracle.NewChainlink(cfg.Chain.RPCURL, cfg.Oracle.Aggregator, cfg.Chain.Timeout, cfg.Chain.Retries)
	default:
		source, err = oracle.NewStatic(cfg.Oracle.StaticPrice)
	}
	if err != nil {
		log.Fatalf("Failed to initialize %s oracle: %v", cfg.Oracle.Backend, err)
	}
	prices := oracle.WithHeartbeat(source, cfg.Oracle.Heartbeat)

	var fill venue.Venue
	if cfg.Venue.Backend == "book" {
		fill = venue.NewBookVenue(marketSvc, cfg.Market.TokenID, cfg.Venue.MaxSlippageBps, cfg.Venue.MaxBookAge)
	} else {
		fill = venue.NewOracleVenue(prices, cfg.Venue.MaxSlippageBps)
	}
	fill = venue.NewBreaker(cfg.Venue.Backend, fill, cfg.Venue.BreakerFailures, cfg.Venue.BreakerCooldown)

	// 4. Engine
	engine, err := service.NewEngine(service.EngineDeps{
		State:         stateRepo,
		Policies:      policies,
		Roles:         roleRepo,
		Oracle:        prices,
		Venue:         fill,
		Events:        eventSvc,
		Locker:        locker,
		OracleTimeout: cfg.Oracle.Timeout,
		VenueTimeout:  cfg.Venue.Timeout,
		LockTTL:       cfg.Redis.LockTTL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}

	// 5. Scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg.Scheduler, engine, retention...)
		if err := sched.RegisterAll(); err != nil {
			log.Fatalf("Failed to register scheduled jobs: %v", err)
		}
		sched.Start()
	}

	// 6. Setup Router
	r := handler.NewRouter(cfg, handler.RouterDeps{
		Engine:      engine,
		Events:      eventSvc,
		Actors:      service.NewActorRegistry(cfg),
		Idempotency: idempotency,
		Health: func() gin.H {
			h := gin.H{
				"database": db != nil,
				"redis":    redisClient != nil,
				"oracle":   cfg.Oracle.Backend,
				"venue":    cfg.Venue.Backend,
			}
			if marketSvc != nil {
				h["market_connected"] = marketSvc.Connected()
			}
			return h
		},
	})

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("burngate started", "port", cfg.Server.Port, "policy_version", engine.Policy().Version,
			"read_only", cfg.Server.ReadOnly)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if sched != nil {
		sched.Stop()
	}
	if marketSvc != nil {
		marketSvc.Stop()
	}
	eventSvc.Close()
	if sqliteEvents != nil {
		_ = sqliteEvents.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	logger.Info("server exiting")
}
