package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"hookrelay/internal/broker"
	"hookrelay/internal/config"
	"hookrelay/internal/constants"
	"hookrelay/internal/entitlements"
	"hookrelay/internal/handlers"
	"hookrelay/internal/logger"
	"hookrelay/internal/processor"
	"hookrelay/internal/tracker"
	"hookrelay/internal/webhook"
	"hookrelay/pkg/bootstrap"
	"hookrelay/pkg/health"
	"hookrelay/pkg/metrics"
	"hookrelay/pkg/middleware"
	"hookrelay/pkg/migrations"
	"hookrelay/pkg/ratelimit"
	"hookrelay/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	base           *bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	catalog        entitlements.Catalog
	trackerStore   tracker.Store
	gateway        *webhook.Gateway
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.config.Tracing, tracing.Service{
		Name:           constants.ServiceName,
		BrokerType:     a.config.Broker.Type,
		TrackerBackend: a.config.Tracker.Backend,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterWebhookMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterCircuitBreakerMetrics()

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initTracker(); err != nil {
		return fmt.Errorf("failed to initialize tracker: %w", err)
	}

	if err := a.base.InitBroker(constants.ServiceName, a.config.Relay.Consume); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initGateway(); err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	a.initRouter()
	a.initServer()
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.db != nil && a.config.Database.RunMigrations {
		if err := migrations.MigratePostgres(a.db, a.config.Database.Postgres.DBName); err != nil {
			return err
		}
		a.logger.InfowCtx(ctx, "Tracker migrations applied")
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redisClient = rdb

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	mongoClient, err := a.dbConnector.InitMongoDB(initCtx)
	if err != nil {
		a.logger.WarnwCtx(initCtx, "MongoDB connection failed, continuing without entitlement catalog", "error", err)
		return nil
	}
	if mongoClient == nil {
		return nil
	}
	a.mongoClient = mongoClient

	dbName := a.config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	mongoDB := mongoClient.Database(dbName)

	if err := migrations.EnsureEntitlementIndexes(initCtx, mongoDB, constants.EntitlementsCollection); err != nil {
		a.logger.WarnwCtx(initCtx, "Failed to ensure entitlement indexes", "error", err)
	}
	a.catalog = entitlements.NewMongoCatalog(mongoDB, constants.EntitlementsCollection)
	return nil
}

func (a *App) initTracker() error {
	var store tracker.Store

	switch a.config.Tracker.Backend {
	case constants.TrackerBackendPostgres, "":
		if a.db == nil {
			return fmt.Errorf("postgres tracker backend requires database.postgres")
		}
		store = tracker.NewPostgresStore(a.db)
	case constants.TrackerBackendRedis:
		if a.redisClient == nil {
			return fmt.Errorf("redis tracker backend requires database.redis")
		}
		store = tracker.NewRedisStore(a.redisClient, a.config.Tracker.KeyPrefix)
	case constants.TrackerBackendMemory:
		a.logger.Warnw("Using in-memory tracker, idempotency is lost on restart")
		store = tracker.NewMemoryStore()
	default:
		return fmt.Errorf("unknown tracker backend: %s", a.config.Tracker.Backend)
	}

	if a.config.CircuitBreaker.Enabled {
		store = tracker.NewCircuitBreakerStore(store, "tracker_"+a.config.Tracker.Backend, a.config.CircuitBreaker)
	}

	a.trackerStore = store
	a.logger.Infow("Tracker initialized", "backend", a.config.Tracker.Backend, "circuit_breaker", a.config.CircuitBreaker.Enabled)
	return nil
}

func (a *App) initGateway() error {
	stripeClient := processor.NewStripeClient(a.config.Stripe)

	var proc processor.Client = stripeClient
	if ttl := a.config.Stripe.CustomerCacheTTL(); ttl > 0 && a.redisClient != nil {
		proc = processor.NewCachedClient(stripeClient, a.redisClient, ttl, a.logger)
		a.logger.Infow("Customer lookup cache enabled", "ttl", ttl)
	}

	registry := webhook.NewRegistry()
	handlers.Register(registry, handlers.Options{GrantTopic: a.config.Relay.EntitlementsTopic})

	filter, err := webhook.NewFilter(a.config.Filtering.SkipRules, a.logger)
	if err != nil {
		return err
	}

	deps := webhook.Dependencies{
		Store:     a.trackerStore,
		Processor: proc,
		Producer:  a.base.Producer,
		Catalog:   a.catalog,
	}

	pipeline := webhook.NewPipeline(registry, tracker.New(a.trackerStore, a.logger), filter, deps, a.logger)

	var relay *webhook.Relay
	if a.base.Producer != nil {
		relay = webhook.NewRelay(a.base.Producer, broker.RelayTopic(a.config.Broker), a.config.Relay.Secret)
	}

	a.gateway = webhook.NewGateway(pipeline, relay, proc, webhook.GatewayOptions{
		RelaySecret:  a.config.Relay.Secret,
		MaxBodyBytes: a.config.Server.MaxBodyBytes,
	}, a.logger)

	a.logger.Infow("Gateway initialized",
		"event_types", registry.EventTypes(),
		"skip_rules", filter.Len(),
		"relay_enabled", relay.Enabled(),
	)
	return nil
}

func (a *App) initRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.config.RateLimit)
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	a.gateway.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	if a.db != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	}
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	if a.mongoClient != nil {
		healthRegistry.RegisterOptional(health.NewMongoDBChecker(a.mongoClient))
	}
	if a.base.Producer != nil {
		healthRegistry.RegisterOptional(health.NewBrokerChecker(a.base.Producer.Name(), a.base.Producer.Check))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		c.JSON(h.HTTPStatus(), h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}
}

// Run serves HTTP and, when configured, drains the relay topic until ctx
// is cancelled or either side fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(gctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.base.Consumer != nil {
		topic := broker.RelayTopic(a.config.Broker)
		g.Go(func() error {
			a.logger.InfowCtx(gctx, "Consuming relayed events", "topic", topic)
			err := a.base.Consumer.Consume(gctx, topic, a.gateway.ConsumeRelayed)
			if err != nil && gctx.Err() == nil {
				return fmt.Errorf("consumer error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if err := a.base.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		return a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)
	}); err != nil {
		errs = append(errs, err)
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
