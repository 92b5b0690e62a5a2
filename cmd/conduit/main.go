package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/wooconduit/conduit/config"
	"github.com/wooconduit/conduit/internal/handlers"
	"github.com/wooconduit/conduit/pkg/cache"
	"github.com/wooconduit/conduit/pkg/database"
	"github.com/wooconduit/conduit/pkg/health"
	"github.com/wooconduit/conduit/pkg/httpclient"
	"github.com/wooconduit/conduit/pkg/kafka"
	"github.com/wooconduit/conduit/pkg/mapper"
	"github.com/wooconduit/conduit/pkg/middleware"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/queue"
	"github.com/wooconduit/conduit/pkg/ratelimit"
	"github.com/wooconduit/conduit/pkg/redis"
	"github.com/wooconduit/conduit/pkg/repositories"
	"github.com/wooconduit/conduit/pkg/scheduler"
	"github.com/wooconduit/conduit/pkg/startup"
	syncengine "github.com/wooconduit/conduit/pkg/sync"
	"github.com/wooconduit/conduit/pkg/tracing"
	"github.com/wooconduit/conduit/pkg/tracing/exporters"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

const version = "0.1.0"

// serverSource adapts the server repository into the registry's loader
type serverSource struct {
	repo repositories.ServerRepo
}

func (s serverSource) GetServer(ctx context.Context, id uuid.UUID) (*models.WooCommerceServer, error) {
	return s.repo.GetByID(ctx, id)
}

func (s serverSource) ListEnabledServers(ctx context.Context) ([]*models.WooCommerceServer, error) {
	servers, err := s.repo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.WooCommerceServer, len(servers))
	for i := range servers {
		out[i] = &servers[i]
	}
	return out, nil
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEnabled {
		shutdown, err := tracing.Init(ctx, cfg.AppName, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize tracing")
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	// Postgres
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer sqlxDB.Close()
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	db := database.NewDatabaseInstance(sqlxDB, logger)

	driver, err := postgres.WithInstance(sqlxDB.DB, &postgres.Config{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create migration driver")
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	// Redis
	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	locker := redis.NewLocker(redisClient, "conduit:lock:")
	streams := redis.NewStreams(redisClient)
	dlq := redis.NewDeadLetterQueue(redisClient, redis.DefaultDLQStream, logger)
	listCache := cache.NewListCache(redisClient, cfg.WooListCacheTTL, logger)

	// Kafka
	producer := kafka.NewProducer(kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaSyncEventsTopic, cfg.KafkaSyncErrorsTopic), logger)
	defer producer.Close()

	// Repositories
	serverRepo := repositories.NewServerRepository(db, logger)
	itemRepo := repositories.NewItemRepository(db, logger)
	orderRepo := repositories.NewOrderRepository(db, logger)
	customerRepo := repositories.NewCustomerRepository(db, logger)
	paymentRepo := repositories.NewPaymentRepository(db, logger)
	syncStateRepo := repositories.NewSyncStateRepository(db, logger)
	requestLogRepo := repositories.NewRequestLogRepository(db, logger)

	// WooCommerce client registry
	httpClient := httpclient.NewClient(httpclient.Config{Timeout: cfg.WooRequestTimeout}, logger)
	limiter := ratelimit.NewManager(redisClient, cfg.WooRequestsPerMinute, logger)
	registry := woocommerce.NewRegistry(serverSource{repo: serverRepo}, httpClient, limiter, requestLogRepo, cfg.WooPageLength, logger)

	// Sync engine
	engineConfig := syncengine.DefaultConfig()
	engineConfig.MaxRunTime = cfg.SyncMaxRunTime
	engineConfig.LockTTL = cfg.SyncLockTTL
	engineConfig.FetchVariations = cfg.SyncFetchVariations
	engineConfig.VariationBatchSize = cfg.SyncVariationBatchSize
	engineConfig.MaxVariations = cfg.SyncMaxVariations
	engineConfig.MaxParentDepth = cfg.SyncMaxParentDepth
	if cfg.SyncMinOrderDate != "" {
		minDate, err := time.Parse(time.RFC3339, cfg.SyncMinOrderDate)
		if err != nil {
			logger.WithError(err).Fatal("Invalid SYNC_MIN_ORDER_DATE")
		}
		engineConfig.MinOrderDate = minDate
	}

	engine := syncengine.NewEngine(
		syncengine.NewCachedRegistrySource(registry, listCache),
		locker,
		mapper.New(logger),
		serverRepo,
		itemRepo,
		orderRepo,
		customerRepo,
		paymentRepo,
		syncStateRepo,
		producer,
		engineConfig,
		logger,
	)
	notifier := syncengine.NewNotifier(itemRepo, orderRepo, streams, cfg.RedisStreamsJobQueue, logger)

	// Queue processor
	processorConfig := queue.DefaultProcessorConfig()
	processorConfig.Stream = cfg.RedisStreamsJobQueue
	processorConfig.ConsumerGroup = cfg.RedisStreamsConsumerGroup
	if cfg.RedisStreamsConsumerName != "" {
		processorConfig.ConsumerName = cfg.RedisStreamsConsumerName
	}
	processor := queue.NewProcessor(streams, dlq, engine, serverRepo, processorConfig, logger)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(runDependency{
		name:  "queue-processor",
		start: processor.Start,
		stop:  processor.Stop,
	})
	if cfg.SchedulerEnabled {
		schedConfig := scheduler.DefaultConfig()
		schedConfig.PollInterval = cfg.SchedulerPollInterval
		schedConfig.JobQueue = cfg.RedisStreamsJobQueue
		sched := scheduler.NewScheduler(scheduler.NewPollRepository(db, logger), streams, locker, schedConfig, logger)
		boot.AddDependency(runDependency{
			name:  "scheduler",
			deps:  []string{"queue-processor"},
			start: sched.Start,
			stop:  sched.Stop,
		})
	}
	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start background workers")
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	checker := health.NewChecker(sqlxDB, redisClient.Redis(), version)
	checker.WatchJobStream(cfg.RedisStreamsJobQueue, 10000)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if cfg.AuthEnabled {
		api.Use(middleware.Authentication(logger, cfg.AuthIssuerURL, cfg.AuthClientID))
	}

	handlers.NewServersHandler(serverRepo, registry, httpClient, logger).RegisterRoutes(api)
	handlers.NewSyncHandler(engine, notifier, syncStateRepo, serverRepo, streams, cfg.RedisStreamsJobQueue, logger).RegisterRoutes(api)
	handlers.NewDLQHandler(dlq, streams, cfg.RedisStreamsJobQueue, logger).RegisterRoutes(api)
	handlers.NewRequestLogHandler(requestLogRepo).RegisterRoutes(api)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting HTTP server")
		checker.SetReady(true)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Background worker shutdown failed")
	}
}

// runDependency adapts a start/stop pair into a startup dependency
type runDependency struct {
	name  string
	deps  []string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (d runDependency) GetName() string                 { return d.name }
func (d runDependency) DependsOn() []string             { return d.deps }
func (d runDependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d runDependency) Stop(ctx context.Context) error  { return d.stop(ctx) }

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapConfig := zap.NewProductionConfig()
		if level, parseErr := zap.ParseAtomicLevel(cfg.LogLevel); parseErr == nil {
			zapConfig.Level = level
		}
		zapLogger, err = zapConfig.Build()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}
