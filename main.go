// Package main provides the entry point for the Tablecast campaign messaging service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/tablecast/app/handlers"
	"github.com/amirphl/tablecast/app/logger"
	"github.com/amirphl/tablecast/app/middleware"
	"github.com/amirphl/tablecast/app/router"
	"github.com/amirphl/tablecast/app/services"
	businessflow "github.com/amirphl/tablecast/business_flow"
	"github.com/amirphl/tablecast/config"
	"github.com/amirphl/tablecast/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const cacheHealthInterval = 30 * time.Second

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	logger    *zap.Logger
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	app, err := initializeApplication(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to initialize application", zap.Error(err))
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-sigChan
	zl.Info("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Error("Error during shutdown", zap.Error(err))
	}

	zl.Info("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, zl *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	zl.Info("Database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return db, nil
}

// initializeCache returns nil when caching is disabled
func initializeCache(cfg config.CacheConfig, zl *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	zl.Info("Redis connection established", zap.Int("db", cfg.RedisDB))
	return rc, nil
}

// startCacheHealthMonitor pings Redis periodically until the returned func is called
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, zl *zap.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					zl.Warn("Redis healthcheck failed", zap.Error(err))
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeChannels builds the delivery channels. SMS_PROVIDER_DOMAIN=mock selects the in-memory gateway.
func initializeChannels(cfg *config.ProductionConfig, zl *zap.Logger) services.ChannelRegistry {
	var gateway services.SMSGateway
	switch cfg.SMS.ProviderDomain {
	case "mock":
		gateway = services.NewMockSMSGateway()
		zl.Warn("Using mock SMS gateway")
	default:
		gateway = services.NewSMSGateway(&cfg.SMS)
	}

	telegram := services.NewTelegramChannel(cfg.Telegram, zl)
	if cfg.Telegram.BotToken == "" {
		zl.Warn("TELEGRAM_BOT_TOKEN is not set; telegram sends will fail as configuration errors")
	}

	return services.NewChannelRegistry(
		services.NewSMSChannel(gateway, cfg.SMS, zl),
		telegram,
	)
}

func initializeApplication(cfg *config.ProductionConfig, zl *zap.Logger) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database, zl)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			return nil, err
		}
		zl.Info("Database schema migrated")
	}

	rc, err := initializeCache(cfg.Cache, zl)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cacheHealthInterval, zl))
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	}

	customerRepo := repository.NewCustomerRepository(db)
	templateRepo := repository.NewMessageTemplateRepository(db)
	runRepo := repository.NewCampaignRunRepository(db)

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	zl.Info("Token service initialized", zap.String("issuer", cfg.JWT.Issuer), zap.String("audience", cfg.JWT.Audience))

	channels := initializeChannels(cfg, zl)

	audience := businessflow.NewAudienceFilterCompiler(customerRepo, nil)
	campaignFlow := businessflow.NewCampaignMessagingFlow(
		audience,
		templateRepo,
		runRepo,
		channels,
		db,
		rc,
		&cfg.Cache,
		cfg.Campaign,
		zl,
	)

	campaignHandler := handlers.NewCampaignMessagingHandler(campaignFlow, cfg.Campaign.RunTimeout, zl)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	appRouter := router.NewFiberRouter(cfg, campaignHandler, authMiddleware, zl)

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		logger:    zl,
		stopFuncs: stopFuncs,
	}, nil
}
