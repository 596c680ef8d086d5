package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/tradecore/internal/config"
	"github.com/tradecore/internal/handler"
	"github.com/tradecore/internal/margin"
	"github.com/tradecore/internal/marketdata"
	"github.com/tradecore/internal/middleware"
	"github.com/tradecore/internal/models"
	"github.com/tradecore/internal/repository"
	"github.com/tradecore/internal/risk"
	"github.com/tradecore/internal/service"
	"github.com/tradecore/internal/stream"
	"github.com/tradecore/internal/worker"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Build info (injected at build time via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := middleware.InitLogger(cfg.Logging.Dir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	gin.SetMode(cfg.Server.Mode)

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb := initRedis(cfg)

	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	instrumentRepo := repository.NewInstrumentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	// Market data
	vendor := marketdata.NewVendorClient(cfg.Pricing.QuoteBaseURL,
		time.Duration(cfg.Pricing.QuoteTimeoutMS)*time.Millisecond)
	quoteCache := marketdata.NewCache(rdb, vendor,
		time.Duration(cfg.Pricing.CacheTTLSec)*time.Second)

	// Core services
	ledger := service.NewFundLedger(db)
	calculator := margin.NewCalculator(cfg.Margin.Rules)
	resolver := service.NewPriceResolver(quoteCache, service.PriceResolverConfig{
		QuoteTimeout:      time.Duration(cfg.Pricing.QuoteTimeoutMS) * time.Millisecond,
		StalenessCeiling:  time.Duration(cfg.Pricing.StalenessCeilingSec) * time.Second,
		EstimateOffset:    cfg.Pricing.EstimateOffset,
		EstimateMaxAge:    time.Duration(cfg.Pricing.EstimateMaxAgeHours) * time.Hour,
		EstimationEnabled: cfg.Pricing.EstimationEnabled,
	})

	hub := stream.NewHub(rdb)

	execution := service.NewExecutionService(
		db, ledger, calculator, resolver,
		accountRepo, orderRepo, positionRepo, instrumentRepo,
		quoteCache, hub,
		time.Duration(cfg.Execution.FillDelayMS)*time.Millisecond,
	)

	authService := service.NewAuthService(db, userRepo, cfg.JWT, cfg.Account.OpeningBalance)

	// Workers
	fillWorker := worker.NewFillWorker(execution,
		time.Duration(cfg.Execution.FillPollIntervalMS)*time.Millisecond,
		cfg.Execution.FillBatchSize)
	go fillWorker.Start()

	pnlWorker := worker.NewPnLWorker(
		positionRepo, instrumentRepo, accountRepo, execution,
		quoteCache,
		worker.NewRedisFastCache(rdb, time.Duration(cfg.Worker.IntervalMS)*time.Millisecond*10),
		worker.NewRedisHeartbeatStore(rdb),
		hub,
		worker.PnLWorkerConfig{
			Interval:       time.Duration(cfg.Worker.IntervalMS) * time.Millisecond,
			BatchSize:      cfg.Worker.BatchSize,
			WriteThreshold: cfg.Worker.WriteThreshold,
			ChunkSize:      cfg.Worker.ChunkSize,
			MaxAutoClose:   cfg.Worker.MaxAutoClose,
			Thresholds: risk.Thresholds{
				WarnUtilization:      cfg.Risk.WarnUtilization,
				AutoCloseUtilization: cfg.Risk.AutoCloseUtilization,
			},
		},
	)
	go pnlWorker.Start()

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	orderHandler := handler.NewOrderHandler(execution, accountRepo, orderRepo)
	positionHandler := handler.NewPositionHandler(execution, accountRepo, positionRepo)
	fundsHandler := handler.NewFundsHandler(accountRepo, transactionRepo, positionRepo)
	instrumentHandler := handler.NewInstrumentHandler(instrumentRepo)
	wsHandler := handler.NewWSHandler(authService, hub)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLoggerMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
			"time":       time.Now().Unix(),
		})
	})

	v1 := router.Group("/api/v1")
	{
		authHandler.RegisterRoutes(v1)

		authMiddleware := middleware.AuthMiddleware(authService)
		orderLogger := middleware.OrderLoggerMiddleware()

		orderHandler.RegisterRoutes(v1, authMiddleware, orderLogger)
		positionHandler.RegisterRoutes(v1, authMiddleware)
		fundsHandler.RegisterRoutes(v1, authMiddleware)
		instrumentHandler.RegisterRoutes(v1)
		wsHandler.RegisterRoutes(v1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	fillWorker.Stop()
	pnlWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := rdb.Close(); err != nil {
		log.Printf("Error closing Redis connection: %v", err)
	}

	log.Println("Server exited properly")
}

func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.TradingAccount{},
		&models.Instrument{},
		&models.Order{},
		&models.Position{},
		&models.FundTransaction{},
	)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
