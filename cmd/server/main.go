package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/config"
	"github.com/yourorg/backtest-service/internal/events"
	"github.com/yourorg/backtest-service/internal/handler"
	"github.com/yourorg/backtest-service/internal/middleware"
	"github.com/yourorg/backtest-service/internal/repository"
	"github.com/yourorg/backtest-service/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := createLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect to database
	db, err := connectToDB(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	marketDataRepo := repository.NewMarketDataRepository(db, logger)
	backtestRepo := repository.NewBacktestRepository(db, logger)

	// Initialize event publisher
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewProducer(
			strings.Split(cfg.Kafka.Brokers, ","),
			cfg.Kafka.ClientID,
			logger,
		)
	}
	defer publisher.Close()

	// Initialize services
	backtestService := service.NewBacktestService(
		marketDataRepo,
		backtestRepo,
		publisher,
		cfg.Kafka.Topics["backtestevents"],
		cfg.Backtest,
		logger,
	)
	optimizationService := service.NewOptimizationService(
		marketDataRepo,
		publisher,
		cfg.Kafka.Topics["optimizationevents"],
		cfg.Backtest,
		logger,
	)
	marketDataService := service.NewMarketDataService(marketDataRepo, logger)

	// Initialize handlers
	backtestHandler := handler.NewBacktestHandler(backtestService, logger)
	optimizationHandler := handler.NewOptimizationHandler(optimizationService, logger)
	marketDataHandler := handler.NewMarketDataHandler(marketDataService, logger)
	streamHandler := handler.NewStreamHandler(backtestService, logger)

	// Set up HTTP server with Gin
	router := setupRouter(backtestHandler, optimizationHandler, marketDataHandler, streamHandler, logger, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited properly")
}

func createLogger(level string) (*zap.Logger, error) {
	// Parse log level
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	// Create logger config
	config := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

func connectToDB(dbConfig config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName,
		dbConfig.SSLMode,
	)

	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return db, nil
}

func setupRouter(
	backtestHandler *handler.BacktestHandler,
	optimizationHandler *handler.OptimizationHandler,
	marketDataHandler *handler.MarketDataHandler,
	streamHandler *handler.StreamHandler,
	logger *zap.Logger,
	cfg *config.Config,
) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		// Backtest routes
		backtests := v1.Group("/backtests")
		{
			backtests.GET("", backtestHandler.ListBacktests)
			backtests.GET("/:id", backtestHandler.GetBacktest)
			backtests.GET("/:id/result", backtestHandler.GetBacktestResult)
			backtests.GET("/:id/trades", backtestHandler.GetBacktestTrades)
			backtests.GET("/:id/metrics", backtestHandler.GetBacktestMetrics)
			backtests.GET("/:id/equity-curve", backtestHandler.GetBacktestEquityCurve)
			backtests.GET("/:id/drawdown-curve", backtestHandler.GetBacktestDrawdownCurve)
			backtests.GET("/:id/events", streamHandler.StreamBacktestEvents)

			// Mutating routes require the service key
			backtestsAuth := backtests.Group("")
			backtestsAuth.Use(middleware.ServiceAuthMiddleware(cfg.ServiceKey, logger))
			backtestsAuth.POST("", backtestHandler.CreateBacktest)
			backtestsAuth.POST("/:id/cancel", backtestHandler.CancelBacktest)
			backtestsAuth.DELETE("/:id", backtestHandler.DeleteBacktest)
		}

		// Optimization routes
		optimizations := v1.Group("/optimizations")
		{
			optimizations.GET("", optimizationHandler.ListOptimizations)
			optimizations.GET("/:id", optimizationHandler.GetOptimization)
			optimizations.GET("/:id/results", optimizationHandler.GetOptimizationResults)

			optimizationsAuth := optimizations.Group("")
			optimizationsAuth.Use(middleware.ServiceAuthMiddleware(cfg.ServiceKey, logger))
			optimizationsAuth.POST("", optimizationHandler.CreateOptimization)
			optimizationsAuth.DELETE("/:id", optimizationHandler.CancelOptimization)
		}

		// Market data routes
		marketData := v1.Group("/market-data")
		{
			marketData.GET("/range", marketDataHandler.GetDataRange)

			marketDataAuth := marketData.Group("")
			marketDataAuth.Use(middleware.ServiceAuthMiddleware(cfg.ServiceKey, logger))
			marketDataAuth.POST("/batch", marketDataHandler.BatchImportCandles)
		}
	}
	return router
}
