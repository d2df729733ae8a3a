package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"token-trading-engine/config"
	"token-trading-engine/internal/cache"
	"token-trading-engine/internal/database"
	"token-trading-engine/internal/events"
	"token-trading-engine/internal/executor"
	"token-trading-engine/internal/logging"
	"token-trading-engine/internal/metrics"
	"token-trading-engine/internal/patterns"
	"token-trading-engine/internal/performance"
	"token-trading-engine/internal/risk"
	"token-trading-engine/internal/scanner"
)

const defaultPortfolioName = "default"

func main() {
	// .env is optional, real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("structured logging initialized")

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}
	logger.Info("database ready")

	repo := database.NewRepository(db)

	// Redis cache over the hot read paths, degraded mode when unavailable
	cacheService := cache.NewService(cfg.RedisConfig, logger)
	defer cacheService.Close()
	store := cache.NewCachedRepository(repo, cacheService)

	// Event bus
	bus := events.NewEventBus()
	logger.Info("event bus initialized")

	// Metrics
	if cfg.MetricsConfig.Enabled {
		m := metrics.NewMetrics()
		metrics.NewCollector(m).Attach(bus)
		metricsServer := metrics.NewServer(cfg.MetricsConfig.Address, logger)
		metricsServer.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Stop(shutdownCtx)
		}()
	}

	// Default portfolio
	portfolioID, err := ensurePortfolio(ctx, repo)
	if err != nil {
		logger.WithError(err).Fatal("failed to bootstrap portfolio")
	}
	logger.Info("trading against portfolio %s", portfolioID)

	// Components
	riskMgr := risk.NewManager(store, cfg.RiskConfig, logger)
	engine := executor.NewEngine(store, riskMgr, bus, cfg.StrategyConfig, portfolioID, zlog)
	riskMonitor := risk.NewMonitor(riskMgr, store, bus, engine, logger)
	detector := patterns.NewDetector(store, bus, cfg.StrategyConfig, logger)
	tracker := performance.NewTracker(store, cfg.StrategyConfig, zlog)
	alertScanner := scanner.NewScanner(store, bus, cfg.ScannerConfig, logger)

	engine.Start(ctx)
	riskMonitor.Start(ctx)
	detector.Start(ctx)
	tracker.Start(ctx)
	alertScanner.Start(ctx)

	logger.Info("trading engine running")

	// Block until shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	alertScanner.Stop()
	tracker.Stop()
	detector.Stop()
	riskMonitor.Stop()
	engine.Stop()

	logger.Info("shutdown complete")
}

// ensurePortfolio returns the first existing portfolio or creates the
// default one with the configured starting capital
func ensurePortfolio(ctx context.Context, repo *database.Repository) (string, error) {
	portfolios, err := repo.GetAllPortfolios(ctx)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return "", err
	}
	if len(portfolios) > 0 {
		return portfolios[0].ID, nil
	}

	capital := 10000.0
	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			capital = parsed
		}
	}

	portfolio := &database.Portfolio{
		Name:        defaultPortfolioName,
		CashBalance: capital,
		TotalValue:  capital,
	}
	if err := repo.CreatePortfolio(ctx, portfolio); err != nil {
		return "", err
	}
	return portfolio.ID, nil
}
