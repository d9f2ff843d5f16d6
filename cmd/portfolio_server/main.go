package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"

	"portfolio_tracker/internal/app/provider"
	"portfolio_tracker/internal/app/service"
	apiclient "portfolio_tracker/internal/client"
	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/infrastructure/configloader"
	clientprovider "portfolio_tracker/internal/infrastructure/network/client"
	networkdefinition "portfolio_tracker/internal/infrastructure/network/definition"
	"portfolio_tracker/internal/infrastructure/pricing"
	"portfolio_tracker/internal/infrastructure/protocol"
	"portfolio_tracker/internal/infrastructure/restapi"
	"portfolio_tracker/internal/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	flag.Parse()

	// Temporary logger for everything that can fail before the configured one exists.
	tempZapLogger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to initialize temporary zap logger: %v\n", err)
		os.Exit(1)
	}

	runtime, err := config.LoadRuntime()
	if err != nil {
		tempZapLogger.Fatal("Failed to read runtime environment", zap.Error(err))
	}
	path := runtime.ConfigPath
	if *configPath != "" {
		path = *configPath
	}

	cfg, err := configloader.Load(path)
	if err != nil {
		tempZapLogger.Fatal("Failed to load configuration", zap.String("path", path), zap.Error(err))
	}
	runtime.Apply(cfg)

	zapLogger := newZapLogger(cfg.Logging.Level)
	defer zapLogger.Sync()

	slogHandler := slogzap.Option{Level: slogLevelFor(cfg.Logging.Level), Logger: zapLogger}.NewZapHandler()
	logger.InitWithHandler(slogHandler)
	appLogger := logger.NewSlogAdapter()

	logger.Info("Portfolio server starting", "config", path)

	descriptors, err := networkdefinition.ResolveChains(cfg.Chains, appLogger)
	if err != nil {
		logger.Fatal("Failed to resolve chain definitions", "error", err)
	}

	callCache := clientprovider.NewCallCache(time.Duration(cfg.Cache.CleanupIntervalMinutes) * time.Minute)
	chainProvider := clientprovider.NewEVMClientProvider(descriptors, cfg.RpcClient, callCache, appLogger)
	scanner := clientprovider.NewActivityScanner(
		callCache,
		time.Duration(cfg.Scanner.ActivityCacheTTLSeconds)*time.Second,
		cfg.Scanner.MaxBlockRange,
		appLogger,
	)

	catalog := provider.NewTokenCatalog(cfg.Files.TokensDir, descriptors, appLogger)
	registry, err := protocol.BuildRegistry(cfg, catalog, appLogger)
	if err != nil {
		logger.Fatal("Failed to build protocol registry", "error", err)
	}

	feedReader := pricing.NewFeedReader(
		chainProvider,
		cfg.Pricing.Feeds,
		callCache,
		time.Duration(cfg.Cache.MetadataTTLMinutes)*time.Minute,
		appLogger,
	)
	llamaClient := apiclient.NewDefiLlamaClient(
		cfg.DefiLlama.BaseURL,
		time.Duration(cfg.DefiLlama.RequestTimeoutMillis)*time.Millisecond,
		zapLogger,
		cfg.DefiLlama.MaxTokensPerRequest,
		cfg.DefiLlama.RateLimitPerMinute,
	)
	priceService := service.NewPriceService(chainProvider, feedReader, llamaClient, callCache, cfg, appLogger)
	aggregator := service.NewPositionAggregator(chainProvider, registry, scanner, priceService, cfg, appLogger)
	logger.Info("Aggregation engine initialized", "chains", len(descriptors), "protocols", len(registry.Protocols()))

	if !strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := restapi.NewPortfolioHandler(aggregator, registry, appLogger)
	router := restapi.SetupRouter(handler, cfg)

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start HTTP server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received, stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	} else {
		logger.Info("HTTP server stopped")
	}
}

// newZapLogger builds the process logger; debug level selects the development config.
func newZapLogger(level string) *zap.Logger {
	build := zap.NewProduction
	if strings.EqualFold(level, "debug") {
		build = zap.NewDevelopment
	}
	zapLogger, err := build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to initialize zap logger: %v\n", err)
		os.Exit(1)
	}
	return zapLogger
}

func slogLevelFor(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
