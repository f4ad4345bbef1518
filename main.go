package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/config"
	"github.com/ekaya-inc/ekaya-linkage/pkg/database"
	"github.com/ekaya-inc/ekaya-linkage/pkg/handlers"
	"github.com/ekaya-inc/ekaya-linkage/pkg/loader"
	"github.com/ekaya-inc/ekaya-linkage/pkg/logging"
	"github.com/ekaya-inc/ekaya-linkage/pkg/middleware"
	"github.com/ekaya-inc/ekaya-linkage/pkg/repositories"
	"github.com/ekaya-inc/ekaya-linkage/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("upload_dir", cfg.Storage.UploadDir),
		zap.Bool("redis", cfg.Redis.Host != ""))

	db, err := database.NewConnection(ctx, &database.Config{
		URL:             cfg.Database.ConnectionString(),
		MaxConnections:  cfg.Database.MaxConnections,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db.SQLDB(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var locker services.RunLocker
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		locker = services.NewRedisRunLocker(redisClient, services.DefaultRunLockTTL, logger)
	} else {
		locker = services.NewLocalRunLocker()
	}

	var comma rune
	if cfg.Storage.Comma != "" {
		comma = []rune(cfg.Storage.Comma)[0]
	}
	fileLoader, err := loader.NewFileLoader(loader.Options{
		BaseDir:  cfg.Storage.UploadDir,
		Encoding: cfg.Storage.Encoding,
		Comma:    comma,
	})
	if err != nil {
		return fmt.Errorf("create loader: %w", err)
	}

	// Repositories
	tableRepo := repositories.NewTableRepository()
	linkRepo := repositories.NewLinkRepository()
	ruleRepo := repositories.NewRuleRepository()

	// Services
	tableService := services.NewTableService(tableRepo, fileLoader, logger)
	discoveryService := services.NewDiscoveryService(tableRepo, linkRepo, fileLoader, cfg.Validation, logger)
	linkService := services.NewLinkService(tableRepo, linkRepo, logger)
	validationService := services.NewValidationService(tableRepo, linkRepo, ruleRepo, fileLoader, locker, cfg.Validation, logger)
	ruleService := services.NewRuleService(tableRepo, ruleRepo, fileLoader, cfg.Validation, logger)

	mux := http.NewServeMux()
	tenantMiddleware := handlers.TenantMiddleware(database.WithTenantContext(db, logger))

	// Register handlers
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewTableHandler(tableService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewDiscoveryHandler(discoveryService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewLinkHandler(linkService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewValidationHandler(validationService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewRuleHandler(ruleService, logger).RegisterRoutes(mux, tenantMiddleware)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-linkage",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
