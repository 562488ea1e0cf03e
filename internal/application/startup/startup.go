// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/seeding"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/pagecontent-go/internal/presentation/http/server"
)

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal arrives.
func Initialize() error {
	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("Initializing...")
	rt, err := Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Printf("Error during resource cleanup: %v", err)
		}
	}()

	cfg := rt.Config
	logger := rt.Logger
	appContainer := rt.Container
	logger.Startup().Info("Container initialization complete - switching to channeled logging")

	// Step 5: Start background workers
	appContainer.Queue.Start()
	go appContainer.Hub.Run(ctx)

	// Step 6: Seed content when a seed directory is configured
	if cfg.SeedDir != "" {
		logger.Startup().Info("Seeding content...", "dir", cfg.SeedDir)
		loader := seeding.NewLoader(appContainer.ContentWriteService, false, logger)
		report, err := loader.Run(ctx, cfg.SeedDir)
		if err != nil {
			logger.Startup().Error("Content seeding finished with errors", "error", err.Error())
		}
		if report != nil {
			logger.Startup().Info("Content seeding completed",
				"pages", len(report.Pages),
				"styles", len(report.Styles),
				"conflicts", len(report.Conflicts),
				"failed", len(report.Failed),
				"duration", report.Duration)
		}
	}

	// Step 7: Initialize cache warming
	if cfg.WarmOnStartup {
		logger.Startup().Info("Initializing cache warming...")
		startWarmTime := time.Now()
		if _, err := appContainer.WarmingService.WarmAll(ctx); err != nil {
			logger.Startup().Error("Cache warming failed", "error", err.Error(), "duration", time.Since(startWarmTime))
		}
	}

	// Step 8: Start background cleanup worker
	logger.Startup().Info("Starting background cleanup worker...")
	cleanupWorker := cleanup.NewWorker(appContainer.CacheManager, cleanup.NewConfig(cfg), logger)
	go cleanupWorker.Start(ctx)

	// Step 9: Start HTTP server
	httpServer := server.New(appContainer)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"address", httpServer.Addr(),
		"cacheEnabled", appContainer.CacheManager.Enabled())

	// Step 10: Wait for a shutdown signal or a server failure
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownStart := time.Now()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}

	logger.Shutdown().Info("Draining revalidation queue...")
	if err := appContainer.Queue.Drain(shutdownCtx); err != nil {
		logger.Shutdown().Error("Revalidation queue did not drain", "error", err.Error())
	}

	cancelBackgroundTasks()

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return runErr
}

// Seed imports every content file under dir and exits. With force, existing
// pages and stylesheets are overwritten.
func Seed(dir string, force bool) (*seeding.Report, error) {
	ctx := context.Background()
	rt, err := Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	return seeding.NewLoader(rt.Container.ContentWriteService, force, rt.Logger).Run(ctx, dir)
}
