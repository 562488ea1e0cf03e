package startup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/container"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/stores"
	schema "github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/pagecontent-go/pkg/config"
)

// Runtime is everything opened at startup that has to be closed on exit.
type Runtime struct {
	Config    *config.Config
	Logger    *logging.ChanneledLogger
	DB        *database.DB
	Store     *stores.LocalStore
	Container *container.Container
}

// NewLogger builds the channeled logger described by cfg.
func NewLogger(cfg *config.Config) (*logging.ChanneledLogger, error) {
	lc := logging.DefaultLoggerConfig()
	lc.OutputToFile = cfg.LogToFile
	lc.LogDirectory = cfg.LogDirectory
	lc.JSONFormat = cfg.LogJSON
	lc.IncludeSource = cfg.LogIncludeSource
	lc.DefaultLevel = logging.ParseLevel(cfg.LogLevel)
	return logging.NewChanneledLogger(lc)
}

// Open loads configuration, connects to the backing store, ensures the
// schema and opens the local cache when enabled.
func Open(ctx context.Context) (*Runtime, error) {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	// Step 1: Connect to the backing store
	phase := time.Now()
	rt.DB, err = database.NewConnection(ctx, cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	logger.LogStartupPhase("database", time.Since(phase), true, map[string]any{"driver": cfg.DBDriver})

	// Step 2: Ensure the schema
	phase = time.Now()
	if err := schema.NewTableCreator().CreateSchema(ctx, rt.DB.DB); err != nil {
		logger.LogStartupPhase("schema", time.Since(phase), false, nil)
		rt.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	logger.LogStartupPhase("schema", time.Since(phase), true, nil)

	// Step 3: Open the local cache
	var store interfaces.Store
	if cfg.CacheEnabled {
		phase = time.Now()
		ls := stores.NewLocalStore(stores.Options{
			Path:          cfg.CachePath,
			FlushInterval: cfg.CacheFlushInterval,
			Logger:        logger,
		})
		if err := ls.Open(ctx); err != nil {
			// Reads still work against the backing store without a cache.
			logger.LogError(logging.ChannelCache, "open_cache", err, map[string]any{"path": cfg.CachePath})
		} else {
			rt.Store = ls
			store = ls
		}
		logger.LogStartupPhase("cache", time.Since(phase), rt.Store != nil, map[string]any{"path": cfg.CachePath})
	} else {
		logger.Startup().Info("Local cache disabled")
	}

	// Step 4: Wire services
	rt.Container = container.NewContainer(cfg, rt.DB, store, logger)
	return rt, nil
}

// Close releases the cache, database and log files, in that order.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if rt.DB != nil {
		if err := rt.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if rt.Logger != nil {
		if err := rt.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logger: %w", err))
		}
	}
	return errors.Join(errs...)
}

// setupLogging configures the standard logger used before the channeled
// logger exists.
func setupLogging() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
