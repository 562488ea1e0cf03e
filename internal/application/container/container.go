// Package container provides dependency injection for the long-lived services
package container

import (
	"github.com/AtRiskMedia/pagecontent-go/internal/application/services"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/revalidation"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/performance"
	persistence "github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/persistence/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/pagecontent-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Content services
	ContentReadService  *services.ContentReadService
	ContentWriteService *services.ContentWriteService
	HistoryService      *services.HistoryService
	WarmingService      *services.WarmingService

	// Infrastructure dependencies
	Config       *config.Config
	DB           *database.DB
	CacheManager *manager.Manager
	Queue        *revalidation.Queue
	Hub          *messaging.Hub
	Logger       *logging.ChanneledLogger
	PerfTracker  *performance.Tracker
}

// NewContainer wires every service against db and the cache store. A nil
// store runs without a local cache. The queue and hub are created here but
// started by the caller.
func NewContainer(cfg *config.Config, db *database.DB, store interfaces.Store, logger *logging.ChanneledLogger) *Container {
	cacheManager := manager.NewManager(store, logger)
	queue := revalidation.NewQueue(cfg.RevalidationWorkers, cfg.RevalidationQueueSize, cfg.RevalidationTimeout, logger)
	hub := messaging.NewHub(logger)

	contentRepo := persistence.NewContentRepository(db, cfg.ContentLocale, logger)
	styleRepo := persistence.NewStyleRepository(db, logger)
	historyRepo := persistence.NewHistoryRepository(db, logger)

	reader := services.NewContentReadService(contentRepo, styleRepo, cacheManager, queue, hub, logger)
	writer := services.NewContentWriteService(contentRepo, styleRepo, historyRepo, reader, hub, logger)

	return &Container{
		ContentReadService:  reader,
		ContentWriteService: writer,
		HistoryService:      services.NewHistoryService(historyRepo, writer, hub, cfg.HistoryListLimit, logger),
		WarmingService:      services.NewWarmingService(reader, cfg.WarmConcurrency, logger),

		Config:       cfg,
		DB:           db,
		CacheManager: cacheManager,
		Queue:        queue,
		Hub:          hub,
		Logger:       logger,
		PerfTracker:  performance.NewTracker(),
	}
}
