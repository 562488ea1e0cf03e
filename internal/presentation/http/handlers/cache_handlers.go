package handlers

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/services"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/revalidation"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/persistence/database"
)

// CacheUpdateRequest names the page to refresh in the background.
type CacheUpdateRequest struct {
	PageID string `json:"pageId"`
}

func (r CacheUpdateRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.PageID, pageIDRules...))
}

// CacheHandlers exposes the background refresh trigger and diagnostics
type CacheHandlers struct {
	reader      *services.ContentReadService
	cache       *manager.Manager
	queue       *revalidation.Queue
	hub         *messaging.Hub
	db          *database.DB
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

func NewCacheHandlers(
	reader *services.ContentReadService,
	cache *manager.Manager,
	queue *revalidation.Queue,
	hub *messaging.Hub,
	db *database.DB,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *CacheHandlers {
	return &CacheHandlers{
		reader:      reader,
		cache:       cache,
		queue:       queue,
		hub:         hub,
		db:          db,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// UpdateCache queues a refresh of the page and answers at once. The outcome
// is only logged.
func (h *CacheHandlers) UpdateCache(c *gin.Context) {
	var req CacheUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, "update cache", badBody(err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, "update cache", validationFailure(err))
		return
	}

	scope := content.ParseScope(req.PageID)
	queued := h.reader.ScheduleRefresh(scope)
	h.logger.WithContext(logging.ChannelCache, c.Request.Context()).Info("Background cache update requested",
		"pageId", scope.Prefix(), "queued", queued)
	c.JSON(http.StatusOK, gin.H{"success": true, "pageId": scope.Prefix(), "queued": queued})
}

// Status reports cache, queue, database and request timing diagnostics.
func (h *CacheHandlers) Status(c *gin.Context) {
	body := gin.H{
		"success": true,
		"cache": gin.H{
			"enabled": h.cache.Enabled(),
			"stats":   h.cache.Stats(),
		},
		"operations": h.perfTracker.Snapshot(),
		"uptime":     h.perfTracker.Uptime().String(),
	}
	if h.queue != nil {
		body["queue"] = h.queue.Stats()
	}
	if h.hub != nil {
		body["subscribers"] = h.hub.ClientCount()
	}
	if h.db != nil {
		body["database"] = h.db.Info()
	}
	c.JSON(http.StatusOK, body)
}
