package handlers

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/services"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/performance"
)

// RestoreVersionRequest names the snapshot to make current again.
type RestoreVersionRequest struct {
	PageID      string  `json:"pageId"`
	ContentType string  `json:"contentType"`
	VersionID   string  `json:"versionId"`
	CreatedBy   *string `json:"createdBy,omitempty"`
}

func (r RestoreVersionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PageID, pageIDRules...),
		validation.Field(&r.ContentType, validation.Required,
			validation.In(string(content.ContentTypeJSON), string(content.ContentTypeCSS))),
		validation.Field(&r.VersionID, validation.Required),
	)
}

// HistoryHandlers lists, fetches and restores versions
type HistoryHandlers struct {
	history     *services.HistoryService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

func NewHistoryHandlers(history *services.HistoryService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *HistoryHandlers {
	return &HistoryHandlers{history: history, logger: logger, perfTracker: perfTracker}
}

// ListVersions returns the most recent snapshots, newest first.
func (h *HistoryHandlers) ListVersions(c *gin.Context) {
	pageID, contentType := c.Param("pageId"), c.Param("contentType")
	marker := h.perfTracker.StartOperation("list_versions_request", pageID)
	defer marker.Complete()

	versions, err := h.history.List(c.Request.Context(), pageID, contentType)
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "list versions", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"success": true, "versions": versions, "count": len(versions)})
}

// GetVersion returns one snapshot with its payload.
func (h *HistoryHandlers) GetVersion(c *gin.Context) {
	pageID := c.Param("pageId")
	marker := h.perfTracker.StartOperation("get_version_request", pageID)
	defer marker.Complete()

	entry, err := h.history.Get(c.Request.Context(), pageID, c.Param("contentType"), c.Param("versionId"))
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "get version", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"success": true, "version": entry})
}

// RestoreVersion makes a snapshot the current content again.
func (h *HistoryHandlers) RestoreVersion(c *gin.Context) {
	var req RestoreVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, "restore version", badBody(err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, "restore version", validationFailure(err))
		return
	}

	marker := h.perfTracker.StartOperation("restore_version_request", req.PageID)
	defer marker.Complete()

	res, err := h.history.Restore(c.Request.Context(), req.PageID, req.ContentType, req.VersionID, req.CreatedBy)
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "restore version", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"success": true, "restored": res})
}
