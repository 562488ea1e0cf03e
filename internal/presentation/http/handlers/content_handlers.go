package handlers

import (
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/services"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/performance"
)

// SaveContentRequest replaces a page's whole tree.
type SaveContentRequest struct {
	PageID    string        `json:"pageId"`
	Content   content.Value `json:"content"`
	CreatedBy *string       `json:"createdBy,omitempty"`
}

func (r SaveContentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PageID, pageIDRules...),
		validation.Field(&r.Content, requiredValue),
	)
}

// SyncContentRequest imports a page tree, refusing to overwrite unless Force.
type SyncContentRequest struct {
	PageID    string        `json:"pageId"`
	Content   content.Value `json:"content"`
	Force     bool          `json:"force"`
	CreatedBy *string       `json:"createdBy,omitempty"`
}

func (r SyncContentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PageID, pageIDRules...),
		validation.Field(&r.Content, requiredValue),
	)
}

// EditsRequest carries field-level edits from the visual editor.
type EditsRequest struct {
	PageID    string                   `json:"pageId"`
	Edits     map[string]services.Edit `json:"edits"`
	CreatedBy *string                  `json:"createdBy,omitempty"`
}

func (r EditsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PageID, pageIDRules...),
		validation.Field(&r.Edits, validation.Required),
	)
}

// ContentHandlers contains the content read and write handlers
type ContentHandlers struct {
	reader      *services.ContentReadService
	writer      *services.ContentWriteService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewContentHandlers creates content handlers with injected dependencies
func NewContentHandlers(reader *services.ContentReadService, writer *services.ContentWriteService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *ContentHandlers {
	return &ContentHandlers{
		reader:      reader,
		writer:      writer,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// GetContent serves ?pages=a,b (or __all__ for the page id list) and
// ?paths=a.x,b.y. When both are given pages wins.
func (h *ContentHandlers) GetContent(c *gin.Context) {
	pages := splitList(c.Query("pages"))
	paths := splitList(c.Query("paths"))

	switch {
	case len(pages) == 1 && pages[0] == content.AllPagesMarker:
		h.listPages(c)
	case len(pages) > 0:
		h.readPages(c, pages)
	case len(paths) > 0:
		h.readPaths(c, paths)
	default:
		respondError(c, h.logger, "get content", content.NewValidationError("pages", "pages or paths query parameter is required"))
	}
}

func (h *ContentHandlers) listPages(c *gin.Context) {
	marker := h.perfTracker.StartOperation("list_pages_request", content.AllPagesMarker)
	defer marker.Complete()

	ids, err := h.reader.ListPageIDs(c.Request.Context())
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "list pages", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"success": true, "pageIds": ids, "count": len(ids)})
}

func (h *ContentHandlers) readPages(c *gin.Context, pages []string) {
	marker := h.perfTracker.StartOperation("read_pages_request", pages[0])
	defer marker.Complete()

	res, err := h.reader.ReadPages(c.Request.Context(), pages)
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "read pages", err)
		return
	}
	marker.SetSuccess(true)
	marker.AddMetadata("pages", len(pages))
	h.logger.Perf().Debug("Performance for ReadPages request", "duration", time.Since(marker.StartTime), "pages", len(pages))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pages":   res.Pages,
		"sources": res.Sources,
		"timings": res.Timings,
	})
}

func (h *ContentHandlers) readPaths(c *gin.Context, paths []string) {
	marker := h.perfTracker.StartOperation("read_paths_request", paths[0])
	defer marker.Complete()

	res, err := h.reader.ReadPaths(c.Request.Context(), paths)
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "read paths", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    res.Data,
		"sources": res.Sources,
		"timings": res.Timings,
	})
}

// GetPage returns one page merged over the shared scope, or 404.
func (h *ContentHandlers) GetPage(c *gin.Context) {
	pageID := c.Param("pageId")
	marker := h.perfTracker.StartOperation("get_page_request", pageID)
	defer marker.Complete()

	res, err := h.reader.ReadPages(c.Request.Context(), []string{pageID})
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "get page", err)
		return
	}
	id := services.NormalizePageIDs([]string{pageID})[0]
	if res.Sources[id] == services.SourceNotFound {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "page " + id + " not found"})
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pageId":  id,
		"content": res.Pages[id],
		"source":  res.Sources[id],
		"timings": res.Timings,
	})
}

// SaveContent replaces a page's tree.
func (h *ContentHandlers) SaveContent(c *gin.Context) {
	var req SaveContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, "save content", badBody(err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, "save content", validationFailure(err))
		return
	}

	marker := h.perfTracker.StartOperation("save_content_request", req.PageID)
	defer marker.Complete()

	res, err := h.writer.SaveContent(c.Request.Context(), req.PageID, req.Content, req.CreatedBy)
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "save content", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"pageId":         res.PageID,
		"entriesCount":   res.EntriesCount,
		"cacheRefreshed": res.CacheRefreshed,
	})
}

// SyncContent imports a page tree; 409 when the page already has content
// and force is not set.
func (h *ContentHandlers) SyncContent(c *gin.Context) {
	var req SyncContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, "sync content", badBody(err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, "sync content", validationFailure(err))
		return
	}

	marker := h.perfTracker.StartOperation("sync_content_request", req.PageID)
	defer marker.Complete()

	res, err := h.writer.SyncContent(c.Request.Context(), req.PageID, req.Content, req.Force, req.CreatedBy)
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "sync content", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"pageId":         res.PageID,
		"entriesCount":   res.EntriesCount,
		"cacheRefreshed": res.CacheRefreshed,
	})
}

// SaveEdits applies field-level edits.
func (h *ContentHandlers) SaveEdits(c *gin.Context) {
	var req EditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, "save edits", badBody(err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, "save edits", validationFailure(err))
		return
	}

	marker := h.perfTracker.StartOperation("save_edits_request", req.PageID)
	defer marker.Complete()

	res, err := h.writer.SaveEdits(c.Request.Context(), services.EditRequest{
		PageID:    req.PageID,
		Edits:     req.Edits,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "save edits", err)
		return
	}
	marker.SetSuccess(true)
	marker.AddMetadata("applied", res.AppliedCount)
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"appliedCount":   res.AppliedCount,
		"totalEdits":     res.TotalEdits,
		"updates":        res.Updates,
		"skipped":        res.Skipped,
		"cacheRefreshed": res.CacheRefreshed,
		"timing":         res.Timing,
	})
}
