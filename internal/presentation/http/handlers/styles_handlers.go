package handlers

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/services"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/performance"
)

// SaveStylesRequest replaces a page's CSS. Styles may be empty but not absent.
type SaveStylesRequest struct {
	PageID    string  `json:"pageId"`
	Styles    *string `json:"styles"`
	CreatedBy *string `json:"createdBy,omitempty"`
}

func (r SaveStylesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PageID, pageIDRules...),
		validation.Field(&r.Styles, validation.NotNil),
	)
}

// StylesHandlers serves and stores page CSS
type StylesHandlers struct {
	reader      *services.ContentReadService
	writer      *services.ContentWriteService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

func NewStylesHandlers(reader *services.ContentReadService, writer *services.ContentWriteService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *StylesHandlers {
	return &StylesHandlers{reader: reader, writer: writer, logger: logger, perfTracker: perfTracker}
}

// GetStyles returns a page's CSS, 404 when it has none.
func (h *StylesHandlers) GetStyles(c *gin.Context) {
	pageID := c.Param("pageId")
	marker := h.perfTracker.StartOperation("get_styles_request", pageID)
	defer marker.Complete()

	res, err := h.reader.ReadStyles(c.Request.Context(), pageID)
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "get styles", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pageId":  res.PageID,
		"styles":  res.CSS,
		"source":  res.Source,
	})
}

// SaveStyles backs up and replaces a page's CSS.
func (h *StylesHandlers) SaveStyles(c *gin.Context) {
	var req SaveStylesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, "save styles", badBody(err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.logger, "save styles", validationFailure(err))
		return
	}

	marker := h.perfTracker.StartOperation("save_styles_request", req.PageID)
	defer marker.Complete()

	res, err := h.writer.SaveStyles(c.Request.Context(), req.PageID, *req.Styles, req.CreatedBy)
	if err != nil {
		marker.SetError(err)
		respondError(c, h.logger, "save styles", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"pageId":         res.PageID,
		"cssLength":      res.CSSLength,
		"cacheRefreshed": res.CacheRefreshed,
	})
}
