package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// EventsHandlers upgrades clients onto the content event stream
type EventsHandlers struct {
	hub      *messaging.Hub
	upgrader websocket.Upgrader
	logger   *logging.ChanneledLogger
}

func NewEventsHandlers(hub *messaging.Hub, logger *logging.ChanneledLogger) *EventsHandlers {
	return &EventsHandlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream subscribes to content events. ?page=<id> limits the stream to one
// page plus shared content.
func (h *EventsHandlers) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Realtime().Warn("Websocket upgrade failed", "error", err.Error())
		return
	}

	page := ""
	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		page = content.ParseScope(raw).Prefix()
	}
	h.logger.Realtime().Debug("Event subscriber connected", "page", page)
	h.hub.ServeClient(conn, page)
}
