// Package messaging pushes content change notifications to websocket clients.
package messaging

import "time"

const (
	EventContentUpdated  = "content-updated"
	EventStylesUpdated   = "styles-updated"
	EventContentRestored = "content-restored"
	EventCacheRefreshed  = "cache-refreshed"
)

// ContentEvent is the message sent to subscribers.
type ContentEvent struct {
	Type   string         `json:"type"`
	PageID string         `json:"pageId"`
	At     time.Time      `json:"at"`
	Detail map[string]any `json:"detail,omitempty"`
}

// NewContentEvent stamps an event with the current time.
func NewContentEvent(eventType, pageID string, detail map[string]any) ContentEvent {
	return ContentEvent{Type: eventType, PageID: pageID, At: time.Now().UTC(), Detail: detail}
}

// Publisher is implemented by Hub. Publish must not block.
type Publisher interface {
	Publish(evt ContentEvent)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ContentEvent) {}
