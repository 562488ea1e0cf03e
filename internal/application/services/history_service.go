package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/repositories"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// DefaultHistoryLimit is how many versions List returns when unconfigured.
const DefaultHistoryLimit = 5

// RestoreResult reports which version became current.
type RestoreResult struct {
	PageID       string              `json:"pageId"`
	ContentType  content.ContentType `json:"contentType"`
	VersionID    string              `json:"versionId"`
	EntriesCount int                 `json:"entriesCount,omitempty"`
	CSSLength    int                 `json:"cssLength,omitempty"`
}

// HistoryService lists, fetches and restores scope snapshots.
type HistoryService struct {
	history   repositories.HistoryRepository
	writer    *ContentWriteService
	publisher messaging.Publisher
	limit     int
	logger    *logging.ChanneledLogger
}

func NewHistoryService(
	history repositories.HistoryRepository,
	writer *ContentWriteService,
	publisher messaging.Publisher,
	limit int,
	logger *logging.ChanneledLogger,
) *HistoryService {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HistoryService{history: history, writer: writer, publisher: publisher, limit: limit, logger: logger}
}

func parseHistoryTarget(pageID, contentType string) (content.Scope, content.ContentType, error) {
	scope := content.ParseScope(pageID)
	if scope.IsZero() {
		return scope, "", content.InvalidPageID()
	}
	ct := content.ContentType(strings.ToLower(strings.TrimSpace(contentType)))
	if !ct.Valid() {
		return scope, "", content.NewValidationError("contentType", "content type must be json or css")
	}
	return scope, ct, nil
}

// List returns the most recent versions, newest first.
func (s *HistoryService) List(ctx context.Context, pageID, contentType string) ([]content.HistorySummary, error) {
	scope, ct, err := parseHistoryTarget(pageID, contentType)
	if err != nil {
		return nil, err
	}
	versions, err := s.history.ListRecent(ctx, scope, ct, s.limit)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []content.HistorySummary{}
	}
	return versions, nil
}

// Get returns one version with its payload, or content.ErrNotFound.
func (s *HistoryService) Get(ctx context.Context, pageID, contentType, versionID string) (*content.HistoryEntry, error) {
	scope, ct, err := parseHistoryTarget(pageID, contentType)
	if err != nil {
		return nil, err
	}
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return nil, content.NewValidationError("versionId", "version id is required")
	}
	entry, err := s.history.FindByID(ctx, scope, ct, versionID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("version %s of %s/%s: %w", versionID, scope.Prefix(), ct, content.ErrNotFound)
	}
	return entry, nil
}

// Restore writes a historical payload back as the current content. The write
// itself backs up the state being replaced.
func (s *HistoryService) Restore(ctx context.Context, pageID, contentType, versionID string, createdBy *string) (*RestoreResult, error) {
	entry, err := s.Get(ctx, pageID, contentType, versionID)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{PageID: entry.Scope.Prefix(), ContentType: entry.ContentType, VersionID: entry.ID}
	switch entry.ContentType {
	case content.ContentTypeJSON:
		tree, err := content.ParseJSON([]byte(entry.Payload))
		if err != nil {
			return nil, fmt.Errorf("decode version %s: %w", entry.ID, err)
		}
		saved, err := s.writer.SaveContent(ctx, entry.Scope.Prefix(), tree, createdBy)
		if err != nil {
			return nil, err
		}
		result.EntriesCount = saved.EntriesCount
	case content.ContentTypeCSS:
		saved, err := s.writer.SaveStyles(ctx, entry.Scope.Prefix(), entry.Payload, createdBy)
		if err != nil {
			return nil, err
		}
		result.CSSLength = saved.CSSLength
	}

	s.publisher.Publish(messaging.NewContentEvent(messaging.EventContentRestored, result.PageID,
		map[string]any{"contentType": string(entry.ContentType), "versionId": entry.ID}))
	s.logger.WithContext(logging.ChannelContent, ctx).Info("Version restored",
		"pageId", result.PageID, "contentType", entry.ContentType, "versionId", entry.ID)
	return result, nil
}
