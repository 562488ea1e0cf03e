// Package repositories defines the persistence contracts the content services
// depend on. Implementations live under infrastructure/persistence.
package repositories

import (
	"context"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
)

// ContentRepository stores flat entries, one row per canonical key. Every
// error it returns is a *content.StoreError.
type ContentRepository interface {
	// SelectByKeys returns the values found for the given canonical keys.
	// Missing keys are simply absent from the result.
	SelectByKeys(ctx context.Context, keys []string) (map[string]content.Value, error)
	SelectByPage(ctx context.Context, scope content.Scope) ([]content.FlatEntry, error)
	DeleteByPage(ctx context.Context, scope content.Scope) (int64, error)
	InsertMany(ctx context.Context, entries []content.FlatEntry) error
	UpsertOne(ctx context.Context, entry content.FlatEntry) error
	UpsertMany(ctx context.Context, entries []content.FlatEntry) error
	// ReplaceScope deletes the scope and inserts entries in one transaction.
	ReplaceScope(ctx context.Context, scope content.Scope, entries []content.FlatEntry) error
	// ListPageIDs returns every page scope that has rows, sorted, without the
	// shared scope.
	ListPageIDs(ctx context.Context) ([]string, error)
	CountByPage(ctx context.Context, scope content.Scope) (int, error)
}

// StyleRepository stores one CSS blob per scope. Find returns nil, nil when
// the scope has no styles.
type StyleRepository interface {
	Find(ctx context.Context, scope content.Scope) (*content.StyleBlob, error)
	Upsert(ctx context.Context, blob content.StyleBlob) error
}

// HistoryRepository is append-only.
type HistoryRepository interface {
	Append(ctx context.Context, entry *content.HistoryEntry) error
	// ListRecent returns at most limit summaries, newest first.
	ListRecent(ctx context.Context, scope content.Scope, contentType content.ContentType, limit int) ([]content.HistorySummary, error)
	// FindByID returns nil, nil when no such version exists for the scope.
	FindByID(ctx context.Context, scope content.Scope, contentType content.ContentType, id string) (*content.HistoryEntry, error)
}
