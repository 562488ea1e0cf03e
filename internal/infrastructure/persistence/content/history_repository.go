package content

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/repositories"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/security"
)

var _ repositories.HistoryRepository = (*HistoryRepository)(nil)

// HistoryRepository appends snapshots to content_history. saved_at is stored
// as unix milliseconds so ordering is numeric.
type HistoryRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewHistoryRepository(db *database.DB, logger *logging.ChanneledLogger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// Append assigns an ID and SavedAt when they are unset.
func (r *HistoryRepository) Append(ctx context.Context, entry *content.HistoryEntry) error {
	const query = `INSERT INTO content_history (id, page_id, content_type, payload, saved_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?)`

	if entry.SavedAt.IsZero() {
		entry.SavedAt = time.Now().UTC()
	}
	entry.SavedAt = entry.SavedAt.UTC().Truncate(time.Millisecond)
	if entry.ID == "" {
		entry.ID = security.GenerateULIDAt(entry.SavedAt)
	}
	entry.PageID = entry.Scope.PageID()

	var createdBy any
	if entry.CreatedBy != nil {
		createdBy = *entry.CreatedBy
	}

	start := time.Now()
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Scope.Prefix(), string(entry.ContentType), entry.Payload, entry.SavedAt.UnixMilli(), createdBy,
	); err != nil {
		r.logger.Database().Error("History append failed", "error", err.Error(), "scope", entry.Scope.String())
		return wrapStoreError("append history", err)
	}
	database.CheckAndLogSlowQuery(r.logger, r.db.SlowQueryThreshold, query, time.Since(start), entry.Scope.String())
	return nil
}

func (r *HistoryRepository) ListRecent(ctx context.Context, scope content.Scope, contentType content.ContentType, limit int) ([]content.HistorySummary, error) {
	const query = `SELECT id, saved_at, created_by FROM content_history
		WHERE page_id = ? AND content_type = ?
		ORDER BY saved_at DESC, id DESC
		LIMIT ?`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, scope.Prefix(), string(contentType), limit)
	if err != nil {
		return nil, wrapStoreError("list history", err)
	}
	defer rows.Close()

	out := make([]content.HistorySummary, 0, limit)
	for rows.Next() {
		var (
			s         content.HistorySummary
			savedAt   int64
			createdBy sql.NullString
		)
		if err := rows.Scan(&s.ID, &savedAt, &createdBy); err != nil {
			return nil, wrapStoreError("list history", err)
		}
		s.SavedAt = time.UnixMilli(savedAt).UTC()
		if createdBy.Valid {
			by := createdBy.String
			s.CreatedBy = &by
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("list history", err)
	}
	database.CheckAndLogSlowQuery(r.logger, r.db.SlowQueryThreshold, query, time.Since(start), scope.String())
	return out, nil
}

func (r *HistoryRepository) FindByID(ctx context.Context, scope content.Scope, contentType content.ContentType, id string) (*content.HistoryEntry, error) {
	const query = `SELECT id, payload, saved_at, created_by FROM content_history
		WHERE id = ? AND page_id = ? AND content_type = ?`

	var (
		e         = content.HistoryEntry{Scope: scope, PageID: scope.PageID(), ContentType: contentType}
		savedAt   int64
		createdBy sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id, scope.Prefix(), string(contentType)).
		Scan(&e.ID, &e.Payload, &savedAt, &createdBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError("find history", err)
	}
	e.SavedAt = time.UnixMilli(savedAt).UTC()
	if createdBy.Valid {
		by := createdBy.String
		e.CreatedBy = &by
	}
	return &e, nil
}
