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
)

var _ repositories.StyleRepository = (*StyleRepository)(nil)

type StyleRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewStyleRepository(db *database.DB, logger *logging.ChanneledLogger) *StyleRepository {
	return &StyleRepository{db: db, logger: logger}
}

func (r *StyleRepository) Find(ctx context.Context, scope content.Scope) (*content.StyleBlob, error) {
	const query = `SELECT css, updated_at FROM page_styles WHERE page_id = ?`

	start := time.Now()
	var css, updated string
	err := r.db.QueryRowContext(ctx, query, scope.Prefix()).Scan(&css, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Database().Error("Style read failed", "error", err.Error(), "scope", scope.String())
		return nil, wrapStoreError("find styles", err)
	}
	database.CheckAndLogSlowQuery(r.logger, r.db.SlowQueryThreshold, query, time.Since(start), scope.String())

	updatedAt, _ := time.Parse(time.RFC3339Nano, updated)
	return &content.StyleBlob{Scope: scope, PageID: scope.PageID(), CSS: css, UpdatedAt: updatedAt}, nil
}

func (r *StyleRepository) Upsert(ctx context.Context, blob content.StyleBlob) error {
	const query = `INSERT INTO page_styles (page_id, css, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET css = excluded.css, updated_at = excluded.updated_at`

	updatedAt := blob.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	start := time.Now()
	if _, err := r.db.ExecContext(ctx, query, blob.Scope.Prefix(), blob.CSS, updatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		r.logger.Database().Error("Style upsert failed", "error", err.Error(), "scope", blob.Scope.String())
		return wrapStoreError("upsert styles", err)
	}
	database.CheckAndLogSlowQuery(r.logger, r.db.SlowQueryThreshold, query, time.Since(start), blob.Scope.String())
	return nil
}
