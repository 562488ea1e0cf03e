package content

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/repositories"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/persistence/database"
)

var _ repositories.ContentRepository = (*ContentRepository)(nil)

// maxKeysPerQuery stays under SQLite's default bound-variable limit.
const maxKeysPerQuery = 500

// ContentRepository maps flat entries onto page_content rows. The content
// column holds {"<locale>": value}; only the configured locale is used.
type ContentRepository struct {
	db     *database.DB
	locale string
	logger *logging.ChanneledLogger
}

func NewContentRepository(db *database.DB, locale string, logger *logging.ChanneledLogger) *ContentRepository {
	return &ContentRepository{db: db, locale: locale, logger: logger}
}

func (r *ContentRepository) observe(query, scope string, start time.Time) {
	database.CheckAndLogSlowQuery(r.logger, r.db.SlowQueryThreshold, query, time.Since(start), scope)
}

func (r *ContentRepository) SelectByKeys(ctx context.Context, keys []string) (map[string]content.Value, error) {
	result := make(map[string]content.Value, len(keys))
	for start := 0; start < len(keys); start += maxKeysPerQuery {
		end := min(start+maxKeysPerQuery, len(keys))
		if err := r.selectChunk(ctx, keys[start:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *ContentRepository) selectChunk(ctx context.Context, keys []string, into map[string]content.Value) error {
	query := fmt.Sprintf(`SELECT json_key, content FROM page_content WHERE json_key IN (%s)`, database.Placeholders(len(keys)))
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Database().Error("Content key lookup failed", "error", err.Error(), "keys", len(keys))
		return wrapStoreError("select by keys", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return wrapStoreError("select by keys", err)
		}
		if v, ok := r.decode(key, raw); ok {
			into[key] = v
		}
	}
	if err := rows.Err(); err != nil {
		return wrapStoreError("select by keys", err)
	}
	r.observe("BULK_SELECT_BY_KEYS", "paths", start)
	return nil
}

func (r *ContentRepository) SelectByPage(ctx context.Context, scope content.Scope) ([]content.FlatEntry, error) {
	const query = `SELECT json_key, content FROM page_content WHERE page_id = ? ORDER BY json_key`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, scope.Prefix())
	if err != nil {
		r.logger.Database().Error("Content page read failed", "error", err.Error(), "scope", scope.String())
		return nil, wrapStoreError("select by page", err)
	}
	defer rows.Close()

	keyPrefix := scope.KeyPrefix()
	entries := make([]content.FlatEntry, 0)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, wrapStoreError("select by page", err)
		}
		rel, ok := strings.CutPrefix(key, keyPrefix)
		if !ok || rel == "" {
			r.logger.Database().Warn("Skipping row with key outside its page", "scope", scope.String(), "key", key)
			continue
		}
		if v, ok := r.decode(key, raw); ok {
			entries = append(entries, content.FlatEntry{Scope: scope, Key: rel, Value: v})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("select by page", err)
	}

	r.logger.Database().Debug("Content page read", "scope", scope.String(), "entries", len(entries), "duration", time.Since(start))
	r.observe(query, scope.String(), start)
	return entries, nil
}

func (r *ContentRepository) DeleteByPage(ctx context.Context, scope content.Scope) (int64, error) {
	const query = `DELETE FROM page_content WHERE page_id = ?`
	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, scope.Prefix())
	if err != nil {
		return 0, wrapStoreError("delete by page", err)
	}
	r.observe(query, scope.String(), start)
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *ContentRepository) InsertMany(ctx context.Context, entries []content.FlatEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.inTx(ctx, "insert many", func(tx *sql.Tx) error {
		return r.writeEntries(ctx, tx, insertSQL, entries)
	})
}

func (r *ContentRepository) UpsertOne(ctx context.Context, entry content.FlatEntry) error {
	raw, err := r.encode(entry.Value)
	if err != nil {
		return wrapStoreError("upsert", err)
	}
	start := time.Now()
	if _, err := r.db.ExecContext(ctx, upsertSQL, entry.Scope.Prefix(), entry.CanonicalKey(), raw, now()); err != nil {
		r.logger.Database().Error("Content upsert failed", "error", err.Error(), "key", entry.CanonicalKey())
		return wrapStoreError("upsert", err)
	}
	r.observe(upsertSQL, entry.Scope.String(), start)
	return nil
}

func (r *ContentRepository) UpsertMany(ctx context.Context, entries []content.FlatEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.inTx(ctx, "upsert many", func(tx *sql.Tx) error {
		return r.writeEntries(ctx, tx, upsertSQL, entries)
	})
}

func (r *ContentRepository) ReplaceScope(ctx context.Context, scope content.Scope, entries []content.FlatEntry) error {
	return r.inTx(ctx, "replace scope", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM page_content WHERE page_id = ?`, scope.Prefix()); err != nil {
			return err
		}
		scoped := make([]content.FlatEntry, len(entries))
		for i, e := range entries {
			e.Scope = scope
			scoped[i] = e
		}
		return r.writeEntries(ctx, tx, insertSQL, scoped)
	})
}

func (r *ContentRepository) ListPageIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT page_id FROM page_content WHERE page_id <> ? ORDER BY page_id`
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, content.SharedScopeMarker)
	if err != nil {
		return nil, wrapStoreError("list page ids", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapStoreError("list page ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("list page ids", err)
	}
	r.observe(query, "all", start)
	return ids, nil
}

func (r *ContentRepository) CountByPage(ctx context.Context, scope content.Scope) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_content WHERE page_id = ?`, scope.Prefix()).Scan(&n); err != nil {
		return 0, wrapStoreError("count by page", err)
	}
	return n, nil
}

const (
	insertSQL = `INSERT INTO page_content (page_id, json_key, content, updated_at) VALUES (?, ?, ?, ?)`
	upsertSQL = `INSERT INTO page_content (page_id, json_key, content, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(page_id, json_key) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`
)

func (r *ContentRepository) writeEntries(ctx context.Context, tx *sql.Tx, query string, entries []content.FlatEntry) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := now()
	for _, e := range entries {
		raw, err := r.encode(e.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.CanonicalKey(), err)
		}
		if _, err := stmt.ExecContext(ctx, e.Scope.Prefix(), e.CanonicalKey(), raw, ts); err != nil {
			return fmt.Errorf("write %s: %w", e.CanonicalKey(), err)
		}
	}
	return nil
}

func (r *ContentRepository) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		r.logger.Database().Error("Content transaction rolled back", "operation", op, "error", err.Error())
		return wrapStoreError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return wrapStoreError(op, err)
	}
	r.observe("BULK_"+strings.ToUpper(strings.ReplaceAll(op, " ", "_")), "tx", start)
	return nil
}

// encode wraps a value in the locale object stored in the content column.
func (r *ContentRepository) encode(v content.Value) (string, error) {
	raw, err := content.Object(r.locale, v).MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// decode extracts the configured locale; rows without it are skipped.
func (r *ContentRepository) decode(key, raw string) (content.Value, bool) {
	doc, err := content.ParseJSON([]byte(raw))
	if err != nil {
		r.logger.Database().Warn("Skipping row with malformed content", "key", key, "error", err.Error())
		return content.Null(), false
	}
	v, ok := doc.Get(r.locale)
	if !ok || v.IsNull() {
		return content.Null(), false
	}
	return v, true
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
