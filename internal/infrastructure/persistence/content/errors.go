// Package content implements the content repositories on SQLite and libSQL.
package content

import (
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
)

// wrapStoreError turns a driver error into a StoreError, attaching SQLite
// result codes when the driver reports them.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *content.StoreError
	if errors.As(err, &se) {
		return err
	}
	var details map[string]any
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		details = map[string]any{
			"code":         int(sqliteErr.Code),
			"extendedCode": int(sqliteErr.ExtendedCode),
			"message":      sqliteErr.Error(),
		}
	}
	return content.NewStoreError(op, err, details)
}
