// Package database creates the backing store schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TableCreator builds the content schema. Every statement is idempotent.
type TableCreator struct{}

func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema runs all table and index statements in order.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}
	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS page_content (
		page_id TEXT NOT NULL,
		json_key TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (page_id, json_key)
	)`,
	`CREATE TABLE IF NOT EXISTS page_styles (
		page_id TEXT PRIMARY KEY,
		css TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS content_history (
		id TEXT PRIMARY KEY,
		page_id TEXT NOT NULL,
		content_type TEXT NOT NULL CHECK (content_type IN ('json', 'css')),
		payload TEXT NOT NULL,
		saved_at INTEGER NOT NULL,
		created_by TEXT
	)`,
}

var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_page_content_key ON page_content(json_key)`,
	`CREATE INDEX IF NOT EXISTS idx_content_history_lookup ON content_history(page_id, content_type, saved_at DESC)`,
}
