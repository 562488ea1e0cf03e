// Package types defines the records held by the local content cache.
package types

import (
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
)

// CacheRecord is one cached value keyed by its canonical key.
type CacheRecord struct {
	Value         content.Value
	CachedAt      time.Time
	InvalidatedAt *time.Time
}

// Valid reports whether the record has not been logically invalidated.
func (r CacheRecord) Valid() bool { return r.InvalidatedAt == nil }

// StoreStats is a point-in-time view of a cache store.
type StoreStats struct {
	Records     int  `json:"records"`
	Invalidated int  `json:"invalidated"`
	PendingSync int  `json:"pendingFlush"`
	Persistent  bool `json:"persistent"`
}

// SweepResult reports what one cleanup pass changed.
type SweepResult struct {
	Expired int
	Purged  int
}
