// Package interfaces defines the contract between the cache manager and its stores.
package interfaces

import (
	"context"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/types"
)

// Store is a raw cache store. Every method may fail; callers decide whether
// failures matter.
type Store interface {
	Get(key string) (types.CacheRecord, bool, error)
	Put(key string, value content.Value) error
	KeysWithPrefix(prefix string) ([]string, error)
	Invalidate(key string) error
	Delete(key string) error

	// Flushed blocks until every mutation made before the call is durable.
	Flushed(ctx context.Context) error

	// Sweep expires records cached before now-ttl and removes invalidated
	// records older than now-purgeAfter.
	Sweep(now time.Time, ttl, purgeAfter time.Duration) (types.SweepResult, error)

	Stats() types.StoreStats
}
