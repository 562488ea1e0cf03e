// Package stores provides the process-local cache store.
package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

var _ interfaces.Store = (*LocalStore)(nil)

// ErrClosed is returned by every operation on a store that is not open.
var ErrClosed = errors.New("cache store is not open")

const defaultFlushInterval = 2 * time.Second

const cacheSchema = `CREATE TABLE IF NOT EXISTS cache_records (
	cache_key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	cached_at INTEGER NOT NULL,
	invalidated_at INTEGER
)`

// Options configures a LocalStore. An empty Path keeps the store in memory.
type Options struct {
	Path          string
	FlushInterval time.Duration
	Logger        *logging.ChanneledLogger
}

// LocalStore keeps cache records in memory and, when a path is configured,
// writes them behind to an SQLite file so they survive restarts.
type LocalStore struct {
	opts Options

	mu      sync.RWMutex
	records map[string]types.CacheRecord
	dirty   map[string]struct{}
	isOpen  bool

	db       *sql.DB
	flushReq chan chan error
	stop     chan struct{}
	done     chan struct{}
}

func NewLocalStore(opts Options) *LocalStore {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	return &LocalStore{opts: opts}
}

// Open loads any persisted records and starts the background flusher.
func (s *LocalStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isOpen {
		return nil
	}
	s.records = make(map[string]types.CacheRecord)
	s.dirty = make(map[string]struct{})

	if s.opts.Path != "" {
		if err := s.openFile(ctx); err != nil {
			return err
		}
		s.flushReq = make(chan chan error)
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.runFlusher()
	}

	s.isOpen = true
	s.log().Info("Local cache opened",
		"persistent", s.db != nil, "path", s.opts.Path, "records", len(s.records))
	return nil
}

func (s *LocalStore) openFile(ctx context.Context) error {
	if dir := filepath.Dir(s.opts.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", s.opts.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open cache file: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping cache file: %w", err)
	}
	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		db.Close()
		return fmt.Errorf("create cache schema: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT cache_key, value, cached_at, invalidated_at FROM cache_records`)
	if err != nil {
		db.Close()
		return fmt.Errorf("load cache records: %w", err)
	}
	defer rows.Close()

	skipped := 0
	for rows.Next() {
		var (
			key, raw    string
			cachedAt    int64
			invalidated sql.NullInt64
		)
		if err := rows.Scan(&key, &raw, &cachedAt, &invalidated); err != nil {
			db.Close()
			return fmt.Errorf("scan cache record: %w", err)
		}
		value, err := content.ParseJSON([]byte(raw))
		if err != nil {
			skipped++
			continue
		}
		rec := types.CacheRecord{Value: value, CachedAt: time.Unix(0, cachedAt).UTC()}
		if invalidated.Valid {
			at := time.Unix(0, invalidated.Int64).UTC()
			rec.InvalidatedAt = &at
		}
		s.records[key] = rec
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return fmt.Errorf("iterate cache records: %w", err)
	}
	if skipped > 0 {
		s.log().Warn("Skipped unreadable cache records", "count", skipped)
	}

	s.db = db
	return nil
}

// Close stops the flusher, writes any pending records and closes the file.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	if !s.isOpen {
		s.mu.Unlock()
		return nil
	}
	s.isOpen = false
	s.mu.Unlock()

	s.mu.RLock()
	persistent := s.db != nil
	s.mu.RUnlock()
	if !persistent {
		return nil
	}
	close(s.stop)
	<-s.done

	flushErr := s.flush()
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	closeErr := db.Close()
	if flushErr != nil {
		return fmt.Errorf("final cache flush: %w", flushErr)
	}
	return closeErr
}

func (s *LocalStore) Get(key string) (types.CacheRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isOpen {
		return types.CacheRecord{}, false, ErrClosed
	}
	rec, ok := s.records[key]
	return rec, ok, nil
}

// Put stores value as a fresh, valid record.
func (s *LocalStore) Put(key string, value content.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isOpen {
		return ErrClosed
	}
	s.records[key] = types.CacheRecord{Value: value, CachedAt: time.Now().UTC()}
	s.markDirty(key)
	return nil
}

// KeysWithPrefix returns matching keys in ascending order.
func (s *LocalStore) KeysWithPrefix(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isOpen {
		return nil, ErrClosed
	}
	keys := make([]string, 0)
	for k := range s.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Invalidate marks a record stale without removing it. Unknown keys are ignored.
func (s *LocalStore) Invalidate(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isOpen {
		return ErrClosed
	}
	rec, ok := s.records[key]
	if !ok || !rec.Valid() {
		return nil
	}
	now := time.Now().UTC()
	rec.InvalidatedAt = &now
	s.records[key] = rec
	s.markDirty(key)
	return nil
}

func (s *LocalStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isOpen {
		return ErrClosed
	}
	if _, ok := s.records[key]; !ok {
		return nil
	}
	delete(s.records, key)
	s.markDirty(key)
	return nil
}

func (s *LocalStore) Sweep(now time.Time, ttl, purgeAfter time.Duration) (types.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res types.SweepResult
	if !s.isOpen {
		return res, ErrClosed
	}
	for key, rec := range s.records {
		if rec.Valid() {
			if ttl > 0 && now.Sub(rec.CachedAt) > ttl {
				at := now.UTC()
				rec.InvalidatedAt = &at
				s.records[key] = rec
				s.markDirty(key)
				res.Expired++
			}
			continue
		}
		if purgeAfter > 0 && now.Sub(*rec.InvalidatedAt) >= purgeAfter {
			delete(s.records, key)
			s.markDirty(key)
			res.Purged++
		}
	}
	return res, nil
}

func (s *LocalStore) Stats() types.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := types.StoreStats{
		Records:     len(s.records),
		PendingSync: len(s.dirty),
		Persistent:  s.db != nil,
	}
	for _, rec := range s.records {
		if !rec.Valid() {
			stats.Invalidated++
		}
	}
	return stats
}

// Flushed waits until every change made before the call has been written to
// the cache file. A memory-only store is always flushed.
func (s *LocalStore) Flushed(ctx context.Context) error {
	s.mu.RLock()
	isOpen, persistent := s.isOpen, s.db != nil
	s.mu.RUnlock()
	if !isOpen {
		return ErrClosed
	}
	if !persistent {
		return nil
	}

	reply := make(chan error, 1)
	select {
	case s.flushReq <- reply:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markDirty must be called with mu held.
func (s *LocalStore) markDirty(key string) {
	if s.dirty != nil && s.opts.Path != "" {
		s.dirty[key] = struct{}{}
	}
}

func (s *LocalStore) runFlusher() {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.log().Error("Cache flush failed", "error", err)
			}
		case reply := <-s.flushReq:
			reply <- s.flush()
		}
	}
}

// flush writes the dirty set in one transaction. Only the flusher goroutine
// and Close (after the flusher exits) call it.
func (s *LocalStore) flush() error {
	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := make(map[string]*types.CacheRecord, len(s.dirty))
	for key := range s.dirty {
		if rec, ok := s.records[key]; ok {
			batch[key] = &rec
		} else {
			batch[key] = nil
		}
	}
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()

	if err := s.writeBatch(batch); err != nil {
		s.mu.Lock()
		for key := range batch {
			s.dirty[key] = struct{}{}
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *LocalStore) writeBatch(batch map[string]*types.CacheRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.Prepare(`INSERT INTO cache_records (cache_key, value, cached_at, invalidated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			value = excluded.value,
			cached_at = excluded.cached_at,
			invalidated_at = excluded.invalidated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer upsert.Close()

	del, err := tx.Prepare(`DELETE FROM cache_records WHERE cache_key = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer del.Close()

	for key, rec := range batch {
		if rec == nil {
			if _, err := del.Exec(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			continue
		}
		raw, err := rec.Value.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		var invalidated any
		if rec.InvalidatedAt != nil {
			invalidated = rec.InvalidatedAt.UnixNano()
		}
		if _, err := upsert.Exec(key, string(raw), rec.CachedAt.UnixNano(), invalidated); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *LocalStore) log() *slog.Logger {
	if s.opts.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.opts.Logger.Cache()
}
