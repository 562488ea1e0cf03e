// Package manager wraps a cache store so that cache failures never reach callers.
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/types"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// StylesNamespace prefixes cached style blobs so they never match a content
// scope prefix.
const StylesNamespace = "styles/"

// ScopesNamespace holds one marker per fully cached scope. The marker value
// is the scope's entry count.
const ScopesNamespace = "scopes/"

// ScopeState is the outcome of a scope lookup.
type ScopeState int

const (
	ScopeMiss ScopeState = iota
	ScopeHit
)

func (s ScopeState) String() string {
	if s == ScopeHit {
		return "hit"
	}
	return "miss"
}

// Manager is the best-effort cache boundary. Store errors are logged and
// turned into misses or skipped writes. A nil store disables caching.
//
// Every scope and every styles blob has a generation. Writers call Advance
// after committing to the backing store; fills carry the generation observed
// before their store read and are dropped when it has moved on.
type Manager struct {
	store  interfaces.Store
	logger *logging.ChanneledLogger

	mu   sync.Mutex
	gens map[string]uint64
}

func NewManager(store interfaces.Store, logger *logging.ChanneledLogger) *Manager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{store: store, logger: logger, gens: make(map[string]uint64)}
}

// Enabled reports whether a store is attached.
func (m *Manager) Enabled() bool { return m != nil && m.store != nil }

func (m *Manager) fail(op, key string, err error) {
	m.logger.Cache().Warn("Cache operation failed; continuing without cache",
		"operation", op, "key", key, "error", err)
}

// Lookup returns the record for key; failures look like a miss.
func (m *Manager) Lookup(key string) (types.CacheRecord, bool) {
	if !m.Enabled() {
		return types.CacheRecord{}, false
	}
	start := time.Now()
	rec, ok, err := m.store.Get(key)
	if err != nil {
		m.fail("get", key, err)
		return types.CacheRecord{}, false
	}
	m.logger.LogCacheOperation("get", key, ok && rec.Valid(), time.Since(start))
	return rec, ok
}

// Get returns a value only when its record is present and valid.
func (m *Manager) Get(key string) (content.Value, bool) {
	rec, ok := m.Lookup(key)
	if !ok || !rec.Valid() {
		return content.Null(), false
	}
	return rec.Value, true
}

func (m *Manager) Put(key string, value content.Value) {
	if !m.Enabled() {
		return
	}
	if err := m.store.Put(key, value); err != nil {
		m.fail("put", key, err)
	}
}

// Generation returns the current generation of a scope prefix or a styles
// key. Read it before the store read whose result will be cached.
func (m *Manager) Generation(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[key]
}

// Advance moves key to a new generation so that fills started earlier are
// discarded, and returns it.
func (m *Manager) Advance(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[key]++
	return m.gens[key]
}

// current reports whether gen is still the generation of key. Callers hold mu.
func (m *Manager) current(key string, gen uint64) bool {
	if m.gens[key] != gen {
		m.logger.Cache().Debug("Dropping cache fill from an older generation", "key", key)
		return false
	}
	return true
}

// FillScope writes individual entries of one scope without marking the scope
// complete, stopping at the first failure. Nothing is written when the
// scope has moved past gen.
func (m *Manager) FillScope(scopePrefix string, entries map[string]content.Value, gen uint64) {
	if !m.Enabled() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(scopePrefix, gen) {
		return
	}
	for key, v := range entries {
		if err := m.store.Put(key, v); err != nil {
			m.fail("put", key, err)
			return
		}
	}
}

func (m *Manager) Invalidate(key string) {
	if !m.Enabled() {
		return
	}
	if err := m.store.Invalidate(key); err != nil {
		m.fail("invalidate", key, err)
	}
}

func (m *Manager) Delete(key string) {
	if !m.Enabled() {
		return
	}
	if err := m.store.Delete(key); err != nil {
		m.fail("delete", key, err)
	}
}

func (m *Manager) KeysWithPrefix(prefix string) []string {
	if !m.Enabled() {
		return nil
	}
	keys, err := m.store.KeysWithPrefix(prefix)
	if err != nil {
		m.fail("keys", prefix, err)
		return nil
	}
	return keys
}

// Scope returns every cached entry under scopePrefix. It is a hit only when
// the scope was cached whole by SyncScope, its marker and every record are
// valid, and the record count still matches the marker.
func (m *Manager) Scope(scopePrefix string) (map[string]content.Value, ScopeState) {
	if !m.Enabled() {
		return nil, ScopeMiss
	}
	start := time.Now()
	miss := func() (map[string]content.Value, ScopeState) {
		m.logger.LogCacheOperation("scope", scopePrefix, false, time.Since(start))
		return nil, ScopeMiss
	}

	marker, ok, err := m.store.Get(ScopesNamespace + scopePrefix)
	if err != nil {
		m.fail("scope", scopePrefix, err)
		return nil, ScopeMiss
	}
	if !ok || !marker.Valid() || marker.Value.Kind() != content.KindNumber {
		return miss()
	}
	want, err := marker.Value.NumberValue().Int64()
	if err != nil || want <= 0 {
		return miss()
	}

	keys, err := m.store.KeysWithPrefix(scopePrefix + ".")
	if err != nil {
		m.fail("scope", scopePrefix, err)
		return nil, ScopeMiss
	}
	entries := make(map[string]content.Value, len(keys))
	for _, key := range keys {
		rec, ok, err := m.store.Get(key)
		if err != nil {
			m.fail("scope", key, err)
			return nil, ScopeMiss
		}
		if !ok {
			continue // removed since KeysWithPrefix
		}
		if !rec.Valid() {
			return miss()
		}
		entries[key] = rec.Value
	}
	if int64(len(entries)) != want {
		return miss()
	}
	m.logger.LogCacheOperation("scope", scopePrefix, true, time.Since(start))
	return entries, ScopeHit
}

// SyncScope makes the cached scope match entries and marks it complete.
// Cached keys under the scope that are not in entries are deleted, and an
// empty entries map leaves the scope uncached. It returns false when gen is
// no longer current or any cache write failed.
func (m *Manager) SyncScope(scopePrefix string, entries map[string]content.Value, gen uint64) bool {
	if !m.Enabled() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(scopePrefix, gen) {
		return false
	}

	marker := ScopesNamespace + scopePrefix
	if err := m.store.Delete(marker); err != nil {
		m.fail("sync", marker, err)
		return false
	}
	existing, err := m.store.KeysWithPrefix(scopePrefix + ".")
	if err != nil {
		m.fail("sync", scopePrefix, err)
		return false
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.store.Put(k, entries[k]); err != nil {
			m.fail("sync", k, err)
			return false
		}
	}
	for _, k := range existing {
		if _, keep := entries[k]; keep {
			continue
		}
		if err := m.store.Delete(k); err != nil {
			m.fail("sync", k, err)
			return false
		}
	}
	if len(entries) == 0 {
		return true
	}
	if err := m.store.Put(marker, content.Int(int64(len(entries)))); err != nil {
		m.fail("sync", marker, err)
		return false
	}
	return true
}

// InvalidateScope marks every cached entry under scopePrefix stale.
func (m *Manager) InvalidateScope(scopePrefix string) {
	m.Invalidate(ScopesNamespace + scopePrefix)
	for _, k := range m.KeysWithPrefix(scopePrefix + ".") {
		m.Invalidate(k)
	}
}

// StylesKey is the cache key, and generation key, of a scope's CSS.
func StylesKey(scopePrefix string) string { return StylesNamespace + scopePrefix }

// Styles returns the cached CSS for a scope and whether the record is valid.
// present is true for invalidated records too.
func (m *Manager) Styles(scopePrefix string) (css string, valid bool, present bool) {
	rec, ok := m.Lookup(StylesKey(scopePrefix))
	if !ok || rec.Value.Kind() != content.KindString {
		return "", false, false
	}
	return rec.Value.StringValue(), rec.Valid(), true
}

// PutStyles caches a scope's CSS unless its styles moved past gen.
func (m *Manager) PutStyles(scopePrefix, css string, gen uint64) bool {
	if !m.Enabled() {
		return false
	}
	key := StylesKey(scopePrefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(key, gen) {
		return false
	}
	if err := m.store.Put(key, content.String(css)); err != nil {
		m.fail("put", key, err)
		return false
	}
	return true
}

// DropStyles removes a scope's cached CSS unless its styles moved past gen.
func (m *Manager) DropStyles(scopePrefix string, gen uint64) {
	if !m.Enabled() {
		return
	}
	key := StylesKey(scopePrefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current(key, gen) {
		if err := m.store.Delete(key); err != nil {
			m.fail("delete", key, err)
		}
	}
}

func (m *Manager) InvalidateStyles(scopePrefix string) {
	m.Invalidate(StylesKey(scopePrefix))
}

// Flushed waits for pending writes to reach the persistence file. Errors are
// logged and reported as false.
func (m *Manager) Flushed(ctx context.Context) bool {
	if !m.Enabled() {
		return false
	}
	if err := m.store.Flushed(ctx); err != nil {
		m.fail("flush", "", err)
		return false
	}
	return true
}

// Sweep runs one cleanup pass on the store.
func (m *Manager) Sweep(now time.Time, ttl, purgeAfter time.Duration) types.SweepResult {
	if !m.Enabled() {
		return types.SweepResult{}
	}
	res, err := m.store.Sweep(now, ttl, purgeAfter)
	if err != nil {
		m.fail("sweep", "", err)
	}
	return res
}

// Stats summarises the store for the status endpoint.
func (m *Manager) Stats() types.StoreStats {
	if !m.Enabled() {
		return types.StoreStats{}
	}
	return m.store.Stats()
}
