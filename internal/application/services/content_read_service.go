// Package services provides application-level services that orchestrate
// the content store, the local cache and the realtime hub.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/keypath"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/repositories"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/revalidation"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// Source tags where a read was answered from.
const (
	SourceCache    = "cache"
	SourceDB       = "db"
	SourceNotFound = "not-found"
)

// Timings reports where a read spent its time, in milliseconds.
type Timings struct {
	CacheMs float64 `json:"cacheMs"`
	StoreMs float64 `json:"storeMs"`
	TotalMs float64 `json:"totalMs"`
}

type timer struct {
	start time.Time
	cache time.Duration
	store time.Duration
}

func newTimer() *timer { return &timer{start: time.Now()} }

func (t *timer) timings() Timings {
	return Timings{
		CacheMs: millis(t.cache),
		StoreMs: millis(t.store),
		TotalMs: millis(time.Since(t.start)),
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// PagesResult is the response of a whole-page read. A page with no content
// maps to a null tree and the not-found source.
type PagesResult struct {
	Pages   map[string]content.Value `json:"pages"`
	Sources map[string]string        `json:"sources"`
	Timings Timings                  `json:"timings"`
}

// PathsResult is the response of a field-level read. Paths that were not
// found appear in Sources only.
type PathsResult struct {
	Data    map[string]content.Value `json:"data"`
	Sources map[string]string        `json:"sources"`
	Timings Timings                  `json:"timings"`
}

// StylesResult is a scope's CSS with its read source.
type StylesResult struct {
	PageID string `json:"pageId"`
	CSS    string `json:"css"`
	Source string `json:"source"`
}

// ContentReadService serves reconstructed trees through the local cache with
// stale-while-revalidate semantics.
type ContentReadService struct {
	repo      repositories.ContentRepository
	styleRepo repositories.StyleRepository
	cache     *manager.Manager
	queue     revalidation.Submitter
	publisher messaging.Publisher
	logger    *logging.ChanneledLogger
	refreshes singleflight.Group
}

// NewContentReadService wires the read path. queue and publisher may be nil,
// which disables background revalidation and event publishing.
func NewContentReadService(
	repo repositories.ContentRepository,
	styleRepo repositories.StyleRepository,
	cache *manager.Manager,
	queue revalidation.Submitter,
	publisher messaging.Publisher,
	logger *logging.ChanneledLogger,
) *ContentReadService {
	if cache == nil {
		cache = manager.NewManager(nil, logger)
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ContentReadService{
		repo:      repo,
		styleRepo: styleRepo,
		cache:     cache,
		queue:     queue,
		publisher: publisher,
		logger:    logger,
	}
}

// NormalizePageIDs trims, lowercases and dedupes ids, keeping request order.
func NormalizePageIDs(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ReadPages resolves every requested page. The shared scope is resolved once
// and merged under each page tree; requesting "shared" itself returns the
// shared tree alone.
func (s *ContentReadService) ReadPages(ctx context.Context, pageIDs []string) (*PagesResult, error) {
	ids := NormalizePageIDs(pageIDs)
	if len(ids) == 0 {
		return nil, content.NewValidationError("pages", "at least one page id is required")
	}

	t := newTimer()
	shared, sharedSource, err := s.resolveScope(ctx, content.SharedScope(), t)
	if err != nil {
		return nil, err
	}
	if sharedSource == SourceNotFound {
		shared = content.NewObject()
	}

	result := &PagesResult{
		Pages:   make(map[string]content.Value, len(ids)),
		Sources: make(map[string]string, len(ids)),
	}
	for _, id := range ids {
		scope := content.ParseScope(id)
		if scope.IsZero() {
			result.Pages[id] = content.Null()
			result.Sources[id] = SourceNotFound
			continue
		}
		if scope.IsShared() {
			if sharedSource == SourceNotFound {
				result.Pages[id] = content.Null()
			} else {
				result.Pages[id] = shared
			}
			result.Sources[id] = sharedSource
			continue
		}

		tree, source, err := s.resolveScope(ctx, scope, t)
		if err != nil {
			return nil, err
		}
		result.Sources[id] = source
		if source == SourceNotFound {
			result.Pages[id] = content.Null()
			continue
		}
		result.Pages[id] = keypath.MergeTopLevel(shared, tree)
	}
	result.Timings = t.timings()

	s.logger.Content().Debug("Pages read",
		"pages", ids, "sources", result.Sources, "totalMs", result.Timings.TotalMs)
	return result, nil
}

// resolveScope runs the per-scope cache state machine.
func (s *ContentReadService) resolveScope(ctx context.Context, scope content.Scope, t *timer) (content.Value, string, error) {
	prefix := scope.Prefix()

	cacheStart := time.Now()
	cached, state := s.cache.Scope(prefix)
	t.cache += time.Since(cacheStart)
	if state == manager.ScopeHit {
		s.revalidate(scope)
		return keypath.Reconstruct(cached, prefix), SourceCache, nil
	}

	gen := s.cache.Generation(prefix)
	storeStart := time.Now()
	rows, err := s.repo.SelectByPage(ctx, scope)
	t.store += time.Since(storeStart)
	if err != nil {
		s.logger.LogError(logging.ChannelContent, "read scope", err, map[string]any{"scope": prefix})
		return content.Null(), "", err
	}
	if len(rows) == 0 {
		return content.Null(), SourceNotFound, nil
	}

	flat := canonicalMap(rows)
	cacheStart = time.Now()
	s.cache.SyncScope(prefix, flat, gen)
	t.cache += time.Since(cacheStart)

	return keypath.Reconstruct(flat, prefix), SourceDB, nil
}

func canonicalMap(rows []content.FlatEntry) map[string]content.Value {
	flat := make(map[string]content.Value, len(rows))
	for _, e := range rows {
		flat[e.CanonicalKey()] = e.Value
	}
	return flat
}

// ReadPaths fetches individual canonical keys such as "index.header.title".
// Cache misses are read from the store in one batch.
func (s *ContentReadService) ReadPaths(ctx context.Context, paths []string) (*PathsResult, error) {
	requested := make([]string, 0, len(paths))
	canonical := make(map[string]string, len(paths))
	for _, raw := range paths {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		if _, dup := canonical[p]; dup {
			continue
		}
		requested = append(requested, p)
		canonical[p] = canonicalPath(p)
	}
	if len(requested) == 0 {
		return nil, content.NewValidationError("paths", "at least one path is required")
	}

	t := newTimer()
	result := &PathsResult{
		Data:    make(map[string]content.Value, len(requested)),
		Sources: make(map[string]string, len(requested)),
	}

	var misses []string
	cacheStart := time.Now()
	for _, p := range requested {
		key := canonical[p]
		if key == "" {
			result.Sources[p] = SourceNotFound
			continue
		}
		if v, ok := s.cache.Get(key); ok {
			result.Data[p] = v
			result.Sources[p] = SourceCache
			continue
		}
		misses = append(misses, key)
	}
	t.cache += time.Since(cacheStart)

	if len(misses) > 0 {
		gens := make(map[string]uint64)
		for _, key := range misses {
			prefix := scopeOf(key)
			if _, ok := gens[prefix]; !ok {
				gens[prefix] = s.cache.Generation(prefix)
			}
		}
		storeStart := time.Now()
		found, err := s.repo.SelectByKeys(ctx, misses)
		t.store += time.Since(storeStart)
		if err != nil {
			s.logger.LogError(logging.ChannelContent, "read paths", err, map[string]any{"paths": len(misses)})
			return nil, err
		}
		byScope := make(map[string]map[string]content.Value)
		for key, v := range found {
			prefix := scopeOf(key)
			if byScope[prefix] == nil {
				byScope[prefix] = make(map[string]content.Value)
			}
			byScope[prefix][key] = v
		}
		for prefix, entries := range byScope {
			s.cache.FillScope(prefix, entries, gens[prefix])
		}

		for _, p := range requested {
			if _, done := result.Sources[p]; done {
				continue
			}
			if v, ok := found[canonical[p]]; ok {
				result.Data[p] = v
				result.Sources[p] = SourceDB
			} else {
				result.Sources[p] = SourceNotFound
			}
		}
	}
	result.Timings = t.timings()
	return result, nil
}

// canonicalPath lowercases the scope prefix of a path and returns "" for a
// path with no usable scope or key.
func canonicalPath(p string) string {
	scope, rel, ok := content.SplitCanonicalKey(p)
	if !ok || scope.IsZero() || !keypath.ValidKey(rel) {
		return ""
	}
	return scope.KeyPrefix() + rel
}

// scopeOf returns the scope prefix of a canonical key.
func scopeOf(canonical string) string {
	scope, _, _ := content.SplitCanonicalKey(canonical)
	return scope.Prefix()
}

// ListPageIDs returns the sorted page ids present in the store.
func (s *ContentReadService) ListPageIDs(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListPageIDs(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ReadStyles returns a scope's CSS, from cache when valid. It returns
// content.ErrNotFound when the scope has no styles.
func (s *ContentReadService) ReadStyles(ctx context.Context, pageID string) (*StylesResult, error) {
	scope := content.ParseScope(pageID)
	if scope.IsZero() {
		return nil, content.InvalidPageID()
	}
	prefix := scope.Prefix()

	if css, valid, _ := s.cache.Styles(prefix); valid {
		s.submit("styles:"+prefix, func(ctx context.Context) error {
			return s.RefreshStyles(ctx, scope)
		})
		return &StylesResult{PageID: prefix, CSS: css, Source: SourceCache}, nil
	}

	gen := s.cache.Generation(manager.StylesKey(prefix))
	blob, err := s.styleRepo.Find(ctx, scope)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("styles for %s: %w", prefix, content.ErrNotFound)
	}
	s.cache.PutStyles(prefix, blob.CSS, gen)
	return &StylesResult{PageID: prefix, CSS: blob.CSS, Source: SourceDB}, nil
}

// RefreshScope re-reads a scope from the store and makes the cache match it.
// Concurrent refreshes of one scope share a single store read. The result
// is dropped if a write lands while the read is in flight. It returns the
// number of entries read.
func (s *ContentReadService) RefreshScope(ctx context.Context, scope content.Scope) (int, error) {
	prefix := scope.Prefix()
	v, err, shared := s.refreshes.Do("content:"+prefix, func() (any, error) {
		n, _, err := s.loadScope(ctx, scope, s.cache.Generation(prefix))
		return n, err
	})
	if err != nil {
		return 0, err
	}
	if shared {
		s.logger.Cache().Debug("Scope refresh coalesced", "scope", prefix)
	}
	return v.(int), nil
}

// reloadAfterWrite moves the scope to a new generation and fills the cache
// from a store read of its own, so reads that began before the write can no
// longer overwrite it. It reports whether the cache now holds this read.
func (s *ContentReadService) reloadAfterWrite(ctx context.Context, scope content.Scope) (bool, error) {
	_, synced, err := s.loadScope(ctx, scope, s.cache.Advance(scope.Prefix()))
	return synced, err
}

func (s *ContentReadService) loadScope(ctx context.Context, scope content.Scope, gen uint64) (int, bool, error) {
	rows, err := s.repo.SelectByPage(ctx, scope)
	if err != nil {
		return 0, false, err
	}
	synced := s.cache.SyncScope(scope.Prefix(), canonicalMap(rows), gen)
	return len(rows), synced, nil
}

// RefreshStyles re-reads a scope's CSS into the cache.
func (s *ContentReadService) RefreshStyles(ctx context.Context, scope content.Scope) error {
	prefix := scope.Prefix()
	_, err, _ := s.refreshes.Do("styles:"+prefix, func() (any, error) {
		gen := s.cache.Generation(manager.StylesKey(prefix))
		blob, err := s.styleRepo.Find(ctx, scope)
		if err != nil {
			return nil, err
		}
		if blob == nil {
			s.cache.DropStyles(prefix, gen)
			return nil, nil
		}
		s.cache.PutStyles(prefix, blob.CSS, gen)
		return nil, nil
	})
	return err
}

// ScheduleRefresh queues a background refresh of a scope and publishes a
// cache-refreshed event when it completes. It reports whether the task was
// accepted.
func (s *ContentReadService) ScheduleRefresh(scope content.Scope) bool {
	return s.submit("refresh:"+scope.Prefix(), func(ctx context.Context) error {
		n, err := s.RefreshScope(ctx, scope)
		if err != nil {
			return err
		}
		s.publisher.Publish(messaging.NewContentEvent(messaging.EventCacheRefreshed, scope.Prefix(), map[string]any{"entries": n}))
		return nil
	})
}

// revalidate refreshes a scope after it was served from cache.
func (s *ContentReadService) revalidate(scope content.Scope) {
	s.submit("content:"+scope.Prefix(), func(ctx context.Context) error {
		_, err := s.RefreshScope(ctx, scope)
		return err
	})
}

func (s *ContentReadService) submit(key string, task revalidation.Task) bool {
	if s.queue == nil || !s.cache.Enabled() {
		return false
	}
	return s.queue.Submit(key, task)
}
