package services

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/keypath"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/repositories"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

// Edit is one field-level change from the visual editor.
type Edit struct {
	NewText    content.Value `json:"newText"`
	Shared     bool          `json:"shared,omitempty"`
	TargetPage string        `json:"targetPage,omitempty"`
}

// EditRequest is a sparse patch against the current page.
type EditRequest struct {
	PageID    string
	Edits     map[string]Edit
	CreatedBy *string
}

// EditUpdate names one applied edit by the scope and key it was written to.
type EditUpdate struct {
	Scope string `json:"scope"`
	Key   string `json:"key"`
}

// SkippedEdit is an edit that was not applied, with the reason.
type SkippedEdit struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// WriteTiming breaks a write down by phase, in milliseconds.
type WriteTiming struct {
	BackupMs float64 `json:"backupMs"`
	CommitMs float64 `json:"commitMs"`
	CacheMs  float64 `json:"cacheMs"`
	TotalMs  float64 `json:"totalMs"`
}

// EditResult reports what SaveEdits did.
type EditResult struct {
	AppliedCount   int           `json:"appliedCount"`
	TotalEdits     int           `json:"totalEdits"`
	Updates        []EditUpdate  `json:"updates"`
	Skipped        []SkippedEdit `json:"skipped,omitempty"`
	CacheRefreshed bool          `json:"cacheRefreshed"`
	Timing         WriteTiming   `json:"timing"`
}

// SaveResult reports a whole-scope replace.
type SaveResult struct {
	PageID         string `json:"pageId"`
	EntriesCount   int    `json:"entriesCount"`
	CacheRefreshed bool   `json:"cacheRefreshed"`
}

// StylesSaveResult reports a CSS save. CSSLength counts characters.
type StylesSaveResult struct {
	PageID         string `json:"pageId"`
	CSSLength      int    `json:"cssLength"`
	CacheRefreshed bool   `json:"cacheRefreshed"`
}

// ContentWriteService applies edits and replacements. Every write backs up
// the affected scope before committing and refreshes the cache afterwards.
type ContentWriteService struct {
	repo      repositories.ContentRepository
	styleRepo repositories.StyleRepository
	history   repositories.HistoryRepository
	reader    *ContentReadService
	cache     *manager.Manager
	publisher messaging.Publisher
	logger    *logging.ChanneledLogger
}

func NewContentWriteService(
	repo repositories.ContentRepository,
	styleRepo repositories.StyleRepository,
	history repositories.HistoryRepository,
	reader *ContentReadService,
	publisher messaging.Publisher,
	logger *logging.ChanneledLogger,
) *ContentWriteService {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ContentWriteService{
		repo:      repo,
		styleRepo: styleRepo,
		history:   history,
		reader:    reader,
		cache:     reader.cache,
		publisher: publisher,
		logger:    logger,
	}
}

type scopeBatch struct {
	scope   content.Scope
	entries []content.FlatEntry
}

// SaveEdits applies a field-level patch. Keys are processed in sorted order
// so the result is deterministic; empty or non-scalar values and malformed
// keys are skipped and reported.
func (s *ContentWriteService) SaveEdits(ctx context.Context, req EditRequest) (*EditResult, error) {
	page := content.ParseScope(req.PageID)
	if page.IsZero() {
		return nil, content.InvalidPageID()
	}
	if len(req.Edits) == 0 {
		return nil, content.NewValidationError("edits", "at least one edit is required")
	}

	start := time.Now()
	result := &EditResult{TotalEdits: len(req.Edits), Updates: []EditUpdate{}}

	keys := make([]string, 0, len(req.Edits))
	for k := range req.Edits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var batches []*scopeBatch
	byPrefix := make(map[string]*scopeBatch)
	for _, key := range keys {
		edit := req.Edits[key]
		if reason := checkEditValue(edit.NewText); reason != "" {
			result.Skipped = append(result.Skipped, SkippedEdit{Key: key, Reason: reason})
			continue
		}
		scope, rel := resolveEditScope(page, key, edit)
		if scope.IsZero() || !keypath.ValidKey(rel) {
			result.Skipped = append(result.Skipped, SkippedEdit{Key: key, Reason: "invalid key"})
			continue
		}

		b, ok := byPrefix[scope.Prefix()]
		if !ok {
			b = &scopeBatch{scope: scope}
			byPrefix[scope.Prefix()] = b
			batches = append(batches, b)
		}
		b.entries = append(b.entries, content.FlatEntry{Scope: scope, Key: rel, Value: edit.NewText})
		result.Updates = append(result.Updates, EditUpdate{Scope: scope.Prefix(), Key: rel})
	}
	result.AppliedCount = len(result.Updates)

	if len(batches) == 0 {
		result.Timing.TotalMs = millis(time.Since(start))
		return result, nil
	}

	phase := time.Now()
	for _, b := range batches {
		if err := s.backupScope(ctx, b.scope, req.CreatedBy); err != nil {
			return nil, err
		}
	}
	result.Timing.BackupMs = millis(time.Since(phase))

	phase = time.Now()
	for _, b := range batches {
		if err := s.repo.UpsertMany(ctx, b.entries); err != nil {
			s.logger.LogError(logging.ChannelContent, "save edits", err, map[string]any{"scope": b.scope.Prefix()})
			return nil, err
		}
	}
	result.Timing.CommitMs = millis(time.Since(phase))

	phase = time.Now()
	scopes := make([]content.Scope, len(batches))
	for i, b := range batches {
		scopes[i] = b.scope
	}
	result.CacheRefreshed = s.refreshCache(ctx, scopes...)
	result.Timing.CacheMs = millis(time.Since(phase))

	for _, b := range batches {
		s.publisher.Publish(messaging.NewContentEvent(messaging.EventContentUpdated, b.scope.Prefix(),
			map[string]any{"keys": len(b.entries)}))
	}
	result.Timing.TotalMs = millis(time.Since(start))

	s.logger.WithContext(logging.ChannelContent, ctx).Info("Edits saved",
		"pageId", page.Prefix(), "applied", result.AppliedCount, "total", result.TotalEdits,
		"skipped", len(result.Skipped), "cacheRefreshed", result.CacheRefreshed, "totalMs", result.Timing.TotalMs)
	return result, nil
}

func checkEditValue(v content.Value) string {
	switch {
	case v.IsNull():
		return "empty value"
	case !v.IsScalar():
		return "value must be a string, number or boolean"
	case v.Kind() == content.KindString && strings.TrimSpace(v.StringValue()) == "":
		return "empty value"
	}
	return ""
}

// resolveEditScope decides which scope an edit key writes to and returns the
// key relative to that scope. An explicit shared flag or a "shared." prefix
// wins, then an explicit target page, then a prefix naming the current page.
// Unprefixed keys belong to the current page.
func resolveEditScope(page content.Scope, key string, edit Edit) (content.Scope, string) {
	switch {
	case edit.Shared:
		return content.SharedScope(), trimScopePrefix(key, content.SharedScope())
	case hasScopePrefix(key, content.SharedScope()):
		return content.SharedScope(), trimScopePrefix(key, content.SharedScope())
	case strings.TrimSpace(edit.TargetPage) != "":
		target := content.ParseScope(edit.TargetPage)
		return target, trimScopePrefix(key, target)
	default:
		return page, trimScopePrefix(key, page)
	}
}

func hasScopePrefix(key string, scope content.Scope) bool {
	kp := scope.KeyPrefix()
	return len(key) > len(kp) && strings.EqualFold(key[:len(kp)], kp)
}

func trimScopePrefix(key string, scope content.Scope) string {
	if hasScopePrefix(key, scope) {
		return key[len(scope.KeyPrefix()):]
	}
	return key
}

// SaveContent replaces a scope's whole tree. The root must be an object.
func (s *ContentWriteService) SaveContent(ctx context.Context, pageID string, tree content.Value, createdBy *string) (*SaveResult, error) {
	scope := content.ParseScope(pageID)
	if scope.IsZero() {
		return nil, content.InvalidPageID()
	}
	entries, err := keypath.FlattenScope(tree, scope)
	if err != nil {
		return nil, content.NewValidationError("content", "content must be a JSON object")
	}

	if err := s.backupScope(ctx, scope, createdBy); err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceScope(ctx, scope, entries); err != nil {
		s.logger.LogError(logging.ChannelContent, "save content", err, map[string]any{"scope": scope.Prefix()})
		return nil, err
	}

	gen := s.cache.Advance(scope.Prefix())
	refreshed := s.cache.SyncScope(scope.Prefix(), canonicalMap(entries), gen) && s.cache.Flushed(ctx)
	s.publisher.Publish(messaging.NewContentEvent(messaging.EventContentUpdated, scope.Prefix(),
		map[string]any{"entries": len(entries)}))

	s.logger.WithContext(logging.ChannelContent, ctx).Info("Content saved",
		"pageId", scope.Prefix(), "entries", len(entries), "cacheRefreshed", refreshed)
	return &SaveResult{PageID: scope.Prefix(), EntriesCount: len(entries), CacheRefreshed: refreshed}, nil
}

// SyncContent imports a tree, refusing to overwrite existing rows unless
// force is set.
func (s *ContentWriteService) SyncContent(ctx context.Context, pageID string, tree content.Value, force bool, createdBy *string) (*SaveResult, error) {
	scope := content.ParseScope(pageID)
	if scope.IsZero() {
		return nil, content.InvalidPageID()
	}
	if tree.Kind() != content.KindObject {
		return nil, content.NewValidationError("content", "content must be a JSON object")
	}
	if !force {
		n, err := s.repo.CountByPage(ctx, scope)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, &content.ConflictError{PageID: scope.Prefix(), Entries: n}
		}
	}
	return s.SaveContent(ctx, pageID, tree, createdBy)
}

// SaveStyles backs up the current CSS of a scope and stores the new one.
func (s *ContentWriteService) SaveStyles(ctx context.Context, pageID, css string, createdBy *string) (*StylesSaveResult, error) {
	scope := content.ParseScope(pageID)
	if scope.IsZero() {
		return nil, content.InvalidPageID()
	}

	current, err := s.styleRepo.Find(ctx, scope)
	if err != nil {
		return nil, err
	}
	previous := ""
	if current != nil {
		previous = current.CSS
	}
	if err := s.history.Append(ctx, &content.HistoryEntry{
		Scope:       scope,
		ContentType: content.ContentTypeCSS,
		Payload:     previous,
		CreatedBy:   createdBy,
	}); err != nil {
		return nil, err
	}

	if err := s.styleRepo.Upsert(ctx, content.StyleBlob{
		Scope:     scope,
		PageID:    scope.Prefix(),
		CSS:       css,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		s.logger.LogError(logging.ChannelContent, "save styles", err, map[string]any{"scope": scope.Prefix()})
		return nil, err
	}

	gen := s.cache.Advance(manager.StylesKey(scope.Prefix()))
	refreshed := s.cache.PutStyles(scope.Prefix(), css, gen) && s.cache.Flushed(ctx)
	length := utf8.RuneCountInString(css)
	s.publisher.Publish(messaging.NewContentEvent(messaging.EventStylesUpdated, scope.Prefix(),
		map[string]any{"cssLength": length}))

	s.logger.WithContext(logging.ChannelContent, ctx).Info("Styles saved",
		"pageId", scope.Prefix(), "cssLength", length, "cacheRefreshed", refreshed)
	return &StylesSaveResult{PageID: scope.Prefix(), CSSLength: length, CacheRefreshed: refreshed}, nil
}

// StylesExist reports whether a scope has stored CSS.
func (s *ContentWriteService) StylesExist(ctx context.Context, pageID string) (bool, error) {
	blob, err := s.styleRepo.Find(ctx, content.ParseScope(pageID))
	if err != nil {
		return false, err
	}
	return blob != nil, nil
}

// backupScope snapshots the scope's full current tree as one json history
// entry. An empty scope is recorded as "{}".
func (s *ContentWriteService) backupScope(ctx context.Context, scope content.Scope, createdBy *string) error {
	rows, err := s.repo.SelectByPage(ctx, scope)
	if err != nil {
		return err
	}
	payload, err := keypath.ReconstructEntries(rows).MarshalJSON()
	if err != nil {
		return content.NewStoreError("encode backup", err, nil)
	}
	return s.history.Append(ctx, &content.HistoryEntry{
		Scope:       scope,
		ContentType: content.ContentTypeJSON,
		Payload:     string(payload),
		CreatedBy:   createdBy,
	})
}

// refreshCache re-reads each committed scope into the cache and waits for
// the cache to persist. Failures are logged and reported as false.
func (s *ContentWriteService) refreshCache(ctx context.Context, scopes ...content.Scope) bool {
	if !s.cache.Enabled() {
		return false
	}
	ok := true
	for _, scope := range scopes {
		synced, err := s.reader.reloadAfterWrite(ctx, scope)
		if err != nil {
			s.logger.Cache().Warn("Cache refresh after write failed", "scope", scope.Prefix(), "error", err)
		}
		ok = ok && synced
	}
	return s.cache.Flushed(ctx) && ok
}
