package services

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/repositories"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/revalidation"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/stores"
	schema "github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	persistence "github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/persistence/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/pagecontent-go/pkg/config"
)

// recordingQueue keeps submitted tasks so tests can run them on demand.
type recordingQueue struct {
	mu    sync.Mutex
	keys  []string
	tasks map[string]revalidation.Task
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{tasks: make(map[string]revalidation.Task)}
}

func (q *recordingQueue) Submit(key string, task revalidation.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.tasks[key] = task
	return true
}

func (q *recordingQueue) submitted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.keys...)
}

func (q *recordingQueue) runAll(t *testing.T) {
	t.Helper()
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = make(map[string]revalidation.Task)
	q.keys = nil
	q.mu.Unlock()
	for key, task := range tasks {
		if err := task(context.Background()); err != nil {
			t.Errorf("task %s: %v", key, err)
		}
	}
}

type capturePublisher struct {
	mu     sync.Mutex
	events []messaging.ContentEvent
}

func (p *capturePublisher) Publish(evt messaging.ContentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type + ":" + e.PageID
	}
	return out
}

// failingRepo fails every page read.
type failingRepo struct {
	repositories.ContentRepository
}

// gatedRepo parks the first page read after arm until release is closed,
// holding the rows it read.
type gatedRepo struct {
	repositories.ContentRepository
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func newGatedRepo(inner repositories.ContentRepository) *gatedRepo {
	return &gatedRepo{ContentRepository: inner, reached: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRepo) SelectByPage(ctx context.Context, scope content.Scope) ([]content.FlatEntry, error) {
	rows, err := g.ContentRepository.SelectByPage(ctx, scope)
	if g.armed.CompareAndSwap(true, false) {
		close(g.reached)
		<-g.release
	}
	return rows, err
}

func (failingRepo) SelectByPage(context.Context, content.Scope) ([]content.FlatEntry, error) {
	return nil, content.NewStoreError("select page", errors.New("disk I/O error"), nil)
}

type fixture struct {
	repo      *persistence.ContentRepository
	styles    *persistence.StyleRepository
	history   *persistence.HistoryRepository
	cache     *manager.Manager
	queue     *recordingQueue
	publisher *capturePublisher
	reader    *ContentReadService
	writer    *ContentWriteService
	versions  *HistoryService
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNopLogger()

	cfg := config.Defaults()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "content.db")
	db, err := database.NewConnection(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := schema.NewTableCreator().CreateSchema(ctx, db.DB); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	cache := manager.NewManager(nil, logger)
	if withCache {
		store := stores.NewLocalStore(stores.Options{Logger: logger})
		if err := store.Open(ctx); err != nil {
			t.Fatalf("Open cache: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		cache = manager.NewManager(store, logger)
	}

	f := &fixture{
		repo:      persistence.NewContentRepository(db, cfg.ContentLocale, logger),
		styles:    persistence.NewStyleRepository(db, logger),
		history:   persistence.NewHistoryRepository(db, logger),
		cache:     cache,
		queue:     newRecordingQueue(),
		publisher: &capturePublisher{},
	}
	f.reader = NewContentReadService(f.repo, f.styles, cache, f.queue, f.publisher, logger)
	f.writer = NewContentWriteService(f.repo, f.styles, f.history, f.reader, f.publisher, logger)
	f.versions = NewHistoryService(f.history, f.writer, f.publisher, 5, logger)
	return f
}

func mustJSON(t *testing.T, raw string) content.Value {
	t.Helper()
	v, err := content.ParseJSON([]byte(raw))
	if err != nil {
		t.Fatalf("ParseJSON(%s): %v", raw, err)
	}
	return v
}

func (f *fixture) seed(t *testing.T, pageID, raw string) {
	t.Helper()
	if _, err := f.writer.SaveContent(context.Background(), pageID, mustJSON(t, raw), nil); err != nil {
		t.Fatalf("seed %s: %v", pageID, err)
	}
}

func assertTree(t *testing.T, got content.Value, want string) {
	t.Helper()
	if !content.Equal(got, mustJSON(t, want)) {
		b, _ := got.MarshalJSON()
		t.Errorf("tree = %s, want %s", b, want)
	}
}

func TestReadPagesMissThenHit(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	if err := f.repo.ReplaceScope(ctx, content.PageScope("purificacao"), []content.FlatEntry{
		{Scope: content.PageScope("purificacao"), Key: "hero.title", Value: content.String("Purificação")},
		{Scope: content.PageScope("purificacao"), Key: "steps[0]", Value: content.String("um")},
	}); err != nil {
		t.Fatal(err)
	}

	first, err := f.reader.ReadPages(ctx, []string{"purificacao"})
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if got := first.Sources["purificacao"]; got != SourceDB {
		t.Fatalf("first source = %q, want db", got)
	}

	second, err := f.reader.ReadPages(ctx, []string{"Purificacao"})
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if got := second.Sources["purificacao"]; got != SourceCache {
		t.Fatalf("second source = %q, want cache", got)
	}
	if !content.Equal(first.Pages["purificacao"], second.Pages["purificacao"]) {
		t.Error("cache hit returned a different tree than the store read")
	}
	assertTree(t, second.Pages["purificacao"], `{"hero":{"title":"Purificação"},"steps":["um"]}`)

	if keys := f.queue.submitted(); !reflect.DeepEqual(keys, []string{"content:purificacao"}) {
		t.Errorf("revalidation submitted = %v", keys)
	}
	f.queue.runAll(t)
}

func TestReadPagesMergesSharedUnderPage(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "shared", `{"footer":{"text":"© Site"},"title":"Shared"}`)
	f.seed(t, "index", `{"title":"Home"}`)

	res, err := f.reader.ReadPages(context.Background(), []string{"index", "shared", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	assertTree(t, res.Pages["index"], `{"footer":{"text":"© Site"},"title":"Home"}`)
	assertTree(t, res.Pages["shared"], `{"footer":{"text":"© Site"},"title":"Shared"}`)
	if !res.Pages["missing"].IsNull() || res.Sources["missing"] != SourceNotFound {
		t.Errorf("missing page = %v source %q", res.Pages["missing"], res.Sources["missing"])
	}
}

func TestReadPagesStoreErrorPropagates(t *testing.T) {
	f := newFixture(t, true)
	reader := NewContentReadService(failingRepo{f.repo}, f.styles, f.cache, f.queue, nil, nil)

	_, err := reader.ReadPages(context.Background(), []string{"index"})
	var storeErr *content.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want StoreError", err)
	}
}

func TestReadPagesWithoutCacheAlwaysHitsStore(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, "index", `{"a":1}`)

	for i := 0; i < 2; i++ {
		res, err := f.reader.ReadPages(context.Background(), []string{"index"})
		if err != nil {
			t.Fatal(err)
		}
		if res.Sources["index"] != SourceDB {
			t.Fatalf("read %d source = %q", i, res.Sources["index"])
		}
		assertTree(t, res.Pages["index"], `{"a":1}`)
	}
	if keys := f.queue.submitted(); len(keys) != 0 {
		t.Errorf("disabled cache should not revalidate, got %v", keys)
	}
}

func TestReadPathsTagsEverySource(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "index", `{"header":{"title":"Olá","subtitle":"Bem-vindo"}}`)
	f.cache.InvalidateScope("index")

	first, err := f.reader.ReadPaths(ctx, []string{"index.header.title"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Sources["index.header.title"] != SourceDB {
		t.Fatalf("first source = %q", first.Sources["index.header.title"])
	}

	res, err := f.reader.ReadPaths(ctx, []string{"INDEX.header.title", "index.header.subtitle", "index.nope", "garbage"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"INDEX.header.title":    SourceCache,
		"index.header.subtitle": SourceDB,
		"index.nope":            SourceNotFound,
		"garbage":               SourceNotFound,
	}
	if !reflect.DeepEqual(res.Sources, want) {
		t.Errorf("sources = %v, want %v", res.Sources, want)
	}
	if v := res.Data["INDEX.header.title"]; v.StringValue() != "Olá" {
		t.Errorf("title = %v", v)
	}
	if _, ok := res.Data["index.nope"]; ok {
		t.Error("not-found path should not appear in data")
	}
}

func TestReadPathsDoNotCompleteThePage(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	index := content.PageScope("index")
	if err := f.repo.ReplaceScope(ctx, index, []content.FlatEntry{
		{Scope: index, Key: "header.title", Value: content.String("Hello")},
		{Scope: index, Key: "body.text", Value: content.String("World")},
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.reader.ReadPaths(ctx, []string{"index.header.title"}); err != nil {
		t.Fatal(err)
	}
	res, err := f.reader.ReadPages(ctx, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Sources["index"] != SourceDB {
		t.Errorf("source = %q, want db", res.Sources["index"])
	}
	assertTree(t, res.Pages["index"], `{"header":{"title":"Hello"},"body":{"text":"World"}}`)

	again, err := f.reader.ReadPages(ctx, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	if again.Sources["index"] != SourceCache {
		t.Errorf("second source = %q, want cache", again.Sources["index"])
	}
	assertTree(t, again.Pages["index"], `{"header":{"title":"Hello"},"body":{"text":"World"}}`)
}

func TestWriteWinsOverInFlightRefresh(t *testing.T) {
	writes := map[string]func(t *testing.T, w *ContentWriteService) bool{
		"edits": func(t *testing.T, w *ContentWriteService) bool {
			res, err := w.SaveEdits(context.Background(), EditRequest{
				PageID: "index",
				Edits:  map[string]Edit{"header.title": {NewText: content.String("Novo Título")}},
			})
			if err != nil {
				t.Fatalf("SaveEdits: %v", err)
			}
			return res.CacheRefreshed
		},
		"save": func(t *testing.T, w *ContentWriteService) bool {
			res, err := w.SaveContent(context.Background(), "index", mustJSON(t, `{"header":{"title":"Novo Título"}}`), nil)
			if err != nil {
				t.Fatalf("SaveContent: %v", err)
			}
			return res.CacheRefreshed
		},
	}
	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, true)
			ctx := context.Background()
			f.seed(t, "index", `{"header":{"title":"Old"}}`)

			gated := newGatedRepo(f.repo)
			reader := NewContentReadService(gated, f.styles, f.cache, f.queue, nil, nil)
			writer := NewContentWriteService(gated, f.styles, f.history, reader, nil, nil)

			gated.armed.Store(true)
			done := make(chan error, 1)
			go func() {
				_, err := reader.RefreshScope(ctx, content.PageScope("index"))
				done <- err
			}()
			<-gated.reached

			if !write(t, writer) {
				t.Error("write did not refresh the cache")
			}
			close(gated.release)
			if err := <-done; err != nil {
				t.Fatalf("RefreshScope: %v", err)
			}

			res, err := reader.ReadPages(ctx, []string{"index"})
			if err != nil {
				t.Fatal(err)
			}
			if res.Sources["index"] != SourceCache {
				t.Errorf("source = %q, want cache", res.Sources["index"])
			}
			assertTree(t, res.Pages["index"], `{"header":{"title":"Novo Título"}}`)
		})
	}
}

func TestStylesSaveWinsOverInFlightRefresh(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	if _, err := f.writer.SaveStyles(ctx, "index", "h1{color:red}", nil); err != nil {
		t.Fatal(err)
	}

	gen := f.cache.Generation(manager.StylesKey("index"))
	if _, err := f.writer.SaveStyles(ctx, "index", "h1{color:blue}", nil); err != nil {
		t.Fatal(err)
	}
	if f.cache.PutStyles("index", "h1{color:red}", gen) {
		t.Error("a fill that began before the save overwrote it")
	}
	res, err := f.reader.ReadStyles(ctx, "index")
	if err != nil {
		t.Fatal(err)
	}
	if res.CSS != "h1{color:blue}" || res.Source != SourceCache {
		t.Errorf("styles = %q from %s", res.CSS, res.Source)
	}
}

func TestDottedPageIDsAreRejected(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "a", `{"title":"A"}`)

	_, err := f.writer.SaveContent(ctx, "a.b", mustJSON(t, `{"title":"AB"}`), nil)
	var ve *content.ValidationError
	if !errors.As(err, &ve) || ve.Field != "pageId" {
		t.Fatalf("SaveContent(a.b) err = %v, want pageId ValidationError", err)
	}

	res, err := f.reader.ReadPages(ctx, []string{"a.b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Sources["a.b"] != SourceNotFound || !res.Pages["a.b"].IsNull() {
		t.Errorf("a.b = %v from %s, want not-found", res.Pages["a.b"], res.Sources["a.b"])
	}
	assertTree(t, res.Pages["a"], `{"title":"A"}`)
}

func TestListPageIDsExcludesShared(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "sobre", `{"a":"1"}`)
	f.seed(t, "index", `{"a":"1"}`)
	f.seed(t, "shared", `{"a":"1"}`)

	ids, err := f.reader.ListPageIDs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"index", "sobre"}) {
		t.Errorf("ids = %v", ids)
	}
}

func TestSaveEditsBacksUpThenApplies(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "index", `{"header":{"title":"Antigo","subtitle":"Sub"}}`)
	if _, err := f.reader.ReadPages(ctx, []string{"index"}); err != nil {
		t.Fatal(err)
	}
	before, _ := f.versions.List(ctx, "index", "json")

	res, err := f.writer.SaveEdits(ctx, EditRequest{
		PageID: "index",
		Edits:  map[string]Edit{"header.title": {NewText: content.String("Novo Título")}},
	})
	if err != nil {
		t.Fatalf("SaveEdits: %v", err)
	}
	if res.AppliedCount != 1 || res.TotalEdits != 1 || !res.CacheRefreshed {
		t.Errorf("result = %+v", res)
	}

	after, err := f.versions.List(ctx, "index", "json")
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("history grew from %d to %d", len(before), len(after))
	}
	backup, err := f.versions.Get(ctx, "index", "json", after[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	assertTree(t, mustJSON(t, backup.Payload), `{"header":{"title":"Antigo","subtitle":"Sub"}}`)

	read, err := f.reader.ReadPages(ctx, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	assertTree(t, read.Pages["index"], `{"header":{"title":"Novo Título","subtitle":"Sub"}}`)

	paths, err := f.reader.ReadPaths(ctx, []string{"index.header.title"})
	if err != nil {
		t.Fatal(err)
	}
	if v := paths.Data["index.header.title"]; v.StringValue() != "Novo Título" {
		t.Errorf("path read = %v", v)
	}
}

func TestSaveEditsResolvesScopesAndSkips(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res, err := f.writer.SaveEdits(ctx, EditRequest{
		PageID: "Index",
		Edits: map[string]Edit{
			"index.header.title": {NewText: content.String("Título")},
			"shared.footer.text": {NewText: content.String("Rodapé")},
			"phone":              {NewText: content.String("555"), Shared: true},
			"cta.label":          {NewText: content.String("Comprar"), TargetPage: "Sobre"},
			"items[0].price":     {NewText: content.Number("1.50")},
			"empty":              {NewText: content.String("  ")},
			"nothing":            {},
			"nested":             {NewText: mustJSON(t, `{"a":1}`)},
			"bad..key":           {NewText: content.String("x")},
		},
	})
	if err != nil {
		t.Fatalf("SaveEdits: %v", err)
	}

	wantUpdates := []EditUpdate{
		{Scope: "sobre", Key: "cta.label"},
		{Scope: "index", Key: "header.title"},
		{Scope: "index", Key: "items[0].price"},
		{Scope: "shared", Key: "phone"},
		{Scope: "shared", Key: "footer.text"},
	}
	if !reflect.DeepEqual(res.Updates, wantUpdates) {
		t.Errorf("updates = %+v\nwant %+v", res.Updates, wantUpdates)
	}
	if res.AppliedCount != 5 || res.TotalEdits != 9 {
		t.Errorf("applied %d of %d", res.AppliedCount, res.TotalEdits)
	}
	skipped := make([]string, len(res.Skipped))
	for i, s := range res.Skipped {
		skipped[i] = s.Key
	}
	if !reflect.DeepEqual(skipped, []string{"bad..key", "empty", "nested", "nothing"}) {
		t.Errorf("skipped = %v", skipped)
	}

	for _, scope := range []string{"index", "shared", "sobre"} {
		versions, err := f.versions.List(ctx, scope, "json")
		if err != nil {
			t.Fatal(err)
		}
		if len(versions) != 1 {
			t.Errorf("%s has %d backups, want 1", scope, len(versions))
		}
	}

	read, err := f.reader.ReadPages(ctx, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	assertTree(t, read.Pages["index"],
		`{"footer":{"text":"Rodapé"},"phone":"555","header":{"title":"Título"},"items":[{"price":1.50}]}`)

	got := f.publisher.types()
	sort.Strings(got)
	want := []string{"content-updated:index", "content-updated:shared", "content-updated:sobre"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v", got)
	}
}

func TestSaveEditsWithNothingApplicableWritesNothing(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res, err := f.writer.SaveEdits(ctx, EditRequest{
		PageID: "index",
		Edits:  map[string]Edit{"title": {NewText: content.String("")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.AppliedCount != 0 || len(res.Skipped) != 1 {
		t.Errorf("result = %+v", res)
	}
	if versions, _ := f.versions.List(ctx, "index", "json"); len(versions) != 0 {
		t.Errorf("no-op edit created %d backups", len(versions))
	}
}

func TestSaveEditsFailsWhenStoreFails(t *testing.T) {
	f := newFixture(t, true)
	writer := NewContentWriteService(failingRepo{f.repo}, f.styles, f.history, f.reader, nil, nil)

	_, err := writer.SaveEdits(context.Background(), EditRequest{
		PageID: "index",
		Edits:  map[string]Edit{"title": {NewText: content.String("x")}},
	})
	var storeErr *content.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want StoreError", err)
	}
}

func TestSaveContentIsIdempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	tree := `{"hero":{"title":"Olá"},"list":[{"n":"a"},{"n":"b"}]}`

	f.seed(t, "index", tree)
	first, err := f.reader.ReadPages(ctx, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.writer.SaveContent(ctx, "index", mustJSON(t, tree), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.EntriesCount != 3 {
		t.Errorf("entriesCount = %d", res.EntriesCount)
	}
	second, err := f.reader.ReadPages(ctx, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	if !content.Equal(first.Pages["index"], second.Pages["index"]) {
		t.Error("re-save changed the read result")
	}

	versions, err := f.versions.List(ctx, "index", "json")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(versions))
	}
	newest, err := f.versions.Get(ctx, "index", "json", versions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	assertTree(t, mustJSON(t, newest.Payload), tree)
	oldest, err := f.versions.Get(ctx, "index", "json", versions[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if oldest.Payload != "{}" {
		t.Errorf("first backup = %s, want {}", oldest.Payload)
	}
}

func TestSaveContentRejectsNonObjectRoot(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.writer.SaveContent(context.Background(), "index", mustJSON(t, `["a"]`), nil)
	var ve *content.ValidationError
	if !errors.As(err, &ve) || ve.Field != "content" {
		t.Fatalf("err = %v, want content ValidationError", err)
	}
}

func TestSaveContentDropsRemovedKeysFromCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "index", `{"a":"1","b":"2"}`)
	f.seed(t, "index", `{"a":"1"}`)

	res, err := f.reader.ReadPages(ctx, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Sources["index"] != SourceCache {
		t.Errorf("source = %q, want cache", res.Sources["index"])
	}
	assertTree(t, res.Pages["index"], `{"a":"1"}`)
}

func TestSyncContentConflict(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "index", `{"a":"1"}`)

	_, err := f.writer.SyncContent(ctx, "index", mustJSON(t, `{"a":"2"}`), false, nil)
	var conflict *content.ConflictError
	if !errors.As(err, &conflict) || conflict.PageID != "index" || conflict.Entries != 1 {
		t.Fatalf("err = %v, want ConflictError", err)
	}

	if _, err := f.writer.SyncContent(ctx, "index", mustJSON(t, `{"a":"2"}`), true, nil); err != nil {
		t.Fatalf("forced sync: %v", err)
	}
	res, err := f.reader.ReadPages(ctx, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	assertTree(t, res.Pages["index"], `{"a":"2"}`)

	if _, err := f.writer.SyncContent(ctx, "fresh", mustJSON(t, `{"a":"3"}`), false, nil); err != nil {
		t.Fatalf("sync into empty page: %v", err)
	}
}

func TestStylesSaveReadAndBackup(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	if _, err := f.reader.ReadStyles(ctx, "index"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("missing styles err = %v", err)
	}

	res, err := f.writer.SaveStyles(ctx, "index", "h1{content:\"é\"}", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.CSSLength != 15 {
		t.Errorf("cssLength = %d, want 15", res.CSSLength)
	}
	if _, err := f.writer.SaveStyles(ctx, "index", "body{}", nil); err != nil {
		t.Fatal(err)
	}

	got, err := f.reader.ReadStyles(ctx, "index")
	if err != nil {
		t.Fatal(err)
	}
	if got.CSS != "body{}" || got.Source != SourceCache {
		t.Errorf("styles = %+v", got)
	}

	versions, err := f.versions.List(ctx, "index", "css")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 {
		t.Fatalf("css versions = %d", len(versions))
	}
	latest, err := f.versions.Get(ctx, "index", "css", versions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Payload != "h1{content:\"é\"}" {
		t.Errorf("css backup = %q", latest.Payload)
	}
}

func TestHistoryRestore(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "index", `{"v":"1"}`)
	f.seed(t, "index", `{"v":"2"}`)

	versions, err := f.versions.List(ctx, "index", "json")
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.versions.Restore(ctx, "index", "json", versions[0].ID, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.EntriesCount != 1 || res.VersionID != versions[0].ID {
		t.Errorf("restore result = %+v", res)
	}

	read, err := f.reader.ReadPages(ctx, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	assertTree(t, read.Pages["index"], `{"v":"1"}`)

	latest, err := f.versions.List(ctx, "index", "json")
	if err != nil {
		t.Fatal(err)
	}
	backup, err := f.versions.Get(ctx, "index", "json", latest[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	assertTree(t, mustJSON(t, backup.Payload), `{"v":"2"}`)

	found := false
	for _, evt := range f.publisher.types() {
		if evt == "content-restored:index" {
			found = true
		}
	}
	if !found {
		t.Errorf("no restore event in %v", f.publisher.types())
	}
}

func TestHistoryListLimitAndErrors(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		f.seed(t, "index", `{"n":"x"}`)
	}

	versions, err := f.versions.List(ctx, "index", "json")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 5 {
		t.Errorf("listed %d versions, want 5", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i].SavedAt.After(versions[i-1].SavedAt) {
			t.Error("versions not newest first")
		}
	}

	if _, err := f.versions.Get(ctx, "index", "json", "01HZZZZZZZZZZZZZZZZZZZZZZZ"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("unknown version err = %v", err)
	}
	var ve *content.ValidationError
	if _, err := f.versions.List(ctx, "index", "html"); !errors.As(err, &ve) {
		t.Errorf("bad content type err = %v", err)
	}
}

func TestScheduleRefreshPublishesEvent(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "index", `{"a":"1"}`)
	f.publisher.events = nil

	if !f.reader.ScheduleRefresh(content.PageScope("index")) {
		t.Fatal("refresh not accepted")
	}
	f.queue.runAll(t)
	if got := f.publisher.types(); !reflect.DeepEqual(got, []string{"cache-refreshed:index"}) {
		t.Errorf("events = %v", got)
	}
}

func TestWarmAllLoadsEveryScope(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "index", `{"a":"1"}`)
	f.seed(t, "sobre", `{"b":"2"}`)
	f.seed(t, "shared", `{"c":"3"}`)
	if _, err := f.writer.SaveStyles(ctx, "index", "body{}", nil); err != nil {
		t.Fatal(err)
	}
	for _, scope := range []string{"index", "sobre", "shared"} {
		f.cache.InvalidateScope(scope)
	}

	report, err := NewWarmingService(f.reader, 2, nil).WarmAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Scopes != 3 || report.Warmed != 3 || report.Failed != 0 || report.Entries != 3 {
		t.Errorf("report = %+v", report)
	}
	for _, scope := range []string{"index", "sobre", "shared"} {
		if _, state := f.cache.Scope(scope); state != manager.ScopeHit {
			t.Errorf("%s not warm", scope)
		}
	}
}
