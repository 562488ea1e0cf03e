package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

func TestRunOnceExpiresThenPurges(t *testing.T) {
	store := stores.NewLocalStore(stores.Options{})
	if err := store.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	cache := manager.NewManager(store, nil)
	cache.Put("index.title", content.String("x"))

	w := NewWorker(cache, &Config{RecordTTL: time.Hour, PurgeAfter: time.Hour}, logging.NewNopLogger())

	w.now = func() time.Time { return time.Now().Add(90 * time.Minute) }
	if res := w.RunOnce(); res.Expired != 1 || res.Purged != 0 {
		t.Fatalf("first pass %+v", res)
	}
	if _, ok := cache.Get("index.title"); ok {
		t.Fatal("expired record still served")
	}

	w.now = func() time.Time { return time.Now().Add(4 * time.Hour) }
	if res := w.RunOnce(); res.Purged != 1 {
		t.Fatalf("second pass %+v", res)
	}
	if _, present := cache.Lookup("index.title"); present {
		t.Error("record should be gone after purge")
	}
}
