package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/container"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/caching/stores"
	schema "github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/pagecontent-go/pkg/config"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newRouter(t *testing.T) *gin.Engine {
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

	store := stores.NewLocalStore(stores.Options{Logger: logger})
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return SetupRoutes(container.NewContainer(cfg, db, store, logger))
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, out
}

func save(t *testing.T, r http.Handler, pageID string, tree map[string]any) {
	t.Helper()
	w, body := do(t, r, http.MethodPost, "/api/content/save", gin.H{"pageId": pageID, "content": tree})
	if w.Code != http.StatusOK {
		t.Fatalf("save %s: status %d, body %v", pageID, w.Code, body)
	}
}

func TestPreflightAnswers200(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/content/save", nil)
	req.Header.Set("Origin", "https://editor.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	plain := httptest.NewRequest(http.MethodOptions, "/api/content", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, plain)
	if w.Code != http.StatusOK {
		t.Errorf("bare OPTIONS status = %d, want 200", w.Code)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}

	w, _ = do(t, r, http.MethodGet, "/api/status", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}

func TestGetContentRequiresPagesOrPaths(t *testing.T) {
	r := newRouter(t)

	w, body := do(t, r, http.MethodGet, "/api/content", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

func TestSaveThenReadPage(t *testing.T) {
	r := newRouter(t)
	save(t, r, "shared", map[string]any{"phone": "555"})
	save(t, r, "index", map[string]any{"header": map[string]any{"title": "Olá"}})

	w, body := do(t, r, http.MethodGet, "/api/content/index", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", w.Code, body)
	}
	page := body["content"].(map[string]any)
	if page["phone"] != "555" {
		t.Errorf("shared phone not merged: %v", page)
	}
	if title := page["header"].(map[string]any)["title"]; title != "Olá" {
		t.Errorf("header.title = %v, want Olá", title)
	}

	w, body = do(t, r, http.MethodGet, "/api/content/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing page status = %d, want 404 (%v)", w.Code, body)
	}

	w, body = do(t, r, http.MethodGet, "/api/content?pages=index,missing", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pages status = %d", w.Code)
	}
	sources := body["sources"].(map[string]any)
	if sources["missing"] != "not-found" {
		t.Errorf("sources[missing] = %v, want not-found", sources["missing"])
	}
	if pages := body["pages"].(map[string]any); pages["missing"] != nil {
		t.Errorf("pages[missing] = %v, want null", pages["missing"])
	}
}

func TestSaveRejectsInvalidBodies(t *testing.T) {
	r := newRouter(t)

	cases := []struct {
		name string
		body any
	}{
		{"missing page id", gin.H{"content": gin.H{"a": "b"}}},
		{"missing content", gin.H{"pageId": "index"}},
		{"array content", gin.H{"pageId": "index", "content": []string{"a"}}},
		{"dotted page id", gin.H{"pageId": "index.old", "content": gin.H{"a": "b"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := do(t, r, http.MethodPost, "/api/content/save", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%v)", w.Code, body)
			}
		})
	}
}

func TestSyncConflict(t *testing.T) {
	r := newRouter(t)
	save(t, r, "sobre", map[string]any{"title": "Sobre"})

	w, body := do(t, r, http.MethodPost, "/api/content/sync", gin.H{
		"pageId":  "sobre",
		"content": gin.H{"title": "Outro"},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%v)", w.Code, body)
	}
	details := body["details"].(map[string]any)
	if details["entries"] != float64(1) {
		t.Errorf("details.entries = %v, want 1", details["entries"])
	}

	w, _ = do(t, r, http.MethodPost, "/api/content/sync", gin.H{
		"pageId":  "sobre",
		"content": gin.H{"title": "Outro"},
		"force":   true,
	})
	if w.Code != http.StatusOK {
		t.Errorf("forced sync status = %d, want 200", w.Code)
	}
}

func TestEditsFlow(t *testing.T) {
	r := newRouter(t)
	save(t, r, "index", map[string]any{"header": map[string]any{"title": "Old"}})

	w, body := do(t, r, http.MethodPost, "/api/content/edits", gin.H{
		"pageId": "index",
		"edits": gin.H{
			"header.title": gin.H{"newText": "New"},
			"blank":        gin.H{"newText": ""},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%v)", w.Code, body)
	}
	if body["appliedCount"] != float64(1) || body["totalEdits"] != float64(2) {
		t.Errorf("applied/total = %v/%v, want 1/2", body["appliedCount"], body["totalEdits"])
	}

	_, body = do(t, r, http.MethodGet, "/api/content/index", nil)
	header := body["content"].(map[string]any)["header"].(map[string]any)
	if header["title"] != "New" {
		t.Errorf("header.title = %v, want New", header["title"])
	}

	_, body = do(t, r, http.MethodGet, "/api/history/index/json", nil)
	if body["count"] != float64(2) {
		t.Errorf("history count = %v, want 2", body["count"])
	}

	w, body = do(t, r, http.MethodPost, "/api/content/edits", gin.H{"pageId": "index", "edits": gin.H{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty edits status = %d, want 400 (%v)", w.Code, body)
	}
}

func TestListAllPages(t *testing.T) {
	r := newRouter(t)
	save(t, r, "shared", map[string]any{"phone": "555"})
	save(t, r, "index", map[string]any{"a": "1"})
	save(t, r, "sobre", map[string]any{"b": "2"})

	w, body := do(t, r, http.MethodGet, "/api/content?pages=__all__", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2 (%v)", body["count"], body["pageIds"])
	}
}

func TestStylesRoundTrip(t *testing.T) {
	r := newRouter(t)

	w, _ := do(t, r, http.MethodGet, "/api/styles/index", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("styles before save status = %d, want 404", w.Code)
	}

	w, body := do(t, r, http.MethodPost, "/api/styles/save", gin.H{"pageId": "index", "styles": "h1{color:red}"})
	if w.Code != http.StatusOK {
		t.Fatalf("save styles status = %d (%v)", w.Code, body)
	}
	if body["cssLength"] != float64(13) {
		t.Errorf("cssLength = %v, want 13", body["cssLength"])
	}

	_, body = do(t, r, http.MethodGet, "/api/styles/index", nil)
	if body["styles"] != "h1{color:red}" {
		t.Errorf("styles = %v", body["styles"])
	}
}

func TestRestoreRejectsUnknownContentType(t *testing.T) {
	r := newRouter(t)

	w, body := do(t, r, http.MethodPost, "/api/restore-version", gin.H{
		"pageId":      "index",
		"contentType": "xml",
		"versionId":   "01HX",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (%v)", w.Code, body)
	}
}

func TestCacheUpdateAndStatus(t *testing.T) {
	r := newRouter(t)
	save(t, r, "index", map[string]any{"a": "1"})

	w, body := do(t, r, http.MethodPost, "/api/cache/update", gin.H{"pageId": "index"})
	if w.Code != http.StatusOK || body["queued"] != true {
		t.Errorf("cache update = %d %v", w.Code, body)
	}

	w, body = do(t, r, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	cache := body["cache"].(map[string]any)
	if cache["enabled"] != true {
		t.Errorf("cache.enabled = %v, want true", cache["enabled"])
	}
	if _, ok := body["queue"]; !ok {
		t.Error("status is missing queue stats")
	}
}
