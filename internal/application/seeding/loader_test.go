package seeding

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/services"
	"github.com/AtRiskMedia/pagecontent-go/internal/domain/entities/content"
)

type fakeWriter struct {
	trees  map[string]content.Value
	styles map[string]string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{trees: map[string]content.Value{}, styles: map[string]string{}}
}

func (w *fakeWriter) SyncContent(_ context.Context, pageID string, tree content.Value, force bool, _ *string) (*services.SaveResult, error) {
	id := content.ParseScope(pageID).Prefix()
	if _, exists := w.trees[id]; exists && !force {
		return nil, &content.ConflictError{PageID: id, Entries: 1}
	}
	w.trees[id] = tree
	return &services.SaveResult{PageID: id, EntriesCount: tree.Len()}, nil
}

func (w *fakeWriter) SaveStyles(_ context.Context, pageID, css string, _ *string) (*services.StylesSaveResult, error) {
	id := content.ParseScope(pageID).Prefix()
	w.styles[id] = css
	return &services.StylesSaveResult{PageID: id, CSSLength: len(css)}, nil
}

func (w *fakeWriter) StylesExist(_ context.Context, pageID string) (bool, error) {
	_, ok := w.styles[content.ParseScope(pageID).Prefix()]
	return ok, nil
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestParseYAMLKeepsOrderAndTypes(t *testing.T) {
	v, err := ParseYAML([]byte(`
header:
  title: Olá
  visible: true
price: 1.50
count: 3
empty: ~
items:
  - name: Ana
  - name: Bea
`))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v.Keys(), []string{"header", "price", "count", "empty", "items"}) {
		t.Errorf("keys = %v", v.Keys())
	}
	got, _ := v.MarshalJSON()
	want := `{"header":{"title":"Olá","visible":true},"price":1.50,"count":3,"empty":null,"items":[{"name":"Ana"},{"name":"Bea"}]}`
	if string(got) != want {
		t.Errorf("json = %s\nwant %s", got, want)
	}
}

func TestLoaderImportsAndReportsConflicts(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"index.yaml":  "title: Início\n",
		"Sobre.json":  `{"title":"Sobre"}`,
		"index.css":   "body{}",
		"shared.yml":  "footer: x\n",
		"notes.txt":   "ignored",
		"broken.json": `{"title":`,
	})
	w := newFakeWriter()
	w.trees["shared"] = content.NewObject()

	report, err := NewLoader(w, false, nil).Run(context.Background(), dir)
	if err == nil {
		t.Error("expected an error for the broken file")
	}

	pages := append([]string(nil), report.Pages...)
	sort.Strings(pages)
	if !reflect.DeepEqual(pages, []string{"index", "sobre"}) {
		t.Errorf("pages = %v", pages)
	}
	if !reflect.DeepEqual(report.Styles, []string{"index"}) {
		t.Errorf("styles = %v", report.Styles)
	}
	if !reflect.DeepEqual(report.Conflicts, []string{"shared"}) {
		t.Errorf("conflicts = %v", report.Conflicts)
	}
	if _, ok := report.Failed["broken.json"]; !ok || len(report.Failed) != 1 {
		t.Errorf("failed = %v", report.Failed)
	}

	again, err := NewLoader(w, false, nil).Run(context.Background(), writeFiles(t, map[string]string{"index.css": "h1{}"}))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again.Conflicts, []string{"index.css"}) || w.styles["index"] != "body{}" {
		t.Errorf("existing styles overwritten without force: %+v", again)
	}
}

func TestLoaderForceOverwrites(t *testing.T) {
	dir := writeFiles(t, map[string]string{"index.json": `{"v":"2"}`, "index.css": "h1{}"})
	w := newFakeWriter()
	w.trees["index"] = content.Object("v", content.String("1"))
	w.styles["index"] = "body{}"

	report, err := NewLoader(w, true, nil).Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Conflicts) != 0 {
		t.Errorf("conflicts = %v", report.Conflicts)
	}
	if v, _ := w.trees["index"].Get("v"); v.StringValue() != "2" {
		t.Errorf("tree not overwritten: %v", v)
	}
	if w.styles["index"] != "h1{}" {
		t.Errorf("styles not overwritten: %q", w.styles["index"])
	}
}

func TestLoaderMissingDirectory(t *testing.T) {
	if _, err := NewLoader(newFakeWriter(), false, nil).Run(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for a missing directory")
	}
}
