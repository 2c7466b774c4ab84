package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/schema"
	"github.com/starford/quill/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry() schema.Static {
	return schema.Static(models.NewRegistry(
		models.Model{Name: "post", Fields: []models.FieldSpec{
			{Name: "title", Type: models.FieldTypeString},
			{Name: "author", Type: models.FieldTypeReference},
			{Name: "related", Type: models.FieldTypeList, Items: models.Single(models.FieldSpec{Type: models.FieldTypeReference})},
		}},
		models.Model{Name: "person", Fields: []models.FieldSpec{
			{Name: "name", Type: models.FieldTypeString},
		}},
	))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testIndexer(t *testing.T) (string, *Indexer) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, NewIndexer(testDB(t), store, testRegistry(), "assets", testLogger())
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"documents", "assets", "refs"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := DocumentRow{
		Path:      "posts/hello.md",
		Model:     "post",
		Title:     "Hello World",
		Checksum:  "abc123",
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertDocument(row, "This is a hello world post.", []Ref{{Target: "people/ann.md", FieldPath: "author"}}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	cs, err := db.GetChecksum("posts/hello.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetDocument("posts/hello.md")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Model != "post" || got.Title != "Hello World" {
		t.Errorf("row = %+v", got)
	}
	if _, err := db.GetDocument("missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "a.md", Model: "post", Checksum: "1", UpdatedAt: time.Now()}, "body",
		[]Ref{{Target: "b.md", FieldPath: "author"}})
	_ = db.UpsertDocument(DocumentRow{Path: "c.md", Model: "post", Checksum: "2", UpdatedAt: time.Now()}, "body",
		[]Ref{{Target: "b.md", FieldPath: "related[0]"}, {Target: "b.md", FieldPath: "related[2]"}})

	bl, err := db.Backlinks("b.md")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 3 {
		t.Fatalf("expected 3 backlinks, got %d", len(bl))
	}
	if bl[0].Source != "a.md" || bl[1].FieldPath != "related[0]" {
		t.Errorf("backlinks = %+v", bl)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "del.md", Model: "post", Checksum: "x", UpdatedAt: time.Now()}, "body",
		[]Ref{{Target: "target.md", FieldPath: "author"}})
	_ = db.UpsertAsset(AssetRow{Path: "assets/a.png", Checksum: "y", UpdatedAt: time.Now()})

	if err := db.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.Delete("assets/a.png"); err != nil {
		t.Fatalf("Delete asset: %v", err)
	}
	all, _ := db.AllChecksums()
	if len(all) != 0 {
		t.Errorf("index still holds %v", all)
	}
	bl, _ := db.Backlinks("target.md")
	if len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertDocument(DocumentRow{Path: "up.md", Model: "post", Title: "Old", Checksum: "1", UpdatedAt: now}, "old body",
		[]Ref{{Target: "x.md", FieldPath: "author"}})
	_ = db.UpsertDocument(DocumentRow{Path: "up.md", Model: "post", Title: "New", Checksum: "2", UpdatedAt: now}, "new body",
		[]Ref{{Target: "y.md", FieldPath: "author"}})

	cs, _ := db.GetChecksum("up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	bl, _ := db.Backlinks("x.md")
	if len(bl) != 0 {
		t.Error("old ref should be removed on upsert")
	}
	bl, _ = db.Backlinks("y.md")
	if len(bl) != 1 {
		t.Error("new ref should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListDocuments(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertDocument(DocumentRow{Path: "b.md", Model: "post", Checksum: "1", UpdatedAt: now}, "", nil)
	_ = db.UpsertDocument(DocumentRow{Path: "a.md", Model: "person", Checksum: "2", UpdatedAt: now}, "", nil)
	_ = db.UpsertDocument(DocumentRow{Path: "c.yaml", Checksum: "3", UpdatedAt: now}, "", nil)

	all, err := db.ListDocuments("")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(all) != 2 || all[0].Path != "a.md" || all[1].Path != "b.md" {
		t.Errorf("all = %+v", all)
	}
	posts, _ := db.ListDocuments("post")
	if len(posts) != 1 || posts[0].Path != "b.md" {
		t.Errorf("posts = %+v", posts)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Path: "s.md", Model: "post", Title: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, "uniqueword appears here", nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.md" || results[0].Model != "post" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func TestIndexerSync(t *testing.T) {
	root, ix := testIndexer(t)
	writeFile(t, root, "posts/hello.md", "---\ntype: post\ntitle: Hello\nauthor: people/ann.yaml\nrelated:\n  - posts/other.md\n---\nBody uniqueword\n")
	writeFile(t, root, "people/ann.yaml", "type: person\nname: Ann\n")
	writeFile(t, root, "notes/untyped.md", "just text\n")
	writeFile(t, root, "assets/cat.png", "png")
	writeFile(t, root, "readme.txt", "ignored")

	if err := ix.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	all, _ := ix.DB().AllChecksums()
	for _, p := range []string{"posts/hello.md", "people/ann.yaml", "notes/untyped.md", "assets/cat.png"} {
		if all[p] == "" {
			t.Errorf("%s not indexed", p)
		}
	}
	if _, ok := all["readme.txt"]; ok {
		t.Error("unsupported file should not be indexed")
	}

	docs, _ := ix.DB().ListDocuments("")
	if len(docs) != 2 {
		t.Errorf("documents = %+v, want 2 typed documents", docs)
	}

	bl, _ := ix.DB().Backlinks("people/ann.yaml")
	if len(bl) != 1 || bl[0].Source != "posts/hello.md" || bl[0].FieldPath != "author" {
		t.Errorf("backlinks = %+v", bl)
	}
	bl, _ = ix.DB().Backlinks("posts/other.md")
	if len(bl) != 1 || bl[0].FieldPath != "related[0]" {
		t.Errorf("list backlinks = %+v", bl)
	}

	hits, _ := ix.DB().Search("uniqueword", 10)
	if len(hits) != 1 || hits[0].Title != "Hello" {
		t.Errorf("hits = %+v", hits)
	}

	_ = os.Remove(filepath.Join(root, "people", "ann.yaml"))
	if err := ix.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cs, _ := ix.DB().GetChecksum("people/ann.yaml"); cs != "" {
		t.Error("stale entry not removed")
	}
}

func TestIndexerReindexAndRemove(t *testing.T) {
	root, ix := testIndexer(t)
	writeFile(t, root, "p.md", "---\ntype: post\ntitle: One\n---\n")

	ev, err := ix.Reindex("p.md")
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if ev == nil || ev.Op != models.ChangeCreated || ev.Entity != models.EntityDocument || ev.ID != "p.md" {
		t.Fatalf("event = %+v", ev)
	}

	ev, _ = ix.Reindex("p.md")
	if ev != nil {
		t.Errorf("unchanged file produced %+v", ev)
	}

	writeFile(t, root, "p.md", "---\ntype: post\ntitle: Two\n---\n")
	ev, _ = ix.Reindex("p.md")
	if ev == nil || ev.Op != models.ChangeUpdated {
		t.Errorf("event = %+v, want updated", ev)
	}

	writeFile(t, root, "assets/img/a.png", "png")
	ev, _ = ix.Reindex("assets/img/a.png")
	if ev == nil || ev.Entity != models.EntityAsset || ev.ID != "img/a.png" {
		t.Errorf("asset event = %+v", ev)
	}

	ev, err = ix.Remove("p.md")
	if err != nil || ev == nil || ev.Op != models.ChangeDeleted {
		t.Errorf("remove event = %+v, %v", ev, err)
	}
	ev, _ = ix.Remove("p.md")
	if ev != nil {
		t.Errorf("second remove produced %+v", ev)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"posts/a.md":       models.EntityDocument,
		"data/site.json":   models.EntityDocument,
		"assets/a.png":     models.EntityAsset,
		"assets/data.json": models.EntityAsset,
		"assetsx/a.png":    "",
		"a.png":            "",
	}
	for p, want := range cases {
		if got := Classify(p, "assets"); got != want {
			t.Errorf("Classify(%q) = %q, want %q", p, got, want)
		}
	}
}

func TestCollectRefs(t *testing.T) {
	fields := map[string]models.Field{
		"author": models.ReferenceField{RefType: models.RefTypeDocument, RefID: "a.md"},
		"blocks": models.ListField{Items: []models.Field{
			models.ModelField{ModelName: "card", Fields: map[string]models.Field{
				"link": models.ReferenceField{RefType: models.RefTypeDocument, RefID: "b.md"},
			}},
		}},
		"title": models.String("x"),
	}
	refs := CollectRefs("p.md", fields)
	if len(refs) != 2 {
		t.Fatalf("refs = %+v", refs)
	}
	if refs[0].FieldPath != "author" || refs[1].FieldPath != "blocks[0].link" || refs[1].Target != "b.md" {
		t.Errorf("refs = %+v", refs)
	}
}
