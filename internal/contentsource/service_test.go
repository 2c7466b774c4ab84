package contentsource_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/contentsource"
	"github.com/starford/quill/internal/index"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/schema"
	"github.com/starford/quill/internal/storage"
	"github.com/starford/quill/internal/testutil"
)

const helloPost = `---
type: post
title: Hello
tags:
  - a
  - b
author: people/ann.yaml
---
# Hello

Body stays as is.
`

func baseFiles() map[string]string {
	return map[string]string{
		"posts/hello.md":  helloPost,
		"people/ann.yaml": "type: person\nname: Ann\n",
		"notes/plain.md":  "no front matter\n",
		"assets/cat.png":  "png",
		"data/site.json":  `{"type": "site"}`,
	}
}

func TestGetDocuments(t *testing.T) {
	_, svc := testutil.TestService(t, baseFiles())

	docs, err := svc.GetDocuments(context.Background(), contentsource.DocumentFilter{})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(docs), docs)
	}
	if docs[0].ID != "people/ann.yaml" || docs[1].ID != "posts/hello.md" {
		t.Errorf("order = %s, %s", docs[0].ID, docs[1].ID)
	}
	post := docs[1]
	if post.ModelName != "post" || post.Status != models.StatusPublished {
		t.Errorf("post = %+v", post)
	}
	if post.Fields["title"] != models.String("Hello") {
		t.Errorf("title = %#v", post.Fields["title"])
	}
	if post.Checksum == "" || post.UpdatedAt.IsZero() {
		t.Errorf("metadata missing: %+v", post)
	}

	posts, _ := svc.GetDocuments(context.Background(), contentsource.DocumentFilter{Model: "post"})
	if len(posts) != 1 || posts[0].ID != "posts/hello.md" {
		t.Errorf("filtered = %+v", posts)
	}
}

func TestGetDocuments_BadFileExcluded(t *testing.T) {
	files := baseFiles()
	files["posts/broken.md"] = "---\ntitle: [unclosed\n---\n"
	_, svc := testutil.TestService(t, files)

	docs, err := svc.GetDocuments(context.Background(), contentsource.DocumentFilter{})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("len = %d, want 2", len(docs))
	}
}

func TestGetDocuments_UnsupportedFieldTypeExcluded(t *testing.T) {
	root, store := testutil.TestContent(t)
	testutil.WriteFile(t, root, "a.md", "---\ntype: odd\nx: 1\n---\n")
	testutil.WriteFile(t, root, "b.md", "---\ntype: fine\ntitle: ok\n---\n")
	src := schema.Static(models.NewRegistry(
		models.Model{Name: "odd", Fields: []models.FieldSpec{{Name: "x", Type: "unsupported"}}},
		models.Model{Name: "fine", Fields: []models.FieldSpec{{Name: "title", Type: models.FieldTypeString}}},
	))
	ix := index.NewIndexer(testutil.TestDB(t), store, src, "", testutil.Logger())
	svc := contentsource.New(store, ix, src, contentsource.Options{Logger: testutil.Logger()})

	docs, err := svc.GetDocuments(context.Background(), contentsource.DocumentFilter{})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "b.md" {
		t.Errorf("docs = %+v", docs)
	}
}

// recordingStore notes every path whose contents are loaded.
type recordingStore struct {
	storage.Provider
	mu     sync.Mutex
	loaded map[string]bool
}

func newRecordingStore(p storage.Provider) *recordingStore {
	return &recordingStore{Provider: p, loaded: map[string]bool{}}
}

func (r *recordingStore) note(p string) {
	r.mu.Lock()
	r.loaded[p] = true
	r.mu.Unlock()
}

func (r *recordingStore) Read(p string) ([]byte, error) {
	r.note(p)
	return r.Provider.Read(p)
}

func (r *recordingStore) Stat(p string) (*models.FileMetadata, error) {
	r.note(p)
	return r.Provider.Stat(p)
}

func TestGetDocuments_SizeLimit(t *testing.T) {
	root, fsys := testutil.TestContent(t)
	testutil.WriteFile(t, root, "small.md", "---\ntype: person\n---\n")
	testutil.WriteFile(t, root, "big.md", "---\ntype: person\nname: "+strings.Repeat("x", 200)+"\n---\n")
	store := newRecordingStore(fsys)
	src := schema.Static(testutil.Registry())
	ix := index.NewIndexer(testutil.TestDB(t), store, src, "", testutil.Logger())
	svc := contentsource.New(store, ix, src, contentsource.Options{MaxFileSize: 100, Logger: testutil.Logger()})

	docs, err := svc.GetDocuments(context.Background(), contentsource.DocumentFilter{})
	if err != nil {
		t.Fatalf("GetDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "small.md" {
		t.Fatalf("docs = %+v", docs)
	}
	if docs[0].Checksum == "" {
		t.Error("document checksum should be set from the file read")
	}
	if store.loaded["big.md"] {
		t.Error("oversized file was read")
	}
}

func TestGetAssets_DoesNotReadFiles(t *testing.T) {
	root, fsys := testutil.TestContent(t)
	testutil.WriteFile(t, root, "assets/big.bin", strings.Repeat("x", 4096))
	store := newRecordingStore(fsys)
	src := schema.Static(testutil.Registry())
	ix := index.NewIndexer(testutil.TestDB(t), store, src, "assets", testutil.Logger())
	svc := contentsource.New(store, ix, src, contentsource.Options{AssetsDir: "assets", AssetsURL: "/assets", Logger: testutil.Logger()})

	assets, err := svc.GetAssets(context.Background())
	if err != nil {
		t.Fatalf("GetAssets: %v", err)
	}
	if len(assets) != 1 || assets[0].ID != "big.bin" {
		t.Fatalf("assets = %+v", assets)
	}
	if len(store.loaded) != 0 {
		t.Errorf("asset listing loaded %v", store.loaded)
	}
}

func TestGetDocument(t *testing.T) {
	_, svc := testutil.TestService(t, baseFiles())
	ctx := context.Background()

	doc, err := svc.GetDocument(ctx, "posts/hello.md")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	ref, ok := doc.Fields["author"].(models.ReferenceField)
	if !ok || ref.RefID != "people/ann.yaml" {
		t.Errorf("author = %#v", doc.Fields["author"])
	}

	for _, id := range []string{"missing.md", "notes/plain.md", "data/site.json", "assets/cat.png"} {
		if _, err := svc.GetDocument(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("GetDocument(%s) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestUpdateDocument(t *testing.T) {
	root, svc := testutil.TestService(t, baseFiles())
	ctx := context.Background()

	before, _ := svc.GetDocument(ctx, "posts/hello.md")
	idx := 0
	ops := []models.UpdateOperation{
		{OpType: models.OpSet, FieldPath: "title", Field: models.String("Hi there")},
		{OpType: models.OpInsert, FieldPath: "tags", Index: &idx, Item: models.String("z")},
		{OpType: models.OpReorder, FieldPath: "tags", Order: []int{2, 0, 1}},
		{OpType: models.OpSet, FieldPath: "seo", Field: models.ObjectField{Fields: map[string]models.Field{
			"description": models.ValueField{Kind: models.FieldTypeText, Value: "About"},
		}}},
		{OpType: models.OpInsert, FieldPath: "blocks", Item: models.ModelField{ModelName: "quote", Fields: map[string]models.Field{
			"text": models.ValueField{Kind: models.FieldTypeText, Value: "To be"},
		}}},
		{OpType: models.OpSet, FieldPath: "cover", Field: models.ImageField{Fields: map[string]models.Field{
			"url": models.String("/img/cat.png"),
		}}},
		{OpType: models.OpUnset, FieldPath: "author"},
	}

	doc, err := svc.UpdateDocument(ctx, "posts/hello.md", ops, before.Checksum)
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	if doc.ID != "posts/hello.md" {
		t.Errorf("id = %q", doc.ID)
	}
	if doc.Checksum == before.Checksum {
		t.Error("checksum did not change")
	}
	if doc.Fields["title"] != models.String("Hi there") {
		t.Errorf("title = %#v", doc.Fields["title"])
	}
	tags := doc.Fields["tags"].(models.ListField).Items
	if len(tags) != 3 || tags[0] != models.String("b") || tags[1] != models.String("z") || tags[2] != models.String("a") {
		t.Errorf("tags = %#v", tags)
	}
	if _, ok := doc.Fields["author"]; ok {
		t.Error("author should be unset")
	}
	blocks := doc.Fields["blocks"].(models.ListField).Items
	if len(blocks) != 1 || blocks[0].(models.ModelField).ModelName != "quote" {
		t.Errorf("blocks = %#v", blocks)
	}
	if img, ok := doc.Fields["cover"].(models.ImageField); !ok || img.Fields["title"] != models.String("cat") {
		t.Errorf("cover = %#v", doc.Fields["cover"])
	}

	data, err := os.ReadFile(filepath.Join(root, "posts", "hello.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "---\n") || !strings.HasSuffix(string(data), "---\n# Hello\n\nBody stays as is.\n") {
		t.Errorf("file = %q", data)
	}
	if !strings.Contains(string(data), "type: quote") {
		t.Errorf("polymorphic item lost its type: %q", data)
	}
	if checksum.Sum(data) != doc.Checksum {
		t.Error("returned checksum does not match file")
	}

	refs, _ := svc.References(ctx, "people/ann.yaml")
	if len(refs) != 0 {
		t.Errorf("index still references ann: %+v", refs)
	}
}

func TestUpdateDocument_NestedSetResolvesSpec(t *testing.T) {
	files := baseFiles()
	files["posts/blocks.md"] = "---\ntype: post\nblocks:\n  - heading: Top\n  - type: quote\n    text: Old\n---\n"
	root, svc := testutil.TestService(t, files)

	_, err := svc.UpdateDocument(context.Background(), "posts/blocks.md", []models.UpdateOperation{
		{OpType: models.OpSet, FieldPath: "blocks[1].text", Field: models.ValueField{Kind: models.FieldTypeText, Value: "New"}},
		{OpType: models.OpSet, FieldPath: "hero", Field: models.ModelField{ModelName: "hero", Fields: map[string]models.Field{
			"heading": models.String("H"),
		}}},
	}, "")
	if err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "posts", "blocks.md"))
	got := string(data)
	if !strings.Contains(got, "text: New") {
		t.Errorf("nested set missing: %q", got)
	}
	if strings.Contains(got, "type: hero") {
		t.Errorf("default model should not be written with its type: %q", got)
	}
}

func TestUpdateDocument_Conflict(t *testing.T) {
	_, svc := testutil.TestService(t, baseFiles())
	ops := []models.UpdateOperation{{OpType: models.OpSet, FieldPath: "title", Field: models.String("x")}}

	_, err := svc.UpdateDocument(context.Background(), "posts/hello.md", ops, "stale")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestUpdateDocument_Errors(t *testing.T) {
	_, svc := testutil.TestService(t, baseFiles())
	ctx := context.Background()
	set := []models.UpdateOperation{{OpType: models.OpSet, FieldPath: "title", Field: models.String("x")}}

	if _, err := svc.UpdateDocument(ctx, "missing.md", set, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
	if _, err := svc.UpdateDocument(ctx, "notes/plain.md", set, ""); !errors.Is(err, apperr.ErrUnknownModel) {
		t.Errorf("untyped: err = %v", err)
	}
	bad := []models.UpdateOperation{{OpType: models.OpSet, FieldPath: "title"}}
	if _, err := svc.UpdateDocument(ctx, "posts/hello.md", bad, ""); !errors.Is(err, apperr.ErrInvalidOperation) {
		t.Errorf("invalid op: err = %v", err)
	}
	reorder := []models.UpdateOperation{{OpType: models.OpReorder, FieldPath: "tags", Order: []int{0, 0}}}
	if _, err := svc.UpdateDocument(ctx, "posts/hello.md", reorder, ""); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("bad reorder: err = %v", err)
	}
}

func TestUpdateDocument_EmitsChange(t *testing.T) {
	_, svc := testutil.TestService(t, baseFiles())

	var mu sync.Mutex
	var got []models.ChangeEvent
	svc.OnContentChange(func(ev models.ChangeEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	ops := []models.UpdateOperation{{OpType: models.OpSet, FieldPath: "title", Field: models.String("x")}}
	if _, err := svc.UpdateDocument(context.Background(), "posts/hello.md", ops, ""); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	want := models.ChangeEvent{Op: models.ChangeUpdated, Entity: models.EntityDocument, ID: "posts/hello.md"}
	if len(got) != 1 || got[0] != want {
		t.Errorf("events = %+v", got)
	}
}

func TestGetAssets(t *testing.T) {
	files := baseFiles()
	files["assets/img/dog.jpg"] = "jpg"
	_, svc := testutil.TestService(t, files)

	assets, err := svc.GetAssets(context.Background())
	if err != nil {
		t.Fatalf("GetAssets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("assets = %+v", assets)
	}
	a := assets[1]
	if a.ID != "img/dog.jpg" || a.Type != models.EntityAsset {
		t.Errorf("asset = %+v", a)
	}
	if a.Fields["file"] != (models.FileField{URL: "/assets/img/dog.jpg", FileName: "dog.jpg"}) {
		t.Errorf("file = %#v", a.Fields["file"])
	}
	if a.Fields["title"] != models.String("dog") {
		t.Errorf("title = %#v", a.Fields["title"])
	}
}

func TestNotImplemented(t *testing.T) {
	_, svc := testutil.TestService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateDocument(ctx, "post", nil); !errors.Is(err, apperr.ErrNotImplemented) {
		t.Errorf("create: %v", err)
	}
	if err := svc.DeleteDocument(ctx, "a.md"); !errors.Is(err, apperr.ErrNotImplemented) {
		t.Errorf("delete: %v", err)
	}
	if _, err := svc.UploadAsset(ctx, "a.png", nil); !errors.Is(err, apperr.ErrNotImplemented) {
		t.Errorf("upload: %v", err)
	}
	if err := svc.PublishDocuments(ctx, nil); !errors.Is(err, apperr.ErrNotImplemented) {
		t.Errorf("publish: %v", err)
	}
	if locales := svc.GetLocales(ctx); len(locales) != 0 {
		t.Errorf("locales = %v", locales)
	}
}

func TestSearchAndReferences(t *testing.T) {
	_, svc := testutil.TestService(t, baseFiles())
	ctx := context.Background()

	hits, err := svc.Search(ctx, "stays", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "posts/hello.md" {
		t.Errorf("hits = %+v", hits)
	}

	refs, err := svc.References(ctx, "people/ann.yaml")
	if err != nil {
		t.Fatalf("References: %v", err)
	}
	if len(refs) != 1 || refs[0].Source != "posts/hello.md" || refs[0].FieldPath != "author" {
		t.Errorf("refs = %+v", refs)
	}

	ms, err := svc.Models(ctx)
	if err != nil || len(ms) != 4 || ms[0].Name != "hero" {
		t.Errorf("models = %v, %v", ms, err)
	}
}
