// Package testutil provides shared test helpers for setting up content trees,
// databases and services.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/quill/internal/contentsource"
	"github.com/starford/quill/internal/index"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/schema"
	"github.com/starford/quill/internal/storage"
)

// AssetsDir and AssetsURL are the asset settings used by TestService.
const (
	AssetsDir = "assets"
	AssetsURL = "/assets"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "quill-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestContent creates a temporary content directory with a storage provider.
func TestContent(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store
}

// WriteFile writes content to rel under root, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Registry is a small blog schema: posts with an author reference, a hero
// model and polymorphic blocks.
func Registry() models.Registry {
	return models.NewRegistry(
		models.Model{Name: "post", Label: "Post", Fields: []models.FieldSpec{
			{Name: "title", Type: models.FieldTypeString},
			{Name: "tags", Type: models.FieldTypeList, Items: models.Single(models.FieldSpec{Type: models.FieldTypeString})},
			{Name: "author", Type: models.FieldTypeReference},
			{Name: "cover", Type: models.FieldTypeImage},
			{Name: "seo", Type: models.FieldTypeObject, Fields: []models.FieldSpec{
				{Name: "description", Type: models.FieldTypeText},
			}},
			{Name: "hero", Type: models.FieldTypeModel, Models: []string{"hero"}},
			{Name: "blocks", Type: models.FieldTypeList, Items: models.OneOf(
				models.FieldSpec{Type: models.FieldTypeModel, Models: []string{"hero"}},
				models.FieldSpec{Type: models.FieldTypeModel, Models: []string{"quote"}},
			)},
		}},
		models.Model{Name: "person", Label: "Person", Fields: []models.FieldSpec{
			{Name: "name", Type: models.FieldTypeString},
		}},
		models.Model{Name: "hero", Fields: []models.FieldSpec{
			{Name: "heading", Type: models.FieldTypeString},
		}},
		models.Model{Name: "quote", Fields: []models.FieldSpec{
			{Name: "text", Type: models.FieldTypeText},
		}},
	)
}

// TestService builds a content source over a fresh content tree using
// Registry. The index is synced before returning.
func TestService(t *testing.T, files map[string]string) (string, *contentsource.Service) {
	t.Helper()
	root, store := TestContent(t)
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	src := schema.Static(Registry())
	ix := index.NewIndexer(TestDB(t), store, src, AssetsDir, Logger())
	svc := contentsource.New(store, ix, src, contentsource.Options{
		AssetsDir: AssetsDir,
		AssetsURL: AssetsURL,
		Workers:   4,
		Logger:    Logger(),
	})
	if err := svc.Sync(t.Context()); err != nil {
		t.Fatal(err)
	}
	return root, svc
}
