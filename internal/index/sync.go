package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/convert"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/parser"
	"github.com/starford/quill/internal/schema"
	"github.com/starford/quill/internal/storage"
)

// ChangeHandler receives index changes caused by files on disk. It may be nil.
type ChangeHandler func(models.ChangeEvent)

// Indexer keeps the index in step with the content tree.
type Indexer struct {
	db        *DB
	store     storage.Provider
	schema    schema.Source
	assetsDir string
	logger    *slog.Logger
}

// NewIndexer returns an Indexer. assetsDir is relative to the store root;
// empty means the tree has no assets.
func NewIndexer(db *DB, store storage.Provider, src schema.Source, assetsDir string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		db:        db,
		store:     store,
		schema:    src,
		assetsDir: strings.Trim(path.Clean("/"+assetsDir), "/"),
		logger:    logger,
	}
}

// DB returns the underlying index.
func (ix *Indexer) DB() *DB {
	return ix.db
}

// Classify returns models.EntityAsset for files under assetsDir,
// models.EntityDocument for other record files, and "" for the rest.
func Classify(p, assetsDir string) string {
	if assetsDir != "" && strings.HasPrefix(p, assetsDir+"/") {
		return models.EntityAsset
	}
	if parser.Supported(p) {
		return models.EntityDocument
	}
	return ""
}

// AssetID returns the id of the asset stored at p: its path below assetsDir.
func AssetID(p, assetsDir string) string {
	return strings.TrimPrefix(p, assetsDir+"/")
}

func (ix *Indexer) event(op models.ChangeOp, entity, p string) *models.ChangeEvent {
	id := p
	if entity == models.EntityAsset {
		id = AssetID(p, ix.assetsDir)
	}
	return &models.ChangeEvent{Op: op, Entity: entity, ID: id}
}

// Sync walks the content tree and brings the index up to date:
//   - new/changed files are parsed, converted and upserted
//   - files removed from disk are deleted from the index
func (ix *Indexer) Sync(ctx context.Context) error {
	metas, err := ix.store.List("")
	if err != nil {
		return err
	}
	checksums, err := ix.db.AllChecksums()
	if err != nil {
		return err
	}
	registry, err := ix.schema.Registry()
	if err != nil {
		return err
	}
	conv := convert.New(registry, ix.logger)

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		entity := Classify(m.Path, ix.assetsDir)
		if entity == "" {
			continue
		}
		disk[m.Path] = struct{}{}

		meta, err := ix.store.Stat(m.Path)
		if err != nil {
			ix.logger.Warn("sync: stat failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if checksums[m.Path] == meta.Checksum {
			continue
		}
		if err := ix.indexFile(conv, entity, *meta); err != nil {
			ix.logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			ix.logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := ix.db.Delete(p); err != nil {
				ix.logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				ix.logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// Reindex updates the entry for the file at p. The returned event is nil when
// p is not indexable or its checksum is unchanged.
func (ix *Indexer) Reindex(p string) (*models.ChangeEvent, error) {
	entity := Classify(p, ix.assetsDir)
	if entity == "" {
		return nil, nil
	}
	meta, err := ix.store.Stat(p)
	if err != nil {
		return nil, err
	}
	prev, err := ix.db.GetChecksum(p)
	if err != nil {
		return nil, err
	}
	if prev == meta.Checksum {
		return nil, nil
	}

	var conv *convert.Converter
	if entity == models.EntityDocument {
		registry, err := ix.schema.Registry()
		if err != nil {
			return nil, err
		}
		conv = convert.New(registry, ix.logger)
	}
	if err := ix.indexFile(conv, entity, *meta); err != nil {
		return nil, err
	}

	op := models.ChangeUpdated
	if prev == "" {
		op = models.ChangeCreated
	}
	return ix.event(op, entity, p), nil
}

// Remove drops p from the index. The returned event is nil when p was not
// indexed.
func (ix *Indexer) Remove(p string) (*models.ChangeEvent, error) {
	prev, err := ix.db.GetChecksum(p)
	if err != nil || prev == "" {
		return nil, err
	}
	if err := ix.db.Delete(p); err != nil {
		return nil, err
	}
	entity := Classify(p, ix.assetsDir)
	if entity == "" {
		entity = models.EntityDocument
	}
	return ix.event(models.ChangeDeleted, entity, p), nil
}

func (ix *Indexer) indexFile(conv *convert.Converter, entity string, meta models.FileMetadata) error {
	if entity == models.EntityAsset {
		return ix.db.UpsertAsset(AssetRow{
			Path:      meta.Path,
			Checksum:  meta.Checksum,
			Size:      meta.Size,
			UpdatedAt: meta.ModifiedAt,
		})
	}

	data, err := ix.store.Read(meta.Path)
	if err != nil {
		return err
	}
	res, err := parser.Parse(meta.Path, data)
	if err != nil {
		return err
	}

	row := DocumentRow{
		Path:      meta.Path,
		Title:     parser.Title(res),
		Checksum:  meta.Checksum,
		UpdatedAt: meta.ModifiedAt,
	}
	var refs []Ref
	doc, err := conv.Document(meta.Path, res.Record, &meta)
	switch {
	case errors.Is(err, apperr.ErrUnknownModel):
		// Tracked without a model so Sync does not revisit an unchanged file.
	case err != nil:
		return fmt.Errorf("index: convert %s: %w", meta.Path, err)
	default:
		row.Model = doc.ModelName
		refs = CollectRefs(meta.Path, doc.Fields)
	}
	return ix.db.UpsertDocument(row, searchBody(res), refs)
}

// searchBody is the text matched by search: the markdown body followed by
// every string value of the record.
func searchBody(res *parser.Result) string {
	var b strings.Builder
	b.WriteString(res.Body)
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			b.WriteByte('\n')
			b.WriteString(t)
		case map[string]any:
			for _, child := range t {
				walk(child)
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(res.Record)
	return b.String()
}
