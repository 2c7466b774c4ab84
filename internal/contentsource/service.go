// Package contentsource exposes a directory of content files as typed
// documents and assets, and applies typed update operations back to the files.
package contentsource

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/convert"
	"github.com/starford/quill/internal/fieldpath"
	"github.com/starford/quill/internal/index"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/parser"
	"github.com/starford/quill/internal/schema"
	"github.com/starford/quill/internal/storage"
)

const defaultWorkers = 8

// Options configures a Service.
type Options struct {
	// AssetsDir is the assets directory relative to the content root.
	AssetsDir string
	// AssetsURL is the public URL prefix assets are served under.
	AssetsURL string
	// MaxFileSize skips larger files in collection reads. Zero disables the limit.
	MaxFileSize int64
	// Workers bounds concurrent file conversions.
	Workers int
	Logger  *slog.Logger
}

// DocumentFilter narrows GetDocuments.
type DocumentFilter struct {
	Model string
}

// Service coordinates storage, schema, conversion and index operations.
type Service struct {
	store  storage.Provider
	ix     *index.Indexer
	schema schema.Source
	opts   Options
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.RWMutex
	handler index.ChangeHandler
}

// New creates a content source service.
func New(store storage.Provider, ix *index.Indexer, src schema.Source, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.AssetsDir = strings.Trim(opts.AssetsDir, "/")
	return &Service{
		store:  store,
		ix:     ix,
		schema: src,
		opts:   opts,
		logger: opts.Logger,
	}
}

// OnContentChange registers the handler called for every document or asset
// change, from disk or from UpdateDocument. nil unregisters.
func (s *Service) OnContentChange(h index.ChangeHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Service) emit(ev models.ChangeEvent) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h != nil {
		h(ev)
	}
}

// Sync brings the index up to date with the content tree.
func (s *Service) Sync(ctx context.Context) error {
	return s.ix.Sync(ctx)
}

// Watch reindexes files as they change under root until ctx is cancelled.
func (s *Service) Watch(ctx context.Context, root string) error {
	return s.ix.Watch(ctx, root, s.emit)
}

// Models returns the registered models sorted by name.
func (s *Service) Models(_ context.Context) ([]*models.Model, error) {
	reg, err := s.schema.Registry()
	if err != nil {
		return nil, err
	}
	return reg.Models(), nil
}

// GetDocuments reads and converts every record file outside the assets dir.
// A file that fails to read, parse or convert is logged and left out.
func (s *Service) GetDocuments(ctx context.Context, filter DocumentFilter) ([]*models.Document, error) {
	conv, err := s.converter()
	if err != nil {
		return nil, err
	}
	metas, err := s.store.List("")
	if err != nil {
		return nil, err
	}

	docs := make([]*models.Document, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, meta := range metas {
		if index.Classify(meta.Path, s.opts.AssetsDir) != models.EntityDocument {
			continue
		}
		if s.opts.MaxFileSize > 0 && meta.Size > s.opts.MaxFileSize {
			s.logger.Warn("contentsource: file too large, skipped",
				slog.String("path", meta.Path),
				slog.Int64("size", meta.Size),
				slog.Int64("limit", s.opts.MaxFileSize))
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := s.readDocument(conv, meta)
			switch {
			case errors.Is(err, apperr.ErrUnknownModel):
				s.logger.Debug("contentsource: no model for file", slog.String("path", meta.Path))
			case err != nil:
				s.logger.Warn("contentsource: document skipped",
					slog.String("path", meta.Path),
					slog.String("error", err.Error()))
			default:
				docs[i] = doc
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		if d == nil || (filter.Model != "" && d.ModelName != filter.Model) {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *models.Document) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetDocument reads and converts one document. Missing files, files outside
// the document tree and records without a registered model are not found.
func (s *Service) GetDocument(_ context.Context, id string) (*models.Document, error) {
	if index.Classify(id, s.opts.AssetsDir) != models.EntityDocument {
		return nil, fmt.Errorf("contentsource: document %s: %w", id, apperr.ErrNotFound)
	}
	conv, err := s.converter()
	if err != nil {
		return nil, err
	}
	meta, err := s.store.Stat(id)
	if err != nil {
		return nil, notFound(id, err)
	}
	doc, err := s.readDocument(conv, *meta)
	if errors.Is(err, apperr.ErrUnknownModel) || errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("contentsource: document %s: %w", id, apperr.ErrNotFound)
	}
	return doc, err
}

// UpdateDocument applies ops in order to the stored record of id and writes
// it back. A non-empty ifMatch must equal the file's current checksum.
// Updates within one process are serialized; concurrent external writers are
// not detected beyond the checksum comparison.
func (s *Service) UpdateDocument(ctx context.Context, id string, ops []models.UpdateOperation, ifMatch string) (*models.Document, error) {
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("contentsource: operation %d: %w: %s", i, apperr.ErrInvalidOperation, err.Error())
		}
	}
	if index.Classify(id, s.opts.AssetsDir) != models.EntityDocument {
		return nil, fmt.Errorf("contentsource: document %s: %w", id, apperr.ErrNotFound)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.store.Read(id)
	if err != nil {
		return nil, notFound(id, err)
	}
	if !checksum.Matches(data, ifMatch) {
		return nil, fmt.Errorf("contentsource: document %s: %w", id, apperr.ErrConflict)
	}

	res, err := parser.Parse(id, data)
	if err != nil {
		return nil, err
	}
	conv, err := s.converter()
	if err != nil {
		return nil, err
	}
	name, _ := res.Record[convert.KeyType].(string)
	model, ok := conv.Registry().Lookup(name)
	if !ok {
		return nil, fmt.Errorf("contentsource: document %s: %w %q", id, apperr.ErrUnknownModel, name)
	}

	record := res.Record
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := mapOperationValue(conv, model, record, op)
		if err != nil {
			return nil, fmt.Errorf("contentsource: operation %d: %w", i, err)
		}
		if record, err = fieldpath.Apply(record, op, value); err != nil {
			return nil, fmt.Errorf("contentsource: operation %d: %w", i, err)
		}
	}
	res.Record = record

	out, err := parser.Render(res)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(id, out); err != nil {
		return nil, err
	}
	s.logger.Info("contentsource: document updated",
		slog.String("id", id),
		slog.Int("operations", len(ops)))

	if ev, err := s.ix.Reindex(id); err != nil {
		s.logger.Warn("contentsource: reindex failed", slog.String("path", id), slog.String("error", err.Error()))
	} else if ev != nil {
		s.emit(*ev)
	}

	meta, err := s.store.Stat(id)
	if err != nil {
		return nil, err
	}
	return s.readDocument(conv, *meta)
}

// mapOperationValue turns the typed payload of op into a raw value. The field
// spec is op.ModelField when given, else resolved from model and the current
// record.
func mapOperationValue(conv *convert.Converter, model *models.Model, record map[string]any, op models.UpdateOperation) (any, error) {
	if op.OpType != models.OpSet && op.OpType != models.OpInsert {
		return nil, nil
	}
	if op.ModelField != nil {
		if op.OpType == models.OpInsert {
			return conv.MapListItem(op.Item, op.ModelField)
		}
		return conv.MapUpdateValue(op.Field, op.ModelField)
	}
	p, err := fieldpath.Parse(op.FieldPath)
	if err != nil {
		return nil, err
	}
	if op.OpType == models.OpInsert {
		return conv.MapListItem(op.Item, conv.ResolveSpec(model, record, p))
	}
	return conv.MapSetValue(model, record, p, op.Field)
}

// GetAssets returns one asset per file under the assets directory.
func (s *Service) GetAssets(_ context.Context) ([]*models.Asset, error) {
	if s.opts.AssetsDir == "" {
		return []*models.Asset{}, nil
	}
	metas, err := s.store.List(s.opts.AssetsDir)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Asset, 0, len(metas))
	for _, meta := range metas {
		id := index.AssetID(meta.Path, s.opts.AssetsDir)
		out = append(out, convert.Asset(id, s.AssetURL(id), &meta))
	}
	slices.SortFunc(out, func(a, b *models.Asset) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// AssetURL returns the public URL of the asset id.
func (s *Service) AssetURL(id string) string {
	return strings.TrimRight(s.opts.AssetsURL, "/") + "/" + id
}

// GetLocales returns the locales of the content tree. File-backed content is
// not localized.
func (s *Service) GetLocales(_ context.Context) []string {
	return []string{}
}

// CreateDocument is not supported by file-backed content.
func (s *Service) CreateDocument(_ context.Context, _ string, _ map[string]models.Field) (*models.Document, error) {
	return nil, fmt.Errorf("contentsource: create document: %w", apperr.ErrNotImplemented)
}

// DeleteDocument is not supported by file-backed content.
func (s *Service) DeleteDocument(_ context.Context, _ string) error {
	return fmt.Errorf("contentsource: delete document: %w", apperr.ErrNotImplemented)
}

// UploadAsset is not supported by file-backed content.
func (s *Service) UploadAsset(_ context.Context, _ string, _ []byte) (*models.Asset, error) {
	return nil, fmt.Errorf("contentsource: upload asset: %w", apperr.ErrNotImplemented)
}

// PublishDocuments is not supported: every file is live once written.
func (s *Service) PublishDocuments(_ context.Context, _ []string) error {
	return fmt.Errorf("contentsource: publish: %w", apperr.ErrNotImplemented)
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.ix.DB().Search(query, limit)
	return nonNilSlice(res), err
}

// References returns the references pointing at id.
func (s *Service) References(_ context.Context, id string) ([]index.Ref, error) {
	refs, err := s.ix.DB().Backlinks(id)
	return nonNilSlice(refs), err
}

// Summaries lists indexed documents without reading their files.
func (s *Service) Summaries(_ context.Context, model string) ([]index.DocumentRow, error) {
	rows, err := s.ix.DB().ListDocuments(model)
	return nonNilSlice(rows), err
}

func (s *Service) converter() (*convert.Converter, error) {
	reg, err := s.schema.Registry()
	if err != nil {
		return nil, err
	}
	return convert.New(reg, s.logger), nil
}

func (s *Service) readDocument(conv *convert.Converter, meta models.FileMetadata) (*models.Document, error) {
	data, err := s.store.Read(meta.Path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(meta.Path, data)
	if err != nil {
		return nil, err
	}
	meta.Checksum = checksum.Sum(data)
	return conv.Document(meta.Path, res.Record, &meta)
}

func notFound(id string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("contentsource: document %s: %w", id, apperr.ErrNotFound)
	}
	return err
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
