package convert

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

// Document converts the raw record stored at id. The record's type key selects
// the model; an unknown model returns apperr.ErrUnknownModel, which callers
// treat as "no document". meta may be nil.
func (c *Converter) Document(id string, raw map[string]any, meta *models.FileMetadata) (*models.Document, error) {
	name, _ := raw[KeyType].(string)
	model, ok := c.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("convert: document %s: %w %q", id, apperr.ErrUnknownModel, name)
	}
	fields, err := c.ConvertFields(stripReserved(raw), model.Fields)
	if err != nil {
		return nil, fmt.Errorf("convert: document %s: %w", id, err)
	}
	created, updated := timestamps(meta)
	doc := &models.Document{
		Type:      models.EntityDocument,
		ID:        id,
		ModelName: model.Name,
		CreatedAt: created,
		UpdatedAt: updated,
		ManageURL: "",
		Status:    models.StatusPublished,
		Context:   map[string]any{},
		Fields:    fields,
	}
	if meta != nil {
		doc.Checksum = meta.Checksum
	}
	return doc, nil
}

// Asset builds the fixed asset shape for the file at id, served at url.
func Asset(id, url string, meta *models.FileMetadata) *models.Asset {
	base := path.Base(id)
	created, updated := timestamps(meta)
	return &models.Asset{
		Type:      models.EntityAsset,
		ID:        id,
		CreatedAt: created,
		UpdatedAt: updated,
		ManageURL: "",
		Status:    models.StatusPublished,
		Context:   map[string]any{},
		Fields: map[string]models.Field{
			"title": models.String(strings.TrimSuffix(base, path.Ext(base))),
			"file":  models.FileField{URL: url, FileName: base},
		},
	}
}

func timestamps(meta *models.FileMetadata) (time.Time, time.Time) {
	now := time.Now().UTC()
	if meta == nil {
		return now, now
	}
	created, updated := meta.CreatedAt, meta.ModifiedAt
	if updated.IsZero() {
		updated = now
	}
	if created.IsZero() {
		created = updated
	}
	return created, updated
}
