// Package convert maps raw file records to typed document fields and typed
// update values back to raw values, driven by a model registry.
package convert

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

// Reserved record keys. They are stripped before field conversion.
const (
	KeyID   = "id"
	KeyType = "type"
)

var defaultItemSpec = models.FieldSpec{Type: models.FieldTypeString}

// Converter converts records against one registry. Build one per call; it
// holds no mutable state and is safe for concurrent use.
type Converter struct {
	registry models.Registry
	logger   *slog.Logger
}

// New returns a Converter over registry. A nil logger uses slog.Default().
func New(registry models.Registry, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{registry: registry, logger: logger}
}

// Registry returns the registry the converter was built with.
func (c *Converter) Registry() models.Registry {
	return c.registry
}

// ConvertFields converts every raw field that has a spec and a truthy value.
// Fields without a spec and falsy values are dropped silently.
func (c *Converter) ConvertFields(raw map[string]any, specs []models.FieldSpec) (map[string]models.Field, error) {
	out := make(map[string]models.Field, len(specs))
	for i := range specs {
		spec := &specs[i]
		value, ok := raw[spec.Name]
		if !ok || IsFalsy(value) {
			continue
		}
		f, err := c.ConvertFieldType(value, spec)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out[spec.Name] = f
		}
	}
	return out, nil
}

// ConvertFieldType converts one raw value according to spec. A nil field with
// a nil error means the value was dropped. Unknown field types abort with
// apperr.ErrUnsupportedFieldType.
func (c *Converter) ConvertFieldType(value any, spec *models.FieldSpec) (models.Field, error) {
	switch spec.Type {
	case models.FieldTypeString, models.FieldTypeSlug, models.FieldTypeText, models.FieldTypeHTML,
		models.FieldTypeURL, models.FieldTypeBoolean, models.FieldTypeNumber, models.FieldTypeDate,
		models.FieldTypeDatetime, models.FieldTypeEnum, models.FieldTypeJSON, models.FieldTypeStyle,
		models.FieldTypeColor, models.FieldTypeMarkdown:
		return models.ValueField{Kind: spec.Type, Value: value}, nil
	case models.FieldTypeList:
		return c.convertList(value, spec)
	case models.FieldTypeObject:
		return c.convertObject(value, spec)
	case models.FieldTypeModel:
		return c.convertModel(value, spec)
	case models.FieldTypeReference:
		id, ok := value.(string)
		if !ok {
			c.drop(spec, "reference value is not a string", value)
			return nil, nil
		}
		return models.ReferenceField{RefType: models.RefTypeDocument, RefID: id}, nil
	case models.FieldTypeImage:
		return c.convertImage(value, spec)
	}
	return nil, fmt.Errorf("convert: field %q: %w %q", spec.Name, apperr.ErrUnsupportedFieldType, spec.Type)
}

func (c *Converter) convertList(value any, spec *models.FieldSpec) (models.Field, error) {
	items, ok := value.([]any)
	if !ok {
		c.drop(spec, "list value is not a sequence", value)
		return nil, nil
	}
	out := make([]models.Field, 0, len(items))
	for _, item := range items {
		f, err := c.ConvertFieldType(item, c.itemSpec(spec, item))
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		out = append(out, f)
	}
	return models.ListField{Items: out}, nil
}

func (c *Converter) convertObject(value any, spec *models.FieldSpec) (models.Field, error) {
	record, ok := value.(map[string]any)
	if !ok {
		c.drop(spec, "object value is not a mapping", value)
		return nil, nil
	}
	fields, err := c.ConvertFields(record, spec.Fields)
	if err != nil {
		return nil, err
	}
	return models.ObjectField{Fields: fields}, nil
}

func (c *Converter) convertModel(value any, spec *models.FieldSpec) (models.Field, error) {
	record, ok := value.(map[string]any)
	if !ok {
		c.drop(spec, "model value is not a mapping", value)
		return nil, nil
	}
	name := c.modelName(record, spec)
	model, ok := c.registry.Lookup(name)
	if !ok {
		c.logger.Warn("convert: unresolved model, field dropped",
			slog.String("field", spec.Name),
			slog.String("model", name))
		return nil, nil
	}
	fields, err := c.ConvertFields(stripReserved(record), model.Fields)
	if err != nil {
		return nil, err
	}
	return models.ModelField{ModelName: model.Name, Fields: fields}, nil
}

func (c *Converter) convertImage(value any, spec *models.FieldSpec) (models.Field, error) {
	url, ok := value.(string)
	if !ok {
		c.drop(spec, "image value is not a string", value)
		return nil, nil
	}
	base := path.Base(url)
	return models.ImageField{Fields: map[string]models.Field{
		"title": models.String(strings.TrimSuffix(base, path.Ext(base))),
		"url":   models.String(url),
	}}, nil
}

// modelName picks the record's own type, else the first model the spec allows.
func (c *Converter) modelName(record map[string]any, spec *models.FieldSpec) string {
	if t, ok := record[KeyType].(string); ok && t != "" {
		return t
	}
	if spec != nil && len(spec.Models) > 0 {
		return spec.Models[0]
	}
	return ""
}

// itemSpec resolves the spec of one raw list element.
func (c *Converter) itemSpec(spec *models.FieldSpec, item any) *models.FieldSpec {
	if spec.Items == nil || len(spec.Items.Specs) == 0 {
		return &defaultItemSpec
	}
	specs := spec.Items.Specs
	if !spec.Items.Multiple || len(specs) == 1 {
		return &specs[0]
	}

	if record, ok := item.(map[string]any); ok {
		if t, ok := record[KeyType].(string); ok {
			for i := range specs {
				if specs[i].Type == models.FieldTypeModel && allows(&specs[i], t) {
					return &specs[i]
				}
			}
		}
	}
	for i := range specs {
		if shapeMatches(specs[i].Type, item) {
			return &specs[i]
		}
	}
	return &specs[0]
}

func (c *Converter) drop(spec *models.FieldSpec, reason string, value any) {
	c.logger.Debug("convert: field dropped",
		slog.String("field", spec.Name),
		slog.String("type", string(spec.Type)),
		slog.String("reason", reason),
		slog.String("value_type", fmt.Sprintf("%T", value)))
}

func allows(spec *models.FieldSpec, model string) bool {
	if len(spec.Models) == 0 {
		return true
	}
	for _, m := range spec.Models {
		if m == model {
			return true
		}
	}
	return false
}

func shapeMatches(t models.FieldType, v any) bool {
	switch v.(type) {
	case map[string]any:
		return t == models.FieldTypeObject || t == models.FieldTypeModel
	case []any:
		return t == models.FieldTypeList
	case string:
		return t.IsScalar() || t == models.FieldTypeReference || t == models.FieldTypeImage
	case bool:
		return t == models.FieldTypeBoolean
	case int, int64, uint64, float64:
		return t == models.FieldTypeNumber
	}
	return false
}

func stripReserved(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		if k == KeyID || k == KeyType {
			continue
		}
		out[k] = v
	}
	return out
}
