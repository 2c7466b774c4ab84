package convert

import (
	"fmt"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/fieldpath"
	"github.com/starford/quill/internal/models"
)

// MapUpdateValue turns a typed update value into the raw value stored in a
// record. spec may be nil; children are then mapped without a spec. Each level
// returns a freshly built mapping or sequence.
func (c *Converter) MapUpdateValue(f models.Field, spec *models.FieldSpec) (any, error) {
	switch v := f.(type) {
	case models.ObjectField:
		return c.mapFields(v.Fields, func(name string) *models.FieldSpec { return spec.Field(name) })
	case models.ModelField:
		model, ok := c.registry.Lookup(v.ModelName)
		if !ok {
			return nil, fmt.Errorf("convert: map update value: %w %q", apperr.ErrUnknownModel, v.ModelName)
		}
		out, err := c.mapFields(v.Fields, model.Field)
		if err != nil {
			return nil, err
		}
		if needsTypeKey(spec, model.Name) {
			out[KeyType] = model.Name
		}
		return out, nil
	case models.ListField:
		out := make([]any, 0, len(v.Items))
		for i, item := range v.Items {
			raw, err := c.MapListItem(item, spec)
			if err != nil {
				return nil, fmt.Errorf("convert: list item %d: %w", i, err)
			}
			out = append(out, raw)
		}
		return out, nil
	case models.ReferenceField:
		return v.RefID, nil
	case models.ImageField:
		if url, ok := v.Fields["url"].(models.ValueField); ok {
			return url.Value, nil
		}
		return nil, nil
	case models.FileField:
		return v.URL, nil
	case models.ValueField:
		return v.Value, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("convert: map update value: %w %T", apperr.ErrUnsupportedFieldType, f)
}

func (c *Converter) mapFields(fields map[string]models.Field, specFor func(string) *models.FieldSpec) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, child := range fields {
		raw, err := c.MapUpdateValue(child, specFor(name))
		if err != nil {
			return nil, fmt.Errorf("convert: field %q: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}

// MapListItem maps one item of the list field described by listSpec. Items of
// polymorphic lists keep their type when an untyped mapping would resolve to
// another member of the item set.
func (c *Converter) MapListItem(item models.Field, listSpec *models.FieldSpec) (any, error) {
	itemSpec := ListItemSpec(listSpec, item)
	raw, err := c.MapUpdateValue(item, itemSpec)
	if err != nil {
		return nil, err
	}
	if m, ok := item.(models.ModelField); ok && !isDefaultItem(listSpec, itemSpec) {
		if record, ok := raw.(map[string]any); ok {
			record[KeyType] = m.ModelName
		}
	}
	return raw, nil
}

// MapSetValue maps the value of a set at p inside raw, a record of model. A
// set on one element of a list is mapped as an item of that list, so a member
// of a polymorphic item set keeps its type.
func (c *Converter) MapSetValue(model *models.Model, raw map[string]any, p fieldpath.Path, f models.Field) (any, error) {
	if n := len(p); n > 1 && p[n-1].IsIndex {
		if list := c.ResolveSpec(model, raw, p[:n-1]); list != nil && list.Type == models.FieldTypeList {
			return c.MapListItem(f, list)
		}
	}
	return c.MapUpdateValue(f, c.ResolveSpec(model, raw, p))
}

// ListItemSpec picks the spec for one update item of a list field: the
// matching member of a polymorphic item set, the single item spec, or nil.
func ListItemSpec(spec *models.FieldSpec, item models.Field) *models.FieldSpec {
	if spec == nil || spec.Items == nil || len(spec.Items.Specs) == 0 || item == nil {
		return nil
	}
	specs := spec.Items.Specs
	if !spec.Items.Multiple {
		return &specs[0]
	}
	if m, ok := item.(models.ModelField); ok {
		for i := range specs {
			if specs[i].Type == models.FieldTypeModel && allows(&specs[i], m.ModelName) {
				return &specs[i]
			}
		}
	}
	for i := range specs {
		if specs[i].Type == item.FieldType() {
			return &specs[i]
		}
	}
	return nil
}

// needsTypeKey reports whether a nested model record must carry its type:
// only when the spec's default model would not resolve to it.
func needsTypeKey(spec *models.FieldSpec, model string) bool {
	return spec == nil || len(spec.Models) == 0 || spec.Models[0] != model
}

// isDefaultItem reports whether an untyped mapping in a list of spec would be
// converted with itemSpec. Polymorphic lists pick the first mapping-shaped spec.
func isDefaultItem(spec, itemSpec *models.FieldSpec) bool {
	if spec == nil || spec.Items == nil || !spec.Items.Multiple {
		return true
	}
	specs := spec.Items.Specs
	for i := range specs {
		if shapeMatches(specs[i].Type, map[string]any{}) {
			return &specs[i] == itemSpec
		}
	}
	return false
}
