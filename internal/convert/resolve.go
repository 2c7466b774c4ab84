package convert

import (
	"github.com/starford/quill/internal/fieldpath"
	"github.com/starford/quill/internal/models"
)

// ResolveSpec finds the field spec addressed by p inside a record of model.
// raw is the current record; it decides list item specs for polymorphic lists
// and the model of nested model fields. It returns nil when p leaves the
// schema.
func (c *Converter) ResolveSpec(model *models.Model, raw map[string]any, p fieldpath.Path) *models.FieldSpec {
	if model == nil {
		return nil
	}
	var (
		cur  *models.FieldSpec
		node any = raw
	)
	for _, seg := range p {
		if seg.IsIndex {
			if cur == nil || cur.Type != models.FieldTypeList {
				return nil
			}
			item, _ := fieldpath.Get(node, fieldpath.Path{seg})
			cur = c.itemSpec(cur, item)
			node = item
			continue
		}

		var specs []models.FieldSpec
		switch {
		case cur == nil:
			specs = model.Fields
		case cur.Type == models.FieldTypeObject:
			specs = cur.Fields
		case cur.Type == models.FieldTypeModel:
			record, _ := node.(map[string]any)
			nested, ok := c.registry.Lookup(c.modelName(record, cur))
			if !ok {
				return nil
			}
			specs = nested.Fields
		default:
			return nil
		}

		next := findSpec(specs, seg.Key)
		if next == nil {
			return nil
		}
		cur = next
		node, _ = fieldpath.Get(node, fieldpath.Path{seg})
	}
	return cur
}

func findSpec(specs []models.FieldSpec, name string) *models.FieldSpec {
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i]
		}
	}
	return nil
}
