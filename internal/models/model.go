// Package models defines the domain types for Quill: model schemas, typed
// document fields, documents, assets and update operations.
package models

import (
	"bytes"
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"
)

// FieldType is the type tag of a model field.
type FieldType string

// Field types a model may declare.
const (
	FieldTypeString    FieldType = "string"
	FieldTypeSlug      FieldType = "slug"
	FieldTypeText      FieldType = "text"
	FieldTypeHTML      FieldType = "html"
	FieldTypeURL       FieldType = "url"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeNumber    FieldType = "number"
	FieldTypeDate      FieldType = "date"
	FieldTypeDatetime  FieldType = "datetime"
	FieldTypeEnum      FieldType = "enum"
	FieldTypeJSON      FieldType = "json"
	FieldTypeStyle     FieldType = "style"
	FieldTypeColor     FieldType = "color"
	FieldTypeMarkdown  FieldType = "markdown"
	FieldTypeList      FieldType = "list"
	FieldTypeObject    FieldType = "object"
	FieldTypeModel     FieldType = "model"
	FieldTypeReference FieldType = "reference"
	FieldTypeImage     FieldType = "image"

	// FieldTypeFile tags the file descriptor of an asset. Models never declare it.
	FieldTypeFile FieldType = "file"
)

// IsScalar reports whether values of t are stored verbatim.
func (t FieldType) IsScalar() bool {
	switch t {
	case FieldTypeString, FieldTypeSlug, FieldTypeText, FieldTypeHTML, FieldTypeURL,
		FieldTypeBoolean, FieldTypeNumber, FieldTypeDate, FieldTypeDatetime, FieldTypeEnum,
		FieldTypeJSON, FieldTypeStyle, FieldTypeColor, FieldTypeMarkdown:
		return true
	}
	return false
}

// FieldSpec describes one field of a model.
type FieldSpec struct {
	Name   string      `yaml:"name" json:"name,omitempty"`
	Type   FieldType   `yaml:"type" json:"type"`
	Label  string      `yaml:"label,omitempty" json:"label,omitempty"`
	Items  *ListItems  `yaml:"items,omitempty" json:"items,omitempty"`
	Fields []FieldSpec `yaml:"fields,omitempty" json:"fields,omitempty"`
	Models []string    `yaml:"models,omitempty" json:"models,omitempty"`
}

// Field returns the nested field spec called name, or nil.
func (s *FieldSpec) Field(name string) *FieldSpec {
	if s == nil {
		return nil
	}
	return findField(s.Fields, name)
}

// ListItems holds the item spec of a list field: one spec, or a set of specs
// for polymorphic lists. Both YAML and JSON accept either form.
type ListItems struct {
	Specs    []FieldSpec
	Multiple bool
}

// Single returns a ListItems wrapping one spec.
func Single(spec FieldSpec) *ListItems {
	return &ListItems{Specs: []FieldSpec{spec}}
}

// OneOf returns a polymorphic ListItems.
func OneOf(specs ...FieldSpec) *ListItems {
	return &ListItems{Specs: specs, Multiple: true}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *ListItems) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var specs []FieldSpec
		if err := value.Decode(&specs); err != nil {
			return err
		}
		*l = ListItems{Specs: specs, Multiple: true}
		return nil
	}
	var spec FieldSpec
	if err := value.Decode(&spec); err != nil {
		return err
	}
	*l = ListItems{Specs: []FieldSpec{spec}}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l ListItems) MarshalYAML() (any, error) {
	if l.Multiple {
		return l.Specs, nil
	}
	if len(l.Specs) == 0 {
		return nil, nil
	}
	return l.Specs[0], nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ListItems) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var specs []FieldSpec
		if err := json.Unmarshal(data, &specs); err != nil {
			return err
		}
		*l = ListItems{Specs: specs, Multiple: true}
		return nil
	}
	var spec FieldSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	*l = ListItems{Specs: []FieldSpec{spec}}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l ListItems) MarshalJSON() ([]byte, error) {
	if l.Multiple {
		return json.Marshal(l.Specs)
	}
	if len(l.Specs) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(l.Specs[0])
}

// Model is a named record schema.
type Model struct {
	Name   string      `yaml:"name" json:"name"`
	Label  string      `yaml:"label,omitempty" json:"label,omitempty"`
	Fields []FieldSpec `yaml:"fields" json:"fields"`
}

// Field returns the field spec called name, or nil.
func (m *Model) Field(name string) *FieldSpec {
	if m == nil {
		return nil
	}
	return findField(m.Fields, name)
}

func findField(specs []FieldSpec, name string) *FieldSpec {
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i]
		}
	}
	return nil
}

// Registry maps model names to models. It is read-only once built.
type Registry map[string]*Model

// NewRegistry indexes models by name. A later duplicate replaces an earlier one.
func NewRegistry(models ...Model) Registry {
	r := make(Registry, len(models))
	for i := range models {
		m := models[i]
		r[m.Name] = &m
	}
	return r
}

// Lookup returns the model called name.
func (r Registry) Lookup(name string) (*Model, bool) {
	m, ok := r[name]
	return m, ok && m != nil
}

// Names returns the registered model names in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Models returns the registered models sorted by name.
func (r Registry) Models() []*Model {
	names := r.Names()
	out := make([]*Model, len(names))
	for i, n := range names {
		out[i] = r[n]
	}
	return out
}

func (t FieldType) String() string { return string(t) }
