package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is a typed document field. The set of variants is closed: ValueField,
// ListField, ObjectField, ModelField, ReferenceField, ImageField and FileField.
// The same union carries typed update values.
type Field interface {
	FieldType() FieldType
	isField()
}

// ValueField holds a scalar-like value stored verbatim.
type ValueField struct {
	Kind  FieldType
	Value any
}

// ListField holds converted list items in source order.
type ListField struct {
	Items []Field
}

// ObjectField holds the converted fields of a nested object.
type ObjectField struct {
	Fields map[string]Field
}

// ModelField holds a nested record resolved against a model.
type ModelField struct {
	ModelName string
	Fields    map[string]Field
}

// ReferenceField points at another document by id.
type ReferenceField struct {
	RefType string
	RefID   string
}

// ImageField carries the synthesized title and url of an image path.
type ImageField struct {
	Fields map[string]Field
}

// FileField describes the file behind an asset.
type FileField struct {
	URL      string
	FileName string
}

// RefTypeDocument is the only reference target kind.
const RefTypeDocument = "document"

func (f ValueField) FieldType() FieldType { return f.Kind }
func (ListField) FieldType() FieldType { return FieldTypeList }
func (ObjectField) FieldType() FieldType { return FieldTypeObject }
func (ModelField) FieldType() FieldType { return FieldTypeModel }
func (ReferenceField) FieldType() FieldType { return FieldTypeReference }
func (ImageField) FieldType() FieldType { return FieldTypeImage }
func (FileField) FieldType() FieldType { return FieldTypeFile }
func (ValueField) isField() {}
func (ListField) isField() {}
func (ObjectField) isField() {}
func (ModelField) isField() {}
func (ReferenceField) isField() {}
func (ImageField) isField() {}
func (FileField) isField() {}

// String is shorthand for a string-typed ValueField.
func String(v string) ValueField {
	return ValueField{Kind: FieldTypeString, Value: v}
}

// MarshalJSON implements json.Marshaler.
func (f ValueField) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  FieldType `json:"type"`
		Value any       `json:"value"`
	}{f.Kind, f.Value})
}

// MarshalJSON implements json.Marshaler.
func (f ListField) MarshalJSON() ([]byte, error) {
	items := f.Items
	if items == nil {
		items = []Field{}
	}
	return json.Marshal(struct {
		Type  FieldType `json:"type"`
		Items []Field   `json:"items"`
	}{FieldTypeList, items})
}

// MarshalJSON implements json.Marshaler.
func (f ObjectField) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   FieldType        `json:"type"`
		Fields map[string]Field `json:"fields"`
	}{FieldTypeObject, nonNilFields(f.Fields)})
}

// MarshalJSON implements json.Marshaler.
func (f ModelField) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      FieldType        `json:"type"`
		ModelName string           `json:"modelName"`
		Fields    map[string]Field `json:"fields"`
	}{FieldTypeModel, f.ModelName, nonNilFields(f.Fields)})
}

// MarshalJSON implements json.Marshaler.
func (f ReferenceField) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    FieldType `json:"type"`
		RefType string    `json:"refType"`
		RefID   string    `json:"refId"`
	}{FieldTypeReference, f.RefType, f.RefID})
}

// MarshalJSON implements json.Marshaler.
func (f ImageField) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   FieldType        `json:"type"`
		Fields map[string]Field `json:"fields"`
	}{FieldTypeImage, nonNilFields(f.Fields)})
}

// MarshalJSON implements json.Marshaler.
func (f FileField) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     FieldType `json:"type"`
		URL      string    `json:"url"`
		FileName string    `json:"fileName"`
	}{FieldTypeFile, f.URL, f.FileName})
}

func nonNilFields(m map[string]Field) map[string]Field {
	if m == nil {
		return map[string]Field{}
	}
	return m
}

// wireField is the union of every variant's JSON keys.
type wireField struct {
	Type      FieldType                  `json:"type"`
	Value     json.RawMessage            `json:"value"`
	Items     []json.RawMessage          `json:"items"`
	Fields    map[string]json.RawMessage `json:"fields"`
	ModelName string                     `json:"modelName"`
	RefType   string                     `json:"refType"`
	RefID     string                     `json:"refId"`
	URL       string                     `json:"url"`
	FileName  string                     `json:"fileName"`
}

// DecodeField decodes the JSON form of a typed field. Whole JSON numbers in
// values decode to int64, others to float64.
func DecodeField(data []byte) (Field, error) {
	var w wireField
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("models: decode field: %w", err)
	}
	switch {
	case w.Type == "":
		return nil, fmt.Errorf("models: decode field: missing type")
	case w.Type.IsScalar():
		v, err := decodeValue(w.Value)
		if err != nil {
			return nil, fmt.Errorf("models: decode %s value: %w", w.Type, err)
		}
		return ValueField{Kind: w.Type, Value: v}, nil
	}

	switch w.Type {
	case FieldTypeList:
		items := make([]Field, 0, len(w.Items))
		for i, raw := range w.Items {
			item, err := DecodeField(raw)
			if err != nil {
				return nil, fmt.Errorf("models: list item %d: %w", i, err)
			}
			items = append(items, item)
		}
		return ListField{Items: items}, nil
	case FieldTypeObject:
		fields, err := decodeFieldMap(w.Fields)
		if err != nil {
			return nil, err
		}
		return ObjectField{Fields: fields}, nil
	case FieldTypeModel:
		fields, err := decodeFieldMap(w.Fields)
		if err != nil {
			return nil, err
		}
		return ModelField{ModelName: w.ModelName, Fields: fields}, nil
	case FieldTypeReference:
		refType := w.RefType
		if refType == "" {
			refType = RefTypeDocument
		}
		return ReferenceField{RefType: refType, RefID: w.RefID}, nil
	case FieldTypeImage:
		// An image update may carry a bare value instead of sub-fields.
		if len(w.Fields) == 0 && len(w.Value) > 0 {
			v, err := decodeValue(w.Value)
			if err != nil {
				return nil, fmt.Errorf("models: decode image value: %w", err)
			}
			return ValueField{Kind: FieldTypeImage, Value: v}, nil
		}
		fields, err := decodeFieldMap(w.Fields)
		if err != nil {
			return nil, err
		}
		return ImageField{Fields: fields}, nil
	case FieldTypeFile:
		return FileField{URL: w.URL, FileName: w.FileName}, nil
	}
	return nil, fmt.Errorf("models: decode field: unknown type %q", w.Type)
}

func decodeFieldMap(raw map[string]json.RawMessage) (map[string]Field, error) {
	out := make(map[string]Field, len(raw))
	for name, data := range raw {
		f, err := DecodeField(data)
		if err != nil {
			return nil, fmt.Errorf("models: field %q: %w", name, err)
		}
		out[name] = f
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	}
	return v
}
