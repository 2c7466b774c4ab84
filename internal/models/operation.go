package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// OpType names an update operation.
type OpType string

// Update operation kinds.
const (
	OpSet     OpType = "set"
	OpUnset   OpType = "unset"
	OpInsert  OpType = "insert"
	OpRemove  OpType = "remove"
	OpReorder OpType = "reorder"
)

// UpdateOperation is one typed mutation of a stored record.
//
// FieldPath addresses the raw record with dots and brackets ("sections[1].title").
// Field is the value for set, Item the value for insert. Index applies to insert
// and remove, Order to reorder. ModelField optionally pins the field spec used to
// map the value; without it the spec is resolved from the document's model.
type UpdateOperation struct {
	OpType     OpType     `json:"opType"`
	FieldPath  string     `json:"fieldPath"`
	Field      Field      `json:"field,omitempty"`
	Item       Field      `json:"item,omitempty"`
	Index      *int       `json:"index,omitempty"`
	Order      []int      `json:"order,omitempty"`
	ModelField *FieldSpec `json:"modelField,omitempty"`
}

type wireOperation struct {
	OpType     OpType          `json:"opType"`
	FieldPath  json.RawMessage `json:"fieldPath"`
	Field      json.RawMessage `json:"field"`
	Item       json.RawMessage `json:"item"`
	Index      *int            `json:"index"`
	Order      []int           `json:"order"`
	ModelField *FieldSpec      `json:"modelField"`
}

// UnmarshalJSON implements json.Unmarshaler. fieldPath may be a string or an
// array of keys and indices.
func (op *UpdateOperation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	path, err := decodeFieldPath(w.FieldPath)
	if err != nil {
		return err
	}
	out := UpdateOperation{
		OpType:     w.OpType,
		FieldPath:  path,
		Index:      w.Index,
		Order:      w.Order,
		ModelField: w.ModelField,
	}
	if isPresent(w.Field) {
		if out.Field, err = DecodeField(w.Field); err != nil {
			return fmt.Errorf("models: operation field: %w", err)
		}
	}
	if isPresent(w.Item) {
		if out.Item, err = DecodeField(w.Item); err != nil {
			return fmt.Errorf("models: operation item: %w", err)
		}
	}
	*op = out
	return nil
}

// Validate checks that the payload required by OpType is present.
func (op UpdateOperation) Validate() error {
	if op.FieldPath == "" {
		return fmt.Errorf("models: %s: fieldPath is required", op.OpType)
	}
	switch op.OpType {
	case OpSet:
		if op.Field == nil {
			return fmt.Errorf("models: set %s: field is required", op.FieldPath)
		}
	case OpUnset:
	case OpInsert:
		if op.Item == nil {
			return fmt.Errorf("models: insert %s: item is required", op.FieldPath)
		}
	case OpRemove:
		if op.Index == nil {
			return fmt.Errorf("models: remove %s: index is required", op.FieldPath)
		}
	case OpReorder:
		if op.Order == nil {
			return fmt.Errorf("models: reorder %s: order is required", op.FieldPath)
		}
	default:
		return fmt.Errorf("models: unknown opType %q", op.OpType)
	}
	return nil
}

func isPresent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func decodeFieldPath(raw json.RawMessage) (string, error) {
	if !isPresent(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []any
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("models: fieldPath must be a string or an array: %w", err)
	}
	var b strings.Builder
	for i, p := range parts {
		switch v := p.(type) {
		case string:
			if v == "" || strings.ContainsAny(v, ".[]") {
				return "", fmt.Errorf("models: fieldPath key %q must be non-empty without '.', '[' or ']'", v)
			}
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case float64:
			if v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
				return "", fmt.Errorf("models: fieldPath index %v is not a non-negative integer", v)
			}
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(int(v)))
			b.WriteByte(']')
		default:
			return "", fmt.Errorf("models: fieldPath element %v has type %T", p, p)
		}
	}
	return b.String(), nil
}
