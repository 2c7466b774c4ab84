package fieldpath

import (
	"fmt"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

// Editors never mutate containers passed in: every mapping and sequence along
// the edited path is copied, the rest of the record is shared.

// Get returns the value at p.
func Get(root any, p Path) (any, bool) {
	node := root
	for _, s := range p {
		if s.IsIndex {
			list, ok := node.([]any)
			if !ok || s.Index >= len(list) {
				return nil, false
			}
			node = list[s.Index]
			continue
		}
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = m[s.Key]; !ok {
			return nil, false
		}
	}
	return node, true
}

// Set stores v at p, creating intermediate mappings, or sequences when the
// next segment is an index. An index may address an element or append one
// past the end; anything further is rejected.
func Set(root map[string]any, p Path, v any) (map[string]any, error) {
	return edit(root, p, func(any, bool) (any, error) { return v, nil })
}

// Unset deletes the key at p. A sequence slot is set to nil instead, keeping
// the positions of later elements. A missing path is not an error.
func Unset(root map[string]any, p Path) (map[string]any, error) {
	if _, ok := Get(root, p); !ok {
		return root, nil
	}
	return edit(root, p, func(any, bool) (any, error) { return deleted, nil })
}

// Insert inserts v into the sequence at p. A nil index, or one past the end,
// appends. A missing sequence is created.
func Insert(root map[string]any, p Path, index *int, v any) (map[string]any, error) {
	return edit(root, p, func(cur any, exists bool) (any, error) {
		list, err := sequence(p, cur, exists)
		if err != nil {
			return nil, err
		}
		at := len(list)
		if index != nil {
			if *index < 0 {
				return nil, fmt.Errorf("%w %s: negative insert index %d", apperr.ErrInvalidPath, p, *index)
			}
			at = min(*index, len(list))
		}
		out := make([]any, 0, len(list)+1)
		out = append(out, list[:at]...)
		out = append(out, v)
		return append(out, list[at:]...), nil
	})
}

// Remove deletes the element at index from the sequence at p.
func Remove(root map[string]any, p Path, index int) (map[string]any, error) {
	return edit(root, p, func(cur any, exists bool) (any, error) {
		list, err := sequence(p, cur, exists)
		if err != nil {
			return nil, err
		}
		if index < 0 || index >= len(list) {
			return nil, fmt.Errorf("%w %s: remove index %d out of range [0,%d)", apperr.ErrInvalidPath, p, index, len(list))
		}
		out := make([]any, 0, len(list)-1)
		out = append(out, list[:index]...)
		return append(out, list[index+1:]...), nil
	})
}

// Reorder replaces the sequence at p with a new one where element i is the
// old element order[i]. order must be a permutation of the sequence indices.
func Reorder(root map[string]any, p Path, order []int) (map[string]any, error) {
	return edit(root, p, func(cur any, exists bool) (any, error) {
		list, err := sequence(p, cur, exists)
		if err != nil {
			return nil, err
		}
		if len(order) != len(list) {
			return nil, fmt.Errorf("%w %s: order has %d entries, sequence has %d", apperr.ErrInvalidPath, p, len(order), len(list))
		}
		seen := make([]bool, len(list))
		out := make([]any, len(list))
		for i, from := range order {
			if from < 0 || from >= len(list) || seen[from] {
				return nil, fmt.Errorf("%w %s: order %v is not a permutation", apperr.ErrInvalidPath, p, order)
			}
			seen[from] = true
			out[i] = list[from]
		}
		return out, nil
	})
}

// Apply performs op on root. value is the raw value already mapped from
// op.Field or op.Item; it is ignored by the other operations.
func Apply(root map[string]any, op models.UpdateOperation, value any) (map[string]any, error) {
	p, err := Parse(op.FieldPath)
	if err != nil {
		return nil, err
	}
	switch op.OpType {
	case models.OpSet:
		return Set(root, p, value)
	case models.OpUnset:
		return Unset(root, p)
	case models.OpInsert:
		return Insert(root, p, op.Index, value)
	case models.OpRemove:
		if op.Index == nil {
			return nil, fmt.Errorf("%w %s: remove without index", apperr.ErrInvalidPath, p)
		}
		return Remove(root, p, *op.Index)
	case models.OpReorder:
		return Reorder(root, p, op.Order)
	}
	return nil, fmt.Errorf("fieldpath: unknown operation %q", op.OpType)
}

type tombstone struct{}

var deleted = tombstone{}

func sequence(p Path, cur any, exists bool) ([]any, error) {
	if !exists || cur == nil {
		return nil, nil
	}
	list, ok := cur.([]any)
	if !ok {
		return nil, fmt.Errorf("%w %s: value is %T, not a sequence", apperr.ErrInvalidPath, p, cur)
	}
	return list, nil
}

func edit(root map[string]any, p Path, fn func(cur any, exists bool) (any, error)) (map[string]any, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty path", apperr.ErrInvalidPath)
	}
	if root == nil {
		root = map[string]any{}
	}
	out, err := rebuild(root, true, p, p, fn)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w %s: record root must be a mapping", apperr.ErrInvalidPath, p)
	}
	return m, nil
}

// rebuild returns a copy of node with the value at rest replaced by fn's result.
func rebuild(node any, exists bool, full, rest Path, fn func(any, bool) (any, error)) (any, error) {
	if len(rest) == 0 {
		return fn(node, exists)
	}
	s := rest[0]

	if s.IsIndex {
		var list []any
		if exists && node != nil {
			var ok bool
			if list, ok = node.([]any); !ok {
				return nil, fmt.Errorf("%w %s: %T at index segment is not a sequence", apperr.ErrInvalidPath, full, node)
			}
		}
		if s.Index > len(list) {
			return nil, fmt.Errorf("%w %s: index %d out of range [0,%d]", apperr.ErrInvalidPath, full, s.Index, len(list))
		}
		out := make([]any, max(len(list), s.Index+1))
		copy(out, list)
		child, err := rebuild(out[s.Index], s.Index < len(list), full, rest[1:], fn)
		if err != nil {
			return nil, err
		}
		if child == deleted {
			child = nil
		}
		out[s.Index] = child
		return out, nil
	}

	var m map[string]any
	if exists && node != nil {
		var ok bool
		if m, ok = node.(map[string]any); !ok {
			return nil, fmt.Errorf("%w %s: %T at key %q is not a mapping", apperr.ErrInvalidPath, full, node, s.Key)
		}
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	cur, ok := m[s.Key]
	child, err := rebuild(cur, ok, full, rest[1:], fn)
	if err != nil {
		return nil, err
	}
	if child == deleted {
		delete(out, s.Key)
	} else {
		out[s.Key] = child
	}
	return out, nil
}
