// Package patch applies ordered document-mutation operations to an
// in-memory JSON-like tree (map[string]any / []any), following the
// RFC 6902 semantics for add, remove, replace, move, copy, and test.
// Application is order-dependent: each operation sees the result of the
// one before it.
package patch

import (
	"fmt"
	"reflect"
)

// Op names a mutation kind.
type Op string

// Supported operation kinds.
const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
	OpMove    Op = "move"
	OpCopy    Op = "copy"
	OpTest    Op = "test"
)

// Operation is a single mutation. Path (and From, for move/copy) are JSON
// pointers per RFC 6901. Value is used by add, replace, and test.
type Operation struct {
	Op    Op     `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Patch is an ordered sequence of operations.
type Patch []Operation

// Add builds an add operation.
func Add(path string, value any) Operation {
	return Operation{Op: OpAdd, Path: path, Value: value}
}

// Remove builds a remove operation.
func Remove(path string) Operation {
	return Operation{Op: OpRemove, Path: path}
}

// Replace builds a replace operation.
func Replace(path string, value any) Operation {
	return Operation{Op: OpReplace, Path: path, Value: value}
}

// Move builds a move operation.
func Move(from, path string) Operation {
	return Operation{Op: OpMove, From: from, Path: path}
}

// Copy builds a copy operation.
func Copy(from, path string) Operation {
	return Operation{Op: OpCopy, From: from, Path: path}
}

// Test builds a test operation.
func Test(path string, value any) Operation {
	return Operation{Op: OpTest, Path: path, Value: value}
}

// Apply runs every operation against doc in order and returns the
// resulting document. doc is not modified in place at the root; interior
// containers are mutated, so callers that need the original should pass a
// copy. A failing operation aborts the whole patch with an error naming
// the operation index.
func (p Patch) Apply(doc any) (any, error) {
	var err error
	for i, op := range p {
		doc, err = apply(doc, op)
		if err != nil {
			return nil, fmt.Errorf("patch op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return doc, nil
}

func apply(doc any, op Operation) (any, error) {
	switch op.Op {
	case OpAdd:
		return add(doc, op.Path, op.Value)
	case OpRemove:
		return remove(doc, op.Path)
	case OpReplace:
		return replace(doc, op.Path, op.Value)
	case OpMove:
		return move(doc, op.From, op.Path)
	case OpCopy:
		v, err := get(doc, op.From)
		if err != nil {
			return nil, err
		}
		return add(doc, op.Path, v)
	case OpTest:
		v, err := get(doc, op.Path)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(v, op.Value) {
			return nil, fmt.Errorf("test failed at %q: %v != %v", op.Path, v, op.Value)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unknown op %q", op.Op)
	}
}

// move removes the value at from, then adds it at path. The two halves are
// applied back to back with no observable intermediate state for callers.
func move(doc any, from, path string) (any, error) {
	v, err := get(doc, from)
	if err != nil {
		return nil, err
	}
	doc, err = remove(doc, from)
	if err != nil {
		return nil, err
	}
	return add(doc, path, v)
}

func replace(doc any, path string, value any) (any, error) {
	if path == "" {
		return value, nil
	}
	// Replace requires the target to exist.
	if _, err := get(doc, path); err != nil {
		return nil, err
	}
	doc, err := remove(doc, path)
	if err != nil {
		return nil, err
	}
	return add(doc, path, value)
}
