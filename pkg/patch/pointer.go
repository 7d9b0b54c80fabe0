package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePointer splits an RFC 6901 JSON pointer into reference tokens,
// unescaping ~1 to "/" and ~0 to "~". The empty pointer addresses the
// whole document.
func parsePointer(p string) ([]string, error) {
	if p == "" {
		return nil, nil
	}
	if !strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("invalid pointer %q: must start with /", p)
	}
	parts := strings.Split(p[1:], "/")
	for i, t := range parts {
		t = strings.ReplaceAll(t, "~1", "/")
		t = strings.ReplaceAll(t, "~0", "~")
		parts[i] = t
	}
	return parts, nil
}

func get(doc any, pointer string) (any, error) {
	tokens, err := parsePointer(pointer)
	if err != nil {
		return nil, err
	}
	node := doc
	for _, t := range tokens {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[t]
			if !ok {
				return nil, fmt.Errorf("path not found: %q", pointer)
			}
			node = v
		case []any:
			idx, err := arrayIndex(t, len(n), false)
			if err != nil {
				return nil, fmt.Errorf("at %q: %w", pointer, err)
			}
			node = n[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q", node, pointer)
		}
	}
	return node, nil
}

func add(doc any, pointer string, value any) (any, error) {
	tokens, err := parsePointer(pointer)
	if err != nil {
		return nil, err
	}
	return addAt(doc, tokens, value, pointer)
}

func addAt(node any, tokens []string, value any, pointer string) (any, error) {
	if len(tokens) == 0 {
		return value, nil
	}
	t := tokens[0]
	switch n := node.(type) {
	case map[string]any:
		if len(tokens) == 1 {
			n[t] = value
			return n, nil
		}
		child, ok := n[t]
		if !ok {
			return nil, fmt.Errorf("path not found: %q", pointer)
		}
		mutated, err := addAt(child, tokens[1:], value, pointer)
		if err != nil {
			return nil, err
		}
		n[t] = mutated
		return n, nil
	case []any:
		if len(tokens) == 1 {
			if t == "-" {
				return append(n, value), nil
			}
			idx, err := arrayIndex(t, len(n), true)
			if err != nil {
				return nil, fmt.Errorf("at %q: %w", pointer, err)
			}
			out := make([]any, 0, len(n)+1)
			out = append(out, n[:idx]...)
			out = append(out, value)
			out = append(out, n[idx:]...)
			return out, nil
		}
		idx, err := arrayIndex(t, len(n), false)
		if err != nil {
			return nil, fmt.Errorf("at %q: %w", pointer, err)
		}
		mutated, err := addAt(n[idx], tokens[1:], value, pointer)
		if err != nil {
			return nil, err
		}
		n[idx] = mutated
		return n, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T at %q", node, pointer)
	}
}

func remove(doc any, pointer string) (any, error) {
	tokens, err := parsePointer(pointer)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("cannot remove the whole document")
	}
	return removeAt(doc, tokens, pointer)
}

func removeAt(node any, tokens []string, pointer string) (any, error) {
	t := tokens[0]
	switch n := node.(type) {
	case map[string]any:
		if len(tokens) == 1 {
			if _, ok := n[t]; !ok {
				return nil, fmt.Errorf("path not found: %q", pointer)
			}
			delete(n, t)
			return n, nil
		}
		child, ok := n[t]
		if !ok {
			return nil, fmt.Errorf("path not found: %q", pointer)
		}
		mutated, err := removeAt(child, tokens[1:], pointer)
		if err != nil {
			return nil, err
		}
		n[t] = mutated
		return n, nil
	case []any:
		idx, err := arrayIndex(t, len(n), false)
		if err != nil {
			return nil, fmt.Errorf("at %q: %w", pointer, err)
		}
		if len(tokens) == 1 {
			out := make([]any, 0, len(n)-1)
			out = append(out, n[:idx]...)
			out = append(out, n[idx+1:]...)
			return out, nil
		}
		mutated, err := removeAt(n[idx], tokens[1:], pointer)
		if err != nil {
			return nil, err
		}
		n[idx] = mutated
		return n, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T at %q", node, pointer)
	}
}

// arrayIndex parses t as an array index. When insert is true the index may
// equal length (append position); otherwise it must address an existing
// element.
func arrayIndex(t string, length int, insert bool) (int, error) {
	idx, err := strconv.Atoi(t)
	if err != nil {
		return 0, fmt.Errorf("invalid array index %q", t)
	}
	limit := length
	if insert {
		limit = length + 1
	}
	if idx < 0 || idx >= limit {
		return 0, fmt.Errorf("array index %d out of bounds (len %d)", idx, length)
	}
	return idx, nil
}
