package store

import (
	"fmt"
	"strconv"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

// The tree functions are pure: they never mutate their input and
// return roots sharing all structure off the touched path. That is
// what lets a snapshot swap stand in for a whole-tree replace.

// lookup resolves p against root. A missing key, an out-of-range or
// non-numeric list segment, and traversal through a leaf all report
// absence.
func lookup(root value.Value, p path.Path) (value.Value, bool) {
	node := root
	for _, key := range p {
		switch cur := node.(type) {
		case value.Map:
			child, ok := cur[key]
			if !ok {
				return nil, false
			}
			node = child
		case value.List:
			idx, ok := listIndex(key, len(cur))
			if !ok {
				return nil, false
			}
			node = cur[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

// writeTree replaces the value at p, materializing intermediate Maps
// for absent segments. Traversal through a leaf or a bad list segment
// fails with *StructuralError.
func writeTree(root value.Map, p path.Path, v value.Value) (value.Map, error) {
	out, err := writeNode(root, p, 0, v)
	if err != nil {
		return nil, err
	}
	m, ok := out.(value.Map)
	if !ok {
		// p is non-empty, so depth 0 always rebuilds a container.
		return nil, fmt.Errorf("write %s: root is not a map", p)
	}
	return m, nil
}

func writeNode(node value.Value, p path.Path, depth int, v value.Value) (value.Value, error) {
	if depth == len(p) {
		return v, nil
	}
	key := p[depth]

	switch cur := node.(type) {
	case nil:
		// Absent segment: materialize a Map around the child.
		child, err := writeNode(nil, p, depth+1, v)
		if err != nil {
			return nil, err
		}
		return value.Map{key: child}, nil
	case value.Map:
		child, err := writeNode(cur[key], p, depth+1, v)
		if err != nil {
			return nil, err
		}
		next := make(value.Map, len(cur)+1)
		for k, e := range cur {
			next[k] = e
		}
		next[key] = child
		return next, nil
	case value.List:
		idx, ok := listIndex(key, len(cur))
		if !ok {
			return nil, &StructuralError{Path: p, Depth: depth, Reason: listIndexReason(key, len(cur))}
		}
		child, err := writeNode(cur[idx], p, depth+1, v)
		if err != nil {
			return nil, err
		}
		next := make(value.List, len(cur))
		copy(next, cur)
		next[idx] = child
		return next, nil
	default:
		return nil, &StructuralError{
			Path:   p,
			Depth:  depth,
			Reason: fmt.Sprintf("expected container, found %s", value.TypeName(node)),
		}
	}
}

// eraseTree removes the value at p. Absence anywhere along the path,
// including an intermediate leaf, makes it a no-op; the returned bool
// reports whether anything changed.
func eraseTree(root value.Map, p path.Path) (value.Map, bool) {
	out, changed := eraseNode(root, p, 0)
	if !changed {
		return root, false
	}
	return out.(value.Map), true
}

func eraseNode(node value.Value, p path.Path, depth int) (value.Value, bool) {
	switch cur := node.(type) {
	case value.Map:
		key := p[depth]
		child, ok := cur[key]
		if !ok {
			return node, false
		}
		if depth == len(p)-1 {
			next := make(value.Map, len(cur))
			for k, e := range cur {
				if k != key {
					next[k] = e
				}
			}
			return next, true
		}
		newChild, changed := eraseNode(child, p, depth+1)
		if !changed {
			return node, false
		}
		next := make(value.Map, len(cur))
		for k, e := range cur {
			next[k] = e
		}
		next[key] = newChild
		return next, true
	case value.List:
		idx, ok := listIndex(p[depth], len(cur))
		if !ok {
			return node, false
		}
		if depth == len(p)-1 {
			// Splice the element out.
			next := make(value.List, 0, len(cur)-1)
			next = append(next, cur[:idx]...)
			next = append(next, cur[idx+1:]...)
			return next, true
		}
		newChild, changed := eraseNode(cur[idx], p, depth+1)
		if !changed {
			return node, false
		}
		next := make(value.List, len(cur))
		copy(next, cur)
		next[idx] = newChild
		return next, true
	default:
		return node, false
	}
}

// listIndex parses a path key as a base-10 index into a list of the
// given length. Leading zeros and signs are rejected so every valid
// element has exactly one addressing key.
func listIndex(key string, length int) (int, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') || key[0] == '-' || key[0] == '+' {
		return 0, false
	}
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 0 || idx >= length {
		return 0, false
	}
	return idx, true
}

func listIndexReason(key string, length int) string {
	idx, err := strconv.Atoi(key)
	switch {
	case err != nil:
		return fmt.Sprintf("list segment %q is not an integer index", key)
	case len(key) > 1 && key[0] == '0', key[0] == '-', key[0] == '+':
		return fmt.Sprintf("list segment %q is not a canonical index", key)
	default:
		return fmt.Sprintf("list index %d out of range (len %d)", idx, length)
	}
}
