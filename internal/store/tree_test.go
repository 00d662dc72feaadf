package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

func TestLookup(t *testing.T) {
	root := value.Map{
		"a":  value.Map{"b": value.Int(0)},
		"xs": value.List{value.Int(10), value.Map{"y": value.String("deep")}},
		"n":  value.Null{},
	}

	tests := []struct {
		name  string
		path  string
		want  value.Value
		found bool
	}{
		{"nested map", "a.b", value.Int(0), true},
		{"container itself", "a", value.Map{"b": value.Int(0)}, true},
		{"list element", "xs.0", value.Int(10), true},
		{"through list", "xs.1.y", value.String("deep"), true},
		{"null is present", "n", value.Null{}, true},
		{"missing key", "a.z", nil, false},
		{"through leaf", "a.b.c", nil, false},
		{"index out of range", "xs.2", nil, false},
		{"negative index", "xs.-1", nil, false},
		{"non-canonical index", "xs.00", nil, false},
		{"non-numeric index", "xs.first", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := lookup(root, path.MustParse(tt.path))
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.True(t, value.Equal(tt.want, got), "want %v got %v", tt.want, got)
			}
		})
	}
}

func TestWriteTreeReplaceAndMaterialize(t *testing.T) {
	root := value.Map{"a": value.Map{"b": value.Int(1)}}

	// Replace an existing leaf.
	next, err := writeTree(root, path.MustParse("a.b"), value.Int(2))
	require.NoError(t, err)
	got, _ := lookup(next, path.MustParse("a.b"))
	assert.Equal(t, value.Int(2), got)

	// Materialize intermediate maps for a brand-new branch.
	next, err = writeTree(root, path.MustParse("x.y.z"), value.String("new"))
	require.NoError(t, err)
	got, _ = lookup(next, path.MustParse("x.y.z"))
	assert.Equal(t, value.String("new"), got)

	// The input root is never mutated.
	_, ok := lookup(root, path.MustParse("x"))
	assert.False(t, ok, "original tree must be untouched")
	orig, _ := lookup(root, path.MustParse("a.b"))
	assert.Equal(t, value.Int(1), orig)
}

func TestWriteTreeThroughLeafFails(t *testing.T) {
	root := value.Map{"a": value.Map{"b": value.Int(1)}}

	_, err := writeTree(root, path.MustParse("a.b.c"), value.Int(9))
	require.Error(t, err)

	var serr *StructuralError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "a.b.c", serr.Path.Key())
	assert.Equal(t, 2, serr.Depth)
	assert.Contains(t, serr.Error(), "found int")
}

func TestWriteTreeListSegments(t *testing.T) {
	root := value.Map{"xs": value.List{value.Int(1), value.Int(2)}}

	// In-place element replacement works.
	next, err := writeTree(root, path.MustParse("xs.1"), value.Int(99))
	require.NoError(t, err)
	got, _ := lookup(next, path.MustParse("xs.1"))
	assert.Equal(t, value.Int(99), got)

	// Writes never extend a list.
	_, err = writeTree(root, path.MustParse("xs.2"), value.Int(3))
	require.Error(t, err)
	var serr *StructuralError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Error(), "out of range")

	// Non-numeric segment into a list.
	_, err = writeTree(root, path.MustParse("xs.first"), value.Int(3))
	require.Error(t, err)
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Error(), "not an integer index")
}

func TestWriteTreeNullIsAValue(t *testing.T) {
	root := value.Map{}
	next, err := writeTree(root, path.MustParse("a.b"), value.Null{})
	require.NoError(t, err)

	got, ok := lookup(next, path.MustParse("a.b"))
	assert.True(t, ok, "explicit null must be present")
	assert.Equal(t, value.Null{}, got)
}

func TestEraseTree(t *testing.T) {
	root := value.Map{
		"a":  value.Map{"b": value.Int(1), "keep": value.Int(2)},
		"xs": value.List{value.Int(1), value.Int(2), value.Int(3)},
	}

	// Remove a map key; siblings survive.
	next, changed := eraseTree(root, path.MustParse("a.b"))
	assert.True(t, changed)
	_, ok := lookup(next, path.MustParse("a.b"))
	assert.False(t, ok)
	kept, _ := lookup(next, path.MustParse("a.keep"))
	assert.Equal(t, value.Int(2), kept)

	// Splice a list element.
	next, changed = eraseTree(root, path.MustParse("xs.1"))
	assert.True(t, changed)
	xs, _ := lookup(next, path.MustParse("xs"))
	assert.True(t, value.Equal(value.List{value.Int(1), value.Int(3)}, xs))

	// Absent path is a no-op.
	_, changed = eraseTree(root, path.MustParse("a.nope"))
	assert.False(t, changed)

	// Broken intermediate is a no-op, not an error.
	_, changed = eraseTree(root, path.MustParse("a.b.c.d"))
	assert.False(t, changed)

	// Original untouched throughout.
	orig, _ := lookup(root, path.MustParse("a.b"))
	assert.Equal(t, value.Int(1), orig)
}
