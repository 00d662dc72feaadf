package store

import (
	"fmt"

	"github.com/lune4696/metamorphosys/internal/path"
)

// StructuralError reports a write that could not traverse the tree:
// an intermediate segment resolved to a leaf, or a list segment was
// not a valid in-range index. The tree is left untouched; this is a
// programmer error, not a propagation condition.
type StructuralError struct {
	Path   path.Path // full path being written
	Depth  int       // index of the offending segment
	Reason string    // what blocked traversal
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("write %s: segment %q at depth %d: %s",
		e.Path, e.Path[e.Depth], e.Depth, e.Reason)
}
