package path

import (
	"slices"
	"strings"

	"github.com/lune4696/metamorphosys/internal/value"
)

// Set is a canonicalized collection of paths: deduplicated and sorted
// by canonical key in UTF-16 code-unit order. Building a set from the
// same members in any order yields the same Set and the same Key, so
// rule registration and lookup agree on identity without callers
// pre-sorting anything.
//
// The zero Set is empty and usable.
type Set struct {
	paths []Path
}

// NewSet canonicalizes paths into a Set.
func NewSet(paths ...Path) Set {
	if len(paths) == 0 {
		return Set{}
	}
	byKey := make(map[string]Path, len(paths))
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		k := p.Key()
		if _, seen := byKey[k]; seen {
			continue
		}
		byKey[k] = p
		keys = append(keys, k)
	}
	slices.SortFunc(keys, value.CompareKeys)

	ordered := make([]Path, len(keys))
	for i, k := range keys {
		ordered[i] = byKey[k]
	}
	return Set{paths: ordered}
}

// Singleton wraps one path in a Set.
func Singleton(p Path) Set {
	return NewSet(p)
}

// ParseSet builds a Set from dotted text forms.
func ParseSet(texts ...string) (Set, error) {
	paths := make([]Path, len(texts))
	for i, s := range texts {
		p, err := Parse(s)
		if err != nil {
			return Set{}, err
		}
		paths[i] = p
	}
	return NewSet(paths...), nil
}

// MustParseSet is ParseSet panicking on error. Test construction only.
func MustParseSet(texts ...string) Set {
	s, err := ParseSet(texts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Paths returns the members in canonical order. Callers must not
// mutate the returned slice.
func (s Set) Paths() []Path {
	return s.paths
}

// Len returns the member count.
func (s Set) Len() int {
	return len(s.paths)
}

// Key returns the canonical text form: member keys joined by "|".
// The rule table and the reacted set key entries by this string.
func (s Set) Key() string {
	keys := make([]string, len(s.paths))
	for i, p := range s.paths {
		keys[i] = p.Key()
	}
	return strings.Join(keys, SetSeparator)
}

// String implements fmt.Stringer with a readable brace form.
func (s Set) String() string {
	keys := make([]string, len(s.paths))
	for i, p := range s.paths {
		keys[i] = p.Key()
	}
	return "{" + strings.Join(keys, ", ") + "}"
}

// Contains reports whether p is a member.
func (s Set) Contains(p Path) bool {
	k := p.Key()
	for _, member := range s.paths {
		if member.Key() == k {
			return true
		}
	}
	return false
}

// Equal reports whether two sets have identical members.
func (s Set) Equal(other Set) bool {
	return s.Key() == other.Key()
}
