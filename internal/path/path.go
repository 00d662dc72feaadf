package path

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Separator joins keys in a path's text form. SetSeparator joins path
// keys in a set's text form. Neither byte may occur inside a key.
const (
	Separator    = "."
	SetSeparator = "|"
)

// Path is an ordered, non-empty sequence of keys addressing a value in
// a store tree. Construct through New or Parse; both normalize keys to
// NFC, so structurally equal paths compare equal no matter where their
// text came from.
type Path []string

// New builds a Path from keys, validating and NFC-normalizing each.
func New(keys ...string) (Path, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("path must have at least one key")
	}
	p := make(Path, len(keys))
	for i, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("path key %d is empty", i)
		}
		if strings.Contains(k, Separator) {
			return nil, fmt.Errorf("path key %q contains %q", k, Separator)
		}
		if strings.Contains(k, SetSeparator) {
			return nil, fmt.Errorf("path key %q contains %q", k, SetSeparator)
		}
		p[i] = norm.NFC.String(k)
	}
	return p, nil
}

// MustNew is New panicking on error. Test construction only.
func MustNew(keys ...string) Path {
	p, err := New(keys...)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse builds a Path from its dotted text form, e.g. "a.b.c".
func Parse(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}
	p, err := New(strings.Split(s, Separator)...)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", s, err)
	}
	return p, nil
}

// MustParse is Parse panicking on error. Test construction only.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Key returns the canonical dotted text form. Every side table in the
// store keys paths by this string.
func (p Path) Key() string {
	return strings.Join(p, Separator)
}

// String implements fmt.Stringer.
func (p Path) String() string {
	return p.Key()
}

// Equal reports whether p and q address the same location.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Last returns the final key, the one addressed inside the parent
// container.
func (p Path) Last() string {
	return p[len(p)-1]
}

// Parent returns the path of the enclosing container and the final
// key. For a single-key path the parent is nil (the root).
func (p Path) Parent() (Path, string) {
	if len(p) == 1 {
		return nil, p[0]
	}
	return p[:len(p)-1], p[len(p)-1]
}

// Clone returns an independent copy of p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}
