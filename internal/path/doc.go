// Package path provides the addressing primitives for store trees:
// Path, an ordered sequence of keys, and Set, a canonicalized
// collection of paths used for rule inputs.
//
// Keys are NFC-normalized at construction so two paths naming the same
// fields compare equal regardless of how their text was composed. The
// canonical text forms (Path.Key, Set.Key) are the map keys used by
// every side table in the store.
package path
