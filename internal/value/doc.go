// Package value defines the sealed tree value model shared by every
// other internal package.
//
// A store tree is built from exactly six shapes: Null, Bool, Int,
// String, List, and Map. There is no float shape: tree digests and
// journal payloads are computed from canonical JSON, and canonical
// bytes must be identical across platforms, which float formatting
// does not guarantee.
//
// Null is a real value. A path holding Null is present; absence is the
// lack of any value and is expressed by the (Value, bool) shape of
// lookups. The two conditions are distinct everywhere in this codebase.
//
// value imports nothing internal; every other internal package may
// import value.
package value
