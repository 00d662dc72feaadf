// Package store implements the reactive state container: one value
// tree plus the side tables the cascade engine works against.
//
// A Store holds a single immutable snapshot comprising:
//   - the value tree (root Map)
//   - the action registry (name → Action)
//   - the rule table (input-set key → output key → Rule)
//   - the observed set (path keys marked this episode)
//   - the reacted set (input-set keys fired this episode)
//
// # Snapshot Discipline
//
// Every mutation builds a successor snapshot and installs it with a
// compare-and-swap retry loop. Readers load the current snapshot
// pointer and can never see a partially applied mutation: a Write that
// materializes three intermediate containers is one pointer swap, and
// WriteObserved commits the value and the observed mark together.
//
// CAS makes individual operations atomic, not episodes. Cascades share
// the observed/reacted bookkeeping, so callers running episodes against
// one store must serialize them externally.
//
// # Identity
//
// Side tables key paths by Path.Key and input sets by Set.Key, both
// NFC-normalized canonical forms, so a rule registered with inputs in
// any spelling or order is found again under every equal spelling.
//
// # Value Immutability
//
// Values are treated as immutable once inside a snapshot. Read returns
// live structure; callers and actions must not mutate what they are
// handed, and actions must not retain and later mutate what they
// return.
package store
