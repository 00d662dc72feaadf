package engine

import (
	"sync"

	"github.com/google/uuid"
)

// TokenSource mints episode tokens. An episode token correlates every
// trace event between two resets. Implemented by UUIDv7Source
// (production) and FixedSource (tests).
type TokenSource interface {
	Generate() string
}

// UUIDv7Source mints time-sortable UUIDv7 episode tokens. The embedded
// timestamp makes journal listings sort by creation time for free.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Source struct{}

// Generate returns a new hyphenated UUIDv7 string. Panics only if the
// platform's entropy source fails.
func (UUIDv7Source) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedSource returns predetermined tokens in order, enabling
// deterministic traces in tests and golden comparisons.
//
// Thread-safety: guarded by an internal mutex.
type FixedSource struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedSource creates a source yielding tokens in the given order.
// Generate panics once they are exhausted: a test minting more
// episodes than it declared is misconfigured and should fail loudly.
func NewFixedSource(tokens ...string) *FixedSource {
	return &FixedSource{tokens: tokens}
}

// Generate returns the next predetermined token.
func (s *FixedSource) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.tokens) {
		panic("FixedSource: all tokens exhausted")
	}
	token := s.tokens[s.idx]
	s.idx++
	return token
}
