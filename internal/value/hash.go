package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest domains. The version suffix leaves room for algorithm
// migration without colliding with historic digests.
const (
	DomainTree     = "metamorphosys/tree/v1"
	DomainTrace    = "metamorphosys/trace/v1"
	DomainRulebook = "metamorphosys/rulebook/v1"
)

// Digest computes a domain-separated SHA-256 over v's canonical bytes.
// Format: SHA256(domain + 0x00 + canonical). The null byte prevents a
// domain from ever being a prefix of another domain+payload pair.
// Digests are stable across restarts and replays given equal values.
func Digest(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustDigest is Digest panicking on error. Use only in tests or where
// v is known to be fully present.
func MustDigest(domain string, v Value) string {
	d, err := Digest(domain, v)
	if err != nil {
		panic(err)
	}
	return d
}
