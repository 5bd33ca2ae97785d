// Package sha256 provides the archive digest used in run summaries.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Prefix labels digests produced by Hasher.
const Prefix = "sha256:"

// Hasher implements harvest.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the digest of data as "sha256:<hex>".
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:]), nil
}
