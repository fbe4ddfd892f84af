// Package hashing wraps the slow hash used for passwords and reset tokens.
package hashing

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher produces and verifies irreversible digests of low-entropy secrets.
// Refresh tokens do not pass through here: they are opaque high-entropy
// strings whose validity is proven by a storage lookup.
type Hasher interface {
	// Hash produces a randomized, cost-tunable digest of the secret.
	Hash(secret string) (string, error)

	// Verify reports whether the secret matches the digest. The comparison
	// is constant-time with respect to the secret.
	Verify(secret, digest string) bool
}

// BcryptHasher implements Hasher using bcrypt with a configurable cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a BcryptHasher with the given cost. Costs outside
// the bcrypt range fall back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
