// Package hasher turns secrets (passwords, refresh and recovery tokens) into
// salted one-way digests and checks candidates against them.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 10

// Hasher produces and verifies salted digests. Compare must return false,
// never panic, for an empty or malformed digest.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(secret, digest string) bool
}

// Bcrypt is a Hasher backed by golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	cost int
}

func NewBcrypt(cost int) *Bcrypt {
	if cost == 0 {
		cost = DefaultCost
	}
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (b *Bcrypt) Compare(secret, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// TokenHasher pre-digests its input with SHA-256 before handing it to the
// wrapped Hasher. bcrypt only reads the first 72 bytes of its input, and
// signed tokens share long identical prefixes.
type TokenHasher struct {
	inner Hasher
}

func NewTokenHasher(inner Hasher) *TokenHasher {
	return &TokenHasher{inner: inner}
}

func (t *TokenHasher) Hash(token string) (string, error) {
	return t.inner.Hash(prehash(token))
}

func (t *TokenHasher) Compare(token, digest string) bool {
	return t.inner.Compare(prehash(token), digest)
}

func prehash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
