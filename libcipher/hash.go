// Package libcipher provides keyed hashing and symmetric encryption
// helpers. The persistence layer uses it to encrypt the exported
// conversation blob at rest when an encryption passphrase is configured.
package libcipher

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"hash"
)

// GenerateHashArgs are the inputs for NewHash.
type GenerateHashArgs struct {
	Payload    []byte
	SigningKey []byte
	Salt       []byte
}

// NewHash computes a keyed hash (HMAC) of salt||payload using the given
// hash constructor.
func NewHash(args GenerateHashArgs, h func() hash.Hash) ([]byte, error) {
	if len(args.SigningKey) == 0 {
		return nil, fmt.Errorf("libcipher: signing key is required")
	}
	mac := hmac.New(h, args.SigningKey)
	if _, err := mac.Write(args.Salt); err != nil {
		return nil, fmt.Errorf("libcipher: failed to write salt: %w", err)
	}
	if _, err := mac.Write(args.Payload); err != nil {
		return nil, fmt.Errorf("libcipher: failed to write payload: %w", err)
	}
	return mac.Sum(nil), nil
}

// Equal compares two hashes in constant time.
func Equal(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// CheckHash recomputes the SHA-256 keyed hash for payload and compares it
// against the expected hash in constant time.
func CheckHash(signingKey, salt, payload string, expected []byte) (bool, error) {
	computed, err := NewHash(GenerateHashArgs{
		Payload:    []byte(payload),
		SigningKey: []byte(signingKey),
		Salt:       []byte(salt),
	}, sha256.New)
	if err != nil {
		return false, err
	}
	return Equal(computed, expected), nil
}
