// Package password wraps the Argon2id password KDF used to turn a
// passphrase into a root secret for deterministic identity derivation.
package password

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters, fixed by the protocol.
	memoryKiB   = 32 * 1024
	iterations  = 4
	parallelism = 1

	outputSize  = 32
	minSaltSize = 8
)

var defaultSalt = []byte("auth.pwd.kdf.salt---------------")

// Derive runs Argon2id over passphrase with salt, producing a 32-byte root
// secret. salt must be at least 8 bytes; pass nil to use the protocol's
// fixed default salt.
func Derive(passphrase, salt []byte) ([]byte, error) {
	if salt == nil {
		salt = defaultSalt
	}
	if len(salt) < minSaltSize {
		return nil, fmt.Errorf("password: salt must be at least %d bytes, got %d", minSaltSize, len(salt))
	}
	return argon2.IDKey(passphrase, salt, iterations, memoryKiB, parallelism, outputSize), nil
}
