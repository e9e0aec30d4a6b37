// Package kem wraps ML-KEM-768 key encapsulation behind a small Go API.
package kem

import (
	"crypto/rand"
	"errors"
	"fmt"

	circlkem "github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

const (
	PublicKeySize    = mlkem768.PublicKeySize
	SecretKeySize    = mlkem768.PrivateKeySize
	CiphertextSize   = mlkem768.CiphertextSize
	SharedSecretSize = mlkem768.SharedKeySize
)

var ErrInvalidKey = errors.New("kem: invalid key encoding")

// KeyPair is an ML-KEM-768 keypair. Destroy drops its secret key.
type KeyPair struct {
	pub *mlkem768.PublicKey
	sec *mlkem768.PrivateKey
}

// Generate draws a fresh keypair from the CSPRNG. A failure to read
// randomness panics rather than returning: continuing without entropy is
// not recoverable.
func Generate() *KeyPair {
	pub, sec, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		panic(fmt.Errorf("kem: generate: %w", err))
	}
	return &KeyPair{pub: pub, sec: sec}
}

// GenerateFromSeed deterministically derives a keypair from a 64-byte seed,
// used for passphrase-derived identities.
func GenerateFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != mlkem768.KeySeedSize {
		return nil, fmt.Errorf("kem: seed must be %d bytes, got %d", mlkem768.KeySeedSize, len(seed))
	}
	pub, sec := mlkem768.NewKeyFromSeed(seed)
	return &KeyPair{pub: pub, sec: sec}, nil
}

// PublicKey returns the marshaled public key bytes.
func (k *KeyPair) PublicKey() []byte {
	b, _ := k.pub.MarshalBinary()
	return b
}

// Destroy drops the secret key, after which Decapsulate and MarshalSecret
// fail. It clears only a marshaled copy of the key; the memory circl holds
// the key in is not overwritten. Go has no destructors; callers must defer
// this explicitly.
func (k *KeyPair) Destroy() {
	if k.sec == nil {
		return
	}
	b, _ := k.sec.MarshalBinary()
	for i := range b {
		b[i] = 0
	}
	k.sec = nil
}

// MarshalSecret returns the raw secret key bytes, for a process-local
// persistence layer that encrypts them at rest before storage. This is not
// a stable seed: re-importing requires ImportKeyPair, not GenerateFromSeed.
func (k *KeyPair) MarshalSecret() ([]byte, error) {
	if k.sec == nil {
		return nil, errors.New("kem: secret key destroyed")
	}
	return k.sec.MarshalBinary()
}

// ImportKeyPair reconstructs a keypair from previously marshaled secret key
// bytes (see MarshalSecret).
func ImportKeyPair(secretKeyBytes []byte) (*KeyPair, error) {
	sec, err := mlkem768.Scheme().UnmarshalBinaryPrivateKey(secretKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("kem: import secret key: %w", err)
	}
	privKey := sec.(*mlkem768.PrivateKey)
	return &KeyPair{pub: privKey.Public().(*mlkem768.PublicKey), sec: privKey}, nil
}

// Decapsulate recovers the shared secret from a ciphertext addressed to this
// keypair's public key.
func (k *KeyPair) Decapsulate(ciphertext []byte) ([]byte, error) {
	if k.sec == nil {
		return nil, errors.New("kem: secret key destroyed")
	}
	ss, err := mlkem768.Scheme().Decapsulate(k.sec, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("kem: decapsulate: %w", err)
	}
	return ss, nil
}

// ParsePublicKey decodes a marshaled ML-KEM-768 public key.
func ParsePublicKey(b []byte) (circlkem.PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, ErrInvalidKey
	}
	pk, err := mlkem768.Scheme().UnmarshalBinaryPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("kem: %w", err)
	}
	return pk, nil
}

// Encapsulate draws fresh randomness and encapsulates to recipientPK,
// returning the ciphertext and shared secret.
func Encapsulate(recipientPK []byte) (ciphertext, sharedSecret []byte, err error) {
	pk, err := ParsePublicKey(recipientPK)
	if err != nil {
		return nil, nil, err
	}
	ct, ss, err := mlkem768.Scheme().Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("kem: encapsulate: %w", err)
	}
	return ct, ss, nil
}
