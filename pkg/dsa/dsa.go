// Package dsa wraps the two signature schemes used by the protocol:
// ML-DSA-65 for long-term identity signatures, and a secondary
// ("Massa-style") ed25519 scheme used for ephemeral per-message seeker
// signing keys.
package dsa

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

const (
	VerifyKeySize = mldsa65.PublicKeySize
	SignKeySize   = mldsa65.PrivateKeySize
	SignatureSize = mldsa65.SignatureSize

	SecondaryPublicKeySize  = ed25519.PublicKeySize
	SecondaryPrivateKeySize = ed25519.PrivateKeySize
	SecondarySignatureSize  = ed25519.SignatureSize
)

var ErrInvalidKey = errors.New("dsa: invalid key encoding")

// KeyPair is an ML-DSA-65 identity signing keypair.
type KeyPair struct {
	pub *mldsa65.PublicKey
	sec *mldsa65.PrivateKey
}

// GenerateFromSeed deterministically derives an ML-DSA-65 keypair from a
// 32-byte seed, used for passphrase-derived identities.
func GenerateFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != 32 {
		return nil, fmt.Errorf("dsa: seed must be 32 bytes, got %d", len(seed))
	}
	pub, sec := mldsa65.NewKeyFromSeed((*[32]byte)(seed))
	return &KeyPair{pub: pub, sec: sec}, nil
}

// PublicKey returns the marshaled verify key bytes.
func (k *KeyPair) PublicKey() []byte {
	b, _ := k.pub.MarshalBinary()
	return b
}

// Sign produces an ML-DSA-65 signature over msg with no context string.
func (k *KeyPair) Sign(msg []byte) ([]byte, error) {
	sig := make([]byte, SignatureSize)
	if err := mldsa65.SignTo(k.sec, msg, nil, false, sig); err != nil {
		return nil, fmt.Errorf("dsa: sign: %w", err)
	}
	return sig, nil
}

// Destroy drops the secret key. It clears only a marshaled copy of the key;
// the memory circl holds the key in is not overwritten.
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

// Verify checks an ML-DSA-65 signature against a marshaled verify key.
func Verify(verifyKey, msg, sig []byte) bool {
	pk, err := ParsePublicKey(verifyKey)
	if err != nil {
		return false
	}
	return mldsa65.Verify(pk, msg, nil, sig)
}

// ParsePublicKey decodes a marshaled ML-DSA-65 verify key.
func ParsePublicKey(b []byte) (*mldsa65.PublicKey, error) {
	if len(b) != VerifyKeySize {
		return nil, ErrInvalidKey
	}
	pk, err := mldsa65.Scheme().UnmarshalBinaryPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("dsa: %w", err)
	}
	return pk.(*mldsa65.PublicKey), nil
}

// SecondaryKeyPair is an ephemeral Massa-style ed25519 signing keypair, used
// exclusively for per-message seeker signatures, never for identity.
type SecondaryKeyPair struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateSecondaryFromSeed deterministically derives a secondary keypair
// from a 32-byte seed.
func GenerateSecondaryFromSeed(seed []byte) (*SecondaryKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("dsa: secondary seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &SecondaryKeyPair{Public: priv.Public().(ed25519.PublicKey), private: priv}, nil
}

// GenerateSecondary draws a fresh secondary keypair from the CSPRNG. A
// failure to read randomness panics rather than returning.
func GenerateSecondary() *SecondaryKeyPair {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(fmt.Errorf("dsa: generate secondary: %w", err))
	}
	return &SecondaryKeyPair{Public: pub, private: priv}
}

// Sign produces a secondary signature over msg.
func (k *SecondaryKeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// Destroy zeroizes the private key.
func (k *SecondaryKeyPair) Destroy() {
	for i := range k.private {
		k.private[i] = 0
	}
	k.private = nil
}

// VerifySecondary checks a secondary signature against a marshaled ed25519
// public key.
func VerifySecondary(publicKey, msg, sig []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, msg, sig)
}
