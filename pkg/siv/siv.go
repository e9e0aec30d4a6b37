// Package siv wraps AES-256-SIV, the AEAD used for SessionManager's at-rest
// persistence blob. AES-SIV derives its own synthetic IV from the plaintext
// and associated data, so a fresh random nonce is folded in as an associated
// data component to ensure identical state never produces identical blobs
// across calls — matching the wire format's explicit nonce prefix.
package siv

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/jacobsa/crypto/siv"
)

const (
	KeySize   = 64
	NonceSize = 16
)

var ErrDecryptionFailed = errors.New("siv: decryption failed")

// Seal encrypts plaintext under key, returning nonce ‖ ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("siv: key must be %d bytes, got %d", KeySize, len(key))
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		panic(fmt.Errorf("siv: reading nonce: %w", err))
	}
	ct, err := siv.Encrypt(nil, key, plaintext, [][]byte{nonce})
	if err != nil {
		return nil, fmt.Errorf("siv: encrypt: %w", err)
	}
	return append(nonce, ct...), nil
}

// Open decrypts a nonce ‖ ciphertext blob produced by Seal. Returns
// ErrDecryptionFailed on any authentication failure, malformed blob, or
// wrong key — no partial state is ever returned.
func Open(key, blob []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("siv: key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(blob) < NonceSize {
		return nil, ErrDecryptionFailed
	}
	nonce, ct := blob[:NonceSize], blob[NonceSize:]
	pt, err := siv.Decrypt(key, ct, [][]byte{nonce})
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return pt, nil
}
