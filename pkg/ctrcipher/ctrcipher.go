// Package ctrcipher wraps AES-256-CTR, the bare stream cipher used for
// announcement and message bodies. There is no AEAD at this layer:
// integrity of the plaintext is enforced by the caller comparing a
// separately-derived integrity key, not by this package.
package ctrcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	KeySize   = 32
	NonceSize = 16
)

// XOR encrypts or decrypts data in place-equivalent fashion (CTR mode is
// its own inverse), returning a fresh slice the same length as data.
func XOR(key, nonce, data []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("ctrcipher: key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("ctrcipher: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ctrcipher: new cipher: %w", err)
	}
	out := make([]byte, len(data))
	stream := cipher.NewCTR(block, nonce)
	stream.XORKeyStream(out, data)
	return out, nil
}
