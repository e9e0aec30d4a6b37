package ctrcipher

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXORRoundTrip(t *testing.T) {
	a := assert.New(t)

	key := make([]byte, KeySize)
	nonce := make([]byte, NonceSize)
	_, _ = rand.Read(key)
	_, _ = rand.Read(nonce)

	for _, n := range []int{0, 1, 17, 512, 10000} {
		plaintext := make([]byte, n)
		_, _ = rand.Read(plaintext)

		ct, err := XOR(key, nonce, plaintext)
		a.NoError(err)
		a.Len(ct, n)
		if n > 0 {
			a.NotEqual(plaintext, ct)
		}

		pt, err := XOR(key, nonce, ct)
		a.NoError(err)
		a.True(bytes.Equal(plaintext, pt))
	}
}

func TestXORRejectsBadKeyOrNonceSize(t *testing.T) {
	a := assert.New(t)

	_, err := XOR(make([]byte, 10), make([]byte, NonceSize), []byte("x"))
	a.Error(err)

	_, err = XOR(make([]byte, KeySize), make([]byte, 1), []byte("x"))
	a.Error(err)
}
