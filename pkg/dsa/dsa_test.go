package dsa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	a := assert.New(t)

	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	kp, err := GenerateFromSeed(seed)
	a.NoError(err)
	defer kp.Destroy()

	msg := []byte("hello")
	sig, err := kp.Sign(msg)
	a.NoError(err)
	a.True(Verify(kp.PublicKey(), msg, sig))
	a.False(Verify(kp.PublicKey(), []byte("tampered"), sig))
}

func TestGenerateFromSeedDeterministic(t *testing.T) {
	a := assert.New(t)

	seed := make([]byte, 32)
	kp1, err := GenerateFromSeed(seed)
	a.NoError(err)
	kp2, err := GenerateFromSeed(seed)
	a.NoError(err)
	a.Equal(kp1.PublicKey(), kp2.PublicKey())
}

func TestSecondaryKeyPairSignVerify(t *testing.T) {
	a := assert.New(t)

	kp := GenerateSecondary()
	defer kp.Destroy()

	msg := []byte("board message")
	sig := kp.Sign(msg)
	a.True(VerifySecondary(kp.Public, msg, sig))
	a.False(VerifySecondary(kp.Public, []byte("other"), sig))
}

func TestSecondaryFromSeedDeterministic(t *testing.T) {
	a := assert.New(t)

	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	kp1, err := GenerateSecondaryFromSeed(seed)
	a.NoError(err)
	kp2, err := GenerateSecondaryFromSeed(seed)
	a.NoError(err)
	a.Equal(kp1.Public, kp2.Public)
}

func TestVerifyRejectsBadKeyEncoding(t *testing.T) {
	a := assert.New(t)
	a.False(Verify([]byte("not a key"), []byte("msg"), []byte("sig")))
}
