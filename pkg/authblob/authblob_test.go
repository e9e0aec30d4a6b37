package authblob

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/massalabs/echo/pkg/identity"
)

func TestNewVerifyRoundTrip(t *testing.T) {
	a := assert.New(t)

	pub, sec, err := identity.DeriveFromPassphrase([]byte("alice"), nil)
	a.NoError(err)
	defer sec.Destroy()

	publicPayload := []byte("public payload bytes")
	secretPayload := []byte("auth-key-witness-32-bytes-long!!")

	blob, err := New(pub, sec, publicPayload, secretPayload)
	a.NoError(err)
	a.True(blob.Verify(secretPayload))
}

func TestVerifyFailsWithDifferentSecretPayload(t *testing.T) {
	a := assert.New(t)

	pub, sec, err := identity.DeriveFromPassphrase([]byte("bob"), nil)
	a.NoError(err)
	defer sec.Destroy()

	blob, err := New(pub, sec, []byte("payload"), []byte("witness-one"))
	a.NoError(err)
	a.False(blob.Verify([]byte("witness-two")))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := assert.New(t)

	pub, sec, err := identity.DeriveFromPassphrase([]byte("carol"), nil)
	a.NoError(err)
	defer sec.Destroy()

	secretPayload := []byte("witness")
	blob, err := New(pub, sec, []byte("hello announcement"), secretPayload)
	a.NoError(err)

	encoded := blob.Encode()
	decoded, ok := Decode(encoded)
	a.True(ok)
	a.Equal(blob.PublicPayload, decoded.PublicPayload)
	a.Equal(blob.PublicKeys.DSAVerifyKey, decoded.PublicKeys.DSAVerifyKey)
	a.True(decoded.Verify(secretPayload))
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	a := assert.New(t)

	_, ok := Decode([]byte("too short"))
	a.False(ok)
}

func TestVerifyFailsAfterTamperingPublicPayload(t *testing.T) {
	a := assert.New(t)

	pub, sec, err := identity.DeriveFromPassphrase([]byte("dave"), nil)
	a.NoError(err)
	defer sec.Destroy()

	secretPayload := []byte("witness")
	blob, err := New(pub, sec, []byte("original"), secretPayload)
	a.NoError(err)

	blob.PublicPayload = []byte("tampered")
	a.False(blob.Verify(secretPayload))
}
