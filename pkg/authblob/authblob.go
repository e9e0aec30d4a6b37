// Package authblob implements AuthBlob, the dual-signature identity binding
// used to prove the sender of an announcement in a single round. The secret
// payload (the auth_key witness) is never stored in the blob; it must be
// re-supplied at verify time.
package authblob

import (
	"encoding/binary"
	"fmt"

	"github.com/massalabs/echo/internal/kdf"
	"github.com/massalabs/echo/pkg/dsa"
	"github.com/massalabs/echo/pkg/identity"
	"github.com/massalabs/echo/pkg/kem"
)

// AuthBlob binds a public payload to an identity via two signatures over
// disjoint HKDF-derived messages.
type AuthBlob struct {
	PublicKeys         *identity.UserPublicKeys
	PublicPayload      []byte
	SignatureDSA       []byte
	SignatureSecondary []byte
}

// New signs publicPayload under sec, witnessed by secretPayload (the
// auth_key). secretPayload is not retained anywhere on the returned blob.
func New(pub *identity.UserPublicKeys, sec *identity.UserSecretKeys, publicPayload, secretPayload []byte) (*AuthBlob, error) {
	msgs, err := kdf.AuthBlobKDF(pub.ID().Bytes(), publicPayload, secretPayload)
	if err != nil {
		return nil, fmt.Errorf("authblob: derive: %w", err)
	}

	sigDSA, err := sec.DSA.Sign(msgs.DSAMessage)
	if err != nil {
		return nil, fmt.Errorf("authblob: sign dsa: %w", err)
	}
	sigMassa := sec.Secondary.Sign(msgs.MassaMessage)

	return &AuthBlob{
		PublicKeys:         pub,
		PublicPayload:      append([]byte(nil), publicPayload...),
		SignatureDSA:       sigDSA,
		SignatureSecondary: sigMassa,
	}, nil
}

// Verify recomputes both signing messages from secretPayload (the auth_key
// witness, supplied fresh by the caller) and checks both signatures. A
// replayed blob against a different secretPayload fails here, since the
// derived messages differ.
func (b *AuthBlob) Verify(secretPayload []byte) bool {
	msgs, err := kdf.AuthBlobKDF(b.PublicKeys.ID().Bytes(), b.PublicPayload, secretPayload)
	if err != nil {
		return false
	}
	if !dsa.Verify(b.PublicKeys.DSAVerifyKey, msgs.DSAMessage, b.SignatureDSA) {
		return false
	}
	return dsa.VerifySecondary(b.PublicKeys.SecondaryVerifyKey, msgs.MassaMessage, b.SignatureSecondary)
}

// Encode serializes the blob for embedding inside an announcement's
// encrypted body: the three public keys at their fixed sizes, both
// signatures at their fixed sizes, then a length-prefixed public payload.
func (b *AuthBlob) Encode() []byte {
	out := make([]byte, 0, dsa.VerifyKeySize+kem.PublicKeySize+dsa.SecondaryPublicKeySize+
		dsa.SignatureSize+dsa.SecondarySignatureSize+8+len(b.PublicPayload))
	out = append(out, b.PublicKeys.DSAVerifyKey...)
	out = append(out, b.PublicKeys.KEMPublicKey...)
	out = append(out, b.PublicKeys.SecondaryVerifyKey...)
	out = append(out, b.SignatureDSA...)
	out = append(out, b.SignatureSecondary...)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b.PublicPayload)))
	out = append(out, lenBuf[:]...)
	out = append(out, b.PublicPayload...)
	return out
}

// Decode reverses Encode. It performs no cryptographic verification; callers
// must still call Verify with the relevant secret_payload witness.
func Decode(b []byte) (*AuthBlob, bool) {
	need := dsa.VerifyKeySize + kem.PublicKeySize + dsa.SecondaryPublicKeySize +
		dsa.SignatureSize + dsa.SecondarySignatureSize + 8
	if len(b) < need {
		return nil, false
	}
	pub := &identity.UserPublicKeys{}
	pub.DSAVerifyKey, b = append([]byte(nil), b[:dsa.VerifyKeySize]...), b[dsa.VerifyKeySize:]
	pub.KEMPublicKey, b = append([]byte(nil), b[:kem.PublicKeySize]...), b[kem.PublicKeySize:]
	pub.SecondaryVerifyKey, b = append([]byte(nil), b[:dsa.SecondaryPublicKeySize]...), b[dsa.SecondaryPublicKeySize:]

	sigDSA, b := append([]byte(nil), b[:dsa.SignatureSize]...), b[dsa.SignatureSize:]
	sigSecondary, b := append([]byte(nil), b[:dsa.SecondarySignatureSize]...), b[dsa.SecondarySignatureSize:]

	n := binary.BigEndian.Uint64(b[:8])
	b = b[8:]
	if uint64(len(b)) < n {
		return nil, false
	}
	publicPayload := append([]byte(nil), b[:n]...)

	return &AuthBlob{
		PublicKeys:         pub,
		PublicPayload:      publicPayload,
		SignatureDSA:       sigDSA,
		SignatureSecondary: sigSecondary,
	}, true
}
