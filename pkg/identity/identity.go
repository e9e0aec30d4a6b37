// Package identity implements UserId and the UserPublicKeys/UserSecretKeys
// bundles, deterministically derivable from a passphrase via
// password-KDF -> keypair-KDF -> per-primitive generation.
package identity

import (
	"fmt"

	"github.com/massalabs/echo/internal/kdf"
	"github.com/massalabs/echo/pkg/dsa"
	"github.com/massalabs/echo/pkg/kem"
	"github.com/massalabs/echo/pkg/password"
)

// UserId is a 32-byte digest identifying a peer. Equality defines identity.
type UserId [32]byte

func (id UserId) String() string {
	return fmt.Sprintf("%x", id[:])
}

// Bytes returns the UserId as a slice.
func (id UserId) Bytes() []byte {
	return id[:]
}

// UserPublicKeys bundles the three public keys that make up a user's
// identity.
type UserPublicKeys struct {
	DSAVerifyKey       []byte
	KEMPublicKey       []byte
	SecondaryVerifyKey []byte
}

// ID derives this user's UserId, a pure function of the three public keys
// in fixed order (DSA, KEM, secondary).
func (p *UserPublicKeys) ID() UserId {
	digest := kdf.IDKDF(p.DSAVerifyKey, p.KEMPublicKey, p.SecondaryVerifyKey)
	var id UserId
	copy(id[:], digest)
	return id
}

// UserSecretKeys bundles the live keypairs backing a UserPublicKeys. Secret
// key material is released by Destroy; callers must defer it.
type UserSecretKeys struct {
	DSA       *dsa.KeyPair
	KEM       *kem.KeyPair
	Secondary *dsa.SecondaryKeyPair
}

// Destroy releases every secret key held by this bundle. The secondary
// ed25519 key bytes are overwritten; the ML-DSA and ML-KEM keys are dropped
// without overwriting the memory circl holds them in.
func (s *UserSecretKeys) Destroy() {
	if s.DSA != nil {
		s.DSA.Destroy()
	}
	if s.KEM != nil {
		s.KEM.Destroy()
	}
	if s.Secondary != nil {
		s.Secondary.Destroy()
	}
}

// DeriveFromPassphrase deterministically derives a full identity from a
// passphrase: the same passphrase and salt always produce the same keys
// across runs. salt may be nil to use the protocol's fixed default
// password salt.
func DeriveFromPassphrase(passphrase, salt []byte) (*UserPublicKeys, *UserSecretKeys, error) {
	root, err := password.Derive(passphrase, salt)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: password kdf: %w", err)
	}

	seeds, err := kdf.KeypairKDF(root)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: keypair kdf: %w", err)
	}

	dsaKeys, err := dsa.GenerateFromSeed(seeds.DSASeed)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: dsa keypair: %w", err)
	}
	kemKeys, err := kem.GenerateFromSeed(seeds.KEMSeed)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: kem keypair: %w", err)
	}
	secondaryKeys, err := dsa.GenerateSecondaryFromSeed(seeds.SecondarySeed)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: secondary keypair: %w", err)
	}

	pub := &UserPublicKeys{
		DSAVerifyKey:       dsaKeys.PublicKey(),
		KEMPublicKey:       kemKeys.PublicKey(),
		SecondaryVerifyKey: secondaryKeys.Public,
	}
	sec := &UserSecretKeys{DSA: dsaKeys, KEM: kemKeys, Secondary: secondaryKeys}
	return pub, sec, nil
}
