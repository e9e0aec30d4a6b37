package agraphon

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/massalabs/echo/internal/kdf"
	"github.com/massalabs/echo/pkg/ctrcipher"
	"github.com/massalabs/echo/pkg/kem"
)

var ErrAnnouncementDecapsulate = errors.New("agraphon: announcement decapsulation failed")

const randomnessSize = 32

// announcementID hashes the exact wire bytes so both parties to a
// simultaneous handshake can independently compute the same identifier for
// the role tiebreak in BuildSession.
func announcementID(wire []byte) []byte {
	sum := sha256.Sum256(wire)
	return sum[:]
}

// OutgoingAnnouncementBuilder carries an announcement through to the point
// where auth_key is known but the wire bytes are not yet assembled: the
// caller must sign an AuthBlob witnessed by AuthKey() before calling
// Finalize, since the blob itself is embedded in the encrypted body.
type OutgoingAnnouncementBuilder struct {
	recipientPK []byte
	root        kdf.AnnouncementRoot
	next        *kem.KeyPair
	nextPK      []byte
	authKey     []byte
	randomness  []byte
	kemCT       []byte
}

// NewOutgoingAnnouncement begins building a one-shot handshake addressed to
// recipientPK: encapsulates, draws fresh randomness, generates the ephemeral
// next keypair, and derives auth_key.
func NewOutgoingAnnouncement(recipientPK []byte) (*OutgoingAnnouncementBuilder, error) {
	kemCT, kemSS, err := kem.Encapsulate(recipientPK)
	if err != nil {
		return nil, fmt.Errorf("agraphon: announcement encapsulate: %w", err)
	}

	randomness := make([]byte, randomnessSize)
	if _, err := io.ReadFull(rand.Reader, randomness); err != nil {
		panic(fmt.Errorf("agraphon: reading randomness: %w", err))
	}

	root, err := kdf.AnnouncementRootKDF(randomness, kemSS, kemCT, recipientPK, kdf.RoleInitiator)
	if err != nil {
		return nil, fmt.Errorf("agraphon: announcement root kdf: %w", err)
	}

	next := kem.Generate()
	nextPK := next.PublicKey()

	authKey, err := kdf.AnnouncementAuthKDF(root.AuthPreKey, nextPK)
	if err != nil {
		return nil, fmt.Errorf("agraphon: announcement auth kdf: %w", err)
	}

	return &OutgoingAnnouncementBuilder{
		recipientPK: recipientPK,
		root:        root,
		next:        next,
		nextPK:      nextPK,
		authKey:     authKey,
		randomness:  randomness,
		kemCT:       kemCT,
	}, nil
}

// AuthKey returns the auth_key witness to sign an embedded AuthBlob with.
func (b *OutgoingAnnouncementBuilder) AuthKey() []byte { return b.authKey }

// OutgoingAnnouncement is the finalized handshake state: everything this
// side needs to later integrate the peer's response into a session.
type OutgoingAnnouncement struct {
	ID         []byte
	skNext     *kem.KeyPair
	mkNext     []byte
	seekerNext []byte
}

// Finalize encrypts authPayload (the padded, already-signed AuthBlob bytes)
// alongside the next public key and assembles the wire bytes.
func (b *OutgoingAnnouncementBuilder) Finalize(authPayload []byte) ([]byte, *OutgoingAnnouncement, error) {
	plaintext := append(append([]byte(nil), b.nextPK...), authPayload...)
	ciphertext, err := ctrcipher.XOR(b.root.CipherKey, b.root.CipherNonce, plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("agraphon: announcement encrypt: %w", err)
	}

	wire := make([]byte, 0, len(b.randomness)+len(b.kemCT)+len(ciphertext))
	wire = append(wire, b.randomness...)
	wire = append(wire, b.kemCT...)
	wire = append(wire, ciphertext...)

	bootstrap, err := kdf.StaticKDF(b.nextPK)
	if err != nil {
		return nil, nil, fmt.Errorf("agraphon: static kdf: %w", err)
	}

	out := &OutgoingAnnouncement{
		ID:         announcementID(wire),
		skNext:     b.next,
		mkNext:     bootstrap.MKNext,
		seekerNext: bootstrap.SeekerNext,
	}
	return wire, out, nil
}

// OutgoingAnnouncementState is the gob-friendly, persistable mirror of
// OutgoingAnnouncement, carrying the raw ephemeral secret key bytes.
type OutgoingAnnouncementState struct {
	ID              []byte
	EphemeralSecret []byte
	MKNext          []byte
	SeekerNext      []byte
}

// Export snapshots a finalized outgoing announcement still awaiting the
// peer's response, for a host-level persistence layer.
func (o *OutgoingAnnouncement) Export() (*OutgoingAnnouncementState, error) {
	sec, err := o.skNext.MarshalSecret()
	if err != nil {
		return nil, fmt.Errorf("agraphon: export outgoing announcement: %w", err)
	}
	return &OutgoingAnnouncementState{ID: o.ID, EphemeralSecret: sec, MKNext: o.mkNext, SeekerNext: o.seekerNext}, nil
}

// RestoreOutgoingAnnouncement rebuilds a previously exported outgoing
// announcement.
func RestoreOutgoingAnnouncement(s *OutgoingAnnouncementState) (*OutgoingAnnouncement, error) {
	kp, err := kem.ImportKeyPair(s.EphemeralSecret)
	if err != nil {
		return nil, fmt.Errorf("agraphon: restore outgoing announcement: %w", err)
	}
	return &OutgoingAnnouncement{ID: s.ID, skNext: kp, mkNext: s.MKNext, seekerNext: s.SeekerNext}, nil
}

// IncomingAnnouncementState is the gob-friendly, persistable mirror of
// IncomingAnnouncement.
type IncomingAnnouncementState struct {
	ID         []byte
	PKNext     []byte
	MKNext     []byte
	SeekerNext []byte
}

// Export snapshots a finalized incoming announcement still awaiting our own
// outgoing response.
func (in *IncomingAnnouncement) Export() *IncomingAnnouncementState {
	return &IncomingAnnouncementState{ID: in.ID, PKNext: in.pkNext, MKNext: in.mkNext, SeekerNext: in.seekerNext}
}

// RestoreIncomingAnnouncement rebuilds a previously exported incoming
// announcement.
func RestoreIncomingAnnouncement(s *IncomingAnnouncementState) *IncomingAnnouncement {
	return &IncomingAnnouncement{ID: s.ID, pkNext: s.PKNext, mkNext: s.MKNext, seekerNext: s.SeekerNext}
}

// IncomingAnnouncementPrecursor is the result of parsing and decapsulating
// an announcement, before the caller has verified its embedded AuthBlob.
// It is a one-shot value: Finalize consumes it.
type IncomingAnnouncementPrecursor struct {
	id          []byte
	authPayload []byte
	authKey     []byte
	peerNextPK  []byte
}

// TryIncomingAnnouncementPrecursor parses wire, decapsulates with
// ourStaticSK, and exposes the auth_key witness and the peer's claimed auth
// payload without committing to a session. Returns false on any malformed
// input or KEM failure, leaving no partial state.
func TryIncomingAnnouncementPrecursor(wire []byte, ourStaticSK *kem.KeyPair, ourStaticPK []byte) (*IncomingAnnouncementPrecursor, bool) {
	if len(wire) < randomnessSize+kem.CiphertextSize+kem.PublicKeySize {
		return nil, false
	}
	randomness := wire[:randomnessSize]
	kemCT := wire[randomnessSize : randomnessSize+kem.CiphertextSize]
	ciphertext := wire[randomnessSize+kem.CiphertextSize:]

	kemSS, err := ourStaticSK.Decapsulate(kemCT)
	if err != nil {
		return nil, false
	}

	root, err := kdf.AnnouncementRootKDF(randomness, kemSS, kemCT, ourStaticPK, kdf.RoleInitiator)
	if err != nil {
		return nil, false
	}

	plaintext, err := ctrcipher.XOR(root.CipherKey, root.CipherNonce, ciphertext)
	if err != nil {
		return nil, false
	}
	if len(plaintext) < kem.PublicKeySize {
		return nil, false
	}
	nextPK := plaintext[:kem.PublicKeySize]
	authPayload := plaintext[kem.PublicKeySize:]

	authKey, err := kdf.AnnouncementAuthKDF(root.AuthPreKey, nextPK)
	if err != nil {
		return nil, false
	}

	return &IncomingAnnouncementPrecursor{
		id:          announcementID(wire),
		authPayload: append([]byte(nil), authPayload...),
		authKey:     authKey,
		peerNextPK:  append([]byte(nil), nextPK...),
	}, true
}

// AuthPayload returns the peer's claimed (still unverified) padded AuthBlob
// bytes.
func (p *IncomingAnnouncementPrecursor) AuthPayload() []byte { return p.authPayload }

// AuthKey returns the auth_key witness this side derived independently; the
// caller passes it to AuthBlob.Verify.
func (p *IncomingAnnouncementPrecursor) AuthKey() []byte { return p.authKey }

// IncomingAnnouncement is the finalized counterpart to OutgoingAnnouncement,
// produced once the caller has verified the peer's identity.
type IncomingAnnouncement struct {
	ID         []byte
	pkNext     []byte
	mkNext     []byte
	seekerNext []byte
}

// Finalize consumes the precursor, bootstrapping the peer's initial history
// entry.
func (p *IncomingAnnouncementPrecursor) Finalize() (*IncomingAnnouncement, error) {
	boot, err := kdf.StaticKDF(p.peerNextPK)
	if err != nil {
		return nil, fmt.Errorf("agraphon: finalize static kdf: %w", err)
	}
	return &IncomingAnnouncement{
		ID:         p.id,
		pkNext:     p.peerNextPK,
		mkNext:     boot.MKNext,
		seekerNext: boot.SeekerNext,
	}, nil
}
