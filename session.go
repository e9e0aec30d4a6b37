// Package echo implements Agraphon/Session/SessionManager: an asynchronous,
// end-to-end encrypted messaging protocol with post-quantum resistance, run
// over an untrusted key->blob board.
package echo

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/massalabs/echo/pkg/agraphon"
	"github.com/massalabs/echo/pkg/authblob"
	"github.com/massalabs/echo/pkg/dsa"
	"github.com/massalabs/echo/pkg/identity"
	"github.com/massalabs/echo/pkg/kem"
)

var (
	ErrBadAnnouncement = errors.New("echo: announcement rejected")
	ErrBadMessage      = errors.New("echo: message rejected")
)

const seekerDomainTag = 0x01

// Session wraps an Agraphon ratchet with identity binding, padded
// serialization, and per-message "Massa" seeker signing keys.
type Session struct {
	agraphon *agraphon.Agraphon
	peer     *identity.UserPublicKeys

	// sentKeys remembers, per local_id, the board key each of our messages
	// was posted under, so acknowledged entries can be garbage-collected
	// from the board.
	sentKeys map[uint64][]byte
}

// seekerKeyPairFor deterministically derives the ephemeral ed25519 signing
// keypair associated with a given Agraphon-level seeker value. Both the
// sender (via NextOutgoingSeeker, before ratcheting) and the receiver (via a
// Seekers() candidate, before decrypting anything) arrive at the identical
// keypair, which is what lets the receiver verify the board-level signature
// before touching Agraphon.
func seekerKeyPairFor(agraphonSeeker []byte) (*dsa.SecondaryKeyPair, error) {
	return dsa.GenerateSecondaryFromSeed(agraphonSeeker)
}

// boardKeyFor frames a Massa public key as a board key:
// u8 hashlen ‖ hash(seeker_pubkey)[hashlen] ‖ domain tag.
func boardKeyFor(massaPub ed25519.PublicKey) []byte {
	sum := sha256.Sum256(massaPub)
	out := make([]byte, 0, 1+len(sum)+1)
	out = append(out, byte(len(sum)))
	out = append(out, sum[:]...)
	out = append(out, seekerDomainTag)
	return out
}

// messageBlob frames the board value:
// u8 pklen ‖ seeker_pubkey ‖ u8 siglen ‖ signature ‖ agraphon_ciphertext.
func messageBlob(massaPub ed25519.PublicKey, sig, agraphonCiphertext []byte) []byte {
	out := make([]byte, 0, 1+len(massaPub)+1+len(sig)+len(agraphonCiphertext))
	out = append(out, byte(len(massaPub)))
	out = append(out, massaPub...)
	out = append(out, byte(len(sig)))
	out = append(out, sig...)
	out = append(out, agraphonCiphertext...)
	return out
}

func parseMessageBlob(blob []byte) (massaPub, sig, agraphonCiphertext []byte, ok bool) {
	if len(blob) < 1 {
		return nil, nil, nil, false
	}
	pkLen := int(blob[0])
	blob = blob[1:]
	if len(blob) < pkLen+1 {
		return nil, nil, nil, false
	}
	massaPub, blob = blob[:pkLen], blob[pkLen:]
	sigLen := int(blob[0])
	blob = blob[1:]
	if len(blob) < sigLen {
		return nil, nil, nil, false
	}
	sig, blob = blob[:sigLen], blob[sigLen:]
	return massaPub, sig, blob, true
}

// authPublicPayload serializes {seeker_massa_public_key, unix_timestamp_millis}
// ahead of padding, a fixed-size structure needing no length prefix.
func authPublicPayload(massaPub ed25519.PublicKey, unixMillis int64) []byte {
	out := make([]byte, ed25519.PublicKeySize+8)
	copy(out, massaPub)
	binary.BigEndian.PutUint64(out[ed25519.PublicKeySize:], uint64(unixMillis))
	return out
}

func parseAuthPublicPayload(b []byte) (massaPub ed25519.PublicKey, unixMillis int64, ok bool) {
	if len(b) != ed25519.PublicKeySize+8 {
		return nil, 0, false
	}
	return ed25519.PublicKey(append([]byte(nil), b[:ed25519.PublicKeySize]...)),
		int64(binary.BigEndian.Uint64(b[ed25519.PublicKeySize:])), true
}

// NewOutgoing starts an Agraphon announcement to peerPub and wraps it with
// an AuthBlob proving our identity, bound to the resulting auth_key so a
// stolen blob cannot be replayed into a different announcement.
func NewOutgoing(ourPub *identity.UserPublicKeys, ourSec *identity.UserSecretKeys, peerPub *identity.UserPublicKeys, nowUnixMillis int64) ([]byte, *agraphon.OutgoingAnnouncement, error) {
	builder, err := agraphon.NewOutgoingAnnouncement(peerPub.KEMPublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("echo: new outgoing: %w", err)
	}

	massaKP := dsa.GenerateSecondary()
	publicPayload := authPublicPayload(massaKP.Public, nowUnixMillis)

	blob, err := authblob.New(ourPub, ourSec, publicPayload, builder.AuthKey())
	if err != nil {
		return nil, nil, fmt.Errorf("echo: signing auth blob: %w", err)
	}
	padded, err := pad(blob.Encode())
	if err != nil {
		return nil, nil, err
	}

	wire, out, err := builder.Finalize(padded)
	if err != nil {
		return nil, nil, err
	}
	return wire, out, nil
}

// TryIncoming parses an announcement addressed to our static identity,
// verifies the embedded AuthBlob against the independently-derived
// auth_key, and returns the finalized Agraphon announcement plus the
// claimed sender identity and timestamp. Returns false on any failure; no
// partial state is produced.
func TryIncoming(wire []byte, ourStaticSK *kem.KeyPair, ourPub *identity.UserPublicKeys) (*agraphon.IncomingAnnouncement, *identity.UserPublicKeys, ed25519.PublicKey, int64, bool) {
	precursor, ok := agraphon.TryIncomingAnnouncementPrecursor(wire, ourStaticSK, ourPub.KEMPublicKey)
	if !ok {
		return nil, nil, nil, 0, false
	}

	padded, ok := unpad(precursor.AuthPayload())
	if !ok {
		return nil, nil, nil, 0, false
	}
	blob, ok := authblob.Decode(padded)
	if !ok {
		return nil, nil, nil, 0, false
	}
	if !blob.Verify(precursor.AuthKey()) {
		return nil, nil, nil, 0, false
	}
	massaPub, unixMillis, ok := parseAuthPublicPayload(blob.PublicPayload)
	if !ok {
		return nil, nil, nil, 0, false
	}

	incoming, err := precursor.Finalize()
	if err != nil {
		return nil, nil, nil, 0, false
	}
	return incoming, blob.PublicKeys, massaPub, unixMillis, true
}

// NewSession builds a Session from both sides of a handshake: this side's
// outgoing announcement and the peer's finalized incoming one.
func NewSession(ourStaticSK *kem.KeyPair, peer *identity.UserPublicKeys, outgoing *agraphon.OutgoingAnnouncement, incoming *agraphon.IncomingAnnouncement) (*Session, error) {
	a, err := agraphon.BuildSession(ourStaticSK, outgoing, incoming)
	if err != nil {
		return nil, err
	}
	return &Session{agraphon: a, peer: peer, sentKeys: make(map[uint64][]byte)}, nil
}

// LagLength reports how many of our sent messages remain unacknowledged.
func (s *Session) LagLength() uint64 { return s.agraphon.LagLength() }

// SessionState is the gob-friendly, persistable mirror of a Session.
type SessionState struct {
	Agraphon *agraphon.State
	Peer     *identity.UserPublicKeys
	SentKeys map[uint64][]byte
}

// Export snapshots the session, including the live ratchet's secret
// material, for a host-level persistence layer.
func (s *Session) Export() (*SessionState, error) {
	st, err := s.agraphon.Export()
	if err != nil {
		return nil, err
	}
	return &SessionState{Agraphon: st, Peer: s.peer, SentKeys: s.sentKeys}, nil
}

// RestoreSession rebuilds a previously exported session.
func RestoreSession(ourStaticSK *kem.KeyPair, s *SessionState) (*Session, error) {
	a, err := agraphon.Restore(ourStaticSK, s.Agraphon)
	if err != nil {
		return nil, err
	}
	sentKeys := s.SentKeys
	if sentKeys == nil {
		sentKeys = make(map[uint64][]byte)
	}
	return &Session{agraphon: a, peer: s.Peer, sentKeys: sentKeys}, nil
}

// NextPeerMessageSeeker returns the board key this session most expects the
// peer's next message to arrive at.
func (s *Session) NextPeerMessageSeeker() ([]byte, error) {
	_, seekers, err := s.agraphon.Seekers()
	if err != nil {
		return nil, err
	}
	if len(seekers) == 0 {
		return nil, errors.New("echo: no candidate seeker available")
	}
	kp, err := seekerKeyPairFor(seekers[0])
	if err != nil {
		return nil, err
	}
	return boardKeyFor(kp.Public), nil
}

// SendOutgoingMessage serializes, pads, and ratchets payload forward,
// returning the board key to publish under and the framed board value.
func (s *Session) SendOutgoingMessage(payload []byte, nowUnixMillis int64) (seeker, boardBlob []byte, err error) {
	serialized := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(serialized[:8], uint64(nowUnixMillis))
	copy(serialized[8:], payload)

	padded, err := pad(serialized)
	if err != nil {
		return nil, nil, err
	}

	// Computed before Send mutates self-history: the peer's Seekers() will
	// pair our current (pre-send) entry with their view of us.
	massaSeed, err := s.agraphon.NextOutgoingSeeker()
	if err != nil {
		return nil, nil, err
	}

	ciphertext, err := s.agraphon.Send(padded)
	if err != nil {
		return nil, nil, fmt.Errorf("echo: send: %w", err)
	}

	massaKP, err := seekerKeyPairFor(massaSeed)
	if err != nil {
		return nil, nil, err
	}
	sig := massaKP.Sign(ciphertext)

	boardKey := boardKeyFor(massaKP.Public)
	s.sentKeys[s.agraphon.NewestLocalID()] = boardKey
	return boardKey, messageBlob(massaKP.Public, sig, ciphertext), nil
}

// TryFeedIncomingMessage verifies the board-level signature of a blob found
// at seeker (without touching Agraphon if verification fails), then
// decrypts and ratchets. Returns the decrypted timestamp, payload, and the
// board keys of every one of our own sent messages newly acknowledged by
// this receive, so the caller can garbage-collect those board entries.
func (s *Session) TryFeedIncomingMessage(seeker, boardBlob []byte) (timestampUnixMillis int64, payload []byte, newlyAckedSeekers [][]byte, ok bool) {
	ids, seekers, err := s.agraphon.Seekers()
	if err != nil {
		return 0, nil, nil, false
	}

	ourParentID := uint64(0)
	matched := false
	var massaKP *dsa.SecondaryKeyPair
	for i, candidate := range seekers {
		kp, err := seekerKeyPairFor(candidate)
		if err != nil {
			continue
		}
		if bytes.Equal(boardKeyFor(kp.Public), seeker) {
			ourParentID = ids[i]
			massaKP = kp
			matched = true
			break
		}
	}
	if !matched {
		return 0, nil, nil, false
	}

	massaPub, sig, ciphertext, okParse := parseMessageBlob(boardBlob)
	if !okParse {
		return 0, nil, nil, false
	}
	if !bytes.Equal(massaPub, massaKP.Public) {
		return 0, nil, nil, false
	}
	if !dsa.VerifySecondary(massaPub, ciphertext, sig) {
		return 0, nil, nil, false
	}

	padded, ackedIDs, recvOK := s.agraphon.Receive(ourParentID, ciphertext)
	if !recvOK {
		return 0, nil, nil, false
	}
	acked := make([][]byte, 0, len(ackedIDs))
	for _, id := range ackedIDs {
		if key, posted := s.sentKeys[id]; posted {
			acked = append(acked, key)
			delete(s.sentKeys, id)
		}
	}

	serialized, okUnpad := unpad(padded)
	if !okUnpad || len(serialized) < 8 {
		return 0, nil, nil, false
	}
	ts := int64(binary.BigEndian.Uint64(serialized[:8]))
	return ts, serialized[8:], acked, true
}
