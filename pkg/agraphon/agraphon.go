// Package agraphon implements the KEM-based double ratchet: announcement
// handshake, self-message history queue, latest-peer-message record, and
// the per-message ratchet step. It is synchronous and suspension-free;
// every decode step either fully succeeds or leaves state untouched.
package agraphon

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/massalabs/echo/internal/kdf"
	"github.com/massalabs/echo/pkg/ctrcipher"
	"github.com/massalabs/echo/pkg/kem"
)

// Role is fixed at handshake time and used as a domain-separating input to
// the per-message KDF.
type Role int

const (
	invalidRole Role = iota
	Initiator
	Responder
)

func (r Role) kdfRole() kdf.RoleByte {
	if r == Initiator {
		return kdf.RoleInitiator
	}
	return kdf.RoleResponder
}

func (r Role) opposite() Role {
	if r == Initiator {
		return Responder
	}
	return Initiator
}

var (
	ErrNoParent          = errors.New("agraphon: unknown parent local_id")
	ErrMalformedMessage  = errors.New("agraphon: malformed message")
	ErrIntegrityMismatch = errors.New("agraphon: integrity check failed")
	ErrAmbiguousRole     = errors.New("agraphon: announcements could not be ordered to assign a role")
	ErrEmptyHistory      = errors.New("agraphon: self message history is empty")
)

// Agraphon is one party's ratchet state.
type Agraphon struct {
	role     Role
	staticSK *kem.KeyPair // long-lived, owned externally; never destroyed by Agraphon

	// selfHistory is a contiguous ascending run of sent-message records,
	// front = oldest unacknowledged, back = most recent.
	selfHistory []HistoryItemSelf

	latestPeer HistoryItemPeer
}

// BuildSession constructs a session deterministically from this side's
// outgoing announcement and the finalized incoming one, so both parties
// derive identical initial state. Role is decided by lexicographic
// comparison of the two announcement IDs; if the IDs are identical (which
// should not happen given independent randomness) the session refuses to
// form rather than guessing a role.
func BuildSession(ourStaticSK *kem.KeyPair, outgoing *OutgoingAnnouncement, incoming *IncomingAnnouncement) (*Agraphon, error) {
	cmp := bytes.Compare(outgoing.ID, incoming.ID)
	if cmp == 0 {
		return nil, ErrAmbiguousRole
	}
	role := Responder
	if cmp < 0 {
		role = Initiator
	}

	return &Agraphon{
		role:     role,
		staticSK: ourStaticSK,
		selfHistory: []HistoryItemSelf{{
			LocalID:    0,
			SKNext:     ephemeralSecretKey(outgoing.skNext),
			MKNext:     outgoing.mkNext,
			SeekerNext: outgoing.seekerNext,
		}},
		latestPeer: HistoryItemPeer{
			OurParentID: 0,
			PKNext:      incoming.pkNext,
			MKNext:      incoming.mkNext,
			SeekerNext:  incoming.seekerNext,
		},
	}, nil
}

// Role reports this session's fixed role.
func (a *Agraphon) Role() Role { return a.role }

// Send runs the per-message ratchet step for an outgoing message,
// appending a new entry to self_msg_history and returning the wire bytes
// (kem_ct ‖ encrypted body).
func (a *Agraphon) Send(payload []byte) ([]byte, error) {
	if len(a.selfHistory) == 0 {
		panic(ErrEmptyHistory)
	}
	self := a.selfHistory[len(a.selfHistory)-1]

	msgCT, msgSS, err := kem.Encapsulate(a.latestPeer.PKNext)
	if err != nil {
		return nil, fmt.Errorf("agraphon: send encapsulate: %w", err)
	}

	root, err := kdf.MessageRootKDF(self.MKNext, a.latestPeer.MKNext, msgSS, msgCT, a.role.kdfRole())
	if err != nil {
		return nil, fmt.Errorf("agraphon: message root kdf: %w", err)
	}

	next := kem.Generate()
	nextPK := next.PublicKey()

	integrity, err := kdf.IntegrityKDF(root.IntegritySeed, nextPK, payload)
	if err != nil {
		return nil, fmt.Errorf("agraphon: integrity kdf: %w", err)
	}

	plaintext := make([]byte, 0, len(nextPK)+len(payload)+len(integrity.IntegrityKey))
	plaintext = append(plaintext, nextPK...)
	plaintext = append(plaintext, payload...)
	plaintext = append(plaintext, integrity.IntegrityKey...)

	body, err := ctrcipher.XOR(root.CipherKey, root.CipherNonce, plaintext)
	if err != nil {
		next.Destroy()
		return nil, fmt.Errorf("agraphon: send encrypt: %w", err)
	}

	wire := make([]byte, 0, len(msgCT)+len(body))
	wire = append(wire, msgCT...)
	wire = append(wire, body...)

	a.selfHistory = append(a.selfHistory, HistoryItemSelf{
		LocalID:    self.LocalID + 1,
		SKNext:     ephemeralSecretKey(next),
		MKNext:     integrity.MKNext,
		SeekerNext: integrity.SeekerNext,
	})

	return wire, nil
}

// Receive runs the per-message ratchet step for an incoming message that the
// peer addressed as a reply to ourParentID. Returns the decrypted payload
// and the local_ids newly acknowledged (pruned) as a result, or false on any
// failure — in which case state is left untouched.
func (a *Agraphon) Receive(ourParentID uint64, wire []byte) (payload []byte, newlyAcked []uint64, ok bool) {
	idx := a.historyIndex(ourParentID)
	if idx < 0 {
		return nil, nil, false
	}
	if len(wire) < kem.CiphertextSize {
		return nil, nil, false
	}
	msgCT := wire[:kem.CiphertextSize]
	body := wire[kem.CiphertextSize:]

	self := a.selfHistory[idx]
	msgSS, err := self.SKNext.decapsulate(a.staticSK, msgCT)
	if err != nil {
		return nil, nil, false
	}

	// Mirror the sender's operand order: what the sender fed as its own
	// mk_next is our latest-peer record, and its peer mk_next is the history
	// entry being replied to.
	root, err := kdf.MessageRootKDF(a.latestPeer.MKNext, self.MKNext, msgSS, msgCT, a.role.opposite().kdfRole())
	if err != nil {
		return nil, nil, false
	}

	plaintext, err := ctrcipher.XOR(root.CipherKey, root.CipherNonce, body)
	if err != nil {
		return nil, nil, false
	}
	if len(plaintext) < kem.PublicKeySize+32 {
		return nil, nil, false
	}
	nextPK := plaintext[:kem.PublicKeySize]
	rest := plaintext[kem.PublicKeySize:]
	receivedIntegrityKey := rest[len(rest)-32:]
	msgPayload := rest[:len(rest)-32]

	integrity, err := kdf.IntegrityKDF(root.IntegritySeed, nextPK, msgPayload)
	if err != nil {
		return nil, nil, false
	}
	if !kdf.ConstantTimeEqual(receivedIntegrityKey, integrity.IntegrityKey) {
		return nil, nil, false
	}

	a.latestPeer = HistoryItemPeer{
		OurParentID: ourParentID,
		PKNext:      nextPK,
		MKNext:      integrity.MKNext,
		SeekerNext:  integrity.SeekerNext,
	}

	newlyAcked = a.pruneBefore(ourParentID)
	return append([]byte(nil), msgPayload...), newlyAcked, true
}

// historyIndex finds the slice index of the self_msg_history entry with the
// given local_id, or -1 if absent.
func (a *Agraphon) historyIndex(localID uint64) int {
	if len(a.selfHistory) == 0 {
		return -1
	}
	front := a.selfHistory[0].LocalID
	if localID < front {
		return -1
	}
	idx := int(localID - front)
	if idx >= len(a.selfHistory) {
		return -1
	}
	return idx
}

// pruneBefore drops every self_msg_history entry with local_id < parentID,
// returning their local_ids for board garbage-collection. The history never
// becomes empty: the entry at parentID itself is always retained.
func (a *Agraphon) pruneBefore(parentID uint64) []uint64 {
	var acked []uint64
	for len(a.selfHistory) > 0 && a.selfHistory[0].LocalID < parentID {
		item := a.selfHistory[0]
		item.SKNext.destroy()
		acked = append(acked, item.LocalID)
		a.selfHistory = a.selfHistory[1:]
	}
	return acked
}

// Seekers returns, most-recent-first, the board seekers that would match
// our next incoming message for each still-unacknowledged self-history
// entry: seeker_kdf(latest_peer_msg.seeker_next, self_msg_history[i].seeker_next).
func (a *Agraphon) Seekers() ([]uint64, [][]byte, error) {
	ids := make([]uint64, 0, len(a.selfHistory))
	seekers := make([][]byte, 0, len(a.selfHistory))
	for i := len(a.selfHistory) - 1; i >= 0; i-- {
		item := a.selfHistory[i]
		seeker, err := kdf.SeekerKDF(a.latestPeer.SeekerNext, item.SeekerNext)
		if err != nil {
			return nil, nil, fmt.Errorf("agraphon: seeker kdf: %w", err)
		}
		ids = append(ids, item.LocalID)
		seekers = append(seekers, seeker)
	}
	return ids, seekers, nil
}

// NextOutgoingSeeker returns the seeker our next Send call will be found
// under by the peer's own Seekers() candidate list. Unlike Seekers, the two
// operands are swapped: the peer computes this value by pairing our most
// recent self-history entry (their "latest_peer_msg") with their own current
// entry, so we must mirror that pairing using our own (self, peer) state
// rather than (peer, self). Must be read before Send mutates self-history.
func (a *Agraphon) NextOutgoingSeeker() ([]byte, error) {
	back := a.selfHistory[len(a.selfHistory)-1]
	seeker, err := kdf.SeekerKDF(back.SeekerNext, a.latestPeer.SeekerNext)
	if err != nil {
		return nil, fmt.Errorf("agraphon: seeker kdf: %w", err)
	}
	return seeker, nil
}

// NewestLocalID returns the local_id of the most recent self-history entry:
// 0 right after the handshake, then the id of the last sent message.
func (a *Agraphon) NewestLocalID() uint64 {
	return a.selfHistory[len(a.selfHistory)-1].LocalID
}

// LagLength is the count of our sent messages not yet acknowledged by any
// incoming peer message.
func (a *Agraphon) LagLength() uint64 {
	back := a.selfHistory[len(a.selfHistory)-1].LocalID
	return back - a.latestPeer.OurParentID
}
