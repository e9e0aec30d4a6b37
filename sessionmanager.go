package echo

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"

	"github.com/massalabs/echo/pkg/agraphon"
	"github.com/massalabs/echo/pkg/identity"
	"github.com/massalabs/echo/pkg/kem"
	"github.com/massalabs/echo/pkg/siv"
)

// PeerSessionStatus reports the per-peer state machine position.
type PeerSessionStatus int

const (
	UnknownPeer PeerSessionStatus = iota
	NoSession
	SelfRequested
	PeerRequested
	Killed
	Active
	Saturated
)

func (s PeerSessionStatus) String() string {
	switch s {
	case UnknownPeer:
		return "UnknownPeer"
	case NoSession:
		return "NoSession"
	case SelfRequested:
		return "SelfRequested"
	case PeerRequested:
		return "PeerRequested"
	case Killed:
		return "Killed"
	case Active:
		return "Active"
	case Saturated:
		return "Saturated"
	default:
		return "Unknown"
	}
}

var (
	ErrUnknownPeer      = errors.New("echo: unknown peer")
	ErrNoActiveSession  = errors.New("echo: no active session")
	ErrSessionSaturated = errors.New("echo: session lag exceeds configured maximum")
	ErrStaleMessage     = errors.New("echo: incoming message outside freshness window")
)

// SessionManagerConfig governs admission, freshness, and lifecycle policy.
// All *_millis fields compare against caller-supplied timestamps; the
// library has no clock of its own.
type SessionManagerConfig struct {
	MaxIncomingAnnouncementAgeMillis    int64
	MaxIncomingAnnouncementFutureMillis int64
	MaxIncomingMessageAgeMillis         int64
	MaxIncomingMessageFutureMillis      int64
	MaxSessionInactivityMillis          int64
	KeepAliveIntervalMillis             int64
	MaxSessionLagLength                 uint64
}

// DefaultSessionManagerConfig returns the recommended defaults: week-long
// age and inactivity windows, a one-minute future allowance, daily
// keep-alives, and a lag ceiling of 10,000 unacknowledged messages.
func DefaultSessionManagerConfig() SessionManagerConfig {
	const (
		minute = int64(60_000)
		day    = 24 * 60 * minute
		week   = 7 * day
	)
	return SessionManagerConfig{
		MaxIncomingAnnouncementAgeMillis:    week,
		MaxIncomingAnnouncementFutureMillis: minute,
		MaxIncomingMessageAgeMillis:         week,
		MaxIncomingMessageFutureMillis:      minute,
		MaxSessionInactivityMillis:          week,
		KeepAliveIntervalMillis:             day,
		MaxSessionLagLength:                 10_000,
	}
}

// peerInfo is one peer's handshake/session lifecycle record.
type peerInfo struct {
	publicKeys *identity.UserPublicKeys

	outgoingWire      []byte
	outgoingInit      *agraphon.OutgoingAnnouncement
	outgoingTimestamp int64

	incomingInit      *agraphon.IncomingAnnouncement
	incomingTimestamp int64

	active *Session

	lastIncomingMessageTimestamp int64
	lastOutgoingMessageTimestamp int64
}

// teardown drops the active session together with both handshake records,
// returning the peer to the empty state. A stale announcement pair must not
// be able to resurrect a session that was just torn down.
func (p *peerInfo) teardown() {
	p.active = nil
	p.outgoingInit = nil
	p.outgoingWire = nil
	p.incomingInit = nil
}

func (p *peerInfo) status(maxLag uint64) PeerSessionStatus {
	switch {
	case p.active != nil:
		if p.active.LagLength() >= maxLag {
			return Saturated
		}
		return Active
	case p.outgoingInit != nil && p.incomingInit != nil:
		return Killed
	case p.outgoingInit != nil:
		return SelfRequested
	case p.incomingInit != nil:
		return PeerRequested
	default:
		return NoSession
	}
}

// SessionManager owns the full per-peer lifecycle table: handshake
// admission, freshness, lag-saturation, keep-alives, and encrypted
// persistence. It is single-threaded and suspension-free; the host must
// serialize calls to the mutating operations.
type SessionManager struct {
	ourStaticSK *kem.KeyPair
	ourPub      *identity.UserPublicKeys
	ourSec      *identity.UserSecretKeys
	cfg         SessionManagerConfig
	peers       map[identity.UserId]*peerInfo
	log         *slog.Logger
}

// NewSessionManager constructs an empty manager for the given identity. log
// may be nil, in which case slog.Default() is used.
func NewSessionManager(ourPub *identity.UserPublicKeys, ourSec *identity.UserSecretKeys, ourStaticSK *kem.KeyPair, cfg SessionManagerConfig, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		ourStaticSK: ourStaticSK,
		ourPub:      ourPub,
		ourSec:      ourSec,
		cfg:         cfg,
		peers:       make(map[identity.UserId]*peerInfo),
		log:         log,
	}
}

func (m *SessionManager) peer(id identity.UserId, create bool) *peerInfo {
	p, ok := m.peers[id]
	if !ok && create {
		p = &peerInfo{}
		m.peers[id] = p
	}
	return p
}

// PeerSessionStatus reports where a peer currently sits in the state
// machine.
func (m *SessionManager) PeerSessionStatus(id identity.UserId) PeerSessionStatus {
	p, ok := m.peers[id]
	if !ok {
		return UnknownPeer
	}
	return p.status(m.cfg.MaxSessionLagLength)
}

// PeerList returns every peer with a table entry, in no particular order.
func (m *SessionManager) PeerList() []identity.UserId {
	out := make([]identity.UserId, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}

// PeerDiscard removes a peer's entry entirely. The ratchet and handshake key
// material the entry held is dropped; it is not destroyed or overwritten.
func (m *SessionManager) PeerDiscard(id identity.UserId) {
	delete(m.peers, id)
}

// EstablishOutgoingSession starts a handshake toward peerPub. If that peer
// already has a stored incoming announcement, the active session is formed
// immediately and both message timestamps are stamped to now.
func (m *SessionManager) EstablishOutgoingSession(peerPub *identity.UserPublicKeys, nowUnixMillis int64) ([]byte, error) {
	id := peerPub.ID()
	p := m.peer(id, true)
	p.publicKeys = peerPub

	wire, outgoing, err := NewOutgoing(m.ourPub, m.ourSec, peerPub, nowUnixMillis)
	if err != nil {
		return nil, fmt.Errorf("echo: establish outgoing session: %w", err)
	}
	p.outgoingWire = wire
	p.outgoingInit = outgoing
	p.outgoingTimestamp = nowUnixMillis

	if p.incomingInit != nil {
		session, err := NewSession(m.ourStaticSK, peerPub, outgoing, p.incomingInit)
		if err != nil {
			return nil, fmt.Errorf("echo: materialize session: %w", err)
		}
		p.active = session
		p.lastIncomingMessageTimestamp = nowUnixMillis
		p.lastOutgoingMessageTimestamp = nowUnixMillis
		m.log.Info("session materialized from stored incoming announcement", slog.String("peer", id.String()))
	}
	return wire, nil
}

// FeedIncomingAnnouncement parses, admits, and stores an incoming
// announcement, rebuilding the active session if we already hold an
// outgoing one toward the same peer.
func (m *SessionManager) FeedIncomingAnnouncement(wire []byte, nowUnixMillis int64) (identity.UserId, error) {
	incoming, peerPub, _, timestamp, ok := TryIncoming(wire, m.ourStaticSK, m.ourPub)
	if !ok {
		return identity.UserId{}, ErrBadAnnouncement
	}
	if timestamp < nowUnixMillis-m.cfg.MaxIncomingAnnouncementAgeMillis ||
		timestamp > nowUnixMillis+m.cfg.MaxIncomingAnnouncementFutureMillis {
		return identity.UserId{}, ErrStaleMessage
	}

	id := peerPub.ID()
	p := m.peer(id, true)
	p.publicKeys = peerPub

	if p.incomingInit != nil && timestamp <= p.incomingTimestamp {
		return identity.UserId{}, fmt.Errorf("echo: %w: stale or replayed announcement", ErrBadAnnouncement)
	}

	if p.outgoingInit != nil {
		session, err := NewSession(m.ourStaticSK, peerPub, p.outgoingInit, incoming)
		if err != nil {
			return identity.UserId{}, fmt.Errorf("echo: materialize session: %w", err)
		}
		p.active = session
		p.lastIncomingMessageTimestamp = timestamp
		p.lastOutgoingMessageTimestamp = timestamp
		m.log.Info("session materialized from incoming announcement", slog.String("peer", id.String()))
	}

	p.incomingInit = incoming
	p.incomingTimestamp = timestamp
	return id, nil
}

// SendMessage ratchets payload forward and returns the board key/value to
// publish. Refuses if there is no active session or the session is
// saturated.
func (m *SessionManager) SendMessage(id identity.UserId, payload []byte, nowUnixMillis int64) (seeker, boardBlob []byte, err error) {
	p, ok := m.peers[id]
	if !ok || p.active == nil {
		return nil, nil, ErrNoActiveSession
	}
	if p.active.LagLength() >= m.cfg.MaxSessionLagLength {
		return nil, nil, ErrSessionSaturated
	}

	seeker, boardBlob, err = p.active.SendOutgoingMessage(payload, nowUnixMillis)
	if err != nil {
		return nil, nil, err
	}
	p.lastOutgoingMessageTimestamp = nowUnixMillis
	return seeker, boardBlob, nil
}

// GetMessageBoardReadKeys returns, for every peer with an active session,
// the board key that session's next incoming message is most expected at.
func (m *SessionManager) GetMessageBoardReadKeys() map[identity.UserId][]byte {
	out := make(map[identity.UserId][]byte, len(m.peers))
	for id, p := range m.peers {
		if p.active == nil {
			continue
		}
		seeker, err := p.active.NextPeerMessageSeeker()
		if err != nil {
			m.log.Warn("computing next peer message seeker", slog.String("peer", id.String()), slog.Any("error", err))
			continue
		}
		out[id] = seeker
	}
	return out
}

// FeedIncomingMessageBoardRead delivers a board read to whichever peer's
// active session currently expects seeker. An unrecoverable inconsistency
// (failed decrypt, bad signature, or a stale/future timestamp) tears down
// the active session rather than leaving it in a partially-trusted state.
func (m *SessionManager) FeedIncomingMessageBoardRead(seeker, boardBlob []byte, nowUnixMillis int64) (id identity.UserId, payload []byte, newlyAckedSeekers [][]byte, err error) {
	var match *peerInfo
	var matchID identity.UserId
	for candidateID, p := range m.peers {
		if p.active == nil {
			continue
		}
		expected, err := p.active.NextPeerMessageSeeker()
		if err != nil {
			continue
		}
		if bytes.Equal(expected, seeker) {
			match, matchID = p, candidateID
			break
		}
	}
	if match == nil {
		return identity.UserId{}, nil, nil, ErrBadMessage
	}

	timestamp, decrypted, acked, ok := match.active.TryFeedIncomingMessage(seeker, boardBlob)
	if !ok {
		match.teardown()
		m.log.Warn("tearing down session: message decode failed", slog.String("peer", matchID.String()))
		return identity.UserId{}, nil, nil, ErrBadMessage
	}
	if timestamp < nowUnixMillis-m.cfg.MaxIncomingMessageAgeMillis ||
		timestamp > nowUnixMillis+m.cfg.MaxIncomingMessageFutureMillis ||
		timestamp < match.lastIncomingMessageTimestamp {
		match.teardown()
		m.log.Warn("tearing down session: message timestamp rejected", slog.String("peer", matchID.String()))
		return identity.UserId{}, nil, nil, ErrStaleMessage
	}

	match.lastIncomingMessageTimestamp = timestamp
	return matchID, decrypted, acked, nil
}

// Refresh scans all peers, drops inactive sessions and expired handshake
// records, and reports which peers are due for a keep-alive send.
func (m *SessionManager) Refresh(nowUnixMillis int64) []identity.UserId {
	var dueForKeepAlive []identity.UserId
	for id, p := range m.peers {
		if p.active != nil && nowUnixMillis-p.lastIncomingMessageTimestamp > m.cfg.MaxSessionInactivityMillis {
			p.teardown()
			m.log.Info("session expired from inactivity", slog.String("peer", id.String()))
		}
		if p.incomingInit != nil && nowUnixMillis-p.incomingTimestamp > m.cfg.MaxIncomingAnnouncementAgeMillis {
			p.incomingInit = nil
		}
		if p.outgoingInit != nil && nowUnixMillis-p.outgoingTimestamp > m.cfg.MaxIncomingAnnouncementAgeMillis {
			p.outgoingInit = nil
		}
		if p.active != nil && nowUnixMillis-p.lastOutgoingMessageTimestamp >= m.cfg.KeepAliveIntervalMillis {
			dueForKeepAlive = append(dueForKeepAlive, id)
		}
	}
	return dueForKeepAlive
}

// managerSnapshot is the gob-encoded pre-encryption representation of a
// SessionManager's full peer table.
type managerSnapshot struct {
	Cfg   SessionManagerConfig
	Peers []peerSnapshot
}

type peerSnapshot struct {
	ID                           identity.UserId
	PublicKeys                   *identity.UserPublicKeys
	OutgoingWire                 []byte
	OutgoingInit                 *agraphon.OutgoingAnnouncementState
	OutgoingTimestamp            int64
	IncomingInit                 *agraphon.IncomingAnnouncementState
	IncomingTimestamp            int64
	Active                       *SessionState
	LastIncomingMessageTimestamp int64
	LastOutgoingMessageTimestamp int64
}

// ToEncryptedBlob serializes the manager's full peer table and encrypts it
// at rest with AES-256-SIV under key, producing nonce ‖ ciphertext.
func (m *SessionManager) ToEncryptedBlob(key []byte) ([]byte, error) {
	snap := managerSnapshot{Cfg: m.cfg}
	for id, p := range m.peers {
		ps := peerSnapshot{
			ID:                           id,
			PublicKeys:                   p.publicKeys,
			OutgoingWire:                 p.outgoingWire,
			OutgoingTimestamp:            p.outgoingTimestamp,
			IncomingTimestamp:            p.incomingTimestamp,
			LastIncomingMessageTimestamp: p.lastIncomingMessageTimestamp,
			LastOutgoingMessageTimestamp: p.lastOutgoingMessageTimestamp,
		}
		if p.outgoingInit != nil {
			st, err := p.outgoingInit.Export()
			if err != nil {
				return nil, fmt.Errorf("echo: export peer %s: %w", id, err)
			}
			ps.OutgoingInit = st
		}
		if p.incomingInit != nil {
			ps.IncomingInit = p.incomingInit.Export()
		}
		if p.active != nil {
			st, err := p.active.Export()
			if err != nil {
				return nil, fmt.Errorf("echo: export peer %s: %w", id, err)
			}
			ps.Active = st
		}
		snap.Peers = append(snap.Peers, ps)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("echo: encode manager state: %w", err)
	}
	return siv.Seal(key, buf.Bytes())
}

// FromEncryptedBlob decrypts and deserializes a manager previously produced
// by ToEncryptedBlob, rebuilding every live ratchet. Returns an error on any
// failure; no partial manager is ever returned.
func FromEncryptedBlob(blob, key []byte, ourStaticSK *kem.KeyPair, ourPub *identity.UserPublicKeys, ourSec *identity.UserSecretKeys, log *slog.Logger) (*SessionManager, error) {
	plaintext, err := siv.Open(key, blob)
	if err != nil {
		return nil, fmt.Errorf("echo: decrypt manager state: %w", err)
	}

	var snap managerSnapshot
	if err := gob.NewDecoder(bytes.NewReader(plaintext)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("echo: decode manager state: %w", err)
	}

	m := NewSessionManager(ourPub, ourSec, ourStaticSK, snap.Cfg, log)
	for _, ps := range snap.Peers {
		p := &peerInfo{
			publicKeys:                   ps.PublicKeys,
			outgoingWire:                 ps.OutgoingWire,
			outgoingTimestamp:            ps.OutgoingTimestamp,
			incomingTimestamp:            ps.IncomingTimestamp,
			lastIncomingMessageTimestamp: ps.LastIncomingMessageTimestamp,
			lastOutgoingMessageTimestamp: ps.LastOutgoingMessageTimestamp,
		}
		if ps.OutgoingInit != nil {
			out, err := agraphon.RestoreOutgoingAnnouncement(ps.OutgoingInit)
			if err != nil {
				return nil, fmt.Errorf("echo: restore peer %s: %w", ps.ID, err)
			}
			p.outgoingInit = out
		}
		if ps.IncomingInit != nil {
			p.incomingInit = agraphon.RestoreIncomingAnnouncement(ps.IncomingInit)
		}
		if ps.Active != nil {
			session, err := RestoreSession(ourStaticSK, ps.Active)
			if err != nil {
				return nil, fmt.Errorf("echo: restore peer %s: %w", ps.ID, err)
			}
			p.active = session
		}
		m.peers[ps.ID] = p
	}
	return m, nil
}
