package agraphon

import (
	"fmt"

	"github.com/massalabs/echo/pkg/kem"
)

// SelfHistoryEntry is the exported, gob-friendly mirror of HistoryItemSelf.
type SelfHistoryEntry struct {
	LocalID         uint64
	StaticSK        bool
	EphemeralSecret []byte // raw marshaled KEM secret key; only set when StaticSK is false
	MKNext          []byte
	SeekerNext      []byte
}

// PeerHistoryEntry is the exported mirror of HistoryItemPeer.
type PeerHistoryEntry struct {
	OurParentID uint64
	PKNext      []byte
	MKNext      []byte
	SeekerNext  []byte
}

// State is the exportable snapshot of an Agraphon session, suitable for
// gob encoding by a host-level persistence layer (SessionManager).
type State struct {
	Role        Role
	SelfHistory []SelfHistoryEntry
	LatestPeer  PeerHistoryEntry
}

// Export snapshots the current session state, including raw ephemeral
// secret key bytes. The returned State carries secret material and must be
// handled the same way the live session's keys are (encrypted at rest,
// zeroized once no longer needed).
func (a *Agraphon) Export() (*State, error) {
	entries := make([]SelfHistoryEntry, len(a.selfHistory))
	for i, item := range a.selfHistory {
		e := SelfHistoryEntry{LocalID: item.LocalID, MKNext: item.MKNext, SeekerNext: item.SeekerNext}
		if item.SKNext.static {
			e.StaticSK = true
		} else {
			sec, err := item.SKNext.ephemeral.MarshalSecret()
			if err != nil {
				return nil, fmt.Errorf("agraphon: export local_id %d: %w", item.LocalID, err)
			}
			e.EphemeralSecret = sec
		}
		entries[i] = e
	}
	return &State{
		Role:        a.role,
		SelfHistory: entries,
		LatestPeer: PeerHistoryEntry{
			OurParentID: a.latestPeer.OurParentID,
			PKNext:      a.latestPeer.PKNext,
			MKNext:      a.latestPeer.MKNext,
			SeekerNext:  a.latestPeer.SeekerNext,
		},
	}, nil
}

// Restore rebuilds an Agraphon from a previously exported state.
func Restore(ourStaticSK *kem.KeyPair, s *State) (*Agraphon, error) {
	history := make([]HistoryItemSelf, len(s.SelfHistory))
	for i, e := range s.SelfHistory {
		item := HistoryItemSelf{LocalID: e.LocalID, MKNext: e.MKNext, SeekerNext: e.SeekerNext}
		if e.StaticSK {
			item.SKNext = staticSecretKey()
		} else {
			kp, err := kem.ImportKeyPair(e.EphemeralSecret)
			if err != nil {
				return nil, fmt.Errorf("agraphon: restore local_id %d: %w", e.LocalID, err)
			}
			item.SKNext = ephemeralSecretKey(kp)
		}
		history[i] = item
	}
	return &Agraphon{
		role:        s.Role,
		staticSK:    ourStaticSK,
		selfHistory: history,
		latestPeer: HistoryItemPeer{
			OurParentID: s.LatestPeer.OurParentID,
			PKNext:      s.LatestPeer.PKNext,
			MKNext:      s.LatestPeer.MKNext,
			SeekerNext:  s.LatestPeer.SeekerNext,
		},
	}, nil
}
