package agraphon

import "github.com/massalabs/echo/pkg/kem"

// SelfSecretKey is sk_next for one of our own sent messages: either the
// long-lived static KEM secret key (held externally, supplied by the caller
// at decapsulation time so it stays outside this session's zeroization
// scope) or an ephemeral keypair this session owns outright.
type SelfSecretKey struct {
	static    bool
	ephemeral *kem.KeyPair
}

func staticSecretKey() SelfSecretKey { return SelfSecretKey{static: true} }

func ephemeralSecretKey(kp *kem.KeyPair) SelfSecretKey {
	return SelfSecretKey{ephemeral: kp}
}

func (s SelfSecretKey) decapsulate(ourStaticSK *kem.KeyPair, ciphertext []byte) ([]byte, error) {
	if s.static {
		return ourStaticSK.Decapsulate(ciphertext)
	}
	return s.ephemeral.Decapsulate(ciphertext)
}

// destroy releases the ephemeral secret key, if any, via kem.KeyPair.Destroy.
// The static variant carries nothing to destroy here.
func (s SelfSecretKey) destroy() {
	if s.ephemeral != nil {
		s.ephemeral.Destroy()
	}
}

// HistoryItemSelf records one of our own sent messages (or the bootstrap
// entry at local_id 0), kept until the peer acknowledges it.
type HistoryItemSelf struct {
	LocalID    uint64
	SKNext     SelfSecretKey
	MKNext     []byte
	SeekerNext []byte
}

// HistoryItemPeer records the latest message we have received from the
// peer, replaced wholesale on every successful receive.
type HistoryItemPeer struct {
	OurParentID uint64
	PKNext      []byte
	MKNext      []byte
	SeekerNext  []byte
}
