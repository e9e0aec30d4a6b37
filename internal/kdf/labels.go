package kdf

// Every salt and info string below is a protocol constant. Changing a
// single byte changes the protocol.

var (
	idSalt = []byte("auth.id.kdf.salt----------------")
	idInfo = []byte("auth.id.kdf.id")

	keypairSalt             = []byte("auth.keypairs.kdf.salt----------")
	keypairInfoDSARand      = []byte("auth.keypairs.kdf.dsa_randomness")
	keypairInfoKEMRand      = []byte("auth.keypairs.kdf.kem_randomness")
	keypairInfoSecondaryKey = []byte("auth.keypairs.kdf.secondary_key")

	announcementRootSalt           = []byte("agraphon.announcement_root_kdf.salt.V1---")
	announcementRootInfoCipherKey  = []byte("agraphon.announcement_root_kdf.cipher_key")
	announcementRootInfoCipherNon  = []byte("agraphon.announcement_root_kdf.cipher_nonce")
	announcementRootInfoAuthPreKey = []byte("agraphon.announcement_root_kdf.auth_pre_key")
	announcementRootInfoIntegSeed  = []byte("agraphon.announcement_root_kdf.integrity_seed")

	announcementAuthSalt = []byte("agraphon.auth_kdf.salt.V1-------")
	announcementAuthInfo = []byte("agraphon.auth_kdf.auth_key")

	messageRootSalt          = []byte("agraphon.message_root_kdf.salt.V1----")
	messageRootInfoCipherKey = []byte("agraphon.message_root_kdf.cipher_key")
	messageRootInfoCipherNon = []byte("agraphon.message_root_kdf.cipher_nonce")
	messageRootInfoIntegSeed = []byte("agraphon.message_root_kdf.integrity_seed")

	integritySalt       = []byte("session.integrity_kdf.salt------")
	integrityInfoMKNext = []byte("session.integrity_kdf.mk_next")
	integrityInfoKey    = []byte("session.integrity_kdf.integrity_key")
	integrityInfoSeeker = []byte("session.integrity_kdf.seeker_next")

	seekerSalt = []byte("session.seeker_kdf.salt---------")
	seekerInfo = []byte("session.seeker_kem.mk_next")

	staticSalt       = []byte("session.static_kem.salt---------")
	staticInfoMKNext = []byte("session.static_kem.mk_next")
	staticInfoSeeker = []byte("session.static_kem.seeker_next")

	authBlobSalt      = []byte("auth.auth_blob.kdf.salt---------")
	authBlobInfoDSA   = []byte("auth.auth_blob.kdf.signature_dsa_message")
	authBlobInfoMassa = []byte("auth.auth_blob.kdf.signature_massa_message")
)

// RoleByte domain-separates KDF calls by which party played the initiator.
// The role byte MUST be included in announcement_root_kdf and
// message_root_kdf, per the protocol.
type RoleByte byte

const (
	RoleInitiator RoleByte = 0x01
	RoleResponder RoleByte = 0x02
)

// IDKDF derives a 32-byte UserId from all of a user's public key bytes, in
// fixed order. It is a pure function of its inputs.
func IDKDF(publicKeyParts ...[]byte) []byte {
	e := Extract(idSalt)
	for _, p := range publicKeyParts {
		e.Input(p)
	}
	id, err := e.Finalize().ExpandN(idInfo, 32)
	if err != nil {
		panic(err)
	}
	return id
}

// KeypairSeeds bundles the seed material keypair_kdf derives for each
// primitive's deterministic key generation.
type KeypairSeeds struct {
	DSASeed       []byte // 32 bytes
	KEMSeed       []byte // 64 bytes
	SecondarySeed []byte // 32 bytes
}

// KeypairKDF derives deterministic keypair seeds from a password-KDF root
// secret.
func KeypairKDF(rootSecret []byte) (KeypairSeeds, error) {
	x := Extract(keypairSalt).Input(rootSecret).Finalize()
	dsa, err := x.ExpandN(keypairInfoDSARand, 32)
	if err != nil {
		return KeypairSeeds{}, err
	}
	kem, err := x.ExpandN(keypairInfoKEMRand, 64)
	if err != nil {
		return KeypairSeeds{}, err
	}
	sec, err := x.ExpandN(keypairInfoSecondaryKey, 32)
	if err != nil {
		return KeypairSeeds{}, err
	}
	return KeypairSeeds{DSASeed: dsa, KEMSeed: kem, SecondarySeed: sec}, nil
}

// AnnouncementRoot is the output of announcement_root_kdf.
type AnnouncementRoot struct {
	CipherKey     []byte // 32
	CipherNonce   []byte // 16
	AuthPreKey    []byte // 32
	IntegritySeed []byte // 32
}

// AnnouncementRootKDF derives the announcement's symmetric keys and the
// auth_pre_key witness. role MUST be the sender's role — always Initiator,
// since only the initiator ever sends an announcement body that needs this
// derivation.
func AnnouncementRootKDF(randomness, kemSS, kemCT, recipientPK []byte, role RoleByte) (AnnouncementRoot, error) {
	x := Extract(announcementRootSalt).
		Input(randomness).
		Input(kemSS).
		Input(kemCT).
		Input(recipientPK).
		Input([]byte{byte(role)}).
		Finalize()

	key, err := x.ExpandN(announcementRootInfoCipherKey, 32)
	if err != nil {
		return AnnouncementRoot{}, err
	}
	nonce, err := x.ExpandN(announcementRootInfoCipherNon, 16)
	if err != nil {
		return AnnouncementRoot{}, err
	}
	authPre, err := x.ExpandN(announcementRootInfoAuthPreKey, 32)
	if err != nil {
		return AnnouncementRoot{}, err
	}
	seed, err := x.ExpandN(announcementRootInfoIntegSeed, 32)
	if err != nil {
		return AnnouncementRoot{}, err
	}
	return AnnouncementRoot{CipherKey: key, CipherNonce: nonce, AuthPreKey: authPre, IntegritySeed: seed}, nil
}

// AnnouncementAuthKDF derives the auth_key witness both parties can compute
// independently once the handshake has exchanged an initiator next-public-key.
func AnnouncementAuthKDF(authPreKey, initiatorNextPK []byte) ([]byte, error) {
	return Extract(announcementAuthSalt).
		Input(authPreKey).
		Input(initiatorNextPK).
		Finalize().
		ExpandN(announcementAuthInfo, 32)
}

// MessageRoot is the output of message_root_kdf.
type MessageRoot struct {
	CipherKey     []byte // 32
	CipherNonce   []byte // 16
	IntegritySeed []byte // 32
}

// MessageRootKDF derives the per-message symmetric keys. role is the
// message sender's role.
func MessageRootKDF(selfMKNext, peerMKNext, msgSS, msgCT []byte, role RoleByte) (MessageRoot, error) {
	x := Extract(messageRootSalt).
		Input(selfMKNext).
		Input(peerMKNext).
		Input(msgSS).
		Input(msgCT).
		Input([]byte{byte(role)}).
		Finalize()

	key, err := x.ExpandN(messageRootInfoCipherKey, 32)
	if err != nil {
		return MessageRoot{}, err
	}
	nonce, err := x.ExpandN(messageRootInfoCipherNon, 16)
	if err != nil {
		return MessageRoot{}, err
	}
	seed, err := x.ExpandN(messageRootInfoIntegSeed, 32)
	if err != nil {
		return MessageRoot{}, err
	}
	return MessageRoot{CipherKey: key, CipherNonce: nonce, IntegritySeed: seed}, nil
}

// Integrity is the output of integrity_kdf.
type Integrity struct {
	MKNext       []byte // 32
	IntegrityKey []byte // 32
	SeekerNext   []byte // 32
}

// IntegrityKDF advances the ratchet's message key and seeker given the
// current integrity seed, the sender's freshly generated next public key,
// and the plaintext payload.
func IntegrityKDF(integritySeed, nextPK, payload []byte) (Integrity, error) {
	x := Extract(integritySalt).
		Input(integritySeed).
		Input(nextPK).
		Input(payload).
		Finalize()

	mk, err := x.ExpandN(integrityInfoMKNext, 32)
	if err != nil {
		return Integrity{}, err
	}
	key, err := x.ExpandN(integrityInfoKey, 32)
	if err != nil {
		return Integrity{}, err
	}
	seeker, err := x.ExpandN(integrityInfoSeeker, 32)
	if err != nil {
		return Integrity{}, err
	}
	return Integrity{MKNext: mk, IntegrityKey: key, SeekerNext: seeker}, nil
}

// SeekerKDF combines one's own and the peer's seeker_next values into the
// board key used to locate a message. Non-commutative: self and peer must
// not be swapped between the two sides computing it.
func SeekerKDF(selfSeekerNext, peerSeekerNext []byte) ([]byte, error) {
	return Extract(seekerSalt).
		Input(selfSeekerNext).
		Input(peerSeekerNext).
		Finalize().
		ExpandN(seekerInfo, 32)
}

// Static is the output of static_kdf, bootstrapping the ratchet at local_id 0.
type Static struct {
	MKNext     []byte // 32
	SeekerNext []byte // 32
}

// StaticKDF derives the bootstrap message/seeker keys from a party's static
// KEM public key.
func StaticKDF(staticPK []byte) (Static, error) {
	x := Extract(staticSalt).Input(staticPK).Finalize()
	mk, err := x.ExpandN(staticInfoMKNext, 32)
	if err != nil {
		return Static{}, err
	}
	seeker, err := x.ExpandN(staticInfoSeeker, 32)
	if err != nil {
		return Static{}, err
	}
	return Static{MKNext: mk, SeekerNext: seeker}, nil
}

// AuthBlobMessages are the two disjoint 32-byte messages AuthBlob's dual
// signatures are computed over.
type AuthBlobMessages struct {
	DSAMessage   []byte
	MassaMessage []byte
}

// AuthBlobKDF derives the two signing messages bound to (user_id,
// public_payload, secret_payload). secret_payload is the auth_key witness
// and is never stored alongside the result.
func AuthBlobKDF(userID, publicPayload, secretPayload []byte) (AuthBlobMessages, error) {
	x := Extract(authBlobSalt).
		Input(userID).
		Input(publicPayload).
		Input(secretPayload).
		Finalize()

	dsaMsg, err := x.ExpandN(authBlobInfoDSA, 32)
	if err != nil {
		return AuthBlobMessages{}, err
	}
	massaMsg, err := x.ExpandN(authBlobInfoMassa, 32)
	if err != nil {
		return AuthBlobMessages{}, err
	}
	return AuthBlobMessages{DSAMessage: dsaMsg, MassaMessage: massaMsg}, nil
}
