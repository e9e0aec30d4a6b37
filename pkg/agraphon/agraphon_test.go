package agraphon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/massalabs/echo/pkg/kem"
)

type party struct {
	staticSK *kem.KeyPair
	staticPK []byte
}

func newParty(t *testing.T) *party {
	t.Helper()
	kp := kem.Generate()
	return &party{staticSK: kp, staticPK: kp.PublicKey()}
}

// handshake runs a full mutual announcement exchange between a and b and
// returns both sides' sessions, asserting every step succeeds.
func handshake(t *testing.T, a, b *party) (*Agraphon, *Agraphon) {
	t.Helper()
	ast := assert.New(t)

	builderA, err := NewOutgoingAnnouncement(b.staticPK)
	ast.NoError(err)
	wireA, outA, err := builderA.Finalize([]byte("alice auth payload"))
	ast.NoError(err)

	builderB, err := NewOutgoingAnnouncement(a.staticPK)
	ast.NoError(err)
	wireB, outB, err := builderB.Finalize([]byte("bob auth payload"))
	ast.NoError(err)

	precursorForB, ok := TryIncomingAnnouncementPrecursor(wireA, b.staticSK, b.staticPK)
	ast.True(ok)
	ast.Equal([]byte("alice auth payload"), precursorForB.AuthPayload())
	incomingAtB, err := precursorForB.Finalize()
	ast.NoError(err)

	precursorForA, ok := TryIncomingAnnouncementPrecursor(wireB, a.staticSK, a.staticPK)
	ast.True(ok)
	incomingAtA, err := precursorForA.Finalize()
	ast.NoError(err)

	sessionA, err := BuildSession(a.staticSK, outA, incomingAtA)
	ast.NoError(err)
	sessionB, err := BuildSession(b.staticSK, outB, incomingAtB)
	ast.NoError(err)

	// Both sides independently compute the same auth_key witness.
	ast.Equal(builderA.AuthKey(), precursorForB.AuthKey())
	ast.Equal(builderB.AuthKey(), precursorForA.AuthKey())

	// Role assignment agrees and is complementary.
	ast.NotEqual(sessionA.Role(), sessionB.Role())

	return sessionA, sessionB
}

func TestHandshakeAndMessageRoundTrip(t *testing.T) {
	a := assert.New(t)
	alice, bob := newParty(t), newParty(t)
	sessionA, sessionB := handshake(t, alice, bob)

	wire, err := sessionA.Send([]byte("Hello Bob!"))
	a.NoError(err)

	payload, acked, ok := sessionB.Receive(0, wire)
	a.True(ok)
	a.Equal([]byte("Hello Bob!"), payload)
	a.Empty(acked)
}

func TestLagLengthAndAcknowledgementPruning(t *testing.T) {
	a := assert.New(t)
	alice, bob := newParty(t), newParty(t)
	sessionA, sessionB := handshake(t, alice, bob)

	a.EqualValues(0, sessionA.LagLength())

	wire1, err := sessionA.Send([]byte("one"))
	a.NoError(err)
	wire2, err := sessionA.Send([]byte("two"))
	a.NoError(err)
	wire3, err := sessionA.Send([]byte("three"))
	a.NoError(err)
	a.EqualValues(3, sessionA.LagLength())

	_, _, ok := sessionB.Receive(0, wire1)
	a.True(ok)
	_, _, ok = sessionB.Receive(0, wire2)
	a.True(ok)
	payload3, _, ok := sessionB.Receive(0, wire3)
	a.True(ok)
	a.Equal([]byte("three"), payload3)

	reply, err := sessionB.Send([]byte("ack"))
	a.NoError(err)

	payload, acked, ok := sessionA.Receive(3, reply)
	a.True(ok)
	a.Equal([]byte("ack"), payload)
	a.ElementsMatch([]uint64{0, 1, 2}, acked)
	a.EqualValues(0, sessionA.LagLength())
}

func TestReceiveFailsOnUnknownParent(t *testing.T) {
	a := assert.New(t)
	alice, bob := newParty(t), newParty(t)
	sessionA, sessionB := handshake(t, alice, bob)

	wire, err := sessionA.Send([]byte("hi"))
	a.NoError(err)

	lagBefore := sessionB.LagLength()
	_, _, ok := sessionB.Receive(999, wire)
	a.False(ok)
	a.Equal(lagBefore, sessionB.LagLength())
}

func TestReceiveFailsOnCorruptedCiphertextLeavesStateUntouched(t *testing.T) {
	a := assert.New(t)
	alice, bob := newParty(t), newParty(t)
	sessionA, sessionB := handshake(t, alice, bob)

	wire, err := sessionA.Send([]byte("hi"))
	a.NoError(err)
	wire[len(wire)-1] ^= 0xFF

	ids, _, err := sessionB.Seekers()
	a.NoError(err)
	before := append([]uint64(nil), ids...)

	_, _, ok := sessionB.Receive(0, wire)
	a.False(ok)

	idsAfter, _, err := sessionB.Seekers()
	a.NoError(err)
	a.Equal(before, idsAfter)
}

func TestWrongRecipientCannotDecapsulate(t *testing.T) {
	a := assert.New(t)
	alice, bob, carol := newParty(t), newParty(t), newParty(t)

	builder, err := NewOutgoingAnnouncement(carol.staticPK)
	a.NoError(err)
	wire, _, err := builder.Finalize([]byte("payload"))
	a.NoError(err)

	_, ok := TryIncomingAnnouncementPrecursor(wire, bob.staticSK, bob.staticPK)
	a.False(ok)
	_ = alice
}

func TestSeekersAreMostRecentFirst(t *testing.T) {
	a := assert.New(t)
	alice, bob := newParty(t), newParty(t)
	sessionA, _ := handshake(t, alice, bob)

	_, err := sessionA.Send([]byte("one"))
	a.NoError(err)
	_, err = sessionA.Send([]byte("two"))
	a.NoError(err)

	ids, seekers, err := sessionA.Seekers()
	a.NoError(err)
	a.Equal([]uint64{2, 1, 0}, ids)
	a.Len(seekers, 3)
}

func TestExportRestoreRoundTrip(t *testing.T) {
	a := assert.New(t)
	alice, bob := newParty(t), newParty(t)
	sessionA, sessionB := handshake(t, alice, bob)

	wire, err := sessionA.Send([]byte("persisted"))
	a.NoError(err)

	state, err := sessionA.Export()
	a.NoError(err)
	restored, err := Restore(alice.staticSK, state)
	a.NoError(err)
	a.Equal(restored.LagLength(), sessionA.LagLength())

	payload, _, ok := sessionB.Receive(0, wire)
	a.True(ok)
	a.Equal([]byte("persisted"), payload)
}
