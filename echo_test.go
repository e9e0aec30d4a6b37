package echo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/massalabs/echo/pkg/identity"
)

// defaultTestConfig is the recommended production configuration; individual
// tests override the fields whose edges they exercise.
func defaultTestConfig() SessionManagerConfig {
	return DefaultSessionManagerConfig()
}

type testUser struct {
	pub *identity.UserPublicKeys
	sec *identity.UserSecretKeys
	mgr *SessionManager
}

func newTestUser(t *testing.T, passphrase string, cfg SessionManagerConfig) *testUser {
	t.Helper()
	pub, sec, err := identity.DeriveFromPassphrase([]byte(passphrase), nil)
	require.NoError(t, err)
	mgr := NewSessionManager(pub, sec, sec.KEM, cfg, nil)
	return &testUser{pub: pub, sec: sec, mgr: mgr}
}

// establishActiveSession runs EstablishOutgoingSession/FeedIncomingAnnouncement
// both ways until both sides report Active.
func establishActiveSession(t *testing.T, alice, bob *testUser, now int64) {
	t.Helper()
	a := assert.New(t)

	wireA, err := alice.mgr.EstablishOutgoingSession(bob.pub, now)
	a.NoError(err)
	wireB, err := bob.mgr.EstablishOutgoingSession(alice.pub, now)
	a.NoError(err)

	_, err = bob.mgr.FeedIncomingAnnouncement(wireA, now)
	a.NoError(err)
	_, err = alice.mgr.FeedIncomingAnnouncement(wireB, now)
	a.NoError(err)

	a.Equal(Active, alice.mgr.PeerSessionStatus(bob.pub.ID()))
	a.Equal(Active, bob.mgr.PeerSessionStatus(alice.pub.ID()))
}

func TestTwoPartyRoundTrip(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	alice := newTestUser(t, "alice", cfg)
	bob := newTestUser(t, "bob", cfg)

	establishActiveSession(t, alice, bob, 1000)

	seeker, blob, err := alice.mgr.SendMessage(bob.pub.ID(), []byte("Hello Bob!"), 1001)
	a.NoError(err)

	readKeys := bob.mgr.GetMessageBoardReadKeys()
	a.Contains(readKeys, alice.pub.ID())
	a.Equal(seeker, readKeys[alice.pub.ID()])

	_, payload, _, err := bob.mgr.FeedIncomingMessageBoardRead(seeker, blob, 1002)
	a.NoError(err)
	a.Equal([]byte("Hello Bob!"), payload)
}

func TestLargePayloadRoundTrip(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	alice := newTestUser(t, "alice-large", cfg)
	bob := newTestUser(t, "bob-large", cfg)
	establishActiveSession(t, alice, bob, 1000)

	payload := bytes.Repeat([]byte{0x42}, 10_000)
	seeker, blob, err := alice.mgr.SendMessage(bob.pub.ID(), payload, 1001)
	a.NoError(err)

	_, got, _, err := bob.mgr.FeedIncomingMessageBoardRead(seeker, blob, 1002)
	a.NoError(err)
	a.Equal(payload, got)
}

func TestReplayedAnnouncementRejected(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	alice := newTestUser(t, "alice-replay", cfg)
	bob := newTestUser(t, "bob-replay", cfg)

	wireA, err := alice.mgr.EstablishOutgoingSession(bob.pub, 1000)
	a.NoError(err)

	_, err = bob.mgr.FeedIncomingAnnouncement(wireA, 1000)
	a.NoError(err)
	statusAfterFirst := bob.mgr.PeerSessionStatus(alice.pub.ID())

	_, err = bob.mgr.FeedIncomingAnnouncement(wireA, 1000)
	a.ErrorIs(err, ErrBadAnnouncement)
	a.Equal(statusAfterFirst, bob.mgr.PeerSessionStatus(alice.pub.ID()))
}

func TestWrongRecipientAnnouncementRejected(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	bob := newTestUser(t, "bob-wrongrecipient", cfg)
	carol := newTestUser(t, "carol-wrongrecipient", cfg)
	dave := newTestUser(t, "dave-wrongrecipient", cfg)

	wireToCarol, err := dave.mgr.EstablishOutgoingSession(carol.pub, 1000)
	a.NoError(err)

	_, err = bob.mgr.FeedIncomingAnnouncement(wireToCarol, 1000)
	a.ErrorIs(err, ErrBadAnnouncement)
	a.Empty(bob.mgr.PeerList())
}

func TestSaturationRefusesSendsUntilAcknowledged(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	cfg.MaxSessionLagLength = 2
	alice := newTestUser(t, "alice-sat", cfg)
	bob := newTestUser(t, "bob-sat", cfg)
	establishActiveSession(t, alice, bob, 1000)

	// Bob must process Alice's unacked messages in the order she sent them:
	// each successive message's board seeker only becomes predictable to Bob
	// once he's decrypted the previous one and advanced his view of Alice.
	type sent struct{ seeker, blob []byte }
	var messages []sent
	for i := 0; i < 2; i++ {
		seeker, blob, err := alice.mgr.SendMessage(bob.pub.ID(), []byte("msg"), 1001+int64(i))
		a.NoError(err)
		messages = append(messages, sent{seeker, blob})
	}

	_, _, err := alice.mgr.SendMessage(bob.pub.ID(), []byte("one too many"), 1005)
	a.ErrorIs(err, ErrSessionSaturated)
	a.Equal(Saturated, alice.mgr.PeerSessionStatus(bob.pub.ID()))

	for _, m := range messages {
		_, _, _, err = bob.mgr.FeedIncomingMessageBoardRead(m.seeker, m.blob, 1006)
		a.NoError(err)
	}

	replySeeker, replyBlob, err := bob.mgr.SendMessage(alice.pub.ID(), []byte("ack"), 1007)
	a.NoError(err)
	_, _, _, err = alice.mgr.FeedIncomingMessageBoardRead(replySeeker, replyBlob, 1008)
	a.NoError(err)

	a.Equal(Active, alice.mgr.PeerSessionStatus(bob.pub.ID()))
	_, _, err = alice.mgr.SendMessage(bob.pub.ID(), []byte("resumed"), 1009)
	a.NoError(err)
}

func TestPersistenceRoundTrip(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	alice := newTestUser(t, "alice-persist", cfg)
	bob := newTestUser(t, "bob-persist", cfg)
	establishActiveSession(t, alice, bob, 1000)

	key := bytes.Repeat([]byte{0x07}, 64)
	blob, err := alice.mgr.ToEncryptedBlob(key)
	a.NoError(err)

	restored, err := FromEncryptedBlob(blob, key, alice.sec.KEM, alice.pub, alice.sec, nil)
	a.NoError(err)
	a.Equal(Active, restored.PeerSessionStatus(bob.pub.ID()))

	seeker, msgBlob, err := restored.SendMessage(bob.pub.ID(), []byte("after restore"), 1002)
	a.NoError(err)
	_, payload, _, err := bob.mgr.FeedIncomingMessageBoardRead(seeker, msgBlob, 1003)
	a.NoError(err)
	a.Equal([]byte("after restore"), payload)

	wrongKey := bytes.Repeat([]byte{0x09}, 64)
	_, err = FromEncryptedBlob(blob, wrongKey, alice.sec.KEM, alice.pub, alice.sec, nil)
	a.Error(err)
}

func TestPeerSessionStatusUnknownAndSelfRequested(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	alice := newTestUser(t, "alice-status", cfg)
	bob := newTestUser(t, "bob-status", cfg)

	a.Equal(UnknownPeer, alice.mgr.PeerSessionStatus(bob.pub.ID()))

	_, err := alice.mgr.EstablishOutgoingSession(bob.pub, 1000)
	a.NoError(err)
	a.Equal(SelfRequested, alice.mgr.PeerSessionStatus(bob.pub.ID()))
}

func TestAnnouncementFreshnessWindowBoundary(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	maxAge := cfg.MaxIncomingAnnouncementAgeMillis
	alice := newTestUser(t, "alice-fresh", cfg)
	bob := newTestUser(t, "bob-fresh", cfg)

	// Exactly at the age limit is still admitted; one past it is not.
	wire, err := alice.mgr.EstablishOutgoingSession(bob.pub, 1000)
	a.NoError(err)
	_, err = bob.mgr.FeedIncomingAnnouncement(wire, 1000+maxAge)
	a.NoError(err)

	wire, err = alice.mgr.EstablishOutgoingSession(bob.pub, 1001)
	a.NoError(err)
	_, err = bob.mgr.FeedIncomingAnnouncement(wire, 1001+maxAge+1)
	a.ErrorIs(err, ErrStaleMessage)

	// Announcements from too far in the future are dropped too.
	wire, err = alice.mgr.EstablishOutgoingSession(bob.pub, 5000+cfg.MaxIncomingAnnouncementFutureMillis+1)
	a.NoError(err)
	_, err = bob.mgr.FeedIncomingAnnouncement(wire, 5000)
	a.ErrorIs(err, ErrStaleMessage)
}

func TestStaleMessageTearsDownSession(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	alice := newTestUser(t, "alice-stale", cfg)
	bob := newTestUser(t, "bob-stale", cfg)
	establishActiveSession(t, alice, bob, 1000)

	// A message timestamped before the session's last incoming one violates
	// monotonicity; the session is torn down rather than trusted further.
	seeker, blob, err := alice.mgr.SendMessage(bob.pub.ID(), []byte("too old"), 900)
	a.NoError(err)
	_, _, _, err = bob.mgr.FeedIncomingMessageBoardRead(seeker, blob, 1001)
	a.ErrorIs(err, ErrStaleMessage)
	a.Equal(NoSession, bob.mgr.PeerSessionStatus(alice.pub.ID()))
}

func TestRefreshExpiresInactiveSessionAndReportsKeepAlives(t *testing.T) {
	a := assert.New(t)
	cfg := defaultTestConfig()
	cfg.MaxSessionInactivityMillis = 1000
	cfg.KeepAliveIntervalMillis = 500
	alice := newTestUser(t, "alice-refresh", cfg)
	bob := newTestUser(t, "bob-refresh", cfg)
	establishActiveSession(t, alice, bob, 1000)

	due := alice.mgr.Refresh(1000 + cfg.KeepAliveIntervalMillis + 1)
	a.Contains(due, bob.pub.ID())

	alice.mgr.Refresh(1000 + cfg.MaxSessionInactivityMillis + 1)
	a.Equal(NoSession, alice.mgr.PeerSessionStatus(bob.pub.ID()))
}
