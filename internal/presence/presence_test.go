package presence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/collabkit/internal/presence"
	"github.com/AltairaLabs/collabkit/internal/pubsub"
)

func TestSubmitAndGetBySessionID(t *testing.T) {
	svc := presence.New(pubsub.NewLocalBus(), 0)
	defer svc.Close()

	require.NoError(t, svc.Submit(presence.Presence{SessionID: "s1", UserID: "u1", LocationID: "doc1"}))

	p, err := svc.GetBySessionID("s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "doc1", p.LocationID)
}

func TestGetBySessionID_UnknownFails(t *testing.T) {
	svc := presence.New(pubsub.NewLocalBus(), 0)
	defer svc.Close()

	_, err := svc.GetBySessionID("nope")
	assert.Error(t, err)
}

func TestGetByUserIDAndLocationID(t *testing.T) {
	svc := presence.New(pubsub.NewLocalBus(), 0)
	defer svc.Close()

	require.NoError(t, svc.Submit(presence.Presence{SessionID: "s1", UserID: "u1", LocationID: "doc1"}))
	require.NoError(t, svc.Submit(presence.Presence{SessionID: "s2", UserID: "u1", LocationID: "doc2"}))
	require.NoError(t, svc.Submit(presence.Presence{SessionID: "s3", UserID: "u2", LocationID: "doc1"}))

	byUser, err := svc.GetByUserID("u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byLoc, err := svc.GetByLocationID("doc1")
	require.NoError(t, err)
	assert.Len(t, byLoc, 2)
}

func TestRemove_DeletesAndPublishes(t *testing.T) {
	svc := presence.New(pubsub.NewLocalBus(), 0)
	defer svc.Close()

	require.NoError(t, svc.Submit(presence.Presence{SessionID: "s1", UserID: "u1"}))

	received := make(chan struct{}, 2)
	sub := svc.StreamBySessionID("s1", func(msg any) { received <- struct{}{} })
	defer sub.Unsubscribe()

	require.NoError(t, svc.Remove("s1"))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for removal event")
	}

	_, err := svc.GetBySessionID("s1")
	assert.Error(t, err)
}

func TestStreamByUserID_ReceivesUpdates(t *testing.T) {
	svc := presence.New(pubsub.NewLocalBus(), 0)
	defer svc.Close()

	received := make(chan presence.Presence, 1)
	sub := svc.StreamByUserID("u1", func(msg any) {
		if p, ok := msg.(presence.Presence); ok {
			received <- p
		}
	})
	defer sub.Unsubscribe()

	require.NoError(t, svc.Submit(presence.Presence{SessionID: "s1", UserID: "u1", LocationID: "doc1"}))

	select {
	case p := <-received:
		assert.Equal(t, "s1", p.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for user-topic update")
	}
}

func TestTTLEviction_RemovesIdleSessions(t *testing.T) {
	svc := presence.New(pubsub.NewLocalBus(), 50*time.Millisecond)
	defer svc.Close()

	require.NoError(t, svc.Submit(presence.Presence{SessionID: "s1", UserID: "u1"}))
	time.Sleep(250 * time.Millisecond)

	_, err := svc.GetBySessionID("s1")
	assert.Error(t, err)
}
