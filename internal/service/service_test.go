package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/collabkit/internal/backend"
	"github.com/AltairaLabs/collabkit/internal/content"
	"github.com/AltairaLabs/collabkit/internal/contenttype/counter"
	"github.com/AltairaLabs/collabkit/internal/presence"
	"github.com/AltairaLabs/collabkit/internal/pubsub"
	"github.com/AltairaLabs/collabkit/internal/rpc"
	"github.com/AltairaLabs/collabkit/internal/service"
	"github.com/AltairaLabs/collabkit/internal/store"
)

func newWiredConnPair(t *testing.T) (client *rpc.Conn, b *backend.Backend, p *presence.InMemoryService) {
	t.Helper()
	registry := content.NewRegistry()
	registry.Register("counter", counter.New())
	bus := pubsub.NewLocalBus()
	b = backend.New(store.NewMemoryStore(), bus, registry, backend.Options{})
	p = presence.New(bus, 0)
	t.Cleanup(b.Close)
	t.Cleanup(p.Close)

	clientT, serverT := rpc.NewChanTransportPair()
	serverRegistry := rpc.NewServiceRegistry()
	server := rpc.NewConn(serverT, serverRegistry)
	t.Cleanup(server.Destroy)

	require.NoError(t, service.Bind(context.Background(), serverRegistry, server, b, p, nil))

	client = rpc.NewConn(clientT, nil)
	t.Cleanup(client.Destroy)
	return client, b, p
}

func TestPing(t *testing.T) {
	client, _, _ := newWiredConnPair(t)
	data, err := client.Request("ping", "ping")
	require.NoError(t, err)
	var pong string
	require.NoError(t, json.Unmarshal(data, &pong))
	assert.Equal(t, "pong", pong)
}

func TestContentService_RegisterAndSubmitAndGetSnapshot(t *testing.T) {
	client, _, _ := newWiredConnPair(t)

	_, err := client.Request("content", "registerSchema", content.Schema{Type: "counter", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	op := content.Operation{Type: "counter", ID: "doc1", Version: 1, Data: json.RawMessage(`10`)}
	_, err = client.Request("content", "submitOperation", op)
	require.NoError(t, err)

	data, err := client.Request("content", "getSnapshot", "counter", "doc1", content.MaxVersion)
	require.NoError(t, err)
	var snap content.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, int64(1), snap.Version)
}

func TestContentService_StreamOperations(t *testing.T) {
	client, b, _ := newWiredConnPair(t)
	ctx := context.Background()

	require.NoError(t, b.SubmitOperation(ctx, content.Operation{Type: "counter", ID: "doc1", Version: 1, Data: json.RawMessage(`10`)}))

	stream, err := client.RequestStream("content", "streamOperations", "counter", "doc1", int64(1), int64(2))
	require.NoError(t, err)

	select {
	case item, ok := <-stream:
		require.True(t, ok)
		require.NoError(t, item.Err)
		var op content.Operation
		require.NoError(t, json.Unmarshal(item.Data, &op))
		assert.Equal(t, int64(1), op.Version)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for streamed operation")
	}

	_, ok := <-stream
	assert.False(t, ok, "stream should close after delivering the single requested version")
}

func TestPresenceService_SubmitAndGet(t *testing.T) {
	client, _, _ := newWiredConnPair(t)

	_, err := client.Request("presence", "submitPresence", presence.Presence{SessionID: "s1", UserID: "u1", LocationID: "doc1"})
	require.NoError(t, err)

	data, err := client.Request("presence", "getPresenceBySessionId", "s1")
	require.NoError(t, err)
	var p presence.Presence
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "u1", p.UserID)
}

func TestAuthService_LogInEmitsActiveEvent(t *testing.T) {
	client, _, _ := newWiredConnPair(t)

	activeCh := make(chan struct{}, 1)
	client.OnEvent("auth", "active", func(data json.RawMessage) { activeCh <- struct{}{} })

	_, err := client.Request("auth", "logIn", json.RawMessage(`{"token":"x"}`))
	require.NoError(t, err)

	select {
	case <-activeCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for active event")
	}
}
