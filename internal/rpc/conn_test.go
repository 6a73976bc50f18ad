package rpc_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/collabkit/internal/rpc"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

func TestFrame_ValidateRejectsMissingRequestName(t *testing.T) {
	f := &rpc.Frame{Type: rpc.REQUEST, Data: json.RawMessage(`[]`)}
	err := f.Validate()
	require.Error(t, err)
	var ie *collaberrors.InvalidEntity
	assert.ErrorAs(t, err, &ie)
}

func TestFrame_ValidateRejectsNonArrayRequestData(t *testing.T) {
	name := "foo"
	f := &rpc.Frame{Type: rpc.REQUEST, Name: &name, Data: json.RawMessage(`{"a":1}`)}
	assert.Error(t, f.Validate())
}

func TestFrame_ValidateAcceptsWellFormedFrames(t *testing.T) {
	name := "foo"
	cases := []*rpc.Frame{
		{Type: rpc.EVENT, Name: &name, Data: json.RawMessage(`42`)},
		{Type: rpc.REQUEST, Name: &name, Data: json.RawMessage(`[1,2]`)},
		{Type: rpc.REPLY_VALUE, Data: json.RawMessage(`"ok"`)},
		{Type: rpc.REPLY_ERROR, Data: json.RawMessage(`{"kind":"Assert","message":"x"}`)},
		{Type: rpc.REPLY_STREAM, Data: nil},
		{Type: rpc.STREAM_OUTPUT_DATA, Data: json.RawMessage(`1`)},
	}
	for _, f := range cases {
		assert.NoError(t, f.Validate(), "%s", f.Type)
	}
}

func TestConn_RequestReplyRoundTrip(t *testing.T) {
	clientT, serverT := rpc.NewChanTransportPair()

	registry := rpc.NewServiceRegistry()
	require.NoError(t, registry.Register(&rpc.Service{
		Name: "echo",
		Handlers: map[string]rpc.HandlerFunc{
			"ping": func(args []json.RawMessage) (any, error) {
				return "pong", nil
			},
		},
	}))

	server := rpc.NewConn(serverT, registry)
	defer server.Destroy()
	client := rpc.NewConn(clientT, nil)
	defer client.Destroy()

	data, err := client.Request("echo", "ping")
	require.NoError(t, err)
	var reply string
	require.NoError(t, json.Unmarshal(data, &reply))
	assert.Equal(t, "pong", reply)
}

func TestConn_RequestErrorRoundTrip(t *testing.T) {
	clientT, serverT := rpc.NewChanTransportPair()

	registry := rpc.NewServiceRegistry()
	require.NoError(t, registry.Register(&rpc.Service{
		Name: "things",
		Handlers: map[string]rpc.HandlerFunc{
			"fail": func(args []json.RawMessage) (any, error) {
				return nil, collaberrors.NewNotFound("things", "fail", "thing", "x")
			},
		},
	}))

	server := rpc.NewConn(serverT, registry)
	defer server.Destroy()
	client := rpc.NewConn(clientT, nil)
	defer client.Destroy()

	_, err := client.Request("things", "fail")
	require.Error(t, err)
	var nf *collaberrors.NotFound
	assert.ErrorAs(t, err, &nf)
}

func TestConn_DisconnectFailsOutstandingRequest(t *testing.T) {
	clientT, serverT := rpc.NewChanTransportPair()

	registry := rpc.NewServiceRegistry()
	blockCh := make(chan struct{})
	require.NoError(t, registry.Register(&rpc.Service{
		Name: "slow",
		Handlers: map[string]rpc.HandlerFunc{
			"wait": func(args []json.RawMessage) (any, error) {
				<-blockCh
				return "too-late", nil
			},
		},
	}))

	server := rpc.NewConn(serverT, registry)
	defer server.Destroy()
	client := rpc.NewConn(clientT, nil)

	resultCh := make(chan error, 1)
	go func() {
		_, err := client.Request("slow", "wait")
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Destroy() // simulate transport destroyed before reply (E6)
	close(blockCh)

	select {
	case err := <-resultCh:
		require.Error(t, err)
		var disc *collaberrors.Disconnected
		assert.ErrorAs(t, err, &disc)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Disconnected")
	}
}

func TestConn_StreamRequestDeliversItemsThenEnds(t *testing.T) {
	clientT, serverT := rpc.NewChanTransportPair()

	registry := rpc.NewServiceRegistry()
	require.NoError(t, registry.Register(&rpc.Service{
		Name: "tail",
		StreamHandlers: map[string]rpc.StreamHandlerFunc{
			"follow": func(args []json.RawMessage) (<-chan rpc.StreamItem, error) {
				ch := make(chan rpc.StreamItem, 3)
				ch <- rpc.StreamItem{Data: json.RawMessage(`1`)}
				ch <- rpc.StreamItem{Data: json.RawMessage(`2`)}
				close(ch)
				return ch, nil
			},
		},
	}))

	server := rpc.NewConn(serverT, registry)
	defer server.Destroy()
	client := rpc.NewConn(clientT, nil)
	defer client.Destroy()

	stream, err := client.RequestStream("tail", "follow")
	require.NoError(t, err)

	var got []string
	for item := range stream {
		require.NoError(t, item.Err)
		got = append(got, string(item.Data))
	}
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestServiceRegistry_RejectsNameCollision(t *testing.T) {
	registry := rpc.NewServiceRegistry()
	require.NoError(t, registry.Register(&rpc.Service{Name: "content", Handlers: map[string]rpc.HandlerFunc{}}))
	err := registry.Register(&rpc.Service{Name: "content", Handlers: map[string]rpc.HandlerFunc{}})
	assert.Error(t, err)
}

func TestServiceRegistry_RejectsRegistrationAfterDestroy(t *testing.T) {
	registry := rpc.NewServiceRegistry()
	registry.Destroy()
	err := registry.Register(&rpc.Service{Name: "content", Handlers: map[string]rpc.HandlerFunc{}})
	require.Error(t, err)
	var disc *collaberrors.Disconnected
	assert.ErrorAs(t, err, &disc)
}

func TestRegisterProxyNames_RejectsIntrinsicShadow(t *testing.T) {
	err := rpc.RegisterProxyNames([]string{"close"})
	assert.Error(t, err)
}
