package service

import (
	"encoding/json"

	"github.com/AltairaLabs/collabkit/internal/presence"
	"github.com/AltairaLabs/collabkit/internal/pubsub"
	"github.com/AltairaLabs/collabkit/internal/rpc"
)

// NewPresenceService binds svc onto a "presence" rpc.Service, per
// spec.md §6. conn's destroy hook releases any bus subscriptions a
// presence stream opened for this connection.
func NewPresenceService(conn *rpc.Conn, svc presence.Service) *rpc.Service {
	return &rpc.Service{
		Name: "presence",
		Handlers: map[string]rpc.HandlerFunc{
			"submitPresence": func(args []json.RawMessage) (any, error) {
				var p presence.Presence
				if err := decodeArg(args, 0, &p); err != nil {
					return nil, err
				}
				return nil, svc.Submit(p)
			},
			"removePresence": func(args []json.RawMessage) (any, error) {
				var sessionID string
				if err := decodeArg(args, 0, &sessionID); err != nil {
					return nil, err
				}
				return nil, svc.Remove(sessionID)
			},
			"getPresenceBySessionId": func(args []json.RawMessage) (any, error) {
				var sessionID string
				if err := decodeArg(args, 0, &sessionID); err != nil {
					return nil, err
				}
				return svc.GetBySessionID(sessionID)
			},
			"getPresenceByUserId": func(args []json.RawMessage) (any, error) {
				var userID string
				if err := decodeArg(args, 0, &userID); err != nil {
					return nil, err
				}
				return svc.GetByUserID(userID)
			},
			"getPresenceByLocationId": func(args []json.RawMessage) (any, error) {
				var locationID string
				if err := decodeArg(args, 0, &locationID); err != nil {
					return nil, err
				}
				return svc.GetByLocationID(locationID)
			},
		},
		StreamHandlers: map[string]rpc.StreamHandlerFunc{
			"streamPresenceBySessionId": streamPresenceHandler(conn, svc.StreamBySessionID),
			"streamPresenceByUserId":     streamPresenceHandler(conn, svc.StreamByUserID),
			"streamPresenceByLocationId": streamPresenceHandler(conn, svc.StreamByLocationID),
		},
	}
}

// streamPresenceHandler adapts a pubsub subscribe call (keyed by a single
// string argument) into a StreamHandlerFunc. The stream never ends on its
// own — it is live until the RPC connection is destroyed, at which point
// conn's destroy hook unsubscribes it, mirroring presence streams being
// live-until-unsubscribed rather than bounded like content operation
// streams.
func streamPresenceHandler(conn *rpc.Conn, subscribe func(key string, h pubsub.Handler) pubsub.Subscription) rpc.StreamHandlerFunc {
	return func(args []json.RawMessage) (<-chan rpc.StreamItem, error) {
		var key string
		if err := decodeArg(args, 0, &key); err != nil {
			return nil, err
		}
		out := make(chan rpc.StreamItem, 16)
		sub := subscribe(key, presenceForwarder(out))
		conn.OnDestroy(sub.Unsubscribe)
		return out, nil
	}
}

func presenceForwarder(out chan<- rpc.StreamItem) func(any) {
	return func(msg any) {
		p, ok := msg.(presence.Presence)
		if !ok {
			return
		}
		data, err := json.Marshal(p)
		if err != nil {
			return
		}
		out <- rpc.StreamItem{Data: data}
	}
}
