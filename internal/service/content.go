// Package service binds internal/backend and internal/presence onto
// internal/rpc's ServiceRegistry, implementing the content, presence,
// auth, and ping services of spec.md §6.
package service

import (
	"context"
	"encoding/json"

	"github.com/AltairaLabs/collabkit/internal/backend"
	"github.com/AltairaLabs/collabkit/internal/content"
	"github.com/AltairaLabs/collabkit/internal/rpc"
)

// NewContentService binds b onto a "content" rpc.Service. conn's destroy
// hook is used to release any StreamOperations subscriber left open when
// the connection drops, so a client that never drains its stream doesn't
// leak a cache subscription.
func NewContentService(ctx context.Context, conn *rpc.Conn, b *backend.Backend) *rpc.Service {
	return &rpc.Service{
		Name: "content",
		Handlers: map[string]rpc.HandlerFunc{
			"registerSchema": func(args []json.RawMessage) (any, error) {
				var schema content.Schema
				if err := decodeArg(args, 0, &schema); err != nil {
					return nil, err
				}
				return b.RegisterSchema(ctx, schema)
			},
			"getSchema": func(args []json.RawMessage) (any, error) {
				var hash string
				if err := decodeArg(args, 0, &hash); err != nil {
					return nil, err
				}
				return b.GetSchema(ctx, hash)
			},
			"getSnapshot": func(args []json.RawMessage) (any, error) {
				var typ, id string
				var version int64
				if err := decodeArg(args, 0, &typ); err != nil {
					return nil, err
				}
				if err := decodeArg(args, 1, &id); err != nil {
					return nil, err
				}
				if err := decodeArg(args, 2, &version); err != nil {
					return nil, err
				}
				return b.GetSnapshot(ctx, typ, id, version)
			},
			"submitOperation": func(args []json.RawMessage) (any, error) {
				var op content.Operation
				if err := decodeArg(args, 0, &op); err != nil {
					return nil, err
				}
				return nil, b.SubmitOperation(ctx, op)
			},
		},
		StreamHandlers: map[string]rpc.StreamHandlerFunc{
			"streamOperations": func(args []json.RawMessage) (<-chan rpc.StreamItem, error) {
				var typ, id string
				var versionStart, versionEnd int64
				if err := decodeArg(args, 0, &typ); err != nil {
					return nil, err
				}
				if err := decodeArg(args, 1, &id); err != nil {
					return nil, err
				}
				if err := decodeArg(args, 2, &versionStart); err != nil {
					return nil, err
				}
				if err := decodeArg(args, 3, &versionEnd); err != nil {
					return nil, err
				}
				sub, err := b.StreamOperations(ctx, typ, id, versionStart, versionEnd)
				if err != nil {
					return nil, err
				}
				conn.OnDestroy(sub.Close)
				out := make(chan rpc.StreamItem, 16)
				go func() {
					defer close(out)
					for op := range sub.Operations() {
						data, merr := json.Marshal(op)
						if merr != nil {
							out <- rpc.StreamItem{Err: merr}
							return
						}
						out <- rpc.StreamItem{Data: data}
					}
					if err := sub.Err(); err != nil {
						out <- rpc.StreamItem{Err: err}
					}
				}()
				return out, nil
			},
		},
	}
}

func decodeArg(args []json.RawMessage, i int, dst any) error {
	if i >= len(args) {
		return json.Unmarshal([]byte("null"), dst)
	}
	return json.Unmarshal(args[i], dst)
}
