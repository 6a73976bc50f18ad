package service

import (
	"encoding/json"

	"github.com/AltairaLabs/collabkit/internal/rpc"
)

// NewPingService implements the liveness "ping" service of spec.md §6.
func NewPingService() *rpc.Service {
	return &rpc.Service{
		Name: "ping",
		Handlers: map[string]rpc.HandlerFunc{
			"ping": func(args []json.RawMessage) (any, error) {
				return "pong", nil
			},
		},
	}
}
