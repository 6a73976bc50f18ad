package service

import (
	"context"

	"github.com/AltairaLabs/collabkit/internal/backend"
	"github.com/AltairaLabs/collabkit/internal/presence"
	"github.com/AltairaLabs/collabkit/internal/rpc"
)

// Bind registers the content, presence, auth, and ping services onto
// conn's ServiceRegistry, backed by b and p. az defaults to AllowAll when
// nil, since policy enforcement is out of scope (spec.md §1 Non-goals).
func Bind(ctx context.Context, registry *rpc.ServiceRegistry, conn *rpc.Conn, b *backend.Backend, p presence.Service, az Authorizer) error {
	if az == nil {
		az = AllowAll{}
	}
	services := []*rpc.Service{
		NewContentService(ctx, conn, b),
		NewPresenceService(conn, p),
		NewAuthService(conn, az),
		NewPingService(),
	}
	for _, svc := range services {
		if err := registry.Register(svc); err != nil {
			return err
		}
	}
	return nil
}
