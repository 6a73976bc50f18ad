package service

import (
	"encoding/json"

	"github.com/AltairaLabs/collabkit/internal/rpc"
)

// Authorizer makes the policy decisions the auth service surfaces.
// collabkit ships no real policy implementation — authn/z policy is out of scope
// (spec.md §1 Non-goals) — but the interface and active/inactive wiring
// are exercised end to end via AllowAll, so the transport-level plumbing
// is tested without collabkit making the policy call itself.
type Authorizer interface {
	// LogIn returns the userId/sessionId to report on the "active" event
	// (spec.md §6) alongside any error.
	LogIn(credentials json.RawMessage) (userID, sessionID string, err error)
	LogOut() error
	MayReadContent(typ, id string) bool
	MayWriteContent(typ, id string) bool
	MayReadPresence(p json.RawMessage) bool
	MayWritePresence(p json.RawMessage) bool
}

// AllowAll is a trivial Authorizer that permits everything and is used as
// the default when no policy collaborator is wired in.
type AllowAll struct{}

func (AllowAll) LogIn(json.RawMessage) (string, string, error) { return "", "", nil }
func (AllowAll) LogOut() error                                 { return nil }
func (AllowAll) MayReadContent(_, _ string) bool               { return true }
func (AllowAll) MayWriteContent(_, _ string) bool              { return true }
func (AllowAll) MayReadPresence(json.RawMessage) bool          { return true }
func (AllowAll) MayWritePresence(json.RawMessage) bool         { return true }

// activeEvent is the payload of the "active" event emitted on login,
// per spec.md §6.
type activeEvent struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// NewAuthService binds az onto an "auth" rpc.Service, emitting the
// "active"/"inactive" events on login/logout per spec.md §6.
func NewAuthService(conn *rpc.Conn, az Authorizer) *rpc.Service {
	return &rpc.Service{
		Name: "auth",
		Handlers: map[string]rpc.HandlerFunc{
			"logIn": func(args []json.RawMessage) (any, error) {
				var creds json.RawMessage
				if len(args) > 0 {
					creds = args[0]
				}
				userID, sessionID, err := az.LogIn(creds)
				if err != nil {
					return nil, err
				}
				_ = conn.Emit("auth", "active", activeEvent{UserID: userID, SessionID: sessionID})
				return nil, nil
			},
			"logOut": func(args []json.RawMessage) (any, error) {
				if err := az.LogOut(); err != nil {
					return nil, err
				}
				_ = conn.Emit("auth", "inactive", struct{}{})
				return nil, nil
			},
			"mayReadContent": func(args []json.RawMessage) (any, error) {
				var typ, id string
				_ = decodeArg(args, 0, &typ)
				_ = decodeArg(args, 1, &id)
				return az.MayReadContent(typ, id), nil
			},
			"mayWriteContent": func(args []json.RawMessage) (any, error) {
				var typ, id string
				_ = decodeArg(args, 0, &typ)
				_ = decodeArg(args, 1, &id)
				return az.MayWriteContent(typ, id), nil
			},
			"mayReadPresence": func(args []json.RawMessage) (any, error) {
				var p json.RawMessage
				if len(args) > 0 {
					p = args[0]
				}
				return az.MayReadPresence(p), nil
			},
			"mayWritePresence": func(args []json.RawMessage) (any, error) {
				var p json.RawMessage
				if len(args) > 0 {
					p = args[0]
				}
				return az.MayWritePresence(p), nil
			},
		},
	}
}
