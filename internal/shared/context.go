package shared

import (
	"context"

	"github.com/google/uuid"
)

// Identity carries the verified tenant and caller resolved by the auth
// gateway. The ledger core never resolves credentials itself.
type Identity struct {
	TenantID uuid.UUID
	ActorID  int64
}

type identityContextKey struct{}

// ContextWithIdentity stores the request identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the request identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.TenantID == uuid.Nil {
		return Identity{}, false
	}
	return id, true
}
