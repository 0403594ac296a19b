package auth

import (
	"context"

	"github.com/safar/go-storefront/internal/models"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	AccountID int64
	Email     string
	Role      models.Role
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == models.RoleAdmin
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns nil when the request is anonymous.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
