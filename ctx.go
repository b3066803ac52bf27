package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-family-auth/middleware/jwtware"
)

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal in the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(*Principal)
	return p, ok && p != nil
}

// PrincipalFromFiber returns the principal resolved by the authentication
// middleware, if any.
func PrincipalFromFiber(c *fiber.Ctx) (*Principal, bool) {
	p, ok := c.Locals(jwtware.DefaultContextKey).(*Principal)
	return p, ok && p != nil
}

// AuthErrorFromFiber returns why authentication failed for this request.
func AuthErrorFromFiber(c *fiber.Ctx) error {
	err, _ := c.Locals(jwtware.DefaultErrorKey).(error)
	return err
}
