package jwtware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	HeaderAuthorization = fiber.HeaderAuthorization
	DefaultAuthScheme   = "Bearer"
	DefaultContextKey   = "principal"
	DefaultErrorKey     = "auth_error"
)

var ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")

// Headers is the read side of request headers. http.Header satisfies it.
type Headers interface {
	Get(key string) string
}

// Authenticator resolves the caller of a request from its headers
// without importing the auth package.
type Authenticator interface {
	Authenticate(ctx context.Context, headers Headers) (any, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, headers Headers) (any, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, headers Headers) (any, error) {
	return f(ctx, headers)
}

// ValidationListener is invoked after a principal has been resolved.
type ValidationListener func(c *fiber.Ctx, principal any) error

type Config struct {
	Filter        func(*fiber.Ctx) bool
	Authenticator Authenticator
	// ContextKey is the fiber local holding the resolved principal.
	ContextKey string
	// ErrorKey is the fiber local holding the resolution error.
	ErrorKey string
	// Required aborts the request through ErrorHandler when resolution
	// fails. By default the request proceeds and the route guard decides.
	Required     bool
	ErrorHandler fiber.ErrorHandler

	// ContextEnricher propagates the principal to the request's user context.
	ContextEnricher func(c context.Context, principal any) context.Context

	ValidationListeners []ValidationListener
}

// New returns the authentication middleware. It never rejects a request on
// its own unless cfg.Required is set.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		principal, err := cfg.Authenticator.Authenticate(c.UserContext(), FiberHeaders{Ctx: c})
		if err == nil {
			err = cfg.runValidationListeners(c, principal)
		}

		if err != nil {
			c.Locals(cfg.ErrorKey, err)
			if cfg.Required {
				return cfg.ErrorHandler(c, err)
			}
			return c.Next()
		}

		c.Locals(cfg.ContextKey, principal)

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), principal))
		}

		return c.Next()
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Authenticator == nil {
		panic("AUTH: JWT middleware configuration: Authenticator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.ErrorKey == "" {
		cfg.ErrorKey = DefaultErrorKey
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			if errors.Is(err, ErrJWTMissingOrMalformed) {
				return c.Status(fiber.StatusBadRequest).SendString(ErrJWTMissingOrMalformed.Error())
			}
			return c.Status(fiber.StatusUnauthorized).SendString("Invalid or expired token")
		}
	}

	return cfg
}

func (cfg *Config) runValidationListeners(c *fiber.Ctx, principal any) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(c, principal); err != nil {
			return err
		}
	}
	return nil
}

// FiberHeaders exposes fiber request headers as Headers.
type FiberHeaders struct {
	Ctx *fiber.Ctx
}

// Get implements Headers.
func (h FiberHeaders) Get(key string) string {
	return h.Ctx.Get(key)
}

// TokenFromHeader extracts the token from an Authorization header value
// using authScheme, case-insensitively.
func TokenFromHeader(value, authScheme string) (string, error) {
	authScheme = strings.TrimSpace(authScheme)
	if authScheme == "" {
		authScheme = DefaultAuthScheme
	}

	value = strings.TrimSpace(value)
	l := len(authScheme)
	if len(value) > l+1 && strings.EqualFold(value[:l], authScheme) && value[l] == ' ' {
		if token := strings.TrimSpace(value[l:]); token != "" {
			return token, nil
		}
	}
	return "", ErrJWTMissingOrMalformed
}
