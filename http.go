package auth

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-family-auth/middleware/jwtware"
	"github.com/goliatone/go-print"
)

// Route binds a handler to the roles allowed to call it. An empty Roles
// set makes the route public.
type Route struct {
	Name    string
	Method  string
	Path    string
	Roles   RoleSet
	Handler fiber.Handler
}

// Response is the JSON envelope for successful calls
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the JSON envelope for failed calls
type ErrorResponse struct {
	Code     int            `json:"code"`
	TextCode string         `json:"text_code,omitempty"`
	Kind     ErrorKind      `json:"kind"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AppOptions wires the HTTP boundary
type AppOptions struct {
	Name       string
	Resolver   *AuthenticationResolver
	Guard      *AuthorizationGuard
	Controller *HTTPController
	Logger     Logger
}

// NewApp builds the fiber app with authentication middleware and the
// guarded route table.
func NewApp(opts AppOptions) *fiber.App {
	logger := normalizeLogger(opts.Logger)

	app := fiber.New(fiber.Config{
		AppName:               opts.Name,
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
	})

	app.Use(jwtware.New(jwtware.Config{
		Authenticator: opts.Resolver.Middleware(),
		ContextEnricher: func(ctx context.Context, principal any) context.Context {
			if p, ok := principal.(*Principal); ok {
				return WithPrincipal(ctx, p)
			}
			return ctx
		},
	}))

	RegisterRoutes(app, opts.Guard, opts.Controller.Routes()...)
	return app
}

// RegisterRoutes mounts routes, each behind the guard for its RoleSet.
func RegisterRoutes(router fiber.Router, guard *AuthorizationGuard, routes ...Route) {
	for _, r := range routes {
		h := r.Handler
		if r.Roles.Empty() {
			router.Add(r.Method, r.Path, h).Name(r.Name)
			continue
		}
		router.Add(r.Method, r.Path, GuardMiddleware(guard, r.Roles), h).Name(r.Name)
	}
}

// GuardMiddleware rejects requests whose principal does not hold one of
// roles.
func GuardMiddleware(guard *AuthorizationGuard, roles RoleSet) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromFiber(c)
		if err := guard.Authorize(principal, roles); err != nil {
			if principal == nil {
				if reason := AuthErrorFromFiber(c); reason != nil {
					var richErr *errors.Error
					if errors.As(reason, &richErr) && richErr != nil {
						return reason
					}
					return withSource(ErrUnauthenticated, reason, nil)
				}
			}
			return err
		}
		return c.Next()
	}
}

// ErrorHandler renders errors as ErrorResponse values
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Code:    fiberErr.Code,
				Kind:    kindForStatus(fiberErr.Code),
				Message: fiberErr.Message,
			})
		}

		var richErr *errors.Error
		if !errors.As(err, &richErr) || richErr == nil {
			richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
				WithCode(errors.CodeInternal)
		}

		kind := KindOf(richErr)
		status := statusForError(richErr, kind)

		res := ErrorResponse{
			Code:     status,
			TextCode: richErr.TextCode,
			Kind:     kind,
			Message:  richErr.Message,
			Metadata: richErr.Metadata,
		}

		if kind == KindInternal {
			logger.Error("request failed",
				"path", c.Path(),
				"error", err,
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
			res.Metadata = nil
		} else {
			logger.Debug("request rejected",
				"path", c.Path(),
				"text_code", richErr.TextCode,
				"kind", string(kind),
			)
		}

		return c.Status(status).JSON(res)
	}
}

func statusForError(e *errors.Error, kind ErrorKind) int {
	if e.Code >= 400 && e.Code < 600 {
		return e.Code
	}
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindUnauthorized
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	}
	if status >= 400 && status < 500 {
		return KindInvalidRequest
	}
	return KindInternal
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Code: http.StatusOK, Message: "success", Data: data})
}
