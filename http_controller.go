package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-family-auth/middleware/jwtware"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// HTTPController exposes the account and family operations over JSON.
type HTTPController struct {
	auther     *Auther
	membership *MembershipCoordinator
	logger     Logger
	authScheme string
}

// NewHTTPController builds a controller over the account flows and the
// membership coordinator.
func NewHTTPController(auther *Auther, membership *MembershipCoordinator, logger Logger) *HTTPController {
	return &HTTPController{
		auther:     auther,
		membership: membership,
		logger:     normalizeLogger(logger),
		authScheme: jwtware.DefaultAuthScheme,
	}
}

var (
	anyAccount   = Roles(RoleAdmin, RoleUser, RoleGuest)
	familyAccess = Roles(RoleAdmin, RoleUser)
)

// Routes is the route table with the roles each route requires
func (h *HTTPController) Routes() []Route {
	return []Route{
		{Name: "health", Method: fiber.MethodGet, Path: "/healthz", Roles: Public(), Handler: h.Health},

		{Name: "auth.register", Method: fiber.MethodPost, Path: "/api/auth/register", Roles: Public(), Handler: h.Register},
		{Name: "auth.login", Method: fiber.MethodPost, Path: "/api/auth/login", Roles: Public(), Handler: h.Login},
		{Name: "auth.refresh", Method: fiber.MethodPost, Path: "/api/auth/refresh", Roles: Public(), Handler: h.Refresh},
		{Name: "auth.change-password", Method: fiber.MethodPost, Path: "/api/auth/change-password", Roles: anyAccount, Handler: h.ChangePassword},
		{Name: "auth.logout", Method: fiber.MethodPost, Path: "/api/auth/logout", Roles: anyAccount, Handler: h.Logout},
		{Name: "users.me", Method: fiber.MethodGet, Path: "/api/users/me", Roles: anyAccount, Handler: h.Me},

		{Name: "family.create", Method: fiber.MethodPost, Path: "/api/family/create", Roles: familyAccess, Handler: h.CreateFamily},
		{Name: "family.my", Method: fiber.MethodGet, Path: "/api/family/my", Roles: familyAccess, Handler: h.MyFamily},
		{Name: "family.qrcode", Method: fiber.MethodGet, Path: "/api/family/qrcode", Roles: familyAccess, Handler: h.InviteCode},
		{Name: "family.info", Method: fiber.MethodGet, Path: "/api/family/info/:code", Roles: familyAccess, Handler: h.PreviewInvite},
		{Name: "family.join", Method: fiber.MethodPost, Path: "/api/family/join", Roles: familyAccess, Handler: h.JoinFamily},
		{Name: "family.leave", Method: fiber.MethodPost, Path: "/api/family/leave", Roles: familyAccess, Handler: h.LeaveFamily},
		{Name: "family.members", Method: fiber.MethodGet, Path: "/api/family/members", Roles: familyAccess, Handler: h.Members},
		{Name: "family.members.remove", Method: fiber.MethodDelete, Path: "/api/family/members/:targetUserId", Roles: familyAccess, Handler: h.RemoveMember},
		{Name: "family.rename", Method: fiber.MethodPut, Path: "/api/family/name", Roles: familyAccess, Handler: h.RenameFamily},
	}
}

func (h *HTTPController) Health(c *fiber.Ctx) error {
	return ok(c, fiber.Map{"status": "ok"})
}

func (h *HTTPController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.auther.Register(c.UserContext(), req)
	if err != nil {
		return err
	}

	h.logger.Debug("registered", "user", print.MaybePrettyJSON(res.User))
	return ok(c, res)
}

func (h *HTTPController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.auther.Login(c.UserContext(), req.Phone, req.Password)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (h *HTTPController) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	pair, err := h.auther.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return ok(c, pair)
}

func (h *HTTPController) Logout(c *fiber.Ctx) error {
	var req LogoutRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}

	token, err := jwtware.TokenFromHeader(c.Get(jwtware.HeaderAuthorization), h.authScheme)
	if err != nil {
		return withSource(ErrUnauthenticated, err, nil)
	}

	if err := h.auther.Logout(c.UserContext(), token, req.RefreshToken); err != nil {
		return err
	}
	return ok(c, nil)
}

func (h *HTTPController) ChangePassword(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	// principals resolved from the dev header carry no bearer token
	token, _ := jwtware.TokenFromHeader(c.Get(jwtware.HeaderAuthorization), h.authScheme)

	if err := h.auther.ChangePassword(c.UserContext(), p.UserID, req, token); err != nil {
		return err
	}
	return ok(c, nil)
}

func (h *HTTPController) Me(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	user, err := h.auther.Me(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return ok(c, user)
}

func (h *HTTPController) CreateFamily(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req CreateFamilyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	view, err := h.membership.CreateFamily(c.UserContext(), p.UserID, req.Name)
	if err != nil {
		return err
	}

	h.logger.Debug("family created", "family", print.MaybePrettyJSON(view))
	return ok(c, view)
}

func (h *HTTPController) MyFamily(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	view, err := h.membership.MyFamily(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return ok(c, view)
}

func (h *HTTPController) InviteCode(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	info, err := h.membership.InviteCode(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return ok(c, info)
}

func (h *HTTPController) PreviewInvite(c *fiber.Ctx) error {
	preview, err := h.membership.PreviewInvite(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}
	return ok(c, preview)
}

func (h *HTTPController) JoinFamily(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req JoinFamilyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	view, err := h.membership.JoinFamily(c.UserContext(), p.UserID, req.InviteCode)
	if err != nil {
		return err
	}
	return ok(c, view)
}

func (h *HTTPController) LeaveFamily(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	res, err := h.membership.LeaveFamily(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (h *HTTPController) Members(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	members, err := h.membership.Members(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return ok(c, members)
}

func (h *HTTPController) RemoveMember(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	raw := c.Params("targetUserId")
	if err := validateUserID(raw); err != nil {
		return err
	}
	target, err := uuid.Parse(raw)
	if err != nil {
		return invalidRequest("target user id is invalid", map[string]any{"targetUserId": raw})
	}

	if err := h.membership.RemoveMember(c.UserContext(), p.UserID, target); err != nil {
		return err
	}
	return ok(c, nil)
}

func (h *HTTPController) RenameFamily(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req RenameFamilyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	view, err := h.membership.RenameFamily(c.UserContext(), p.UserID, req.Name)
	if err != nil {
		return err
	}
	return ok(c, view)
}

func principal(c *fiber.Ctx) (*Principal, error) {
	p, found := PrincipalFromContext(c.UserContext())
	if !found {
		return nil, ErrUnauthenticated
	}
	return p, nil
}

func bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return invalidRequest("request body is malformed", map[string]any{"error": err.Error()})
	}
	return nil
}
