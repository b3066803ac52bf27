package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AuthResponse is returned by register and login
type AuthResponse struct {
	TokenPair
	User *User `json:"user"`
}

// Auther runs the account flows: registration, login, refresh and logout
type Auther struct {
	users        *UserProvider
	tokens       TokenService
	revocations  RevocationStore
	logger       Logger
	activitySink ActivitySink
	clock        Clock
}

// NewAuthenticator returns a new Auther. A nil revocation store keeps
// revocations in memory.
func NewAuthenticator(users *UserProvider, tokens TokenService, revocations RevocationStore) *Auther {
	if revocations == nil {
		revocations = NewMemoryRevocationStore(nil)
	}
	return &Auther{
		users:        users,
		tokens:       tokens,
		revocations:  revocations,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		clock:        SystemClock{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithClock(c Clock) *Auther {
	s.clock = normalizeClock(c)
	return s
}

// IssueTokens mints an access and refresh pair for identity
func (s *Auther) IssueTokens(identity Identity) (TokenPair, error) {
	return s.tokens.IssueTokens(identity)
}

// Register creates an account and logs it in
func (s *Auther) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	user, err := s.users.RegisterUser(ctx, req)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssueTokens(NewIdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	s.emit(ctx, ActivityEventRegistered, user.ID.String(), nil)
	return &AuthResponse{TokenPair: pair, User: user}, nil
}

// Login verifies the phone and password and issues a token pair
func (s *Auther) Login(ctx context.Context, phone, password string) (*AuthResponse, error) {
	if err := (LoginRequest{Phone: phone, Password: password}).Validate(); err != nil {
		return nil, err
	}

	identity, err := s.users.VerifyIdentity(ctx, phone, password)
	if err != nil {
		s.logger.Info("login failed", "error", err)
		s.emit(ctx, ActivityEventLoginFailure, "", map[string]any{"text_code": textCode(err)})
		return nil, err
	}

	pair, err := s.tokens.IssueTokens(identity)
	if err != nil {
		return nil, err
	}

	var user *User
	if ui, ok := identity.(UserIdentity); ok {
		user = ui.User()
	}

	s.emit(ctx, ActivityEventLoginSuccess, identity.ID(), nil)
	return &AuthResponse{TokenPair: pair, User: user}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented refresh
// token is claimed in the revocation store before anything is issued, so
// concurrent replays of one token yield at most one new pair.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := (RefreshRequest{RefreshToken: refreshToken}).Validate(); err != nil {
		return nil, err
	}

	claims, err := s.tokens.Validate(refreshToken)
	if err != nil {
		return nil, withSource(ErrUnauthenticated, err, nil)
	}

	if claims.Kind() != TokenKindRefresh {
		return nil, ErrTokenKind
	}

	ttl := s.tokens.RemainingTTL(refreshToken)
	if ttl <= 0 {
		return nil, ErrTokenExpired
	}

	claimed, err := s.revocations.Claim(ctx, refreshToken, ttl)
	if err != nil {
		return nil, storeError(err, "revocation claim")
	}
	if !claimed {
		return nil, ErrTokenRevoked
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, withSource(ErrTokenMalformed, err, nil)
	}

	identity, err := s.users.FindIdentityByID(ctx, userID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, withSource(ErrUnauthenticated, err, nil)
		}
		return nil, err
	}

	pair, err := s.tokens.IssueTokens(identity)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, ActivityEventTokenRefreshed, identity.ID(), nil)
	return &pair, nil
}

// Logout revokes accessToken, and refreshToken when it belongs to the same
// user, for their remaining lifetime. Invalid or expired tokens are ignored.
func (s *Auther) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return nil
	}

	if err := s.revoke(ctx, accessToken); err != nil {
		return err
	}

	var subject string
	if claims, err := s.tokens.Validate(accessToken); err == nil {
		subject = claims.UserID()
	}

	if refreshToken != "" && subject != "" {
		if claims, err := s.tokens.Validate(refreshToken); err == nil && claims.UserID() == subject {
			if err := s.revoke(ctx, refreshToken); err != nil {
				return err
			}
		}
	}

	s.emit(ctx, ActivityEventLogout, subject, nil)
	return nil
}

// ChangePassword replaces the password of userID after checking the current
// one. The access token the request was made with is revoked, and so is
// req.RefreshToken when it belongs to the same user.
func (s *Auther) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest, accessToken string) error {
	handler := s.users.ChangePasswordHandler().
		WithActivitySink(s.activitySink).
		WithLogger(s.logger).
		WithClock(s.clock)

	err := handler.Execute(ctx, ChangePasswordMessage{
		UserID:      userID,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		return err
	}

	if accessToken != "" {
		if err := s.revoke(ctx, accessToken); err != nil {
			s.logger.Warn("failed to revoke access token after password change", "error", err)
		}
	}

	if req.RefreshToken != "" {
		if claims, err := s.tokens.Validate(req.RefreshToken); err == nil && claims.UserID() == userID.String() {
			if err := s.revoke(ctx, req.RefreshToken); err != nil {
				s.logger.Warn("failed to revoke refresh token after password change", "error", err)
			}
		}
	}
	return nil
}

// Me returns the caller's account
func (s *Auther) Me(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.users.FindUser(ctx, userID)
}

func (s *Auther) revoke(ctx context.Context, token string) error {
	ttl := s.tokens.RemainingTTL(token)
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.Revoke(ctx, token, ttl); err != nil {
		return storeError(err, "revoke token")
	}
	return nil
}

func (s *Auther) emit(ctx context.Context, t ActivityEventType, userID string, meta map[string]any) {
	emitActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType:  t,
		ActorID:    userID,
		UserID:     userID,
		Metadata:   meta,
		OccurredAt: s.clock.Now(),
	})
}

func textCode(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr != nil {
		return richErr.TextCode
	}
	return ""
}
