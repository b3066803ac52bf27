package auth

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// DefaultNicknamePrefix is combined with the last four phone digits when a
// user registers without a nickname.
const DefaultNicknamePrefix = "user"

// UserProvider verifies credentials and registers accounts
type UserProvider struct {
	store            Users
	hasher           PasswordAuthenticator
	phones           PhoneNormalizer
	clock            Clock
	logger           Logger
	deterministicIDs bool
}

var _ IdentityProvider = (*UserProvider)(nil)

// NewUserProvider will create a new UserProvider
func NewUserProvider(store Users, hasher PasswordAuthenticator) *UserProvider {
	if hasher == nil {
		hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	return &UserProvider{
		store:  store,
		hasher: hasher,
		phones: NewPhoneNormalizer(DefaultPhoneRegion),
		clock:  SystemClock{},
		logger: defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

func (u *UserProvider) WithClock(c Clock) *UserProvider {
	u.clock = normalizeClock(c)
	return u
}

// WithPhoneRegion sets the region assumed for numbers without a country code
func (u *UserProvider) WithPhoneRegion(region string) *UserProvider {
	u.phones = NewPhoneNormalizer(region)
	return u
}

// WithDeterministicIDs derives user ids from the phone number so the same
// number always maps to the same id across environments.
func (u *UserProvider) WithDeterministicIDs(enabled bool) *UserProvider {
	u.deterministicIDs = enabled
	return u
}

// RegisterUser creates an active account with role USER.
func (u *UserProvider) RegisterUser(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	phone, err := u.phones.Normalize(req.Phone)
	if err != nil {
		return nil, err
	}

	if _, err := u.store.GetByPhone(ctx, phone); err == nil {
		return nil, ErrUserAlreadyExists
	} else if KindOf(err) != KindNotFound {
		return nil, err
	}

	hash, err := u.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		nickname = DefaultNicknamePrefix + phoneSuffix(phone, 4)
	}

	record := &User{
		Phone:        phone,
		PasswordHash: hash,
		Nickname:     nickname,
		Role:         RoleUser,
		Status:       UserStatusActive,
		FamilyRole:   FamilyRoleMember,
	}

	if u.deterministicIDs {
		id, err := hashid.NewUUID(phone)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to derive user id")
		}
		record.ID = id
	}

	created, err := u.store.Create(ctx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, withSource(ErrUserAlreadyExists, err, nil)
		}
		return nil, err
	}

	u.logger.Info("user registered", "user_id", created.ID.String())
	return created, nil
}

// VerifyIdentity will find the user, compare to the password, and return identity
func (u *UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	phone, err := u.phones.Normalize(identifier)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := u.store.GetByPhone(ctx, phone)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := u.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, withSource(ErrInvalidCredentials, err, nil)
	}

	if user.IsDisabled() {
		return nil, ErrAccountDisabled
	}

	if err := u.store.TrackSuccessfulLogin(ctx, user.ID, u.clock.Now()); err != nil {
		u.logger.Error("failed to track successful login", "error", err)
	}

	return NewIdentityFromUser(user), nil
}

// FindIdentityByID returns the identity of an active user
func (u *UserProvider) FindIdentityByID(ctx context.Context, id uuid.UUID) (Identity, error) {
	user, err := u.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.IsDisabled() {
		return nil, ErrAccountDisabled
	}

	return NewIdentityFromUser(user), nil
}

// ChangePasswordHandler returns a handler over this provider's directory
// and hasher.
func (u *UserProvider) ChangePasswordHandler() *ChangePasswordHandler {
	return NewChangePasswordHandler(u.store, u.hasher).
		WithClock(u.clock).
		WithLogger(u.logger)
}

// FindUser returns the user record for id
func (u *UserProvider) FindUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return u.store.GetByID(ctx, id)
}
