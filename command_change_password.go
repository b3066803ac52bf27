package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ChangePasswordMessage asks to replace the password of UserID
type ChangePasswordMessage struct {
	UserID      uuid.UUID `json:"user_id"`
	OldPassword string    `json:"old_password"`
	NewPassword string    `json:"new_password"`
}

func (m ChangePasswordMessage) Type() string {
	return "user.change_password"
}

func (m ChangePasswordMessage) Validate() error {
	if m.UserID == uuid.Nil {
		return invalidRequest("user id is required", nil)
	}
	return ChangePasswordRequest{OldPassword: m.OldPassword, NewPassword: m.NewPassword}.Validate()
}

// ChangePasswordHandler verifies the current password and stores the hash
// of the new one.
type ChangePasswordHandler struct {
	users    Users
	hasher   PasswordAuthenticator
	clock    Clock
	activity ActivitySink
	logger   Logger
	timeout  time.Duration
}

// NewChangePasswordHandler creates a handler with sane defaults.
func NewChangePasswordHandler(users Users, hasher PasswordAuthenticator) *ChangePasswordHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	return &ChangePasswordHandler{
		users:    users,
		hasher:   hasher,
		clock:    SystemClock{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		timeout:  10 * time.Second,
	}
}

// WithActivitySink sets the sink used to emit password change events.
func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *ChangePasswordHandler) WithClock(c Clock) *ChangePasswordHandler {
	h.clock = normalizeClock(c)
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, msg ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, msg ChangePasswordMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	user, err := h.users.GetByID(ctx, msg.UserID)
	if err != nil {
		return err
	}

	if user.IsDisabled() {
		return ErrAccountDisabled
	}

	if err := h.hasher.ComparePasswordAndHash(msg.OldPassword, user.PasswordHash); err != nil {
		return withSource(ErrWrongPassword, err, nil)
	}

	hash, err := h.hasher.HashPassword(msg.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	// the stored hash must still be the one the old password was checked against
	updated, err := h.users.UpdatePassword(ctx, user.ID, user.PasswordHash, hash, h.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		return ErrPasswordChanged
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordChange,
		ActorID:    user.ID.String(),
		UserID:     user.ID.String(),
		OccurredAt: h.clock.Now(),
	})
	return nil
}
