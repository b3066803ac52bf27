package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FamilyView is a family as seen by one of its members
type FamilyView struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	InviteCode    string     `json:"invite_code,omitempty"`
	AdminID       uuid.UUID  `json:"admin_id"`
	AdminNickname string     `json:"admin_nickname,omitempty"`
	MemberCount   int        `json:"member_count"`
	MyRole        FamilyRole `json:"my_role"`
	IsAdmin       bool       `json:"is_admin"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// InviteInfo is what an admin shares to invite members
type InviteInfo struct {
	FamilyID    uuid.UUID `json:"family_id"`
	FamilyName  string    `json:"family_name"`
	InviteCode  string    `json:"invite_code"`
	QRContent   string    `json:"qr_content"`
	MemberCount int       `json:"member_count"`
}

// InvitePreview is shown before joining through a code
type InvitePreview struct {
	FamilyName    string `json:"family_name"`
	MemberCount   int    `json:"member_count"`
	AdminNickname string `json:"admin_nickname,omitempty"`
}

// MemberView is a family member with a masked phone number
type MemberView struct {
	UserID     uuid.UUID  `json:"user_id"`
	Nickname   string     `json:"nickname"`
	Avatar     string     `json:"avatar,omitempty"`
	Phone      string     `json:"phone"`
	FamilyRole FamilyRole `json:"family_role"`
	JoinedAt   *time.Time `json:"joined_at,omitempty"`
	IsMe       bool       `json:"is_me"`
}

// LeaveResult describes the outcome of leaving a family
type LeaveResult struct {
	FamilyID  uuid.UUID `json:"family_id"`
	Dissolved bool      `json:"dissolved"`
}

// MembershipCoordinator runs the family lifecycle. Each mutation executes in
// a single database transaction using conditional statements, so concurrent
// instances cannot break the member count or single family invariants.
type MembershipCoordinator struct {
	repos    RepositoryManager
	codes    inviteCodeGenerator
	clock    Clock
	logger   Logger
	activity ActivitySink
	timeout  time.Duration
}

// MembershipOption configures a MembershipCoordinator
type MembershipOption func(*MembershipCoordinator)

func WithMembershipClock(c Clock) MembershipOption {
	return func(m *MembershipCoordinator) { m.clock = normalizeClock(c) }
}

func WithMembershipLogger(l Logger) MembershipOption {
	return func(m *MembershipCoordinator) { m.logger = normalizeLogger(l) }
}

func WithMembershipActivity(s ActivitySink) MembershipOption {
	return func(m *MembershipCoordinator) { m.activity = normalizeActivitySink(s) }
}

// WithMembershipTimeout bounds every transaction
func WithMembershipTimeout(d time.Duration) MembershipOption {
	return func(m *MembershipCoordinator) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithInviteCodeSource replaces the random code source
func WithInviteCodeSource(src CodeSource) MembershipOption {
	return func(m *MembershipCoordinator) { m.codes.source = src }
}

// WithInviteCodeAttempts overrides MaxInviteCodeAttempts
func WithInviteCodeAttempts(n int) MembershipOption {
	return func(m *MembershipCoordinator) { m.codes.maxAttempts = n }
}

func NewMembershipCoordinator(repos RepositoryManager, opts ...MembershipOption) *MembershipCoordinator {
	m := &MembershipCoordinator{
		repos:    repos,
		clock:    SystemClock{},
		logger:   defLogger{},
		activity: noopActivitySink{},
		timeout:  defaultMembershipTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.codes.families = repos.Families()
	m.codes.logger = m.logger
	return m
}

func (m *MembershipCoordinator) run(ctx context.Context, operation string, f func(ctx context.Context, tx bun.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "context cancelled during "+operation)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.repos.RunInTx(ctx, nil, f); err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			m.logger.Debug("membership operation rejected", "operation", operation, "text_code", richErr.TextCode)
			return err
		}
		m.logger.Error("membership transaction failed", "operation", operation, "error", err)
		return storeError(err, operation)
	}
	return nil
}

// CreateFamily creates a family administered by userID.
func (m *MembershipCoordinator) CreateFamily(ctx context.Context, userID uuid.UUID, name string) (*FamilyView, error) {
	if err := (CreateFamilyRequest{Name: name}).Validate(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)

	var view *FamilyView
	err := m.run(ctx, "create family", func(ctx context.Context, tx bun.Tx) error {
		user, err := m.repos.Users().GetByIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if user.InFamily() {
			return ErrAlreadyInFamily
		}

		code, err := m.codes.Generate(ctx, tx)
		if err != nil {
			return err
		}

		family, err := m.repos.Families().CreateTx(ctx, tx, &Family{
			Name:        name,
			InviteCode:  code,
			AdminID:     userID,
			MemberCount: 1,
		})
		if err != nil {
			return err
		}

		assigned, err := m.repos.Users().AssignFamilyTx(ctx, tx, userID, family.ID, FamilyRoleAdmin, m.clock.Now())
		if err != nil {
			return err
		}
		if !assigned {
			return ErrAlreadyInFamily
		}

		view = familyView(family, FamilyRoleAdmin, user.Nickname)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, ActivityEventFamilyCreated, userID, userID, view.ID, map[string]any{"name": view.Name})
	return view, nil
}

// JoinFamily adds userID to the active family owning code.
func (m *MembershipCoordinator) JoinFamily(ctx context.Context, userID uuid.UUID, code string) (*FamilyView, error) {
	if err := (JoinFamilyRequest{InviteCode: code}).Validate(); err != nil {
		return nil, err
	}
	normalized, wellFormed := NormalizeInviteCode(code)

	var view *FamilyView
	err := m.run(ctx, "join family", func(ctx context.Context, tx bun.Tx) error {
		user, err := m.repos.Users().GetByIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if user.InFamily() {
			return ErrAlreadyInFamily
		}

		if !wellFormed {
			return ErrInviteCodeInvalid
		}

		family, err := m.repos.Families().GetActiveByInviteCodeTx(ctx, tx, normalized)
		if err != nil {
			return err
		}

		now := m.clock.Now()
		assigned, err := m.repos.Users().AssignFamilyTx(ctx, tx, userID, family.ID, FamilyRoleMember, now)
		if err != nil {
			return err
		}
		if !assigned {
			return ErrAlreadyInFamily
		}

		counted, err := m.repos.Families().IncrementMembersTx(ctx, tx, family.ID, now)
		if err != nil {
			return err
		}
		if !counted {
			return ErrInviteCodeInvalid
		}

		nickname, err := m.adminNickname(ctx, tx, family)
		if err != nil {
			return err
		}

		family.MemberCount++
		view = familyView(family, FamilyRoleMember, nickname)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, ActivityEventFamilyJoined, userID, userID, view.ID, nil)
	return view, nil
}

// LeaveFamily removes userID from their family. The admin may only leave
// as the last member, which dissolves the family.
func (m *MembershipCoordinator) LeaveFamily(ctx context.Context, userID uuid.UUID) (*LeaveResult, error) {
	var result *LeaveResult
	err := m.run(ctx, "leave family", func(ctx context.Context, tx bun.Tx) error {
		user, err := m.repos.Users().GetByIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if !user.InFamily() {
			return ErrNotInFamily
		}
		familyID := *user.FamilyID
		now := m.clock.Now()

		family, err := m.repos.Families().GetByIDTx(ctx, tx, familyID)
		if err != nil {
			if KindOf(err) != KindNotFound {
				return err
			}
			if _, err := m.repos.Users().ClearFamilyTx(ctx, tx, userID, familyID, now); err != nil {
				return err
			}
			m.logger.Warn("cleared dangling family reference", "user_id", userID.String(), "family_id", familyID.String())
			result = &LeaveResult{FamilyID: familyID}
			return nil
		}

		cleared, err := m.repos.Users().ClearFamilyTx(ctx, tx, userID, familyID, now)
		if err != nil {
			return err
		}
		if !cleared {
			return ErrFamilyChanged
		}

		if user.FamilyRole == FamilyRoleAdmin {
			if family.MemberCount > 1 {
				return withSource(ErrAdminMustTransfer, nil, map[string]any{"member_count": family.MemberCount})
			}

			deleted, err := m.repos.Families().DeleteIfSoleMemberTx(ctx, tx, familyID)
			if err != nil {
				return err
			}
			if !deleted {
				return ErrAdminMustTransfer
			}

			result = &LeaveResult{FamilyID: familyID, Dissolved: true}
			return nil
		}

		if _, err := m.repos.Families().DecrementMembersTx(ctx, tx, familyID, now); err != nil {
			return err
		}

		result = &LeaveResult{FamilyID: familyID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, ActivityEventFamilyLeft, userID, userID, result.FamilyID, nil)
	if result.Dissolved {
		m.emit(ctx, ActivityEventFamilyDissolved, userID, userID, result.FamilyID, nil)
	}
	return result, nil
}

// RemoveMember lets the family admin remove another member.
func (m *MembershipCoordinator) RemoveMember(ctx context.Context, adminID, targetID uuid.UUID) error {
	if targetID == uuid.Nil {
		return invalidRequest("target user id is required", nil)
	}

	var familyID uuid.UUID
	err := m.run(ctx, "remove member", func(ctx context.Context, tx bun.Tx) error {
		admin, err := m.requireAdmin(ctx, tx, adminID)
		if err != nil {
			return err
		}
		familyID = *admin.FamilyID

		if targetID == adminID {
			return ErrCannotRemoveSelf
		}

		target, err := m.repos.Users().GetByIDTx(ctx, tx, targetID)
		if err != nil {
			if KindOf(err) == KindNotFound {
				return withSource(ErrMemberNotFound, err, nil)
			}
			return err
		}

		if !target.InFamily() || *target.FamilyID != familyID {
			return ErrMemberNotFound
		}

		now := m.clock.Now()
		cleared, err := m.repos.Users().ClearFamilyTx(ctx, tx, targetID, familyID, now)
		if err != nil {
			return err
		}
		if !cleared {
			return ErrMemberNotFound
		}

		_, err = m.repos.Families().DecrementMembersTx(ctx, tx, familyID, now)
		return err
	})
	if err != nil {
		return err
	}

	m.emit(ctx, ActivityEventMemberRemoved, adminID, targetID, familyID, nil)
	return nil
}

// RenameFamily changes the family name. Admin only.
func (m *MembershipCoordinator) RenameFamily(ctx context.Context, userID uuid.UUID, name string) (*FamilyView, error) {
	if err := (RenameFamilyRequest{Name: name}).Validate(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)

	var view *FamilyView
	err := m.run(ctx, "rename family", func(ctx context.Context, tx bun.Tx) error {
		admin, err := m.requireAdmin(ctx, tx, userID)
		if err != nil {
			return err
		}

		renamed, err := m.repos.Families().RenameTx(ctx, tx, *admin.FamilyID, name, m.clock.Now())
		if err != nil {
			return err
		}
		if !renamed {
			return ErrFamilyNotFound
		}

		family, err := m.repos.Families().GetByIDTx(ctx, tx, *admin.FamilyID)
		if err != nil {
			return err
		}

		view = familyView(family, FamilyRoleAdmin, admin.Nickname)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, ActivityEventFamilyRenamed, userID, userID, view.ID, map[string]any{"name": view.Name})
	return view, nil
}

// InviteCode returns the existing invite code of the caller's family.
// Admin only. Codes are never regenerated.
func (m *MembershipCoordinator) InviteCode(ctx context.Context, userID uuid.UUID) (*InviteInfo, error) {
	var info *InviteInfo
	err := m.run(ctx, "invite code", func(ctx context.Context, tx bun.Tx) error {
		admin, err := m.requireAdmin(ctx, tx, userID)
		if err != nil {
			return err
		}

		family, err := m.repos.Families().GetByIDTx(ctx, tx, *admin.FamilyID)
		if err != nil {
			return err
		}

		info = &InviteInfo{
			FamilyID:    family.ID,
			FamilyName:  family.Name,
			InviteCode:  family.InviteCode,
			QRContent:   InviteQRContent(family.InviteCode),
			MemberCount: family.MemberCount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// MyFamily returns the caller's family, or nil when unaffiliated. A
// reference to a family that no longer exists is cleared.
func (m *MembershipCoordinator) MyFamily(ctx context.Context, userID uuid.UUID) (*FamilyView, error) {
	var view *FamilyView
	err := m.run(ctx, "my family", func(ctx context.Context, tx bun.Tx) error {
		user, err := m.repos.Users().GetByIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if !user.InFamily() {
			return nil
		}

		family, err := m.repos.Families().GetByIDTx(ctx, tx, *user.FamilyID)
		if err != nil {
			if KindOf(err) != KindNotFound {
				return err
			}
			_, err = m.repos.Users().ClearFamilyTx(ctx, tx, userID, *user.FamilyID, m.clock.Now())
			return err
		}

		nickname := user.Nickname
		if !user.IsFamilyAdmin() {
			if nickname, err = m.adminNickname(ctx, tx, family); err != nil {
				return err
			}
		}

		view = familyView(family, user.FamilyRole, nickname)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// PreviewInvite describes the family behind code without joining it.
func (m *MembershipCoordinator) PreviewInvite(ctx context.Context, code string) (*InvitePreview, error) {
	if err := (JoinFamilyRequest{InviteCode: code}).Validate(); err != nil {
		return nil, err
	}

	normalized, ok := NormalizeInviteCode(code)
	if !ok {
		return nil, ErrInviteCodeInvalid
	}

	var preview *InvitePreview
	err := m.run(ctx, "preview invite", func(ctx context.Context, tx bun.Tx) error {
		family, err := m.repos.Families().GetActiveByInviteCodeTx(ctx, tx, normalized)
		if err != nil {
			return err
		}

		nickname, err := m.adminNickname(ctx, tx, family)
		if err != nil {
			return err
		}

		preview = &InvitePreview{
			FamilyName:    family.Name,
			MemberCount:   family.MemberCount,
			AdminNickname: nickname,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// Members lists the caller's family ordered by join time.
func (m *MembershipCoordinator) Members(ctx context.Context, userID uuid.UUID) ([]MemberView, error) {
	var members []MemberView
	err := m.run(ctx, "list members", func(ctx context.Context, tx bun.Tx) error {
		user, err := m.repos.Users().GetByIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if !user.InFamily() {
			return ErrNotInFamily
		}

		records, err := m.repos.Users().ListByFamilyTx(ctx, tx, *user.FamilyID)
		if err != nil {
			return err
		}

		members = make([]MemberView, 0, len(records))
		for _, r := range records {
			members = append(members, MemberView{
				UserID:     r.ID,
				Nickname:   r.Nickname,
				Avatar:     r.Avatar,
				Phone:      MaskPhone(r.Phone),
				FamilyRole: r.FamilyRole,
				JoinedAt:   r.FamilyJoinedAt,
				IsMe:       r.ID == userID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (m *MembershipCoordinator) requireAdmin(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*User, error) {
	user, err := m.repos.Users().GetByIDTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if !user.InFamily() {
		return nil, ErrNotInFamily
	}
	if !user.IsFamilyAdmin() {
		return nil, ErrNotFamilyAdmin
	}
	return user, nil
}

// adminNickname is empty when the admin account no longer exists
func (m *MembershipCoordinator) adminNickname(ctx context.Context, tx bun.IDB, family *Family) (string, error) {
	admin, err := m.repos.Users().GetByIDTx(ctx, tx, family.AdminID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return "", nil
		}
		return "", err
	}
	return admin.Nickname, nil
}

func (m *MembershipCoordinator) emit(ctx context.Context, t ActivityEventType, actor, user, family uuid.UUID, meta map[string]any) {
	emitActivity(ctx, m.activity, m.logger, ActivityEvent{
		EventType:  t,
		ActorID:    actor.String(),
		UserID:     user.String(),
		FamilyID:   family.String(),
		Metadata:   meta,
		OccurredAt: m.clock.Now(),
	})
}

func familyView(f *Family, role FamilyRole, adminNickname string) *FamilyView {
	v := &FamilyView{
		ID:            f.ID,
		Name:          f.Name,
		AdminID:       f.AdminID,
		AdminNickname: adminNickname,
		MemberCount:   f.MemberCount,
		MyRole:        role,
		IsAdmin:       role == FamilyRoleAdmin,
		CreatedAt:     f.CreatedAt,
	}
	if v.IsAdmin {
		v.InviteCode = f.InviteCode
	}
	return v
}
