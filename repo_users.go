package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the user directory
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	GetByPhoneTx(ctx context.Context, tx bun.IDB, phone string) (*User, error)

	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	// UpdatePassword swaps the password hash only while the stored hash still
	// equals currentHash. It reports false when the hash changed meanwhile.
	UpdatePassword(ctx context.Context, id uuid.UUID, currentHash, newHash string, at time.Time) (bool, error)

	// AssignFamilyTx links an unaffiliated user to a family. It reports false
	// when the user already belongs to one.
	AssignFamilyTx(ctx context.Context, tx bun.IDB, userID, familyID uuid.UUID, role FamilyRole, at time.Time) (bool, error)
	// ClearFamilyTx unlinks a user from familyID. It reports false when the
	// user is not linked to that family.
	ClearFamilyTx(ctx context.Context, tx bun.IDB, userID, familyID uuid.UUID, at time.Time) (bool, error)

	ListByFamilyTx(ctx context.Context, tx bun.IDB, familyID uuid.UUID) ([]*User, error)
	CountByFamilyTx(ctx context.Context, tx bun.IDB, familyID uuid.UUID) (int, error)
}

type users struct {
	repo  repository.Repository[*User]
	db    *bun.DB
	clock Clock
}

var _ Users = (*users)(nil)

// UsersOption configures the users directory
type UsersOption func(*users)

// WithUsersClock sets the clock used for default timestamps
func WithUsersClock(c Clock) UsersOption {
	return func(u *users) {
		u.clock = normalizeClock(c)
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "phone"
		},
	})

	u := &users{repo: repo, db: db, clock: SystemClock{}}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.findOne(ctx, tx, "?TableAlias.id = ?", id)
}

func (a *users) GetByPhone(ctx context.Context, phone string) (*User, error) {
	return a.GetByPhoneTx(ctx, a.db, phone)
}

func (a *users) GetByPhoneTx(ctx context.Context, tx bun.IDB, phone string) (*User, error) {
	return a.findOne(ctx, tx, "?TableAlias.phone = ?", phone)
}

func (a *users) findOne(ctx context.Context, tx bun.IDB, where string, arg any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withSource(ErrUserNotFound, err, nil)
		}
		return nil, storeError(err, "find user")
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record, a.clock.Now())
	created, err := a.repo.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, storeError(err, "create user")
	}
	return created, nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("last_login_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return storeError(err, "track login")
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, currentHash, newHash string, at time.Time) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", newHash).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("password_hash = ?", currentHash).
		Exec(ctx)
	return affectedOne(res, err, "update password")
}

func (a *users) AssignFamilyTx(ctx context.Context, tx bun.IDB, userID, familyID uuid.UUID, role FamilyRole, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("family_id = ?", familyID).
		Set("family_role = ?", role).
		Set("family_joined_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", userID).
		Where("family_id IS NULL").
		Exec(ctx)
	return affectedOne(res, err, "assign family")
}

func (a *users) ClearFamilyTx(ctx context.Context, tx bun.IDB, userID, familyID uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("family_id = NULL").
		Set("family_role = ?", FamilyRoleMember).
		Set("family_joined_at = NULL").
		Set("updated_at = ?", at).
		Where("id = ?", userID).
		Where("family_id = ?", familyID).
		Exec(ctx)
	return affectedOne(res, err, "clear family")
}

func (a *users) ListByFamilyTx(ctx context.Context, tx bun.IDB, familyID uuid.UUID) ([]*User, error) {
	records := make([]*User, 0)
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.family_id = ?", familyID).
		OrderExpr("?TableAlias.family_joined_at ASC, ?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, storeError(err, "list family members")
	}
	return records, nil
}

func (a *users) CountByFamilyTx(ctx context.Context, tx bun.IDB, familyID uuid.UUID) (int, error) {
	n, err := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.family_id = ?", familyID).
		Count(ctx)
	if err != nil {
		return 0, storeError(err, "count family members")
	}
	return n, nil
}

func prepareUserDefaults(record *User, now time.Time) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Role = NormalizeRole(record.Role)

	if record.Status == "" {
		record.Status = UserStatusActive
	}

	if record.FamilyRole == "" {
		record.FamilyRole = FamilyRoleMember
	}

	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}

	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}
