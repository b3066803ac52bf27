package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Families is the family directory
type Families interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Family, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Family, error)
	GetActiveByInviteCodeTx(ctx context.Context, tx bun.IDB, code string) (*Family, error)
	InviteCodeInUseTx(ctx context.Context, tx bun.IDB, code string) (bool, error)

	CreateTx(ctx context.Context, tx bun.IDB, record *Family) (*Family, error)
	RenameTx(ctx context.Context, tx bun.IDB, id uuid.UUID, name string, at time.Time) (bool, error)

	// IncrementMembersTx adds one member to an active family. It reports
	// false when the family is gone or no longer active.
	IncrementMembersTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
	// DecrementMembersTx removes one member, never going below one.
	DecrementMembersTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
	// DeleteIfSoleMemberTx removes the family row only while it has at most
	// one member.
	DeleteIfSoleMemberTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)
}

type families struct {
	repo  repository.Repository[*Family]
	db    *bun.DB
	clock Clock
}

var _ Families = (*families)(nil)

// FamiliesOption configures the family directory
type FamiliesOption func(*families)

// WithFamiliesClock sets the clock used for default timestamps
func WithFamiliesClock(c Clock) FamiliesOption {
	return func(f *families) {
		f.clock = normalizeClock(c)
	}
}

func NewFamiliesRepository(db *bun.DB, opts ...FamiliesOption) Families {
	repo := repository.NewRepository[*Family](db, repository.ModelHandlers[*Family]{
		NewRecord: func() *Family { return &Family{} },
		GetID: func(f *Family) uuid.UUID {
			if f == nil {
				return uuid.Nil
			}
			return f.ID
		},
		SetID: func(f *Family, id uuid.UUID) {
			if f != nil {
				f.ID = id
			}
		},
		GetIdentifier: func() string {
			return "invite_code"
		},
	})

	f := &families{repo: repo, db: db, clock: SystemClock{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (a *families) GetByID(ctx context.Context, id uuid.UUID) (*Family, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *families) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Family, error) {
	record := &Family{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withSource(ErrFamilyNotFound, err, map[string]any{"family_id": id.String()})
		}
		return nil, storeError(err, "find family")
	}
	return record, nil
}

func (a *families) GetActiveByInviteCodeTx(ctx context.Context, tx bun.IDB, code string) (*Family, error) {
	record := &Family{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.invite_code = ?", code).
		Where("?TableAlias.status = ?", FamilyStatusActive).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withSource(ErrInviteCodeInvalid, err, nil)
		}
		return nil, storeError(err, "find family by invite code")
	}
	return record, nil
}

func (a *families) InviteCodeInUseTx(ctx context.Context, tx bun.IDB, code string) (bool, error) {
	exists, err := tx.NewSelect().
		Model((*Family)(nil)).
		Where("?TableAlias.invite_code = ?", code).
		Where("?TableAlias.status = ?", FamilyStatusActive).
		Exists(ctx)
	if err != nil {
		return false, storeError(err, "check invite code")
	}
	return exists, nil
}

func (a *families) CreateTx(ctx context.Context, tx bun.IDB, record *Family) (*Family, error) {
	prepareFamilyDefaults(record, a.clock.Now())
	created, err := a.repo.CreateTx(ctx, tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, withSource(ErrFamilyChanged, err, map[string]any{"reason": "invite code taken"})
		}
		return nil, storeError(err, "create family")
	}
	return created, nil
}

func (a *families) RenameTx(ctx context.Context, tx bun.IDB, id uuid.UUID, name string, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*Family)(nil)).
		Set("name = ?", name).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", FamilyStatusActive).
		Exec(ctx)
	return affectedOne(res, err, "rename family")
}

func (a *families) IncrementMembersTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*Family)(nil)).
		Set("member_count = member_count + 1").
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", FamilyStatusActive).
		Exec(ctx)
	return affectedOne(res, err, "increment members")
}

func (a *families) DecrementMembersTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*Family)(nil)).
		Set("member_count = CASE WHEN member_count > 1 THEN member_count - 1 ELSE 1 END").
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, "decrement members")
}

func (a *families) DeleteIfSoleMemberTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	res, err := tx.NewDelete().
		Model((*Family)(nil)).
		Where("id = ?", id).
		Where("member_count <= 1").
		Exec(ctx)
	return affectedOne(res, err, "delete family")
}

func prepareFamilyDefaults(record *Family, now time.Time) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.Status == "" {
		record.Status = FamilyStatusActive
	}

	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}

	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}
