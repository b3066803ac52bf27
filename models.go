package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the account status
type UserStatus = string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// FamilyStatus is the lifecycle status of a family
type FamilyStatus = string

// Dissolved families are deleted, so every stored row is active.
const FamilyStatusActive FamilyStatus = "active"

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Phone          string     `bun:"phone,notnull,unique" json:"phone"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	Nickname       string     `bun:"nickname,notnull" json:"nickname"`
	Avatar         string     `bun:"avatar" json:"avatar,omitempty"`
	Role           UserRole   `bun:"role,notnull" json:"role"`
	Status         UserStatus `bun:"status,notnull" json:"status"`
	FamilyID       *uuid.UUID `bun:"family_id,type:uuid" json:"family_id,omitempty"`
	FamilyRole     FamilyRole `bun:"family_role,notnull" json:"family_role"`
	FamilyJoinedAt *time.Time `bun:"family_joined_at,nullzero" json:"family_joined_at,omitempty"`
	LastLoginAt    *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// InFamily reports whether the user belongs to a family
func (u *User) InFamily() bool {
	return u != nil && u.FamilyID != nil && *u.FamilyID != uuid.Nil
}

// IsFamilyAdmin reports whether the user administers their family
func (u *User) IsFamilyAdmin() bool {
	return u.InFamily() && u.FamilyRole == FamilyRoleAdmin
}

// IsDisabled reports whether the account may not log in
func (u *User) IsDisabled() bool {
	return u != nil && u.Status == UserStatusDisabled
}

// Family is a household group
type Family struct {
	bun.BaseModel `bun:"table:families,alias:fam"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Name          string       `bun:"name,notnull" json:"name"`
	InviteCode    string       `bun:"invite_code,notnull" json:"invite_code"`
	AdminID       uuid.UUID    `bun:"admin_id,notnull,type:uuid" json:"admin_id"`
	MemberCount   int          `bun:"member_count,notnull" json:"member_count"`
	Status        FamilyStatus `bun:"status,notnull" json:"status"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
