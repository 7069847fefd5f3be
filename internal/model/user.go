package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCandidate Role = "CANDIDATE"
	RoleEmployer  Role = "EMPLOYER"
	RoleTrainer   Role = "TRAINER"
	RoleAdmin     Role = "ADMIN"
)

var Roles = []Role{RoleCandidate, RoleEmployer, RoleTrainer, RoleAdmin}

func (r Role) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

type UserStatus string

const (
	StatusActive              UserStatus = "ACTIVE"
	StatusPendingVerification UserStatus = "PENDING_VERIFICATION"
	StatusSuspended           UserStatus = "SUSPENDED"
	StatusDeactivated         UserStatus = "DEACTIVATED"
)

func (s UserStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPendingVerification, StatusSuspended, StatusDeactivated:
		return true
	}
	return false
}

type User struct {
	ID                  uuid.UUID  `db:"id"`
	Email               string     `db:"email"`
	PasswordHash        *string    `db:"password_hash"`
	Role                Role       `db:"role"`
	Status              UserStatus `db:"status"`
	EmailVerified       *time.Time `db:"email_verified"`
	FailedLoginAttempts int        `db:"failed_login_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// HasPassword reports false for accounts created through an OAuth provider.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

func (u *User) IsVerified() bool {
	return u.EmailVerified != nil
}

type UserFilter struct {
	Status UserStatus
	Role   Role
	Query  string
	Limit  int
	Offset int
}
