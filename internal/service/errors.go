package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountLocked         = errors.New("account is temporarily locked")
	ErrEmailNotVerified      = errors.New("email address has not been verified")
	ErrAccountSuspended      = errors.New("account is suspended")
	ErrAccountDeactivated    = errors.New("account is deactivated")
	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrTokenInvalid          = errors.New("token is invalid")
	ErrTokenExpired          = errors.New("token has expired")
	ErrRateLimited           = errors.New("too many requests, try again later")
	ErrWeakPassword          = errors.New("password must be 8 to 72 characters and contain a letter and a digit")
	ErrInvalidRole           = errors.New("invalid role")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrUserNotFound          = errors.New("user not found")
	ErrSelfModification      = errors.New("administrators cannot change their own account this way")
	ErrOAuthAccountNotLinked = errors.New("email is already registered with another sign-in method")
	ErrOAuthEmailMissing     = errors.New("identity provider did not return an email address")
	ErrAccountNotLinked      = errors.New("provider is not linked to this account")
	ErrLastSignInMethod      = errors.New("cannot remove the last sign-in method")
	ErrExportUnavailable     = errors.New("audit export storage is not configured")
)

// LockedError reports when a locked account opens again. It matches ErrAccountLocked.
// Triggered is set on the failed attempt that caused the lock.
type LockedError struct {
	Until     time.Time
	Triggered bool
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
