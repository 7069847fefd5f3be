package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"hirexp-auth/internal/events"
	"hirexp-auth/internal/model"
	"hirexp-auth/internal/repository"
)

// Config holds the security knobs shared by the services.
type Config struct {
	BcryptCost        int
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	VerificationTTL   time.Duration
	ResetTTL          time.Duration
	RefreshTTL        time.Duration
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(repos repository.Repositories) error) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

type Archive interface {
	Store(ctx context.Context, key, contentType string, body []byte) (string, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newOpaqueToken returns a random token for the user and the hash that is persisted.
func newOpaqueToken() (raw string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func validatePassword(password string) error {
	if len(password) < 8 || len(password) > 72 {
		return ErrWeakPassword
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return ErrWeakPassword
	}
	return nil
}

type auditor struct {
	repo repository.AuditRepository
}

// record never fails the calling operation; write errors are only logged.
func (a auditor) record(ctx context.Context, userID *uuid.UUID, action model.AuditAction, meta model.RequestMeta, details model.AuditDetails) {
	entry := &model.AuditLog{
		UserID:  userID,
		Action:  action,
		Details: details,
	}
	if meta.IP != "" {
		entry.IPAddress = &meta.IP
	}
	if meta.UserAgent != "" {
		entry.UserAgent = &meta.UserAgent
	}

	if err := a.repo.Create(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Failed to write audit log", "action", action, "error", err)
	}
}

func publish(ctx context.Context, publisher events.EventPublisher, event events.AccountEvent) {
	if err := publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish account event", "subject", event.EventType, "user_id", event.UserID, "error", err)
	}
}

func ptr[T any](v T) *T {
	return &v
}

// sessionAllowed returns the error that keeps a user from holding a session,
// or nil for ACTIVE verified accounts.
func sessionAllowed(user *model.User) error {
	switch {
	case user.Status == model.StatusDeactivated:
		return ErrAccountDeactivated
	case user.Status == model.StatusSuspended:
		return ErrAccountSuspended
	case user.Status == model.StatusPendingVerification || !user.IsVerified():
		return ErrEmailNotVerified
	case user.Status != model.StatusActive:
		return ErrInvalidStatus
	}
	return nil
}
