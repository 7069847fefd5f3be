package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hirexp-auth/internal/events"
	"hirexp-auth/internal/model"
	"hirexp-auth/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AccountService redeems and issues single-use email tokens and manages passwords.
type AccountService interface {
	VerifyEmail(ctx context.Context, rawToken string, meta model.RequestMeta) error
	ResendVerification(ctx context.Context, email string, meta model.RequestMeta) error
	RequestPasswordReset(ctx context.Context, email string, meta model.RequestMeta) error
	ResetPassword(ctx context.Context, rawToken, newPassword string, meta model.RequestMeta) error
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string, meta model.RequestMeta) (*Session, error)
}

type accountService struct {
	repos         repository.Repositories
	tx            Transactor
	sessions      *SessionIssuer
	publisher     events.EventPublisher
	resendLimiter RateLimiter
	resetLimiter  RateLimiter
	audit         auditor
	cfg           Config
	now           func() time.Time
}

func NewAccountService(repos repository.Repositories, tx Transactor, sessions *SessionIssuer, publisher events.EventPublisher, resendLimiter, resetLimiter RateLimiter, cfg Config) AccountService {
	return &accountService{
		repos:         repos,
		tx:            tx,
		sessions:      sessions,
		publisher:     publisher,
		resendLimiter: resendLimiter,
		resetLimiter:  resetLimiter,
		audit:         auditor{repo: repos.Audit},
		cfg:           cfg,
		now:           time.Now,
	}
}

func (s *accountService) VerifyEmail(ctx context.Context, rawToken string, meta model.RequestMeta) error {
	var token *model.VerificationToken
	expired := false

	err := s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		consumed, err := repos.Verifications.Consume(ctx, hashToken(rawToken))
		if err != nil {
			return err
		}
		token = consumed

		// the expired row is still removed
		if consumed.Expired(s.now()) {
			expired = true
			return nil
		}

		if err := repos.Users.MarkEmailVerified(ctx, consumed.UserID); err != nil {
			return err
		}
		return repos.Verifications.DeleteByUser(ctx, consumed.UserID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("verify email: %w", err)
	}

	if expired {
		return ErrTokenExpired
	}

	s.audit.record(ctx, &token.UserID, model.AuditEmailVerified, meta, nil)

	return nil
}

// ResendVerification answers nil for unknown or already verified addresses so
// callers cannot probe which emails are registered.
func (s *accountService) ResendVerification(ctx context.Context, email string, meta model.RequestMeta) error {
	email = normalizeEmail(email)

	if err := s.checkLimit(ctx, s.resendLimiter, email); err != nil {
		return err
	}

	user, err := s.repos.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	if user.IsVerified() || user.Status != model.StatusPendingVerification {
		return nil
	}

	var rawToken string
	var expiresAt time.Time
	err = s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Verifications.DeleteByUser(ctx, user.ID); err != nil {
			return err
		}
		rawToken, expiresAt, err = createVerificationToken(ctx, repos.Verifications, user.ID, s.now().Add(s.cfg.VerificationTTL))
		return err
	})
	if err != nil {
		return fmt.Errorf("reissue verification token: %w", err)
	}

	event := events.NewAccountEvent(events.SubjectVerificationRequested, user.ID, user.Email)
	event.Token = rawToken
	event.ExpiresAt = &expiresAt
	publish(ctx, s.publisher, event)

	s.audit.record(ctx, &user.ID, model.AuditVerificationEmailResent, meta, nil)

	return nil
}

// RequestPasswordReset answers nil when no reset email is sent, for the same
// reason as ResendVerification.
func (s *accountService) RequestPasswordReset(ctx context.Context, email string, meta model.RequestMeta) error {
	email = normalizeEmail(email)

	if err := s.checkLimit(ctx, s.resetLimiter, email); err != nil {
		return err
	}

	user, err := s.repos.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	if !user.HasPassword() || user.Status == model.StatusDeactivated {
		return nil
	}

	raw, hash, err := newOpaqueToken()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.cfg.ResetTTL)

	err = s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		if err := repos.PasswordReset.InvalidateForUser(ctx, user.ID); err != nil {
			return err
		}
		return repos.PasswordReset.Create(ctx, &model.PasswordResetToken{UserID: user.ID, TokenHash: hash, ExpiresAt: expiresAt})
	})
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}

	event := events.NewAccountEvent(events.SubjectPasswordResetRequested, user.ID, user.Email)
	event.Token = raw
	event.ExpiresAt = &expiresAt
	publish(ctx, s.publisher, event)

	s.audit.record(ctx, &user.ID, model.AuditPasswordResetRequested, meta, nil)

	return nil
}

func (s *accountService) ResetPassword(ctx context.Context, rawToken, newPassword string, meta model.RequestMeta) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	token, err := s.repos.PasswordReset.FindByHash(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}

	if token.Used() {
		return ErrTokenInvalid
	}
	if token.Expired(s.now()) {
		return ErrTokenExpired
	}

	user, err := s.repos.Users.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}
	if user.Status == model.StatusDeactivated {
		return ErrAccountDeactivated
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		marked, err := repos.PasswordReset.MarkUsed(ctx, token.ID)
		if err != nil {
			return err
		}
		if !marked {
			return ErrTokenInvalid
		}
		if err := repos.Users.UpdatePassword(ctx, user.ID, string(hashedPassword)); err != nil {
			return err
		}
		return repos.RefreshTokens.DeleteByUser(ctx, user.ID)
	})
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return err
		}
		return fmt.Errorf("reset password: %w", err)
	}

	publish(ctx, s.publisher, events.NewAccountEvent(events.SubjectPasswordChanged, user.ID, user.Email))
	s.audit.record(ctx, &user.ID, model.AuditPasswordResetCompleted, meta, nil)

	return nil
}

// ChangePassword requires the current password unless the account has none yet
// (OAuth-only accounts adding a password). Every refresh token is revoked and a
// fresh session is returned to the caller.
func (s *accountService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string, meta model.RequestMeta) (*Session, error) {
	user, err := s.repos.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := sessionAllowed(user); err != nil {
		return nil, err
	}

	if user.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(currentPassword)); err != nil {
			return nil, ErrInvalidCredentials
		}
	}

	if err := validatePassword(newPassword); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Users.UpdatePassword(ctx, user.ID, string(hashedPassword)); err != nil {
			return err
		}
		return repos.RefreshTokens.DeleteByUser(ctx, user.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("change password: %w", err)
	}
	user.PasswordHash = ptr(string(hashedPassword))

	publish(ctx, s.publisher, events.NewAccountEvent(events.SubjectPasswordChanged, user.ID, user.Email))
	s.audit.record(ctx, &user.ID, model.AuditPasswordChanged, meta, nil)

	return s.sessions.Issue(ctx, user)
}

func (s *accountService) checkLimit(ctx context.Context, limiter RateLimiter, key string) error {
	allowed, err := limiter.Allow(ctx, key)
	if err != nil {
		// fail open when redis is down
		slog.WarnContext(ctx, "Rate limiter unavailable", "error", err)
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}
