package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hirexp-auth/internal/events"
	"hirexp-auth/internal/jwt"
	"hirexp-auth/internal/model"
	"hirexp-auth/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     model.Role
}

type AuthService interface {
	RegisterUser(ctx context.Context, input RegisterInput, meta model.RequestMeta) (*model.User, error)
	LoginUser(ctx context.Context, email, password string, meta model.RequestMeta) (*Session, error)
	RefreshToken(ctx context.Context, refreshTokenString string) (*Session, error)
	LogoutUser(ctx context.Context, refreshTokenString string, claims *jwt.Claims, meta model.RequestMeta) error
}

type authService struct {
	repos     repository.Repositories
	tx        Transactor
	sessions  *SessionIssuer
	publisher events.EventPublisher
	denylist  TokenDenylist
	audit     auditor
	cfg       Config
	dummyHash []byte
	now       func() time.Time
}

func NewAuthService(repos repository.Repositories, tx Transactor, sessions *SessionIssuer, publisher events.EventPublisher, denylist TokenDenylist, cfg Config) AuthService {
	// Compared against when the email is unknown so both paths cost one bcrypt run.
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("hirexp-unknown-account"), cfg.BcryptCost)
	if err != nil {
		slog.Error("Failed to prepare dummy password hash", "error", err)
	}

	return &authService{
		repos:     repos,
		tx:        tx,
		sessions:  sessions,
		publisher: publisher,
		denylist:  denylist,
		audit:     auditor{repo: repos.Audit},
		cfg:       cfg,
		dummyHash: dummyHash,
		now:       time.Now,
	}
}

func (s *authService) RegisterUser(ctx context.Context, input RegisterInput, meta model.RequestMeta) (*model.User, error) {
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = model.RoleCandidate
	}
	if !role.Valid() || role == model.RoleAdmin {
		return nil, ErrInvalidRole
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        normalizeEmail(input.Email),
		PasswordHash: ptr(string(hashedPassword)),
		Role:         role,
		Status:       model.StatusPendingVerification,
	}
	name := strings.TrimSpace(input.Name)

	var rawToken string
	var expiresAt time.Time
	err = s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		newID, err := repos.Users.Create(ctx, user)
		if err != nil {
			return err
		}
		user.ID = newID

		if err := repos.Profiles.Create(ctx, &model.Profile{UserID: newID, Name: name}); err != nil {
			return err
		}

		rawToken, expiresAt, err = createVerificationToken(ctx, repos.Verifications, newID, s.now().Add(s.cfg.VerificationTTL))
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("register user: %w", err)
	}

	event := events.NewAccountEvent(events.SubjectUserRegistered, user.ID, user.Email)
	event.Name = name
	event.Token = rawToken
	event.ExpiresAt = &expiresAt
	publish(ctx, s.publisher, event)

	s.audit.record(ctx, &user.ID, model.AuditUserRegistered, meta, model.AuditDetails{"role": user.Role})

	return user, nil
}

func createVerificationToken(ctx context.Context, repo repository.VerificationTokenRepository, userID uuid.UUID, expiresAt time.Time) (string, time.Time, error) {
	raw, hash, err := newOpaqueToken()
	if err != nil {
		return "", time.Time{}, err
	}

	token := &model.VerificationToken{UserID: userID, TokenHash: hash, ExpiresAt: expiresAt}
	if err := repo.Create(ctx, token); err != nil {
		return "", time.Time{}, err
	}
	return raw, expiresAt, nil
}

// LoginUser checks, in order: account exists with a password, not deactivated,
// not locked, password matches, not suspended, email verified.
func (s *authService) LoginUser(ctx context.Context, email, password string, meta model.RequestMeta) (*Session, error) {
	email = normalizeEmail(email)

	user, err := s.repos.Users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.audit.record(ctx, nil, model.AuditLoginFailed, meta, model.AuditDetails{"email": email, "reason": "unknown_email"})
		return nil, ErrInvalidCredentials
	}

	if !user.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.audit.record(ctx, &user.ID, model.AuditLoginFailed, meta, model.AuditDetails{"reason": "no_password"})
		return nil, ErrInvalidCredentials
	}

	if user.Status == model.StatusDeactivated {
		return nil, ErrAccountDeactivated
	}

	now := s.now()
	if user.IsLocked(now) {
		return nil, &LockedError{Until: *user.LockedUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, s.registerFailure(ctx, user, meta, now)
	}

	if user.Status == model.StatusSuspended {
		return nil, ErrAccountSuspended
	}

	if user.Status == model.StatusPendingVerification || !user.IsVerified() {
		return nil, ErrEmailNotVerified
	}

	if err := s.repos.Users.RecordLoginSuccess(ctx, user.ID); err != nil {
		return nil, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	session, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, &user.ID, model.AuditLoginSucceeded, meta, model.AuditDetails{"method": "credentials"})

	return session, nil
}

func (s *authService) registerFailure(ctx context.Context, user *model.User, meta model.RequestMeta, now time.Time) error {
	attempts, lockedUntil, err := s.repos.Users.RegisterFailedLogin(ctx, user.ID, s.cfg.MaxFailedAttempts, s.cfg.LockoutDuration)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record failed login", "user_id", user.ID, "error", err)
		return ErrInvalidCredentials
	}

	s.audit.record(ctx, &user.ID, model.AuditLoginFailed, meta, model.AuditDetails{"attempts": attempts})

	if lockedUntil == nil || !lockedUntil.After(now) {
		return ErrInvalidCredentials
	}

	s.audit.record(ctx, &user.ID, model.AuditAccountLocked, meta, model.AuditDetails{
		"attempts":     attempts,
		"locked_until": lockedUntil.UTC().Format(time.RFC3339),
	})

	event := events.NewAccountEvent(events.SubjectAccountLocked, user.ID, user.Email)
	event.LockedUntil = lockedUntil
	publish(ctx, s.publisher, event)

	return &LockedError{Until: *lockedUntil, Triggered: true}
}

// RefreshToken rotates the refresh token: the presented one is consumed and a new pair issued.
func (s *authService) RefreshToken(ctx context.Context, refreshTokenString string) (*Session, error) {
	stored, err := s.repos.RefreshTokens.Consume(ctx, hashToken(refreshTokenString))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if !stored.ExpiresAt.After(s.now()) {
		return nil, ErrTokenInvalid
	}

	user, err := s.repos.Users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if user.Status != model.StatusActive {
		if err := s.repos.RefreshTokens.DeleteByUser(ctx, user.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to revoke refresh tokens", "user_id", user.ID, "error", err)
		}
		return nil, ErrTokenInvalid
	}

	return s.sessions.Issue(ctx, user)
}

func (s *authService) LogoutUser(ctx context.Context, refreshTokenString string, claims *jwt.Claims, meta model.RequestMeta) error {
	if refreshTokenString != "" {
		if err := s.repos.RefreshTokens.Delete(ctx, hashToken(refreshTokenString)); err != nil {
			return err
		}
	}

	if claims == nil {
		return nil
	}

	if err := s.denylist.Revoke(ctx, claims.JTI, claims.ExpiresAt.Sub(s.now())); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}

	s.audit.record(ctx, &claims.UserID, model.AuditLogout, meta, nil)

	return nil
}
