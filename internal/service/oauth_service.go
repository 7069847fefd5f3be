package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hirexp-auth/internal/events"
	"hirexp-auth/internal/model"
	"hirexp-auth/internal/repository"

	"github.com/google/uuid"
)

// OAuthProfile is what the web app received from the identity provider callback.
type OAuthProfile struct {
	Provider          string
	ProviderAccountID string
	Type              string
	Email             string
	EmailVerified     bool
	Name              string
	Image             string
	AccessToken       *string
	RefreshToken      *string
	IDToken           *string
	ExpiresAt         *int64
	TokenType         *string
	Scope             *string
}

func (p OAuthProfile) account(userID uuid.UUID) *model.LinkedAccount {
	accountType := p.Type
	if accountType == "" {
		accountType = "oauth"
	}
	return &model.LinkedAccount{
		UserID:            userID,
		Type:              accountType,
		Provider:          p.Provider,
		ProviderAccountID: p.ProviderAccountID,
		AccessToken:       p.AccessToken,
		RefreshToken:      p.RefreshToken,
		IDToken:           p.IDToken,
		ExpiresAt:         p.ExpiresAt,
		TokenType:         p.TokenType,
		Scope:             p.Scope,
	}
}

type OAuthService interface {
	Reconcile(ctx context.Context, profile OAuthProfile, meta model.RequestMeta) (*Session, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]model.LinkedAccount, error)
	UnlinkAccount(ctx context.Context, userID uuid.UUID, provider string, meta model.RequestMeta) error
}

type oauthService struct {
	repos     repository.Repositories
	tx        Transactor
	sessions  *SessionIssuer
	publisher events.EventPublisher
	audit     auditor
	cfg       Config
	now       func() time.Time
}

func NewOAuthService(repos repository.Repositories, tx Transactor, sessions *SessionIssuer, publisher events.EventPublisher, cfg Config) OAuthService {
	return &oauthService{
		repos:     repos,
		tx:        tx,
		sessions:  sessions,
		publisher: publisher,
		audit:     auditor{repo: repos.Audit},
		cfg:       cfg,
		now:       time.Now,
	}
}

// Reconcile finds or creates the local user for a provider identity and signs it in.
// An existing email is only linked when the provider asserts the address is verified.
func (s *oauthService) Reconcile(ctx context.Context, profile OAuthProfile, meta model.RequestMeta) (*Session, error) {
	profile.Email = normalizeEmail(profile.Email)

	user, err := s.resolve(ctx, profile, meta)
	if errors.Is(err, repository.ErrDuplicate) {
		// a concurrent callback created the same user or link first
		user, err = s.resolve(ctx, profile, meta)
	}
	if err != nil {
		return nil, err
	}

	if err := sessionAllowed(user); err != nil {
		return nil, err
	}

	// a credential lockout stays in place; only the login time moves
	if err := s.repos.Users.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	now := s.now()
	user.LastLoginAt = &now

	session, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, &user.ID, model.AuditLoginSucceeded, meta, model.AuditDetails{"method": "oauth", "provider": profile.Provider})

	return session, nil
}

func (s *oauthService) resolve(ctx context.Context, profile OAuthProfile, meta model.RequestMeta) (*model.User, error) {
	account, err := s.repos.Accounts.FindByProvider(ctx, profile.Provider, profile.ProviderAccountID)
	if err == nil {
		update := profile.account(account.UserID)
		update.ID = account.ID
		if err := s.repos.Accounts.UpdateTokens(ctx, update); err != nil {
			return nil, err
		}
		return s.findUser(ctx, account.UserID)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if profile.Email == "" {
		return nil, ErrOAuthEmailMissing
	}

	existing, err := s.repos.Users.FindByEmail(ctx, profile.Email)
	if err == nil {
		return s.link(ctx, existing, profile, meta)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	return s.create(ctx, profile, meta)
}

func (s *oauthService) link(ctx context.Context, user *model.User, profile OAuthProfile, meta model.RequestMeta) (*model.User, error) {
	if !profile.EmailVerified {
		return nil, ErrOAuthAccountNotLinked
	}

	err := s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Accounts.Create(ctx, profile.account(user.ID)); err != nil {
			return err
		}
		if !user.IsVerified() {
			return repos.Users.MarkEmailVerified(ctx, user.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("link %s account: %w", profile.Provider, err)
	}

	s.audit.record(ctx, &user.ID, model.AuditOAuthLinked, meta, model.AuditDetails{"provider": profile.Provider})

	return s.findUser(ctx, user.ID)
}

func (s *oauthService) create(ctx context.Context, profile OAuthProfile, meta model.RequestMeta) (*model.User, error) {
	user := &model.User{
		Email:  profile.Email,
		Role:   model.RoleCandidate,
		Status: model.StatusPendingVerification,
	}
	if profile.EmailVerified {
		user.Status = model.StatusActive
		user.EmailVerified = ptr(s.now())
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = strings.SplitN(profile.Email, "@", 2)[0]
	}
	var avatar *string
	if profile.Image != "" {
		avatar = ptr(profile.Image)
	}

	var rawToken string
	var expiresAt time.Time
	err := s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		newID, err := repos.Users.Create(ctx, user)
		if err != nil {
			return err
		}
		user.ID = newID

		if err := repos.Profiles.Create(ctx, &model.Profile{UserID: newID, Name: name, AvatarURL: avatar}); err != nil {
			return err
		}
		if err := repos.Accounts.Create(ctx, profile.account(newID)); err != nil {
			return err
		}

		if !profile.EmailVerified {
			rawToken, expiresAt, err = createVerificationToken(ctx, repos.Verifications, newID, s.now().Add(s.cfg.VerificationTTL))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create user from %s: %w", profile.Provider, err)
	}

	if rawToken != "" {
		event := events.NewAccountEvent(events.SubjectUserRegistered, user.ID, user.Email)
		event.Name = name
		event.Token = rawToken
		event.ExpiresAt = &expiresAt
		publish(ctx, s.publisher, event)
	}

	s.audit.record(ctx, &user.ID, model.AuditOAuthUserCreated, meta, model.AuditDetails{"provider": profile.Provider})

	return user, nil
}

func (s *oauthService) findUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repos.Users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *oauthService) ListAccounts(ctx context.Context, userID uuid.UUID) ([]model.LinkedAccount, error) {
	return s.repos.Accounts.ListByUser(ctx, userID)
}

// UnlinkAccount refuses to remove the only way left to sign in.
func (s *oauthService) UnlinkAccount(ctx context.Context, userID uuid.UUID, provider string, meta model.RequestMeta) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	accounts, err := s.repos.Accounts.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	linked := false
	for _, a := range accounts {
		if a.Provider == provider {
			linked = true
			break
		}
	}
	if !linked {
		return ErrAccountNotLinked
	}

	if !user.HasPassword() && len(accounts) <= 1 {
		return ErrLastSignInMethod
	}

	if err := s.repos.Accounts.Delete(ctx, userID, provider); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotLinked
		}
		return err
	}

	s.audit.record(ctx, &user.ID, model.AuditOAuthUnlinked, meta, model.AuditDetails{"provider": provider})

	return nil
}
