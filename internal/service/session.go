package service

import (
	"context"
	"time"

	"hirexp-auth/internal/jwt"
	"hirexp-auth/internal/model"
	"hirexp-auth/internal/rbac"
	"hirexp-auth/internal/repository"
)

type Session struct {
	User            *model.User
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	Dashboard       string
}

// SessionIssuer mints an access token and a persisted refresh token for a user.
type SessionIssuer struct {
	tokens     *jwt.Manager
	refresh    repository.TokenRepository
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSessionIssuer(tokens *jwt.Manager, refresh repository.TokenRepository, refreshTTL time.Duration) *SessionIssuer {
	return &SessionIssuer{
		tokens:     tokens,
		refresh:    refresh,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue refuses users that are not ACTIVE and verified.
func (s *SessionIssuer) Issue(ctx context.Context, user *model.User) (*Session, error) {
	if err := sessionAllowed(user); err != nil {
		return nil, err
	}

	access, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}

	raw, hash, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	refreshTokenModel := &model.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.refresh.Create(ctx, refreshTokenModel); err != nil {
		return nil, err
	}

	return &Session{
		User:            user,
		AccessToken:     access.Token,
		AccessExpiresAt: access.ExpiresAt,
		RefreshToken:    raw,
		Dashboard:       rbac.DashboardFor(user.Role),
	}, nil
}
