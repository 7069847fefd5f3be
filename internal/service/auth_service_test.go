package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"hirexp-auth/internal/events"
	"hirexp-auth/internal/jwt"
	"hirexp-auth/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUser_CreatesPendingAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	user, err := h.auth.RegisterUser(ctx, RegisterInput{
		Email:    "  Jane@Example.COM ",
		Password: "s3cretpass",
		Name:     " Jane Doe ",
		Role:     model.RoleEmployer,
	}, testMeta)
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, model.StatusPendingVerification, user.Status)
	assert.Equal(t, model.RoleEmployer, user.Role)
	assert.Nil(t, user.EmailVerified)

	profile, err := h.repos.Profiles.FindByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.Name)

	event := h.publisher.last(t, events.SubjectUserRegistered)
	assert.Equal(t, user.ID, event.UserID)
	require.NotEmpty(t, event.Token)
	require.NotNil(t, event.ExpiresAt)

	// only the hash is stored
	stored, err := h.repos.Verifications.FindByHash(ctx, hashToken(event.Token))
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)
	assert.NotEqual(t, event.Token, stored.TokenHash)

	assert.Contains(t, h.store.actions(), model.AuditUserRegistered)
}

func TestRegisterUser_DefaultsToCandidate(t *testing.T) {
	h := newHarness(t)

	user, err := h.auth.RegisterUser(context.Background(), RegisterInput{Email: "c@example.com", Password: "password1", Name: "C"}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, model.RoleCandidate, user.Role)
}

func TestRegisterUser_Rejections(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "taken@example.com", "password1", model.RoleCandidate, model.StatusActive)

	tests := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"duplicate email", RegisterInput{Email: "TAKEN@example.com", Password: "password1", Name: "T"}, ErrEmailAlreadyExists},
		{"short password", RegisterInput{Email: "new@example.com", Password: "abc1", Name: "N"}, ErrWeakPassword},
		{"no digit", RegisterInput{Email: "new@example.com", Password: "abcdefghij", Name: "N"}, ErrWeakPassword},
		{"admin self signup", RegisterInput{Email: "new@example.com", Password: "password1", Name: "N", Role: model.RoleAdmin}, ErrInvalidRole},
		{"unknown role", RegisterInput{Email: "new@example.com", Password: "password1", Name: "N", Role: "OWNER"}, ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.auth.RegisterUser(context.Background(), tt.input, testMeta)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoginUser_Success(t *testing.T) {
	h := newHarness(t)
	seeded := h.seedUser(t, "trainer@example.com", "password1", model.RoleTrainer, model.StatusActive)

	session, err := h.auth.LoginUser(context.Background(), "Trainer@Example.com", "password1", testMeta)
	require.NoError(t, err)

	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, "/dashboard/trainer", session.Dashboard)
	assert.Equal(t, 1, h.store.refreshCount(seeded.ID))

	claims, err := h.tokens.ValidateToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID.String(), claims["sub"])
	assert.Equal(t, string(model.RoleTrainer), claims["role"])

	stored := h.store.user(seeded.ID)
	assert.NotNil(t, stored.LastLoginAt)
	assert.Contains(t, h.store.actions(), model.AuditLoginSucceeded)
}

func TestLoginUser_UnknownEmail(t *testing.T) {
	h := newHarness(t)

	_, err := h.auth.LoginUser(context.Background(), "ghost@example.com", "password1", testMeta)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, h.store.actions(), model.AuditLoginFailed)
}

func TestLoginUser_OAuthOnlyAccount(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, "oauth@example.com", "", model.RoleCandidate, model.StatusActive)

	_, err := h.auth.LoginUser(context.Background(), "oauth@example.com", "anything1", testMeta)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUser_LocksAfterMaxFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "victim@example.com", "password1", model.RoleCandidate, model.StatusActive)

	for i := 1; i < testConfig.MaxFailedAttempts; i++ {
		_, err := h.auth.LoginUser(ctx, "victim@example.com", "wrong-pass1", testMeta)
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}

	_, err := h.auth.LoginUser(ctx, "victim@example.com", "wrong-pass1", testMeta)
	require.ErrorIs(t, err, ErrAccountLocked)

	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	assert.True(t, locked.Triggered)
	assert.WithinDuration(t, time.Now().Add(testConfig.LockoutDuration), locked.Until, 5*time.Second)

	// correct password is refused while locked
	_, err = h.auth.LoginUser(ctx, "victim@example.com", "password1", testMeta)
	require.ErrorIs(t, err, ErrAccountLocked)
	require.True(t, errors.As(err, &locked))
	assert.False(t, locked.Triggered)

	stored := h.store.user(seeded.ID)
	assert.Equal(t, testConfig.MaxFailedAttempts, stored.FailedLoginAttempts)
	assert.Equal(t, 1, h.publisher.count(events.SubjectAccountLocked))
	assert.Contains(t, h.store.actions(), model.AuditAccountLocked)
}

func TestLoginUser_ExpiredLockRestartsCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "back@example.com", "password1", model.RoleCandidate, model.StatusActive)

	h.store.mu.Lock()
	h.store.users[seeded.ID].FailedLoginAttempts = 5
	h.store.users[seeded.ID].LockedUntil = ptr(time.Now().Add(-time.Minute))
	h.store.mu.Unlock()

	_, err := h.auth.LoginUser(ctx, "back@example.com", "wrong-pass1", testMeta)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotErrorIs(t, err, ErrAccountLocked)

	stored := h.store.user(seeded.ID)
	assert.Equal(t, 1, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestLoginUser_SuccessResetsCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "flaky@example.com", "password1", model.RoleCandidate, model.StatusActive)

	for i := 0; i < 3; i++ {
		_, _ = h.auth.LoginUser(ctx, "flaky@example.com", "nope-nope1", testMeta)
	}
	_, err := h.auth.LoginUser(ctx, "flaky@example.com", "password1", testMeta)
	require.NoError(t, err)

	assert.Zero(t, h.store.user(seeded.ID).FailedLoginAttempts)
}

func TestLoginUser_StatusGates(t *testing.T) {
	tests := []struct {
		name     string
		status   model.UserStatus
		password string
		want     error
	}{
		{"pending with right password", model.StatusPendingVerification, "password1", ErrEmailNotVerified},
		{"suspended with right password", model.StatusSuspended, "password1", ErrAccountSuspended},
		{"suspended with wrong password", model.StatusSuspended, "wrong-pass1", ErrInvalidCredentials},
		{"deactivated", model.StatusDeactivated, "password1", ErrAccountDeactivated},
		{"deactivated with wrong password", model.StatusDeactivated, "wrong-pass1", ErrAccountDeactivated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seedUser(t, "gate@example.com", "password1", model.RoleCandidate, tt.status)

			_, err := h.auth.LoginUser(context.Background(), "gate@example.com", tt.password, testMeta)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRefreshToken_Rotates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "rot@example.com", "password1", model.RoleCandidate, model.StatusActive)

	first, err := h.auth.LoginUser(ctx, "rot@example.com", "password1", testMeta)
	require.NoError(t, err)

	second, err := h.auth.RefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, 1, h.store.refreshCount(seeded.ID))

	_, err = h.auth.RefreshToken(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshToken_RevokesWhenUserNoLongerActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "gone@example.com", "password1", model.RoleCandidate, model.StatusActive)

	a, err := h.auth.LoginUser(ctx, "gone@example.com", "password1", testMeta)
	require.NoError(t, err)
	_, err = h.auth.LoginUser(ctx, "gone@example.com", "password1", testMeta)
	require.NoError(t, err)

	require.NoError(t, h.repos.Users.UpdateStatus(ctx, seeded.ID, model.StatusSuspended))

	_, err = h.auth.RefreshToken(ctx, a.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
	assert.Zero(t, h.store.refreshCount(seeded.ID))
}

func TestRefreshToken_Expired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "stale@example.com", "password1", model.RoleCandidate, model.StatusActive)

	session, err := h.auth.LoginUser(ctx, "stale@example.com", "password1", testMeta)
	require.NoError(t, err)

	h.store.mu.Lock()
	for _, tok := range h.store.refresh {
		tok.ExpiresAt = time.Now().Add(-time.Minute)
	}
	h.store.mu.Unlock()

	_, err = h.auth.RefreshToken(ctx, session.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
	assert.Zero(t, h.store.refreshCount(seeded.ID))
}

func TestSessionIssuer_RefusesInactiveUsers(t *testing.T) {
	h := newHarness(t)
	issuer := NewSessionIssuer(h.tokens, h.repos.RefreshTokens, time.Hour)
	verified := time.Now()

	tests := []struct {
		name string
		user model.User
		want error
	}{
		{"suspended", model.User{Status: model.StatusSuspended, EmailVerified: &verified}, ErrAccountSuspended},
		{"deactivated", model.User{Status: model.StatusDeactivated, EmailVerified: &verified}, ErrAccountDeactivated},
		{"active but unverified", model.User{Status: model.StatusActive}, ErrEmailNotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := tt.user
			_, err := issuer.Issue(context.Background(), &user)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRefreshToken_Unknown(t *testing.T) {
	h := newHarness(t)

	_, err := h.auth.RefreshToken(context.Background(), "not-a-token")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestLogoutUser_RevokesBothTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "bye@example.com", "password1", model.RoleCandidate, model.StatusActive)

	session, err := h.auth.LoginUser(ctx, "bye@example.com", "password1", testMeta)
	require.NoError(t, err)

	mapClaims, err := h.tokens.ValidateToken(session.AccessToken)
	require.NoError(t, err)
	claims, err := jwt.ParseClaims(mapClaims)
	require.NoError(t, err)

	require.NoError(t, h.auth.LogoutUser(ctx, session.RefreshToken, claims, testMeta))

	assert.Zero(t, h.store.refreshCount(seeded.ID))
	ttl, ok := h.denylist.revoked[claims.JTI]
	require.True(t, ok)
	assert.Greater(t, ttl, time.Duration(0))
	assert.Contains(t, h.store.actions(), model.AuditLogout)
}
