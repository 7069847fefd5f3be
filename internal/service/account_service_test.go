package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"hirexp-auth/internal/events"
	"hirexp-auth/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func registerPending(t *testing.T, h *harness, email string) (*model.User, string) {
	t.Helper()
	user, err := h.auth.RegisterUser(context.Background(), RegisterInput{Email: email, Password: "password1", Name: "P"}, testMeta)
	require.NoError(t, err)
	return user, h.publisher.last(t, events.SubjectUserRegistered).Token
}

func TestVerifyEmail_ActivatesAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, raw := registerPending(t, h, "verify@example.com")

	require.NoError(t, h.account.VerifyEmail(ctx, raw, testMeta))

	stored := h.store.user(user.ID)
	assert.Equal(t, model.StatusActive, stored.Status)
	assert.NotNil(t, stored.EmailVerified)

	// single use
	require.ErrorIs(t, h.account.VerifyEmail(ctx, raw, testMeta), ErrTokenInvalid)

	_, err := h.auth.LoginUser(ctx, "verify@example.com", "password1", testMeta)
	require.NoError(t, err)
}

func TestVerifyEmail_Expired(t *testing.T) {
	h := newHarness(t)
	user, raw := registerPending(t, h, "late@example.com")

	h.store.mu.Lock()
	for _, tok := range h.store.verifications {
		tok.ExpiresAt = time.Now().Add(-time.Minute)
	}
	h.store.mu.Unlock()

	require.ErrorIs(t, h.account.VerifyEmail(context.Background(), raw, testMeta), ErrTokenExpired)
	assert.Equal(t, model.StatusPendingVerification, h.store.user(user.ID).Status)
	assert.Empty(t, h.store.verifications)
}

func TestVerifyEmail_ConcurrentRedemptionHasOneWinner(t *testing.T) {
	h := newHarness(t)
	_, raw := registerPending(t, h, "race@example.com")

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.account.VerifyEmail(context.Background(), raw, testMeta)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrTokenInvalid)
	}
	assert.Equal(t, 1, succeeded)

	verified := 0
	for _, action := range h.store.actions() {
		if action == model.AuditEmailVerified {
			verified++
		}
	}
	assert.Equal(t, 1, verified)
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	h := newHarness(t)

	require.ErrorIs(t, h.account.VerifyEmail(context.Background(), "nope", testMeta), ErrTokenInvalid)
}

func TestResendVerification_ReplacesToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, first := registerPending(t, h, "again@example.com")

	require.NoError(t, h.account.ResendVerification(ctx, "Again@example.com", testMeta))

	event := h.publisher.last(t, events.SubjectVerificationRequested)
	require.NotEqual(t, first, event.Token)

	require.ErrorIs(t, h.account.VerifyEmail(ctx, first, testMeta), ErrTokenInvalid)
	require.NoError(t, h.account.VerifyEmail(ctx, event.Token, testMeta))
}

func TestResendVerification_SilentForUnknownOrVerified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "done@example.com", "password1", model.RoleCandidate, model.StatusActive)

	require.NoError(t, h.account.ResendVerification(ctx, "nobody@example.com", testMeta))
	require.NoError(t, h.account.ResendVerification(ctx, "done@example.com", testMeta))
	assert.Zero(t, h.publisher.count(events.SubjectVerificationRequested))
}

func TestResendVerification_RateLimited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	registerPending(t, h, "spam@example.com")

	for i := 0; i < 3; i++ {
		require.NoError(t, h.account.ResendVerification(ctx, "spam@example.com", testMeta))
	}
	require.ErrorIs(t, h.account.ResendVerification(ctx, "spam@example.com", testMeta), ErrRateLimited)
}

func TestResendVerification_FailsOpenWhenLimiterDown(t *testing.T) {
	h := newHarness(t)
	registerPending(t, h, "open@example.com")
	h.resend.err = errBoom

	require.NoError(t, h.account.ResendVerification(context.Background(), "open@example.com", testMeta))
	assert.Equal(t, 1, h.publisher.count(events.SubjectVerificationRequested))
}

func TestPasswordReset_FullFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "forgot@example.com", "password1", model.RoleCandidate, model.StatusActive)

	session, err := h.auth.LoginUser(ctx, "forgot@example.com", "password1", testMeta)
	require.NoError(t, err)

	require.NoError(t, h.account.RequestPasswordReset(ctx, "forgot@example.com", testMeta))
	raw := h.publisher.last(t, events.SubjectPasswordResetRequested).Token
	require.NotEmpty(t, raw)

	require.NoError(t, h.account.ResetPassword(ctx, raw, "brandnew9", testMeta))

	// old refresh tokens are gone and the token cannot be replayed
	_, err = h.auth.RefreshToken(ctx, session.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
	require.ErrorIs(t, h.account.ResetPassword(ctx, raw, "another99", testMeta), ErrTokenInvalid)

	_, err = h.auth.LoginUser(ctx, "forgot@example.com", "password1", testMeta)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.auth.LoginUser(ctx, "forgot@example.com", "brandnew9", testMeta)
	require.NoError(t, err)

	assert.Equal(t, 1, h.publisher.count(events.SubjectPasswordChanged))
	assert.Contains(t, h.store.actions(), model.AuditPasswordResetCompleted)
	assert.NotNil(t, h.store.user(seeded.ID).PasswordHash)
}

func TestPasswordReset_ClearsLockout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "locked@example.com", "password1", model.RoleCandidate, model.StatusActive)

	h.store.mu.Lock()
	h.store.users[seeded.ID].FailedLoginAttempts = 5
	h.store.users[seeded.ID].LockedUntil = ptr(time.Now().Add(10 * time.Minute))
	h.store.mu.Unlock()

	require.NoError(t, h.account.RequestPasswordReset(ctx, "locked@example.com", testMeta))
	raw := h.publisher.last(t, events.SubjectPasswordResetRequested).Token
	require.NoError(t, h.account.ResetPassword(ctx, raw, "unlocked1", testMeta))

	_, err := h.auth.LoginUser(ctx, "locked@example.com", "unlocked1", testMeta)
	require.NoError(t, err)
}

func TestPasswordReset_NewRequestInvalidatesOlder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "twice@example.com", "password1", model.RoleCandidate, model.StatusActive)

	require.NoError(t, h.account.RequestPasswordReset(ctx, "twice@example.com", testMeta))
	first := h.publisher.last(t, events.SubjectPasswordResetRequested).Token
	require.NoError(t, h.account.RequestPasswordReset(ctx, "twice@example.com", testMeta))
	second := h.publisher.last(t, events.SubjectPasswordResetRequested).Token

	require.ErrorIs(t, h.account.ResetPassword(ctx, first, "brandnew9", testMeta), ErrTokenInvalid)
	require.NoError(t, h.account.ResetPassword(ctx, second, "brandnew9", testMeta))
}

func TestPasswordReset_LosingConcurrentConsumeIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "slow@example.com", "password1", model.RoleCandidate, model.StatusActive)
	before := *h.store.user(seeded.ID).PasswordHash

	require.NoError(t, h.account.RequestPasswordReset(ctx, "slow@example.com", testMeta))
	raw := h.publisher.last(t, events.SubjectPasswordResetRequested).Token

	h.tx.repos.PasswordReset = lostRaceResets{memResets{h.store}}

	require.ErrorIs(t, h.account.ResetPassword(ctx, raw, "brandnew9", testMeta), ErrTokenInvalid)
	assert.Equal(t, before, *h.store.user(seeded.ID).PasswordHash)
	assert.Zero(t, h.publisher.count(events.SubjectPasswordChanged))
	assert.NotContains(t, h.store.actions(), model.AuditPasswordResetCompleted)
}

func TestPasswordReset_ExpiredAndWeak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "exp@example.com", "password1", model.RoleCandidate, model.StatusActive)

	require.NoError(t, h.account.RequestPasswordReset(ctx, "exp@example.com", testMeta))
	raw := h.publisher.last(t, events.SubjectPasswordResetRequested).Token

	require.ErrorIs(t, h.account.ResetPassword(ctx, raw, "short", testMeta), ErrWeakPassword)

	h.store.mu.Lock()
	for _, tok := range h.store.resets {
		tok.ExpiresAt = time.Now().Add(-time.Second)
	}
	h.store.mu.Unlock()

	require.ErrorIs(t, h.account.ResetPassword(ctx, raw, "brandnew9", testMeta), ErrTokenExpired)
}

func TestRequestPasswordReset_SilentCases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "oauth-only@example.com", "", model.RoleCandidate, model.StatusActive)

	require.NoError(t, h.account.RequestPasswordReset(ctx, "missing@example.com", testMeta))
	require.NoError(t, h.account.RequestPasswordReset(ctx, "oauth-only@example.com", testMeta))
	assert.Zero(t, h.publisher.count(events.SubjectPasswordResetRequested))

	for i := 0; i < 2; i++ {
		require.NoError(t, h.account.RequestPasswordReset(ctx, "missing@example.com", testMeta))
	}
	require.ErrorIs(t, h.account.RequestPasswordReset(ctx, "missing@example.com", testMeta), ErrRateLimited)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seeded := h.seedUser(t, "change@example.com", "password1", model.RoleCandidate, model.StatusActive)

	old, err := h.auth.LoginUser(ctx, "change@example.com", "password1", testMeta)
	require.NoError(t, err)

	_, err = h.account.ChangePassword(ctx, seeded.ID, "wrong-one1", "brandnew9", testMeta)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.account.ChangePassword(ctx, seeded.ID, "password1", "weak", testMeta)
	require.ErrorIs(t, err, ErrWeakPassword)

	session, err := h.account.ChangePassword(ctx, seeded.ID, "password1", "brandnew9", testMeta)
	require.NoError(t, err)
	assert.NotEmpty(t, session.RefreshToken)

	_, err = h.auth.RefreshToken(ctx, old.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
	assert.Equal(t, 1, h.store.refreshCount(seeded.ID))

	stored := h.store.user(seeded.ID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(*stored.PasswordHash), []byte("brandnew9")))
}

func TestChangePassword_FirstPasswordForOAuthAccount(t *testing.T) {
	h := newHarness(t)
	seeded := h.seedUser(t, "social@example.com", "", model.RoleCandidate, model.StatusActive)

	_, err := h.account.ChangePassword(context.Background(), seeded.ID, "", "firstpass1", testMeta)
	require.NoError(t, err)

	_, err = h.auth.LoginUser(context.Background(), "social@example.com", "firstpass1", testMeta)
	require.NoError(t, err)
}

func TestChangePassword_BlockedAccountsGetNoSession(t *testing.T) {
	tests := []struct {
		name   string
		status model.UserStatus
		want   error
	}{
		{"suspended", model.StatusSuspended, ErrAccountSuspended},
		{"deactivated", model.StatusDeactivated, ErrAccountDeactivated},
		{"pending verification", model.StatusPendingVerification, ErrEmailNotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			seeded := h.seedUser(t, "blocked@example.com", "password1", model.RoleCandidate, model.StatusActive)
			before := *h.store.user(seeded.ID).PasswordHash

			require.NoError(t, h.repos.Users.UpdateStatus(ctx, seeded.ID, tt.status))

			session, err := h.account.ChangePassword(ctx, seeded.ID, "password1", "brandnew9", testMeta)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, session)
			assert.Equal(t, before, *h.store.user(seeded.ID).PasswordHash)
			assert.Zero(t, h.store.refreshCount(seeded.ID))
			assert.Zero(t, h.publisher.count(events.SubjectPasswordChanged))
		})
	}
}

func TestChangePassword_AfterAdminSuspension(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.seedUser(t, "admin@example.com", "password1", model.RoleAdmin, model.StatusActive)
	target := h.seedUser(t, "holder@example.com", "password1", model.RoleCandidate, model.StatusActive)

	_, err := h.auth.LoginUser(ctx, "holder@example.com", "password1", testMeta)
	require.NoError(t, err)
	_, err = h.admin.ChangeStatus(ctx, admin.ID, target.ID, model.StatusSuspended, testMeta)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = h.account.ChangePassword(ctx, target.ID, "password1", "brandnew9", testMeta)
		require.ErrorIs(t, err, ErrAccountSuspended)
	}
	assert.Zero(t, h.store.refreshCount(target.ID))
}
