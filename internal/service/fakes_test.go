package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"hirexp-auth/internal/events"
	"hirexp-auth/internal/jwt"
	"hirexp-auth/internal/model"
	"hirexp-auth/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory stand-in for the postgres repositories.
type memStore struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*model.User
	profiles      map[uuid.UUID]*model.Profile
	accounts      map[uuid.UUID]*model.LinkedAccount
	refresh       map[string]*model.RefreshToken
	verifications map[uuid.UUID]*model.VerificationToken
	resets        map[uuid.UUID]*model.PasswordResetToken
	devices       map[string]*model.DeviceToken
	audits        []model.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[uuid.UUID]*model.User{},
		profiles:      map[uuid.UUID]*model.Profile{},
		accounts:      map[uuid.UUID]*model.LinkedAccount{},
		refresh:       map[string]*model.RefreshToken{},
		verifications: map[uuid.UUID]*model.VerificationToken{},
		resets:        map[uuid.UUID]*model.PasswordResetToken{},
		devices:       map[string]*model.DeviceToken{},
	}
}

func (m *memStore) repositories() repository.Repositories {
	return repository.Repositories{
		Users:         memUsers{m},
		Profiles:      memProfiles{m},
		Accounts:      memAccounts{m},
		RefreshTokens: memRefresh{m},
		Verifications: memVerifications{m},
		PasswordReset: memResets{m},
		Audit:         memAudit{m},
		Devices:       memDevices{m},
	}
}

func (m *memStore) user(id uuid.UUID) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memStore) actions() []model.AuditAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AuditAction, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, a.Action)
	}
	return out
}

func (m *memStore) refreshCount(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.refresh {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

type memUsers struct{ m *memStore }

func (r memUsers) Create(ctx context.Context, user *model.User) (uuid.UUID, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == user.Email {
			return uuid.Nil, repository.ErrDuplicate
		}
	}
	stored := *user
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.m.users[stored.ID] = &stored
	return stored.ID, nil
}

func (r memUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) List(ctx context.Context, filter model.UserFilter) ([]model.User, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var matched []model.User
	for _, u := range r.m.users {
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Query != "" && !strings.Contains(u.Email, strings.ToLower(filter.Query)) {
			continue
		}
		matched = append(matched, *u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Email < matched[j].Email })

	total := len(matched)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (r memUsers) RegisterFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	now := time.Now()
	expired := u.LockedUntil != nil && !u.LockedUntil.After(now)
	if expired {
		u.FailedLoginAttempts = 1
		u.LockedUntil = nil
	} else {
		u.FailedLoginAttempts++
	}
	if u.FailedLoginAttempts >= threshold {
		until := now.Add(lockFor)
		u.LockedUntil = &until
	}
	return u.FailedLoginAttempts, u.LockedUntil, nil
}

func (r memUsers) mutate(id uuid.UUID, fn func(u *model.User)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (r memUsers) RecordLoginSuccess(ctx context.Context, id uuid.UUID) error {
	return r.mutate(id, func(u *model.User) {
		now := time.Now()
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &now
	})
}

func (r memUsers) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	return r.mutate(id, func(u *model.User) {
		now := time.Now()
		u.LastLoginAt = &now
	})
}

func (r memUsers) Unlock(ctx context.Context, id uuid.UUID) error {
	return r.mutate(id, func(u *model.User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	})
}

func (r memUsers) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	return r.mutate(id, func(u *model.User) {
		if u.EmailVerified == nil {
			now := time.Now()
			u.EmailVerified = &now
		}
		if u.Status == model.StatusPendingVerification {
			u.Status = model.StatusActive
		}
	})
}

func (r memUsers) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.mutate(id, func(u *model.User) {
		u.PasswordHash = &passwordHash
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	})
}

func (r memUsers) UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) error {
	return r.mutate(id, func(u *model.User) { u.Status = status })
}

func (r memUsers) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	return r.mutate(id, func(u *model.User) { u.Role = role })
}

type memProfiles struct{ m *memStore }

func (r memProfiles) Create(ctx context.Context, profile *model.Profile) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *profile
	r.m.profiles[profile.UserID] = &cp
	return nil
}

func (r memProfiles) FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memProfiles) Update(ctx context.Context, profile *model.Profile) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.profiles[profile.UserID]; !ok {
		return repository.ErrNotFound
	}
	cp := *profile
	r.m.profiles[profile.UserID] = &cp
	return nil
}

type memAccounts struct{ m *memStore }

func (r memAccounts) Create(ctx context.Context, account *model.LinkedAccount) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.accounts {
		if a.Provider == account.Provider && a.ProviderAccountID == account.ProviderAccountID {
			return repository.ErrDuplicate
		}
	}
	cp := *account
	cp.ID = uuid.New()
	account.ID = cp.ID
	r.m.accounts[cp.ID] = &cp
	return nil
}

func (r memAccounts) FindByProvider(ctx context.Context, provider, providerAccountID string) (*model.LinkedAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range r.m.accounts {
		if a.Provider == provider && a.ProviderAccountID == providerAccountID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memAccounts) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.LinkedAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []model.LinkedAccount{}
	for _, a := range r.m.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r memAccounts) UpdateTokens(ctx context.Context, account *model.LinkedAccount) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.accounts[account.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if account.AccessToken != nil {
		a.AccessToken = account.AccessToken
	}
	return nil
}

func (r memAccounts) Delete(ctx context.Context, userID uuid.UUID, provider string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, a := range r.m.accounts {
		if a.UserID == userID && a.Provider == provider {
			delete(r.m.accounts, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

type memRefresh struct{ m *memStore }

func (r memRefresh) Create(ctx context.Context, token *model.RefreshToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *token
	cp.ID = uuid.New()
	r.m.refresh[token.TokenHash] = &cp
	return nil
}

func (r memRefresh) Consume(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.refresh[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(r.m.refresh, tokenHash)
	return t, nil
}

func (r memRefresh) Delete(ctx context.Context, tokenHash string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.refresh, tokenHash)
	return nil
}

func (r memRefresh) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for h, t := range r.m.refresh {
		if t.UserID == userID {
			delete(r.m.refresh, h)
		}
	}
	return nil
}

func (r memRefresh) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type memVerifications struct{ m *memStore }

func (r memVerifications) Create(ctx context.Context, token *model.VerificationToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *token
	cp.ID = uuid.New()
	token.ID = cp.ID
	r.m.verifications[cp.ID] = &cp
	return nil
}

func (r memVerifications) FindByHash(ctx context.Context, tokenHash string) (*model.VerificationToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.verifications {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memVerifications) Consume(ctx context.Context, tokenHash string) (*model.VerificationToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, t := range r.m.verifications {
		if t.TokenHash == tokenHash {
			delete(r.m.verifications, id)
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memVerifications) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, t := range r.m.verifications {
		if t.UserID == userID {
			delete(r.m.verifications, id)
		}
	}
	return nil
}

func (r memVerifications) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type memResets struct{ m *memStore }

func (r memResets) Create(ctx context.Context, token *model.PasswordResetToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *token
	cp.ID = uuid.New()
	r.m.resets[cp.ID] = &cp
	return nil
}

func (r memResets) FindByHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.resets {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memResets) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.resets[id]
	if !ok || t.UsedAt != nil {
		return false, nil
	}
	now := time.Now()
	t.UsedAt = &now
	return true, nil
}

// lostRaceResets simulates another request marking the token used first.
type lostRaceResets struct{ memResets }

func (lostRaceResets) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}

func (r memResets) InvalidateForUser(ctx context.Context, userID uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	now := time.Now()
	for _, t := range r.m.resets {
		if t.UserID == userID && t.UsedAt == nil {
			t.UsedAt = &now
		}
	}
	return nil
}

func (r memResets) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type memAudit struct{ m *memStore }

func (r memAudit) Create(ctx context.Context, entry *model.AuditLog) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	r.m.audits = append(r.m.audits, *entry)
	return nil
}

func (r memAudit) List(ctx context.Context, filter model.AuditFilter) ([]model.AuditLog, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var matched []model.AuditLog
	for _, a := range r.m.audits {
		if filter.Action != "" && a.Action != filter.Action {
			continue
		}
		if filter.UserID != nil && (a.UserID == nil || *a.UserID != *filter.UserID) {
			continue
		}
		matched = append(matched, a)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	start := min(filter.Offset, len(matched))
	end := min(start+limit, len(matched))
	return matched[start:end], nil
}

type memDevices struct{ m *memStore }

func (r memDevices) Upsert(ctx context.Context, token *model.DeviceToken) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *token
	r.m.devices[token.DeviceToken] = &cp
	return nil
}

func (r memDevices) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []string
	for tok, d := range r.m.devices {
		if d.UserID == userID {
			out = append(out, tok)
		}
	}
	return out, nil
}

type fakeTx struct {
	repos repository.Repositories
	err   error
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(f.repos)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.AccountEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event events.AccountEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) last(t *testing.T, subject string) events.AccountEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].EventType == subject {
			return p.events[i]
		}
	}
	t.Fatalf("no %s event published", subject)
	return events.AccountEvent{}
}

func (p *fakePublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType == subject {
			n++
		}
	}
	return n
}

type fakeLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func newFakeLimiter(limit int) *fakeLimiter {
	return &fakeLimiter{limit: limit, seen: map[string]int{}}
}

func (l *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

type fakeDenylist struct {
	revoked map[string]time.Duration
}

func (d *fakeDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if d.revoked == nil {
		d.revoked = map[string]time.Duration{}
	}
	d.revoked[jti] = ttl
	return nil
}

type fakeArchive struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (a *fakeArchive) Store(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.key, a.contentType, a.body = key, contentType, body
	return "https://exports.example.com/" + key + "?signed", nil
}

var errBoom = errors.New("boom")

var testConfig = Config{
	BcryptCost:        bcrypt.MinCost,
	MaxFailedAttempts: 5,
	LockoutDuration:   15 * time.Minute,
	VerificationTTL:   24 * time.Hour,
	ResetTTL:          time.Hour,
	RefreshTTL:        30 * 24 * time.Hour,
}

// harness wires every service over one memStore.
type harness struct {
	store     *memStore
	repos     repository.Repositories
	tx        *fakeTx
	tokens    *jwt.Manager
	publisher *fakePublisher
	denylist  *fakeDenylist
	resend    *fakeLimiter
	reset     *fakeLimiter
	archive   *fakeArchive

	auth    AuthService
	account AccountService
	oauth   OAuthService
	users   UserService
	admin   AdminService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     newMemStore(),
		tokens:    jwt.NewManager("test-secret", 15*time.Minute),
		publisher: &fakePublisher{},
		denylist:  &fakeDenylist{},
		resend:    newFakeLimiter(3),
		reset:     newFakeLimiter(3),
		archive:   &fakeArchive{},
	}
	h.repos = h.store.repositories()
	h.tx = &fakeTx{repos: h.repos}

	sessions := NewSessionIssuer(h.tokens, h.repos.RefreshTokens, testConfig.RefreshTTL)
	h.auth = NewAuthService(h.repos, h.tx, sessions, h.publisher, h.denylist, testConfig)
	h.account = NewAccountService(h.repos, h.tx, sessions, h.publisher, h.resend, h.reset, testConfig)
	h.oauth = NewOAuthService(h.repos, h.tx, sessions, h.publisher, testConfig)
	h.users = NewUserService(h.repos)
	h.admin = NewAdminService(h.repos, h.tx, h.publisher, h.archive)
	return h
}

// seedUser inserts a user with a profile. An empty password leaves the account OAuth-only.
func (h *harness) seedUser(t *testing.T, email, password string, role model.Role, status model.UserStatus) *model.User {
	t.Helper()
	user := &model.User{Email: email, Role: role, Status: status}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		user.PasswordHash = ptr(string(hash))
	}
	if status != model.StatusPendingVerification {
		user.EmailVerified = ptr(time.Now().Add(-time.Hour))
	}
	id, err := h.repos.Users.Create(context.Background(), user)
	require.NoError(t, err)
	require.NoError(t, h.repos.Profiles.Create(context.Background(), &model.Profile{UserID: id, Name: "Seed"}))
	user.ID = id
	return user
}

var testMeta = model.RequestMeta{IP: "203.0.113.7", UserAgent: "go-test"}
