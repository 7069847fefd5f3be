package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hirexp-auth/internal/model"
)

const userColumns = `id, email, password_hash, role, status, email_verified, failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

type UserRepository interface {
	Create(ctx context.Context, user *model.User) (uuid.UUID, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	List(ctx context.Context, filter model.UserFilter) ([]model.User, int, error)
	RegisterFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (int, *time.Time, error)
	RecordLoginSuccess(ctx context.Context, id uuid.UUID) error
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
	Unlock(ctx context.Context, id uuid.UUID) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) error
	UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
}

type postgresUserRepository struct {
	db DBTX
}

func NewPostgresUserRepository(db DBTX) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) Create(ctx context.Context, user *model.User) (uuid.UUID, error) {
	query := `INSERT INTO users (email, password_hash, role, status, email_verified) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	var newID uuid.UUID
	err := r.db.QueryRowxContext(ctx, query, user.Email, user.PasswordHash, user.Role, user.Status, user.EmailVerified).Scan(&newID)

	if err != nil {
		return uuid.Nil, mapError(err)
	}

	return newID, nil
}

func (r *postgresUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, mapError(err)
	}

	return &user, nil
}

func (r *postgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, mapError(err)
	}

	return &user, nil
}

func (r *postgresUserRepository) List(ctx context.Context, filter model.UserFilter) ([]model.User, int, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+strings.ToLower(filter.Query)+"%")
		conds = append(conds, fmt.Sprintf("email LIKE $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args))

	users := []model.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// RegisterFailedLogin bumps the failure counter and sets locked_until once the
// counter reaches threshold, in a single statement. A lock that has already
// expired restarts the counter at one.
func (r *postgresUserRepository) RegisterFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	const q = `UPDATE users SET
		failed_login_attempts = CASE WHEN locked_until IS NOT NULL AND locked_until <= NOW() THEN 1 ELSE failed_login_attempts + 1 END,
		locked_until = CASE
			WHEN (CASE WHEN locked_until IS NOT NULL AND locked_until <= NOW() THEN 1 ELSE failed_login_attempts + 1 END) >= $2
				THEN NOW() + make_interval(secs => $3)
			WHEN locked_until IS NOT NULL AND locked_until <= NOW() THEN NULL
			ELSE locked_until
		END,
		updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`

	var result struct {
		Attempts    int        `db:"failed_login_attempts"`
		LockedUntil *time.Time `db:"locked_until"`
	}
	if err := r.db.GetContext(ctx, &result, q, id, threshold, lockFor.Seconds()); err != nil {
		return 0, nil, mapError(err)
	}

	return result.Attempts, result.LockedUntil, nil
}

func (r *postgresUserRepository) RecordLoginSuccess(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET failed_login_attempts = 0, locked_until = NULL, last_login_at = NOW(), updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, id)
}

// TouchLastLogin leaves the failure counter and any lock untouched.
func (r *postgresUserRepository) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, id)
}

func (r *postgresUserRepository) Unlock(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, id)
}

// MarkEmailVerified promotes PENDING_VERIFICATION accounts to ACTIVE and
// leaves other statuses untouched.
func (r *postgresUserRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET
		email_verified = COALESCE(email_verified, NOW()),
		status = CASE WHEN status = 'PENDING_VERIFICATION' THEN 'ACTIVE' ELSE status END,
		updated_at = NOW()
		WHERE id = $1`
	return r.execOne(ctx, q, id)
}

func (r *postgresUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	const q = `UPDATE users SET password_hash = $2, failed_login_attempts = 0, locked_until = NULL, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, id, passwordHash)
}

func (r *postgresUserRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) error {
	const q = `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, id, status)
}

func (r *postgresUserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	const q = `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, q, id, role)
}

func (r *postgresUserRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}
