package repository

import (
	"context"

	"github.com/google/uuid"

	"hirexp-auth/internal/model"
)

type PasswordResetRepository interface {
	Create(ctx context.Context, token *model.PasswordResetToken) error
	FindByHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) (bool, error)
	InvalidateForUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type postgresPasswordResetRepository struct {
	db DBTX
}

func NewPostgresPasswordResetRepository(db DBTX) PasswordResetRepository {
	return &postgresPasswordResetRepository{db: db}
}

func (r *postgresPasswordResetRepository) Create(ctx context.Context, token *model.PasswordResetToken) error {
	query := `INSERT INTO password_reset_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query, token.UserID, token.TokenHash, token.ExpiresAt).Scan(&token.ID)
	return mapError(err)
}

func (r *postgresPasswordResetRepository) FindByHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	var token model.PasswordResetToken
	query := `SELECT id, user_id, token_hash, expires_at, used_at, created_at FROM password_reset_tokens WHERE token_hash = $1`
	if err := r.db.GetContext(ctx, &token, query, tokenHash); err != nil {
		return nil, mapError(err)
	}
	return &token, nil
}

// MarkUsed flags an unused token and reports whether this call was the one that flagged it.
func (r *postgresPasswordResetRepository) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE password_reset_tokens SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InvalidateForUser flags every outstanding token of the user as used.
func (r *postgresPasswordResetRepository) InvalidateForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE password_reset_tokens SET used_at = NOW() WHERE user_id = $1 AND used_at IS NULL`, userID)
	return err
}

func (r *postgresPasswordResetRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
