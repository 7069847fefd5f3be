package repository

import (
	"context"

	"github.com/google/uuid"

	"hirexp-auth/internal/model"
)

type TokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	Consume(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type postgresTokenRepository struct {
	db DBTX
}

func NewPostgresTokenRepository(db DBTX) TokenRepository {
	return &postgresTokenRepository{db: db}
}

func (r *postgresTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, token.UserID, token.TokenHash, token.ExpiresAt)
	return mapError(err)
}

// Consume deletes the token and returns it, so a refresh token can be rotated only once.
func (r *postgresTokenRepository) Consume(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var token model.RefreshToken
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1 RETURNING id, user_id, token_hash, expires_at, created_at`
	if err := r.db.GetContext(ctx, &token, query, tokenHash); err != nil {
		return nil, mapError(err)
	}
	return &token, nil
}

func (r *postgresTokenRepository) Delete(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1`
	_, err := r.db.ExecContext(ctx, query, tokenHash)
	return err
}

func (r *postgresTokenRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	return err
}

func (r *postgresTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
