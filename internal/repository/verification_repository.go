package repository

import (
	"context"

	"github.com/google/uuid"

	"hirexp-auth/internal/model"
)

type VerificationTokenRepository interface {
	Create(ctx context.Context, token *model.VerificationToken) error
	FindByHash(ctx context.Context, tokenHash string) (*model.VerificationToken, error)
	Consume(ctx context.Context, tokenHash string) (*model.VerificationToken, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type postgresVerificationTokenRepository struct {
	db DBTX
}

func NewPostgresVerificationTokenRepository(db DBTX) VerificationTokenRepository {
	return &postgresVerificationTokenRepository{db: db}
}

func (r *postgresVerificationTokenRepository) Create(ctx context.Context, token *model.VerificationToken) error {
	query := `INSERT INTO verification_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query, token.UserID, token.TokenHash, token.ExpiresAt).Scan(&token.ID)
	return mapError(err)
}

func (r *postgresVerificationTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*model.VerificationToken, error) {
	var token model.VerificationToken
	query := `SELECT id, user_id, token_hash, expires_at, created_at FROM verification_tokens WHERE token_hash = $1`
	if err := r.db.GetContext(ctx, &token, query, tokenHash); err != nil {
		return nil, mapError(err)
	}
	return &token, nil
}

// Consume deletes the token and returns it, so concurrent redemptions have one winner.
func (r *postgresVerificationTokenRepository) Consume(ctx context.Context, tokenHash string) (*model.VerificationToken, error) {
	var token model.VerificationToken
	query := `DELETE FROM verification_tokens WHERE token_hash = $1 RETURNING id, user_id, token_hash, expires_at, created_at`
	if err := r.db.GetContext(ctx, &token, query, tokenHash); err != nil {
		return nil, mapError(err)
	}
	return &token, nil
}

func (r *postgresVerificationTokenRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM verification_tokens WHERE user_id = $1`, userID)
	return err
}

func (r *postgresVerificationTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
