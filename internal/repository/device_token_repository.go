package repository

import (
	"context"

	"github.com/google/uuid"

	"hirexp-auth/internal/model"
)

type DeviceTokenRepository interface {
	Upsert(ctx context.Context, token *model.DeviceToken) error
	ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type postgresDeviceTokenRepository struct {
	db DBTX
}

func NewPostgresDeviceTokenRepository(db DBTX) DeviceTokenRepository {
	return &postgresDeviceTokenRepository{db: db}
}

// Upsert moves a device token to the latest user that registered it.
func (r *postgresDeviceTokenRepository) Upsert(ctx context.Context, token *model.DeviceToken) error {
	query := `
		INSERT INTO user_device_tokens (user_id, device_token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_token) DO UPDATE SET user_id = $1, platform = $3
	`
	_, err := r.db.ExecContext(ctx, query, token.UserID, token.DeviceToken, token.Platform)
	return err
}

func (r *postgresDeviceTokenRepository) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var tokens []string
	query := `SELECT device_token FROM user_device_tokens WHERE user_id = $1`
	err := r.db.SelectContext(ctx, &tokens, query, userID)
	return tokens, err
}
