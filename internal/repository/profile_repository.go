package repository

import (
	"context"

	"github.com/google/uuid"

	"hirexp-auth/internal/model"
)

type ProfileRepository interface {
	Create(ctx context.Context, profile *model.Profile) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	Update(ctx context.Context, profile *model.Profile) error
}

type postgresProfileRepository struct {
	db DBTX
}

func NewPostgresProfileRepository(db DBTX) ProfileRepository {
	return &postgresProfileRepository{db: db}
}

func (r *postgresProfileRepository) Create(ctx context.Context, profile *model.Profile) error {
	query := `INSERT INTO profiles (user_id, name, avatar_url) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, profile.UserID, profile.Name, profile.AvatarURL)
	return mapError(err)
}

func (r *postgresProfileRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	var profile model.Profile
	query := `SELECT user_id, name, avatar_url, bio, headline, location, website, created_at, updated_at FROM profiles WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, mapError(err)
	}
	return &profile, nil
}

func (r *postgresProfileRepository) Update(ctx context.Context, profile *model.Profile) error {
	query := `
		UPDATE profiles
		SET name = $2, avatar_url = $3, bio = $4, headline = $5, location = $6, website = $7, updated_at = NOW()
		WHERE user_id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		profile.UserID, profile.Name, profile.AvatarURL, profile.Bio, profile.Headline, profile.Location, profile.Website,
	)
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
