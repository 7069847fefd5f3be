package model

import (
	"time"

	"github.com/google/uuid"
)

// LinkedAccount is an identity at an external OAuth provider bound to a local user.
type LinkedAccount struct {
	ID                uuid.UUID `db:"id"`
	UserID            uuid.UUID `db:"user_id"`
	Type              string    `db:"type"`
	Provider          string    `db:"provider"`
	ProviderAccountID string    `db:"provider_account_id"`
	AccessToken       *string   `db:"access_token"`
	RefreshToken      *string   `db:"refresh_token"`
	IDToken           *string   `db:"id_token"`
	ExpiresAt         *int64    `db:"expires_at"`
	TokenType         *string   `db:"token_type"`
	Scope             *string   `db:"scope"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}
