package repository

import (
	"context"

	"github.com/google/uuid"

	"hirexp-auth/internal/model"
)

const accountColumns = `id, user_id, type, provider, provider_account_id, access_token, refresh_token, id_token, expires_at, token_type, scope, created_at, updated_at`

type AccountRepository interface {
	Create(ctx context.Context, account *model.LinkedAccount) error
	FindByProvider(ctx context.Context, provider, providerAccountID string) (*model.LinkedAccount, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.LinkedAccount, error)
	UpdateTokens(ctx context.Context, account *model.LinkedAccount) error
	Delete(ctx context.Context, userID uuid.UUID, provider string) error
}

type postgresAccountRepository struct {
	db DBTX
}

func NewPostgresAccountRepository(db DBTX) AccountRepository {
	return &postgresAccountRepository{db: db}
}

func (r *postgresAccountRepository) Create(ctx context.Context, a *model.LinkedAccount) error {
	query := `
		INSERT INTO linked_accounts (user_id, type, provider, provider_account_id, access_token, refresh_token, id_token, expires_at, token_type, scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, query,
		a.UserID, a.Type, a.Provider, a.ProviderAccountID,
		a.AccessToken, a.RefreshToken, a.IDToken, a.ExpiresAt, a.TokenType, a.Scope,
	).Scan(&a.ID)
	return mapError(err)
}

func (r *postgresAccountRepository) FindByProvider(ctx context.Context, provider, providerAccountID string) (*model.LinkedAccount, error) {
	var account model.LinkedAccount
	query := `SELECT ` + accountColumns + ` FROM linked_accounts WHERE provider = $1 AND provider_account_id = $2`
	if err := r.db.GetContext(ctx, &account, query, provider, providerAccountID); err != nil {
		return nil, mapError(err)
	}
	return &account, nil
}

func (r *postgresAccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.LinkedAccount, error) {
	accounts := []model.LinkedAccount{}
	query := `SELECT ` + accountColumns + ` FROM linked_accounts WHERE user_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &accounts, query, userID); err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpdateTokens keeps stored tokens when the provider omits them on a later sign-in.
func (r *postgresAccountRepository) UpdateTokens(ctx context.Context, a *model.LinkedAccount) error {
	query := `
		UPDATE linked_accounts SET
			access_token = COALESCE($2, access_token),
			refresh_token = COALESCE($3, refresh_token),
			id_token = COALESCE($4, id_token),
			expires_at = COALESCE($5, expires_at),
			token_type = COALESCE($6, token_type),
			scope = COALESCE($7, scope),
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.AccessToken, a.RefreshToken, a.IDToken, a.ExpiresAt, a.TokenType, a.Scope)
	return mapError(err)
}

func (r *postgresAccountRepository) Delete(ctx context.Context, userID uuid.UUID, provider string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM linked_accounts WHERE user_id = $1 AND provider = $2`, userID, provider)
	if err != nil {
		return err
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
