package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

const uniqueViolation = "23505"

// DBTX is implemented by both *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}

	return err
}

// Repositories groups every repository bound to the same connection or transaction.
type Repositories struct {
	Users         UserRepository
	Profiles      ProfileRepository
	Accounts      AccountRepository
	RefreshTokens TokenRepository
	Verifications VerificationTokenRepository
	PasswordReset PasswordResetRepository
	Audit         AuditRepository
	Devices       DeviceTokenRepository
}

func newRepositories(db DBTX) Repositories {
	return Repositories{
		Users:         NewPostgresUserRepository(db),
		Profiles:      NewPostgresProfileRepository(db),
		Accounts:      NewPostgresAccountRepository(db),
		RefreshTokens: NewPostgresTokenRepository(db),
		Verifications: NewPostgresVerificationTokenRepository(db),
		PasswordReset: NewPostgresPasswordResetRepository(db),
		Audit:         NewPostgresAuditRepository(db),
		Devices:       NewPostgresDeviceTokenRepository(db),
	}
}

type Store struct {
	Repositories
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		Repositories: newRepositories(db),
		db:           db,
	}
}

// WithinTx runs fn against repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(repos Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
