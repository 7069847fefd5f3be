package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateUsersTable, downCreateUsersTable)
}

func upCreateUsersTable(ctx context.Context, tx *sql.Tx) error {
	query := `
	CREATE TABLE users (
	  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	  email TEXT UNIQUE NOT NULL,
	  password_hash TEXT,
	  role TEXT NOT NULL DEFAULT 'CANDIDATE'
	    CHECK (role IN ('CANDIDATE', 'EMPLOYER', 'TRAINER', 'ADMIN')),
	  status TEXT NOT NULL DEFAULT 'PENDING_VERIFICATION'
	    CHECK (status IN ('ACTIVE', 'PENDING_VERIFICATION', 'SUSPENDED', 'DEACTIVATED')),
	  email_verified TIMESTAMP WITH TIME ZONE,
	  failed_login_attempts INTEGER NOT NULL DEFAULT 0,
	  locked_until TIMESTAMP WITH TIME ZONE,
	  last_login_at TIMESTAMP WITH TIME ZONE,
	  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
	  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE INDEX idx_users_status ON users(status);
	CREATE INDEX idx_users_role ON users(role);
	`

	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}

func downCreateUsersTable(ctx context.Context, tx *sql.Tx) error {
	query := `DROP TABLE IF EXISTS users;`
	_, err := tx.ExecContext(ctx, query)
	if err != nil {
		return err
	}
	return nil
}
