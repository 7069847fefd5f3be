package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upCreateLinkedAccountsTable, downCreateLinkedAccountsTable)
}

func upCreateLinkedAccountsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS linked_accounts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type TEXT NOT NULL DEFAULT 'oauth',
			provider TEXT NOT NULL,
			provider_account_id TEXT NOT NULL,
			access_token TEXT,
			refresh_token TEXT,
			id_token TEXT,
			expires_at BIGINT,
			token_type TEXT,
			scope TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			UNIQUE (provider, provider_account_id)
		);

		CREATE INDEX IF NOT EXISTS idx_linked_accounts_user_id ON linked_accounts(user_id);
	`)
	return err
}

func downCreateLinkedAccountsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS linked_accounts;`)
	return err
}
