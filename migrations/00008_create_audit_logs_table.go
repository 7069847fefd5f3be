package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateAuditLogsTable, downCreateAuditLogsTable)
}

// audit_logs is append-only. The trigger rejects UPDATE and DELETE except the
// user_id detach performed by ON DELETE SET NULL.
func upCreateAuditLogsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID REFERENCES users(id) ON DELETE SET NULL,
			action TEXT NOT NULL,
			details JSONB NOT NULL DEFAULT '{}'::jsonb,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);

		CREATE OR REPLACE FUNCTION audit_logs_append_only() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'UPDATE' AND OLD.user_id IS NOT NULL AND NEW.user_id IS NULL
				AND NEW.action = OLD.action AND NEW.details = OLD.details THEN
				RETURN NEW;
			END IF;
			RAISE EXCEPTION 'audit_logs is append-only';
		END;
		$$ LANGUAGE plpgsql;

		CREATE TRIGGER trg_audit_logs_append_only
			BEFORE UPDATE OR DELETE ON audit_logs
			FOR EACH ROW EXECUTE FUNCTION audit_logs_append_only();
	`)
	return err
}

func downCreateAuditLogsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		DROP TABLE IF EXISTS audit_logs;
		DROP FUNCTION IF EXISTS audit_logs_append_only();
	`)
	return err
}
