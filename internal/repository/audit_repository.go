package repository

import (
	"context"
	"fmt"
	"strings"

	"hirexp-auth/internal/model"
)

// AuditRepository has no update or delete path; audit_logs is append-only.
type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter model.AuditFilter) ([]model.AuditLog, error)
}

type postgresAuditRepository struct {
	db DBTX
}

func NewPostgresAuditRepository(db DBTX) AuditRepository {
	return &postgresAuditRepository{db: db}
}

func (r *postgresAuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	query := `INSERT INTO audit_logs (user_id, action, details, ip_address, user_agent) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, entry.UserID, entry.Action, entry.Details, entry.IPAddress, entry.UserAgent)
	return row.Scan(&entry.ID, &entry.CreatedAt)
}

func (r *postgresAuditRepository) List(ctx context.Context, filter model.AuditFilter) ([]model.AuditLog, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT id, user_id, action, details, ip_address, user_agent, created_at FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	logs := []model.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, err
	}
	return logs, nil
}
