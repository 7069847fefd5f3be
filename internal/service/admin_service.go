package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hirexp-auth/internal/events"
	"hirexp-auth/internal/model"
	"hirexp-auth/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	exportBatchSize = 500
)

type UserPage struct {
	Users    []model.User
	Total    int
	Page     int
	PageSize int
}

func (p UserPage) TotalPages() int {
	if p.PageSize == 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

type AdminService interface {
	ListUsers(ctx context.Context, filter model.UserFilter, page, pageSize int) (*UserPage, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error)
	ChangeStatus(ctx context.Context, actorID, userID uuid.UUID, status model.UserStatus, meta model.RequestMeta) (*model.User, error)
	ChangeRole(ctx context.Context, actorID, userID uuid.UUID, role model.Role, meta model.RequestMeta) (*model.User, error)
	Unlock(ctx context.Context, actorID, userID uuid.UUID, meta model.RequestMeta) error
	ListAuditLogs(ctx context.Context, filter model.AuditFilter) ([]model.AuditLog, error)
	ExportAuditLogs(ctx context.Context, filter model.AuditFilter) (string, error)
}

type adminService struct {
	repos     repository.Repositories
	tx        Transactor
	publisher events.EventPublisher
	archive   Archive
	audit     auditor
	now       func() time.Time
}

// NewAdminService accepts a nil archive; exports then fail with ErrExportUnavailable.
func NewAdminService(repos repository.Repositories, tx Transactor, publisher events.EventPublisher, archive Archive) AdminService {
	return &adminService{
		repos:     repos,
		tx:        tx,
		publisher: publisher,
		archive:   archive,
		audit:     auditor{repo: repos.Audit},
		now:       time.Now,
	}
}

func (s *adminService) ListUsers(ctx context.Context, filter model.UserFilter, page, pageSize int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, ErrInvalidRole
	}

	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	users, total, err := s.repos.Users.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &UserPage{Users: users, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *adminService) GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.repos.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ChangeStatus revokes every refresh token when the account leaves ACTIVE for
// SUSPENDED or DEACTIVATED. Activating an unverified account also verifies it.
func (s *adminService) ChangeStatus(ctx context.Context, actorID, userID uuid.UUID, status model.UserStatus, meta model.RequestMeta) (*model.User, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if actorID == userID {
		return nil, ErrSelfModification
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := user.Status
	if previous == status {
		return user, nil
	}

	err = s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		if status == model.StatusActive && !user.IsVerified() {
			if err := repos.Users.MarkEmailVerified(ctx, userID); err != nil {
				return err
			}
		}
		if err := repos.Users.UpdateStatus(ctx, userID, status); err != nil {
			return err
		}
		if status == model.StatusSuspended || status == model.StatusDeactivated {
			return repos.RefreshTokens.DeleteByUser(ctx, userID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("change status: %w", err)
	}

	event := events.NewAccountEvent(events.SubjectAccountStatusChanged, userID, user.Email)
	event.Status = string(status)
	publish(ctx, s.publisher, event)

	s.audit.record(ctx, &userID, model.AuditUserStatusChanged, meta, model.AuditDetails{
		"actor_id": actorID.String(),
		"from":     previous,
		"to":       status,
	})

	return s.GetUser(ctx, userID)
}

func (s *adminService) ChangeRole(ctx context.Context, actorID, userID uuid.UUID, role model.Role, meta model.RequestMeta) (*model.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if actorID == userID {
		return nil, ErrSelfModification
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := user.Role
	if previous == role {
		return user, nil
	}

	if err := s.repos.Users.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.Role = role

	s.audit.record(ctx, &userID, model.AuditUserRoleChanged, meta, model.AuditDetails{
		"actor_id": actorID.String(),
		"from":     previous,
		"to":       role,
	})

	return user, nil
}

func (s *adminService) Unlock(ctx context.Context, actorID, userID uuid.UUID, meta model.RequestMeta) error {
	if err := s.repos.Users.Unlock(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.audit.record(ctx, &userID, model.AuditAccountUnlocked, meta, model.AuditDetails{"actor_id": actorID.String()})

	return nil
}

func (s *adminService) ListAuditLogs(ctx context.Context, filter model.AuditFilter) ([]model.AuditLog, error) {
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	return s.repos.Audit.List(ctx, filter)
}

// ExportAuditLogs writes every matching entry as JSON lines and returns a
// short-lived download URL. Limit and Offset of the filter are ignored.
func (s *adminService) ExportAuditLogs(ctx context.Context, filter model.AuditFilter) (string, error) {
	if s.archive == nil {
		return "", ErrExportUnavailable
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	filter.Limit = exportBatchSize
	filter.Offset = 0
	for {
		batch, err := s.repos.Audit.List(ctx, filter)
		if err != nil {
			return "", err
		}
		for _, entry := range batch {
			if err := enc.Encode(entry); err != nil {
				return "", err
			}
		}
		if len(batch) < exportBatchSize {
			break
		}
		filter.Offset += exportBatchSize
	}

	key := fmt.Sprintf("audit-exports/%s-%s.jsonl", s.now().UTC().Format("20060102T150405Z"), uuid.NewString())
	url, err := s.archive.Store(ctx, key, "application/x-ndjson", buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("store audit export: %w", err)
	}
	return url, nil
}
