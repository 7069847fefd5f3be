package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditUserRegistered          AuditAction = "USER_REGISTERED"
	AuditLoginSucceeded          AuditAction = "LOGIN_SUCCEEDED"
	AuditLoginFailed             AuditAction = "LOGIN_FAILED"
	AuditAccountLocked           AuditAction = "ACCOUNT_LOCKED"
	AuditAccountUnlocked         AuditAction = "ACCOUNT_UNLOCKED"
	AuditEmailVerified           AuditAction = "EMAIL_VERIFIED"
	AuditPasswordResetRequested  AuditAction = "PASSWORD_RESET_REQUESTED"
	AuditPasswordResetCompleted  AuditAction = "PASSWORD_RESET_COMPLETED"
	AuditPasswordChanged         AuditAction = "PASSWORD_CHANGED"
	AuditOAuthLinked             AuditAction = "OAUTH_LINKED"
	AuditOAuthUnlinked           AuditAction = "OAUTH_UNLINKED"
	AuditOAuthUserCreated        AuditAction = "OAUTH_USER_CREATED"
	AuditUserStatusChanged       AuditAction = "USER_STATUS_CHANGED"
	AuditUserRoleChanged         AuditAction = "USER_ROLE_CHANGED"
	AuditLogout                  AuditAction = "LOGOUT"
	AuditVerificationEmailResent AuditAction = "VERIFICATION_EMAIL_RESENT"
)

// AuditDetails is stored as JSONB.
type AuditDetails map[string]any

func (d AuditDetails) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *AuditDetails) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = AuditDetails{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("audit details: unsupported type %T", src)
	}
	out := AuditDetails{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*d = out
	return nil
}

type AuditLog struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	UserID    *uuid.UUID   `db:"user_id" json:"user_id,omitempty"`
	Action    AuditAction  `db:"action" json:"action"`
	Details   AuditDetails `db:"details" json:"details"`
	IPAddress *string      `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent *string      `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

type AuditFilter struct {
	UserID *uuid.UUID
	Action AuditAction
	Since  *time.Time
	Limit  int
	Offset int
}

// RequestMeta carries caller information recorded alongside audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}
