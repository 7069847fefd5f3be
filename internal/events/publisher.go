package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/ksuid"
)

const (
	SubjectUserRegistered         = "user.registered"
	SubjectVerificationRequested  = "email.verification_requested"
	SubjectPasswordResetRequested = "password.reset_requested"
	SubjectPasswordChanged        = "password.changed"
	SubjectAccountLocked          = "account.locked"
	SubjectAccountStatusChanged   = "account.status_changed"
)

// AccountSubjects lists every subject the notification worker consumes.
var AccountSubjects = []string{
	SubjectUserRegistered,
	SubjectVerificationRequested,
	SubjectPasswordResetRequested,
	SubjectPasswordChanged,
	SubjectAccountLocked,
	SubjectAccountStatusChanged,
}

type AccountEvent struct {
	EventID     string     `json:"event_id"`
	EventType   string     `json:"event_type"`
	UserID      uuid.UUID  `json:"user_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	Token       string     `json:"token,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Status      string     `json:"status,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

func NewAccountEvent(eventType string, userID uuid.UUID, email string) AccountEvent {
	return AccountEvent{
		EventID:    ksuid.New().String(),
		EventType:  eventType,
		UserID:     userID,
		Email:      email,
		OccurredAt: time.Now().UTC(),
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, event AccountEvent) error
}

type NatsPublisher struct {
	conn *nats.Conn
}

func NewNatsPublisher(natsURL string) (*NatsPublisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("auth-service"))

	if err != nil {
		return nil, err
	}

	return &NatsPublisher{conn: nc}, nil
}

// Publish sends the event on the subject named by its EventType.
func (p *NatsPublisher) Publish(ctx context.Context, event AccountEvent) error {
	eventJSON, err := json.Marshal(event)

	if err != nil {
		slog.ErrorContext(ctx, "Error marshalling event JSON", "error", err)
		return err
	}

	subject := event.EventType
	if err := p.conn.Publish(subject, eventJSON); err != nil {
		slog.ErrorContext(ctx, "Error publishing to NATS", "subject", subject, "error", err)
		return err
	}

	slog.InfoContext(ctx, "Published event to NATS", "subject", subject, "event_id", event.EventID, "user_id", event.UserID)

	return nil
}

func (p *NatsPublisher) Close() {
	p.conn.Close()
}

// NoopPublisher drops events; used when NATS is unavailable at startup.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event AccountEvent) error {
	slog.WarnContext(ctx, "NATS unavailable, dropping event", "subject", event.EventType, "user_id", event.UserID)
	return nil
}
