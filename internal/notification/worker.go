package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hirexp-auth/internal/events"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const SubjectDeadLetter = "notifications.failed"

type DeviceLister interface {
	ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// DeadLetterPublisher is satisfied by *nats.Conn.
type DeadLetterPublisher interface {
	Publish(subj string, data []byte) error
}

type DeadLetter struct {
	Subject  string    `json:"subject"`
	Payload  string    `json:"payload"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

type WorkerConfig struct {
	FrontendURL string
	QueueGroup  string
	MaxRetries  int
	RetryDelay  time.Duration
}

type Worker struct {
	mailer     Sender
	pusher     Pusher
	devices    DeviceLister
	deadLetter DeadLetterPublisher
	cfg        WorkerConfig
	logger     *zap.Logger
}

func NewWorker(mailer Sender, pusher Pusher, devices DeviceLister, deadLetter DeadLetterPublisher, cfg WorkerConfig, logger *zap.Logger) *Worker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Worker{
		mailer:     mailer,
		pusher:     pusher,
		devices:    devices,
		deadLetter: deadLetter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start joins the queue group on every account subject so replicas share the load.
func (w *Worker) Start(nc *nats.Conn) ([]*nats.Subscription, error) {
	subs := make([]*nats.Subscription, 0, len(events.AccountSubjects))
	for _, subject := range events.AccountSubjects {
		sub, err := nc.QueueSubscribe(subject, w.cfg.QueueGroup, w.HandleMessage)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	w.logger.Info("notification worker subscribed",
		zap.Strings("subjects", events.AccountSubjects), zap.String("queue", w.cfg.QueueGroup))
	return subs, nil
}

func (w *Worker) HandleMessage(msg *nats.Msg) {
	w.Handle(context.Background(), msg.Subject, msg.Data)
}

// Handle processes one event, retrying transient failures before handing the
// message to the dead letter subject.
func (w *Worker) Handle(ctx context.Context, subject string, data []byte) {
	var event events.AccountEvent
	if err := json.Unmarshal(data, &event); err != nil {
		w.logger.Error("invalid account event", zap.String("subject", subject), zap.Error(err))
		w.sendToDeadLetter(subject, data, err, 0)
		return
	}
	if event.EventType == "" {
		event.EventType = subject
	}

	var err error
	attempts := 0
	for attempts < w.cfg.MaxRetries {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err = w.process(attemptCtx, event)
		cancel()
		if err == nil {
			w.logger.Info("notification delivered",
				zap.String("event_id", event.EventID), zap.String("type", event.EventType), zap.Int("attempts", attempts))
			return
		}
		if errors.Is(err, errPermanent) {
			break
		}
		w.logger.Warn("notification attempt failed",
			zap.String("event_id", event.EventID), zap.Int("attempt", attempts), zap.Error(err))
		if attempts < w.cfg.MaxRetries {
			time.Sleep(time.Duration(attempts) * w.cfg.RetryDelay)
		}
	}

	w.logger.Error("notification failed, sending to dead letter",
		zap.String("event_id", event.EventID), zap.String("type", event.EventType), zap.Error(err))
	w.sendToDeadLetter(subject, data, err, attempts)
}

var errPermanent = errors.New("permanent notification failure")

func (w *Worker) process(ctx context.Context, event events.AccountEvent) error {
	email, err := Render(event, w.cfg.FrontendURL)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	if err := w.mailer.Send(ctx, email); err != nil {
		return err
	}

	if push, ok := pushFor(event); ok {
		w.pushAll(ctx, event.UserID, push)
	}
	return nil
}

func pushFor(event events.AccountEvent) (Push, bool) {
	switch event.EventType {
	case events.SubjectPasswordChanged:
		return Push{
			Title: "Password changed",
			Body:  "Your password was changed. Other sessions were signed out.",
			Data:  map[string]string{"type": event.EventType},
		}, true
	case events.SubjectAccountLocked:
		return Push{
			Title: "Account locked",
			Body:  "Too many failed sign-in attempts. Your account is temporarily locked.",
			Data:  map[string]string{"type": event.EventType},
		}, true
	}
	return Push{}, false
}

// pushAll is best effort; the email already went out.
func (w *Worker) pushAll(ctx context.Context, userID uuid.UUID, push Push) {
	if w.pusher == nil || w.devices == nil {
		return
	}
	tokens, err := w.devices.ListTokens(ctx, userID)
	if err != nil {
		w.logger.Warn("failed to load device tokens", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	for _, token := range tokens {
		if err := w.pusher.Push(ctx, token, push); err != nil {
			w.logger.Warn("push failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
}

func (w *Worker) sendToDeadLetter(subject string, data []byte, cause error, attempts int) {
	if w.deadLetter == nil {
		return
	}
	msg := DeadLetter{
		Subject:  subject,
		Payload:  string(data),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
	if cause != nil {
		msg.Error = cause.Error()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		w.logger.Error("failed to marshal dead letter", zap.Error(err))
		return
	}
	if err := w.deadLetter.Publish(SubjectDeadLetter, body); err != nil {
		w.logger.Error("failed to publish dead letter", zap.Error(err))
	}
}
