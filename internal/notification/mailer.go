package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hirexp-auth/internal/config"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrMailerUnavailable = errors.New("mail provider unavailable")

type Email struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Mailer posts transactional emails to a Brevo compatible HTTP API. Calls are
// throttled to the provider's rate and pass through a circuit breaker.
type Mailer struct {
	apiURL     string
	apiKey     string
	fromEmail  string
	fromName   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.Logger
	configured bool
}

func NewMailer(cfg config.MailConfig, logger *zap.Logger) *Mailer {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	st := gobreaker.Settings{
		Name:        "mailer",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &Mailer{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker(st),
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:     logger,
		configured: cfg.APIKey != "" && cfg.FromEmail != "" && cfg.APIURL != "",
	}
}

// IsConfigured reports false when the mailer only logs instead of sending.
func (m *Mailer) IsConfigured() bool {
	return m.configured
}

type sendEmailReq struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HtmlContent string              `json:"htmlContent"`
}

func (m *Mailer) Send(ctx context.Context, email Email) error {
	if email.To == "" || email.Subject == "" || email.HTML == "" {
		return errors.New("recipient, subject and html content cannot be empty")
	}

	if !m.configured {
		m.logger.Info("mail provider not configured, email logged only",
			zap.String("to", email.To), zap.String("subject", email.Subject))
		return nil
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := m.breaker.Execute(func() (interface{}, error) {
		return nil, m.post(ctx, email)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrMailerUnavailable, err)
	}
	return err
}

func (m *Mailer) post(ctx context.Context, email Email) error {
	to := map[string]string{"email": email.To}
	if email.ToName != "" {
		to["name"] = email.ToName
	}

	reqBody := sendEmailReq{
		Sender:      map[string]string{"email": m.fromEmail, "name": m.fromName},
		To:          []map[string]string{to},
		Subject:     email.Subject,
		HtmlContent: email.HTML,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal email request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	httpReq.Header.Set("api-key", m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]interface{}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errorBody); decodeErr != nil {
			return fmt.Errorf("mail API error: status %d", resp.StatusCode)
		}
		return fmt.Errorf("mail API error: status %d, body: %v", resp.StatusCode, errorBody)
	}

	m.logger.Info("email sent", zap.String("to", email.To), zap.String("subject", email.Subject))
	return nil
}
