package notification

import (
	"context"
	"fmt"

	"hirexp-auth/internal/config"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"
)

type Push struct {
	Title string
	Body  string
	Data  map[string]string
}

type Pusher interface {
	Push(ctx context.Context, deviceToken string, push Push) error
}

// APNsPusher delivers pushes through Apple's token-based API. Without
// credentials it runs in mock mode and only logs.
type APNsPusher struct {
	client *apns2.Client
	topic  string
	logger *zap.Logger
}

func NewAPNsPusher(cfg config.APNsConfig, logger *zap.Logger) (*APNsPusher, error) {
	p := &APNsPusher{topic: cfg.Topic, logger: logger}

	if cfg.AuthKeyPath == "" || cfg.AuthKeyPath[0] == '#' || cfg.KeyID == "" || cfg.TeamID == "" {
		logger.Info("APNs credentials not found, push runs in mock mode")
		return p, nil
	}

	authKey, err := token.AuthKeyFromFile(cfg.AuthKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read APNs auth key: %w", err)
	}

	authToken := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	if cfg.Production {
		p.client = apns2.NewTokenClient(authToken).Production()
	} else {
		p.client = apns2.NewTokenClient(authToken).Development()
	}
	return p, nil
}

func (p *APNsPusher) Push(ctx context.Context, deviceToken string, push Push) error {
	pl := payload.NewPayload().AlertTitle(push.Title).AlertBody(push.Body).Sound("default")
	for k, v := range push.Data {
		pl.Custom(k, v)
	}

	if p.client == nil {
		p.logger.Info("push sent (mock)", zap.String("device", deviceToken), zap.String("title", push.Title))
		return nil
	}

	res, err := p.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		Payload:     pl,
	})
	if err != nil {
		return fmt.Errorf("apns push failed: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("apns rejected push: %d %s", res.StatusCode, res.Reason)
	}

	p.logger.Debug("push sent", zap.String("apns_id", res.ApnsID))
	return nil
}
