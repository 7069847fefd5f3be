package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hirexp-auth/internal/config"
	"hirexp-auth/internal/notification"
	"hirexp-auth/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	db, err := sqlx.Connect("pgx", cfg.Database.URL())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("notification worker connected to the database")

	mailer := notification.NewMailer(cfg.Mail, logger)
	if !mailer.IsConfigured() {
		logger.Warn("mail provider not configured, emails are logged only")
	}

	pusher, err := notification.NewAPNsPusher(cfg.APNs, logger)
	if err != nil {
		logger.Fatal("failed to init APNs", zap.Error(err))
	}

	nc, err := nats.Connect(cfg.Nats.URL, nats.Name("notification-worker"))
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer nc.Drain()

	worker := notification.NewWorker(
		mailer,
		pusher,
		repository.NewPostgresDeviceTokenRepository(db),
		nc,
		notification.WorkerConfig{
			FrontendURL: cfg.App.FrontendURL,
			QueueGroup:  cfg.Nats.QueueGroup,
			MaxRetries:  cfg.Nats.MaxRetries,
			RetryDelay:  cfg.Nats.RetryDelay,
		},
		logger,
	)

	if _, err := worker.Start(nc); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	logger.Info("notification worker started, waiting for events...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down notification worker...")
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build(zap.Fields(zap.String("service", "notification-worker")))
	if err != nil {
		panic(err)
	}
	return logger
}
