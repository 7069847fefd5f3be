package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hirexp-auth/internal/api"
	"hirexp-auth/internal/cache"
	"hirexp-auth/internal/config"
	"hirexp-auth/internal/events"
	"hirexp-auth/internal/janitor"
	"hirexp-auth/internal/jwt"
	"hirexp-auth/internal/repository"
	"hirexp-auth/internal/service"
	"hirexp-auth/internal/storage"
	"hirexp-auth/internal/tracing"
	_ "hirexp-auth/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	api.SetupGlobalHandler(cfg.App.Name, cfg.Log.Level)

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			handleMigrations(cfg)
			return
		case "sweep":
			handleSweep(cfg)
			return
		case "serve":
		default:
			log.Fatalf("unknown command %q (expected serve, migrate or sweep)", os.Args[1])
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracerProvider(ctx, cfg.App.Name, cfg.OtelEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("Error shutting down tracer provider", "error", err)
		}
	}()

	db := connectDB(cfg)
	defer db.Close()
	store := repository.NewStore(db)

	rdb, err := cache.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		// limiters and the denylist fail open until redis comes back
		slog.Warn("Continuing without a healthy redis", "error", err)
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}
	defer rdb.Close()

	resendLimiter := cache.NewRateLimiter(rdb, "ratelimit:resend:", cfg.Security.ResendPerHour, time.Hour)
	resetLimiter := cache.NewRateLimiter(rdb, "ratelimit:reset:", cfg.Security.ResetPerHour, time.Hour)
	denylist := cache.NewTokenDenylist(rdb)

	var publisher events.EventPublisher = events.NoopPublisher{}
	natsPublisher, err := events.NewNatsPublisher(cfg.Nats.URL)
	if err != nil {
		slog.Warn("Failed to connect to NATS, account events will be dropped", "error", err)
	} else {
		defer natsPublisher.Close()
		publisher = natsPublisher
		slog.Info("Successfully connected to NATS.")
	}

	var archive service.Archive
	if cfg.S3.Bucket != "" {
		s3Archive, err := storage.NewS3Archive(ctx, cfg.S3)
		if err != nil {
			slog.Warn("Audit export disabled, S3 setup failed", "error", err)
		} else {
			archive = s3Archive
		}
	}

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	serviceCfg := service.Config{
		BcryptCost:        cfg.Security.BcryptCost,
		MaxFailedAttempts: cfg.Security.MaxFailedAttempts,
		LockoutDuration:   cfg.Security.LockoutDuration,
		VerificationTTL:   cfg.Security.VerificationTTL,
		ResetTTL:          cfg.Security.ResetTTL,
		RefreshTTL:        cfg.JWT.RefreshTTL,
	}
	sessions := service.NewSessionIssuer(tokens, store.RefreshTokens, cfg.JWT.RefreshTTL)

	authService := service.NewAuthService(store.Repositories, store, sessions, publisher, denylist, serviceCfg)
	accountService := service.NewAccountService(store.Repositories, store, sessions, publisher, resendLimiter, resetLimiter, serviceCfg)
	oauthService := service.NewOAuthService(store.Repositories, store, sessions, publisher, serviceCfg)
	userService := service.NewUserService(store.Repositories)
	adminService := service.NewAdminService(store.Repositories, store, publisher, archive)

	handlers := api.Handlers{
		Auth:  api.NewAuthHandler(authService, accountService),
		OAuth: api.NewOAuthHandler(oauthService),
		Users: api.NewUserHandler(userService, accountService),
		Admin: api.NewAdminHandler(adminService),
	}

	sweeper := janitor.NewSweeper(cfg.Security.SweepInterval, purgers(store))
	go sweeper.Run(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	app.Use(otelfiber.Middleware())
	app.Use(api.RequestLogger())
	app.Use(api.PrometheusMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.RegisterRoutes(app, api.RouterConfig{
		Tokens:         tokens,
		Revoked:        denylist,
		InternalSecret: cfg.App.InternalSecret,
		LoginPerMinute: cfg.Security.LoginPerMinute,
	}, handlers)

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down auth-service...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Listening auth-service", "port", cfg.App.Port)
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		slog.Error("Server stopped", "error", err)
	}
}

func purgers(store *repository.Store) map[string]janitor.Purger {
	return map[string]janitor.Purger{
		"refresh_tokens":        store.RefreshTokens,
		"verification_tokens":   store.Verifications,
		"password_reset_tokens": store.PasswordReset,
	}
}

func connectDB(cfg *config.Config) *sqlx.DB {
	db, err := sqlx.Connect("pgx", cfg.Database.URL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	slog.Info("Successfully connected to the database.")
	return db
}

func handleMigrations(cfg *config.Config) {
	slog.Info("Running database migrations...")

	db, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		log.Fatalf("failed to connect to database for migration: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("failed to set goose dialect: %v", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		log.Fatalf("goose: failed to run migrations: %v", err)
	}

	slog.Info("Migrations applied successfully!")
}

// handleSweep purges expired tokens once, for running from cron.
func handleSweep(cfg *config.Config) {
	db := connectDB(cfg)
	defer db.Close()

	counts, err := janitor.NewSweeper(cfg.Security.SweepInterval, purgers(repository.NewStore(db))).SweepOnce(context.Background())
	for table, n := range counts {
		slog.Info("Swept expired rows", "table", table, "deleted", n)
	}
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
}
