package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Name           string `yaml:"name"`
	Env            string `yaml:"env"`
	Port           string `yaml:"port"`
	InternalSecret string `yaml:"internal_secret"`
	FrontendURL    string `yaml:"frontend_url"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type SecurityConfig struct {
	BcryptCost        int           `yaml:"bcrypt_cost"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	LockoutDuration   time.Duration `yaml:"lockout_duration"`
	VerificationTTL   time.Duration `yaml:"verification_ttl"`
	ResetTTL          time.Duration `yaml:"reset_ttl"`
	ResendPerHour     int           `yaml:"resend_per_hour"`
	ResetPerHour      int           `yaml:"reset_per_hour"`
	LoginPerMinute    int           `yaml:"login_per_minute"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NatsConfig struct {
	URL        string        `yaml:"url"`
	QueueGroup string        `yaml:"queue_group"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type MailConfig struct {
	APIURL        string        `yaml:"api_url"`
	APIKey        string        `yaml:"api_key"`
	FromEmail     string        `yaml:"from_email"`
	FromName      string        `yaml:"from_name"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	MaxFailures   uint32        `yaml:"max_failures"`
	BreakerOpen   time.Duration `yaml:"breaker_open"`
}

type APNsConfig struct {
	AuthKeyPath string `yaml:"auth_key_path"`
	KeyID       string `yaml:"key_id"`
	TeamID      string `yaml:"team_id"`
	Topic       string `yaml:"topic"`
	Production  bool   `yaml:"production"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Security SecurityConfig `yaml:"security"`
	Redis    RedisConfig    `yaml:"redis"`
	Nats     NatsConfig     `yaml:"nats"`
	S3       S3Config       `yaml:"s3"`
	Mail     MailConfig     `yaml:"mail"`
	APNs     APNsConfig     `yaml:"apns"`
	Log      struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	OtelEndpoint string `yaml:"otel_endpoint"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.App = AppConfig{Name: "auth-service", Env: "development", Port: "8001", FrontendURL: "http://localhost:3000"}
	cfg.Database = DatabaseConfig{Host: "localhost", Port: "5432", User: "postgres", Name: "hirexp", SSLMode: "disable"}
	cfg.JWT = JWTConfig{AccessTTL: 15 * time.Minute, RefreshTTL: 30 * 24 * time.Hour}
	cfg.Security = SecurityConfig{
		BcryptCost:        bcrypt.DefaultCost,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		VerificationTTL:   24 * time.Hour,
		ResetTTL:          time.Hour,
		ResendPerHour:     3,
		ResetPerHour:      3,
		LoginPerMinute:    10,
		SweepInterval:     time.Hour,
	}
	cfg.Redis = RedisConfig{Addr: "localhost:6379"}
	cfg.Nats = NatsConfig{URL: "nats://localhost:4222", QueueGroup: "notification-worker", MaxRetries: 3, RetryDelay: 2 * time.Second}
	cfg.Mail = MailConfig{APIURL: "https://api.brevo.com/v3/smtp/email", FromName: "HireXP", RatePerSecond: 5, MaxFailures: 5, BreakerOpen: 30 * time.Second}
	cfg.Log.Level = "info"
	cfg.OtelEndpoint = "jaeger:4317"
	return cfg
}

// Load reads defaults, then the optional YAML file named by CONFIG_PATH, then
// environment variables (including .env.dev when present).
func Load() (*Config, error) {
	_ = godotenv.Load(".env.dev")

	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read YAML: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func overrideFromEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	str("APP_ENV", &cfg.App.Env)
	str("APP_PORT", &cfg.App.Port)
	str("INTERNAL_SHARED_SECRET", &cfg.App.InternalSecret)
	str("FRONTEND_URL", &cfg.App.FrontendURL)

	str("DB_HOST", &cfg.Database.Host)
	str("DB_PORT", &cfg.Database.Port)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Name)
	str("DB_SSLMODE", &cfg.Database.SSLMode)

	str("JWT_SECRET", &cfg.JWT.Secret)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)

	str("NATS_URL", &cfg.Nats.URL)

	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	str("AWS_REGION", &cfg.S3.Region)
	str("S3_BUCKET_NAME", &cfg.S3.Bucket)
	str("AWS_ACCESS_KEY_ID", &cfg.S3.AccessKey)
	str("AWS_SECRET_ACCESS_KEY", &cfg.S3.SecretKey)

	str("MAIL_API_URL", &cfg.Mail.APIURL)
	str("BREVO_API_KEY", &cfg.Mail.APIKey)
	str("MAIL_FROM_EMAIL", &cfg.Mail.FromEmail)
	str("MAIL_FROM_NAME", &cfg.Mail.FromName)

	str("APNS_AUTH_KEY_PATH", &cfg.APNs.AuthKeyPath)
	str("APNS_KEY_ID", &cfg.APNs.KeyID)
	str("APNS_TEAM_ID", &cfg.APNs.TeamID)
	str("APNS_TOPIC", &cfg.APNs.Topic)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OtelEndpoint)

	if v := os.Getenv("S3_USE_PATH_STYLE"); v != "" {
		cfg.S3.UsePathStyle = v == "true"
	}
	if v := os.Getenv("APNS_MODE"); v != "" {
		cfg.APNs.Production = v == "production"
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BCRYPT_COST: %w", err)
		}
		cfg.Security.BcryptCost = n
	}
	if v := os.Getenv("MAX_FAILED_LOGIN_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_FAILED_LOGIN_ATTEMPTS: %w", err)
		}
		cfg.Security.MaxFailedAttempts = n
	}

	durations := map[string]*time.Duration{
		"JWT_ACCESS_TTL":   &cfg.JWT.AccessTTL,
		"JWT_REFRESH_TTL":  &cfg.JWT.RefreshTTL,
		"LOCKOUT_DURATION": &cfg.Security.LockoutDuration,
		"VERIFICATION_TTL": &cfg.Security.VerificationTTL,
		"RESET_TOKEN_TTL":  &cfg.Security.ResetTTL,
		"SWEEP_INTERVAL":   &cfg.Security.SweepInterval,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	return nil
}

func (c *Config) Validate() error {
	if c.App.Port == "" {
		return errors.New("app.port is missing")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is empty (set JWT_SECRET)")
	}
	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("security.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Security.MaxFailedAttempts <= 0 {
		return errors.New("security.max_failed_attempts must be positive")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt ttl values must be positive")
	}
	if c.Security.LockoutDuration <= 0 || c.Security.VerificationTTL <= 0 || c.Security.ResetTTL <= 0 {
		return errors.New("security durations must be positive")
	}
	return nil
}
