package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hirexp-auth/internal/jwt"
	"hirexp-auth/internal/model"
	"hirexp-auth/internal/rbac"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const claimsKey = "userClaims"

var (
	httpRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of http request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Credential login attempts by outcome",
		},
		[]string{"result"},
	)
	accountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_account_lockouts_total",
			Help: "Accounts locked after too many failed logins",
		},
	)
)

// RevocationChecker reports whether an access token id was revoked at logout.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func AuthMiddleware(tokens *jwt.Manager, revoked RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, status, message := authenticate(c, tokens, revoked)
		if claims == nil {
			return c.Status(status).JSON(fiber.Map{"error": message, "code": "UNAUTHORIZED"})
		}

		c.Locals(claimsKey, claims)

		return c.Next()
	}
}

// OptionalAuthMiddleware attaches claims when a valid bearer token is present
// and lets anonymous requests through.
func OptionalAuthMiddleware(tokens *jwt.Manager, revoked RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" {
			return c.Next()
		}
		if claims, _, _ := authenticate(c, tokens, revoked); claims != nil {
			c.Locals(claimsKey, claims)
		}
		return c.Next()
	}
}

func authenticate(c *fiber.Ctx, tokens *jwt.Manager, revoked RevocationChecker) (*jwt.Claims, int, string) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return nil, fiber.StatusUnauthorized, "Missing authorization header"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fiber.StatusUnauthorized, "Invalid authorization header format"
	}

	mapClaims, err := tokens.ValidateToken(parts[1])
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, fiber.StatusUnauthorized, "Token has expired"
		}
		return nil, fiber.StatusUnauthorized, "Invalid token"
	}

	claims, err := jwt.ParseClaims(mapClaims)
	if err != nil {
		return nil, fiber.StatusUnauthorized, "Invalid token claims"
	}

	if revoked != nil && claims.JTI != "" {
		isRevoked, err := revoked.IsRevoked(c.UserContext(), claims.JTI)
		if err != nil {
			// fail open when redis is down
			slog.WarnContext(c.UserContext(), "Token deny list unavailable", "error", err)
		} else if isRevoked {
			return nil, fiber.StatusUnauthorized, "Token has been revoked"
		}
	}

	return claims, 0, ""
}

func GetClaims(c *fiber.Ctx) (*jwt.Claims, error) {
	claims, ok := c.Locals(claimsKey).(*jwt.Claims)
	if !ok {
		return nil, errors.New("claims not found in context")
	}
	return claims, nil
}

func GetUserIDFromClaims(c *fiber.Ctx) (uuid.UUID, error) {
	claims, err := GetClaims(c)
	if err != nil {
		return uuid.Nil, err
	}
	if claims.UserID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid userID in claims")
	}
	return claims.UserID, nil
}

func RequireRole(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := GetClaims(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
		}

		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient role", "code": "FORBIDDEN"})
	}
}

func RequirePermission(perm rbac.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := GetClaims(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
		}

		if !rbac.HasPermission(claims.Role, perm) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Missing permission " + string(perm), "code": "FORBIDDEN"})
		}
		return c.Next()
	}
}

func InternalAuthMiddleware(expectedSecret string) fiber.Handler {
	if expectedSecret == "" {
		panic("internal shared secret is not configured")
	}

	return func(c *fiber.Ctx) error {
		secret := c.Get("X-Internal-Secret")

		if subtle.ConstantTimeCompare([]byte(secret), []byte(expectedSecret)) != 1 {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Internal access denied!", "code": "FORBIDDEN"})
		}

		return c.Next()
	}
}

// LoginRateLimiter throttles credential attempts per client IP.
func LoginRateLimiter(perMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many login attempts", "code": "RATE_LIMITED"})
		},
	})
}

func PrometheusMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start).Seconds()
		statusCode := c.Response().StatusCode()

		if err != nil {
			statusCode = statusFromError(err)
		}

		method := c.Method()
		path := c.Route().Path
		statusStr := fmt.Sprintf("%d", statusCode)

		httpRequestTotal.WithLabelValues(method, path, statusStr).Inc()
		httpRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration)

		return err
	}
}
