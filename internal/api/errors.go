package api

import (
	"errors"
	"log/slog"
	"time"

	"hirexp-auth/internal/service"

	"github.com/gofiber/fiber/v2"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{service.ErrInvalidCredentials, fiber.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{service.ErrAccountLocked, fiber.StatusLocked, "ACCOUNT_LOCKED"},
	{service.ErrEmailNotVerified, fiber.StatusForbidden, "EMAIL_NOT_VERIFIED"},
	{service.ErrAccountSuspended, fiber.StatusForbidden, "ACCOUNT_SUSPENDED"},
	{service.ErrAccountDeactivated, fiber.StatusForbidden, "ACCOUNT_DEACTIVATED"},
	{service.ErrEmailAlreadyExists, fiber.StatusConflict, "EMAIL_EXISTS"},
	{service.ErrTokenInvalid, fiber.StatusBadRequest, "TOKEN_INVALID"},
	{service.ErrTokenExpired, fiber.StatusBadRequest, "TOKEN_EXPIRED"},
	{service.ErrRateLimited, fiber.StatusTooManyRequests, "RATE_LIMITED"},
	{service.ErrWeakPassword, fiber.StatusBadRequest, "WEAK_PASSWORD"},
	{service.ErrInvalidRole, fiber.StatusBadRequest, "INVALID_ROLE"},
	{service.ErrInvalidStatus, fiber.StatusBadRequest, "INVALID_STATUS"},
	{service.ErrUserNotFound, fiber.StatusNotFound, "USER_NOT_FOUND"},
	{service.ErrSelfModification, fiber.StatusBadRequest, "SELF_MODIFICATION"},
	{service.ErrOAuthAccountNotLinked, fiber.StatusConflict, "OAUTH_ACCOUNT_NOT_LINKED"},
	{service.ErrOAuthEmailMissing, fiber.StatusBadRequest, "OAUTH_EMAIL_MISSING"},
	{service.ErrAccountNotLinked, fiber.StatusNotFound, "ACCOUNT_NOT_LINKED"},
	{service.ErrLastSignInMethod, fiber.StatusConflict, "LAST_SIGN_IN_METHOD"},
	{service.ErrExportUnavailable, fiber.StatusServiceUnavailable, "EXPORT_UNAVAILABLE"},
}

// respondError writes the error body for a service error. Unknown errors are
// logged and answered with a generic 500 so internals never leak.
func respondError(c *fiber.Ctx, err error) error {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}

		body := fiber.Map{"error": m.err.Error(), "code": m.code}

		var locked *service.LockedError
		if errors.As(err, &locked) {
			body["locked_until"] = locked.Until.UTC().Format(time.RFC3339)
		}
		return c.Status(m.status).JSON(body)
	}

	slog.ErrorContext(c.UserContext(), "Unhandled service error", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error", "code": "INTERNAL"})
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	body := fiber.Map{"error": message, "code": "VALIDATION_FAILED"}
	if err != nil {
		body["details"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

func statusFromError(err error) int {
	var e *fiber.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return fiber.StatusInternalServerError
}
