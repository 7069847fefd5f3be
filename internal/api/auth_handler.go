package api

import (
	"errors"
	"time"

	"hirexp-auth/internal/model"
	"hirexp-auth/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AuthHandler struct {
	authService    service.AuthService
	accountService service.AccountService
	validate       *validator.Validate
}

func NewAuthHandler(authService service.AuthService, accountService service.AccountService) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		accountService: accountService,
		validate:       newValidator(),
	}
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Role     string `json:"role" validate:"omitempty,role"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var request RegisterRequest
	if ok, err := parseAndValidate(c, h.validate, &request); !ok {
		return err
	}

	user, err := h.authService.RegisterUser(c.UserContext(), service.RegisterInput{
		Email:    request.Email,
		Password: request.Password,
		Name:     request.Name,
		Role:     model.Role(request.Role),
	}, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully, check your email to verify the account",
		"userId":  user.ID,
	})
}

type SessionUser struct {
	ID     uuid.UUID        `json:"id"`
	Email  string           `json:"email"`
	Role   model.Role       `json:"role"`
	Status model.UserStatus `json:"status"`
}

type LoginResponse struct {
	AccessToken     string      `json:"access_token"`
	AccessExpiresAt time.Time   `json:"access_expires_at"`
	RefreshToken    string      `json:"refresh_token"`
	Dashboard       string      `json:"dashboard"`
	User            SessionUser `json:"user"`
}

func newLoginResponse(s *service.Session) LoginResponse {
	return LoginResponse{
		AccessToken:     s.AccessToken,
		AccessExpiresAt: s.AccessExpiresAt,
		RefreshToken:    s.RefreshToken,
		Dashboard:       s.Dashboard,
		User: SessionUser{
			ID:     s.User.ID,
			Email:  s.User.Email,
			Role:   s.User.Role,
			Status: s.User.Status,
		},
	}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var request LoginRequest
	if ok, err := parseAndValidate(c, h.validate, &request); !ok {
		return err
	}

	session, err := h.authService.LoginUser(c.UserContext(), request.Email, request.Password, requestMeta(c))
	if err != nil {
		recordLoginOutcome(err)
		return respondError(c, err)
	}
	loginAttempts.WithLabelValues("success").Inc()

	return c.Status(fiber.StatusOK).JSON(newLoginResponse(session))
}

func recordLoginOutcome(err error) {
	var locked *service.LockedError
	switch {
	case errors.As(err, &locked):
		loginAttempts.WithLabelValues("locked").Inc()
		if locked.Triggered {
			accountLockouts.Inc()
		}
	case errors.Is(err, service.ErrInvalidCredentials):
		loginAttempts.WithLabelValues("invalid_credentials").Inc()
	default:
		loginAttempts.WithLabelValues("rejected").Inc()
	}
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	session, err := h.authService.RefreshToken(c.UserContext(), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newLoginResponse(session))
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout accepts an optional bearer token; when present its jti is deny-listed.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Cannot parse JSON", err)
	}

	claims, _ := GetClaims(c)
	if req.RefreshToken == "" && claims == nil {
		return badRequest(c, "Nothing to log out", nil)
	}

	if err := h.authService.LogoutUser(c.UserContext(), req.RefreshToken, claims, requestMeta(c)); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Successfully logged out"})
}

type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	var req TokenRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	if err := h.accountService.VerifyEmail(c.UserContext(), req.Token, requestMeta(c)); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Email verified"})
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req EmailRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	if err := h.accountService.ResendVerification(c.UserContext(), req.Email, requestMeta(c)); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "If the account exists and is unverified, a new email is on its way"})
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req EmailRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	if err := h.accountService.RequestPasswordReset(c.UserContext(), req.Email, requestMeta(c)); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "If the account exists, a reset link is on its way"})
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	if err := h.accountService.ResetPassword(c.UserContext(), req.Token, req.Password, requestMeta(c)); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Password updated, please sign in again"})
}
