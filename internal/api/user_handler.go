package api

import (
	"time"

	"hirexp-auth/internal/model"
	"hirexp-auth/internal/rbac"
	"hirexp-auth/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type UserHandler struct {
	userService    service.UserService
	accountService service.AccountService
	validate       *validator.Validate
}

func NewUserHandler(userService service.UserService, accountService service.AccountService) *UserHandler {
	return &UserHandler{
		userService:    userService,
		accountService: accountService,
		validate:       newValidator(),
	}
}

type ProfileResponse struct {
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Headline  *string `json:"headline,omitempty"`
	Location  *string `json:"location,omitempty"`
	Website   *string `json:"website,omitempty"`
}

func newProfileResponse(p *model.Profile) *ProfileResponse {
	if p == nil {
		return nil
	}
	return &ProfileResponse{
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		Bio:       p.Bio,
		Headline:  p.Headline,
		Location:  p.Location,
		Website:   p.Website,
	}
}

type MeResponse struct {
	ID            uuid.UUID         `json:"id"`
	Email         string            `json:"email"`
	Role          model.Role        `json:"role"`
	Status        model.UserStatus  `json:"status"`
	EmailVerified *time.Time        `json:"email_verified,omitempty"`
	HasPassword   bool              `json:"has_password"`
	LastLoginAt   *time.Time        `json:"last_login_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Profile       *ProfileResponse  `json:"profile,omitempty"`
	Permissions   []rbac.Permission `json:"permissions"`
	Dashboard     string            `json:"dashboard"`
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	userID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
	}

	me, err := h.userService.GetMe(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(MeResponse{
		ID:            me.User.ID,
		Email:         me.User.Email,
		Role:          me.User.Role,
		Status:        me.User.Status,
		EmailVerified: me.User.EmailVerified,
		HasPassword:   me.User.HasPassword(),
		LastLoginAt:   me.User.LastLoginAt,
		CreatedAt:     me.User.CreatedAt,
		Profile:       newProfileResponse(me.Profile),
		Permissions:   me.Permissions,
		Dashboard:     me.Dashboard,
	})
}

type UpdateProfileRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=2,max=100"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
	Bio       *string `json:"bio" validate:"omitempty,max=2000"`
	Headline  *string `json:"headline" validate:"omitempty,max=160"`
	Location  *string `json:"location" validate:"omitempty,max=120"`
	Website   *string `json:"website" validate:"omitempty,url"`
}

func (h *UserHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
	}

	var req UpdateProfileRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	profile, err := h.userService.UpdateProfile(c.UserContext(), userID, model.ProfileUpdate{
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
		Headline:  req.Headline,
		Location:  req.Location,
		Website:   req.Website,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newProfileResponse(profile))
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	userID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
	}

	var req ChangePasswordRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	session, err := h.accountService.ChangePassword(c.UserContext(), userID, req.CurrentPassword, req.NewPassword, requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newLoginResponse(session))
}

type DeviceTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"omitempty,oneof=ios android"`
}

func (h *UserHandler) RegisterDeviceToken(c *fiber.Ctx) error {
	userID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
	}

	var req DeviceTokenRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	if err := h.userService.RegisterDevice(c.UserContext(), userID, req.Token, req.Platform); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Device token registered successfully"})
}
