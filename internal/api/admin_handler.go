package api

import (
	"strconv"
	"time"

	"hirexp-auth/internal/model"
	"hirexp-auth/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AdminHandler struct {
	adminService service.AdminService
	validate     *validator.Validate
}

func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		validate:     newValidator(),
	}
}

type AdminUserResponse struct {
	ID                  uuid.UUID        `json:"id"`
	Email               string           `json:"email"`
	Role                model.Role       `json:"role"`
	Status              model.UserStatus `json:"status"`
	EmailVerified       *time.Time       `json:"email_verified,omitempty"`
	FailedLoginAttempts int              `json:"failed_login_attempts"`
	LockedUntil         *time.Time       `json:"locked_until,omitempty"`
	LastLoginAt         *time.Time       `json:"last_login_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

func newAdminUserResponse(u *model.User) AdminUserResponse {
	return AdminUserResponse{
		ID:                  u.ID,
		Email:               u.Email,
		Role:                u.Role,
		Status:              u.Status,
		EmailVerified:       u.EmailVerified,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedUntil:         u.LockedUntil,
		LastLoginAt:         u.LastLoginAt,
		CreatedAt:           u.CreatedAt,
	}
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	filter := model.UserFilter{
		Status: model.UserStatus(c.Query("status")),
		Role:   model.Role(c.Query("role")),
		Query:  c.Query("q"),
	}

	page, err := h.adminService.ListUsers(c.UserContext(), filter, c.QueryInt("page", 1), c.QueryInt("page_size", 20))
	if err != nil {
		return respondError(c, err)
	}

	users := make([]AdminUserResponse, 0, len(page.Users))
	for i := range page.Users {
		users = append(users, newAdminUserResponse(&page.Users[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"users": users,
		"meta": fiber.Map{
			"page":        page.Page,
			"page_size":   page.PageSize,
			"total":       page.Total,
			"total_pages": page.TotalPages(),
		},
	})
}

func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID format", err)
	}

	user, err := h.adminService.GetUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newAdminUserResponse(user))
}

type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,status"`
}

func (h *AdminHandler) ChangeStatus(c *fiber.Ctx) error {
	actorID, userID, ok, err := h.actorAndTarget(c)
	if !ok {
		return err
	}

	var req ChangeStatusRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	user, err := h.adminService.ChangeStatus(c.UserContext(), actorID, userID, model.UserStatus(req.Status), requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newAdminUserResponse(user))
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

func (h *AdminHandler) ChangeRole(c *fiber.Ctx) error {
	actorID, userID, ok, err := h.actorAndTarget(c)
	if !ok {
		return err
	}

	var req ChangeRoleRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	user, err := h.adminService.ChangeRole(c.UserContext(), actorID, userID, model.Role(req.Role), requestMeta(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newAdminUserResponse(user))
}

func (h *AdminHandler) Unlock(c *fiber.Ctx) error {
	actorID, userID, ok, err := h.actorAndTarget(c)
	if !ok {
		return err
	}

	if err := h.adminService.Unlock(c.UserContext(), actorID, userID, requestMeta(c)); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Account unlocked"})
}

func (h *AdminHandler) actorAndTarget(c *fiber.Ctx) (uuid.UUID, uuid.UUID, bool, error) {
	actorID, err := GetUserIDFromClaims(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
	}

	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, false, badRequest(c, "Invalid user ID format", err)
	}

	return actorID, userID, true, nil
}

func auditFilterFromQuery(c *fiber.Ctx) (model.AuditFilter, error) {
	filter := model.AuditFilter{
		Action: model.AuditAction(c.Query("action")),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}

	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, err
		}
		filter.UserID = &id
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.Since = &since
	}

	return filter, nil
}

func (h *AdminHandler) ListAuditLogs(c *fiber.Ctx) error {
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		return badRequest(c, "Invalid audit filter", err)
	}

	entries, err := h.adminService.ListAuditLogs(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}

	c.Set("X-Result-Count", strconv.Itoa(len(entries)))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"entries": entries})
}

func (h *AdminHandler) ExportAuditLogs(c *fiber.Ctx) error {
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		return badRequest(c, "Invalid audit filter", err)
	}

	url, err := h.adminService.ExportAuditLogs(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url, "expires_in": 900})
}
