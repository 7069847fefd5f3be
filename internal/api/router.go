package api

import (
	"hirexp-auth/internal/jwt"
	"hirexp-auth/internal/model"
	"hirexp-auth/internal/rbac"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Auth  *AuthHandler
	OAuth *OAuthHandler
	Users *UserHandler
	Admin *AdminHandler
}

type RouterConfig struct {
	Tokens         *jwt.Manager
	Revoked        RevocationChecker
	InternalSecret string
	LoginPerMinute int
}

func RegisterRoutes(app *fiber.App, cfg RouterConfig, h Handlers) {
	requireAuth := AuthMiddleware(cfg.Tokens, cfg.Revoked)
	optionalAuth := OptionalAuthMiddleware(cfg.Tokens, cfg.Revoked)

	v1 := app.Group("/v1")

	authRoutes := v1.Group("/auth")
	authRoutes.Post("/register", h.Auth.Register)
	authRoutes.Post("/login", LoginRateLimiter(cfg.LoginPerMinute), h.Auth.Login)
	authRoutes.Post("/refresh", h.Auth.Refresh)
	authRoutes.Post("/logout", optionalAuth, h.Auth.Logout)
	authRoutes.Post("/verify-email", h.Auth.VerifyEmail)
	authRoutes.Post("/verify-email/resend", h.Auth.ResendVerification)
	authRoutes.Post("/password/forgot", h.Auth.ForgotPassword)
	authRoutes.Post("/password/reset", h.Auth.ResetPassword)

	internalRoutes := v1.Group("/internal", InternalAuthMiddleware(cfg.InternalSecret))
	internalRoutes.Post("/oauth/callback", h.OAuth.Callback)

	v1.Get("/access/check", optionalAuth, AccessCheck)

	userRoutes := v1.Group("/users", requireAuth)
	userRoutes.Get("/me", RequirePermission(rbac.ProfileRead), h.Users.GetMe)
	userRoutes.Put("/me", RequirePermission(rbac.ProfileUpdate), h.Users.UpdateProfile)
	userRoutes.Post("/me/password", h.Users.ChangePassword)
	userRoutes.Post("/me/device-token", h.Users.RegisterDeviceToken)
	userRoutes.Get("/me/accounts", h.OAuth.ListAccounts)
	userRoutes.Delete("/me/accounts/:provider", h.OAuth.Unlink)

	adminRoutes := v1.Group("/admin", requireAuth, RequireRole(model.RoleAdmin))
	adminRoutes.Get("/users", RequirePermission(rbac.UsersRead), h.Admin.ListUsers)
	adminRoutes.Get("/users/:id", RequirePermission(rbac.UsersRead), h.Admin.GetUser)
	adminRoutes.Patch("/users/:id/status", RequirePermission(rbac.UsersManage), h.Admin.ChangeStatus)
	adminRoutes.Patch("/users/:id/role", RequirePermission(rbac.UsersManage), h.Admin.ChangeRole)
	adminRoutes.Post("/users/:id/unlock", RequirePermission(rbac.UsersManage), h.Admin.Unlock)
	adminRoutes.Get("/audit-logs", RequirePermission(rbac.AuditRead), h.Admin.ListAuditLogs)
	adminRoutes.Post("/audit-logs/export", RequirePermission(rbac.AuditExport), h.Admin.ExportAuditLogs)
}
