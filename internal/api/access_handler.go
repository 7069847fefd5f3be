package api

import (
	"hirexp-auth/internal/rbac"

	"github.com/gofiber/fiber/v2"
)

// AccessCheck answers the web app's edge middleware: may the caller open path,
// and if not, where should they be sent.
func AccessCheck(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return badRequest(c, "path is required", nil)
	}

	if rbac.IsPublicRoute(path) {
		return c.JSON(fiber.Map{"allowed": true})
	}

	claims, err := GetClaims(c)
	if err != nil {
		return c.JSON(fiber.Map{"allowed": false, "redirect": rbac.LoginRoute})
	}

	if rbac.CanAccessRoute(claims.Role, path) {
		return c.JSON(fiber.Map{"allowed": true})
	}
	return c.JSON(fiber.Map{"allowed": false, "redirect": rbac.DashboardFor(claims.Role)})
}
