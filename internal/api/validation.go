package api

import (
	"hirexp-auth/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return model.UserStatus(fl.Field().String()).Valid()
	})
	return v
}

// parseAndValidate decodes the JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports false when the request is bad.
func parseAndValidate(c *fiber.Ctx, v *validator.Validate, dst interface{}) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, badRequest(c, "Cannot parse JSON", err)
	}
	if err := v.Struct(dst); err != nil {
		return false, badRequest(c, "Invalid input", err)
	}
	return true, nil
}

func requestMeta(c *fiber.Ctx) model.RequestMeta {
	return model.RequestMeta{IP: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
}
