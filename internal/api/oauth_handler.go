package api

import (
	"time"

	"hirexp-auth/internal/model"
	"hirexp-auth/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type OAuthHandler struct {
	oauthService service.OAuthService
	validate     *validator.Validate
}

func NewOAuthHandler(oauthService service.OAuthService) *OAuthHandler {
	return &OAuthHandler{
		oauthService: oauthService,
		validate:     newValidator(),
	}
}

// OAuthCallbackRequest is posted by the web app's server after the provider
// redirect completes. The client ip and agent are forwarded for auditing.
type OAuthCallbackRequest struct {
	Provider          string  `json:"provider" validate:"required"`
	ProviderAccountID string  `json:"provider_account_id" validate:"required"`
	Type              string  `json:"type"`
	Email             string  `json:"email" validate:"omitempty,email"`
	EmailVerified     bool    `json:"email_verified"`
	Name              string  `json:"name"`
	Image             string  `json:"image" validate:"omitempty,url"`
	AccessToken       *string `json:"access_token"`
	RefreshToken      *string `json:"refresh_token"`
	IDToken           *string `json:"id_token"`
	ExpiresAt         *int64  `json:"expires_at"`
	TokenType         *string `json:"token_type"`
	Scope             *string `json:"scope"`
	ClientIP          string  `json:"client_ip"`
	ClientUserAgent   string  `json:"client_user_agent"`
}

func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	var req OAuthCallbackRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	meta := requestMeta(c)
	if req.ClientIP != "" {
		meta = model.RequestMeta{IP: req.ClientIP, UserAgent: req.ClientUserAgent}
	}

	session, err := h.oauthService.Reconcile(c.UserContext(), service.OAuthProfile{
		Provider:          req.Provider,
		ProviderAccountID: req.ProviderAccountID,
		Type:              req.Type,
		Email:             req.Email,
		EmailVerified:     req.EmailVerified,
		Name:              req.Name,
		Image:             req.Image,
		AccessToken:       req.AccessToken,
		RefreshToken:      req.RefreshToken,
		IDToken:           req.IDToken,
		ExpiresAt:         req.ExpiresAt,
		TokenType:         req.TokenType,
		Scope:             req.Scope,
	}, meta)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(newLoginResponse(session))
}

type LinkedAccountResponse struct {
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"provider_account_id"`
	Type              string    `json:"type"`
	LinkedAt          time.Time `json:"linked_at"`
}

func (h *OAuthHandler) ListAccounts(c *fiber.Ctx) error {
	userID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
	}

	accounts, err := h.oauthService.ListAccounts(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}

	response := make([]LinkedAccountResponse, 0, len(accounts))
	for _, a := range accounts {
		response = append(response, LinkedAccountResponse{
			Provider:          a.Provider,
			ProviderAccountID: a.ProviderAccountID,
			Type:              a.Type,
			LinkedAt:          a.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"accounts": response})
}

func (h *OAuthHandler) Unlink(c *fiber.Ctx) error {
	userID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error(), "code": "UNAUTHORIZED"})
	}

	if err := h.oauthService.UnlinkAccount(c.UserContext(), userID, c.Params("provider"), requestMeta(c)); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
