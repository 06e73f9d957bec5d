package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zapa-ai/zapa/pkg/utils"
	"github.com/zapa-ai/zapa/usecase"
)

// Auth handles phone-number login codes delivered over WhatsApp.
type Auth struct {
	Service *usecase.AuthService
}

func InitRestAuth(app fiber.Router, service *usecase.AuthService) Auth {
	handler := Auth{Service: service}

	group := app.Group("/api/v1/auth")
	group.Post("/request-code", handler.RequestCode)
	group.Post("/verify", handler.Verify)

	return handler
}

type requestCodeBody struct {
	Phone string `json:"phone"`
}

type verifyBody struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (h *Auth) RequestCode(c *fiber.Ctx) error {
	var body requestCodeBody
	if err := c.BodyParser(&body); err != nil || body.Phone == "" {
		return badRequest(c, "phone is required")
	}

	if err := h.Service.RequestCode(c.UserContext(), body.Phone); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Login code sent",
	})
}

func (h *Auth) Verify(c *fiber.Ctx) error {
	var body verifyBody
	if err := c.BodyParser(&body); err != nil || body.Phone == "" || body.Code == "" {
		return badRequest(c, "phone and code are required")
	}

	userID, err := h.Service.VerifyCode(c.UserContext(), body.Phone, body.Code)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Code verified",
		Results: fiber.Map{"user_id": userID},
	})
}
