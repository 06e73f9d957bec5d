package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zapa-ai/zapa/pkg/utils"
	"github.com/zapa-ai/zapa/usecase"
)

// LLMConfig manages per-user provider credentials and settings.
type LLMConfig struct {
	Service *usecase.LLMConfigService
}

func InitRestLLMConfig(app fiber.Router, service *usecase.LLMConfigService) LLMConfig {
	handler := LLMConfig{Service: service}

	group := app.Group("/api/v1/users/:id/llm-config")
	group.Put("/", handler.Save)
	group.Get("/", handler.Get)
	group.Delete("/", handler.Delete)

	return handler
}

func (h *LLMConfig) Save(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}

	var input usecase.LLMConfigInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "malformed configuration payload")
	}

	record, err := h.Service.SaveUserConfig(c.UserContext(), userID, input)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "LLM configuration saved",
		Results: record,
	})
}

func (h *LLMConfig) Get(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}

	record, err := h.Service.GetUserConfig(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "LLM configuration retrieved",
		Results: record,
	})
}

func (h *LLMConfig) Delete(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}

	if err := h.Service.DeleteUserConfig(c.UserContext(), userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "LLM configuration deleted",
	})
}
