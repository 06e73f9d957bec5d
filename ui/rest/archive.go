package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/zapa-ai/zapa/archive"
	"github.com/zapa-ai/zapa/pkg/utils"
)

// Archive exposes the conversation read API.
type Archive struct {
	Service *archive.Service
}

func InitRestArchive(app fiber.Router, service *archive.Service) Archive {
	handler := Archive{Service: service}

	group := app.Group("/api/v1/users/:id/messages")
	group.Get("/recent", handler.Recent)
	group.Get("/search", handler.Search)
	group.Get("/range", handler.DateRange)
	group.Get("/stats", handler.Stats)
	group.Get("/export", handler.Export)

	return handler
}

func (h *Archive) Recent(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}

	limit := c.QueryInt("limit", 20)
	records, err := h.Service.GetRecentMessages(c.UserContext(), userID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Recent messages retrieved",
		Results: records,
	})
}

func (h *Archive) Search(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}

	query := c.Query("q")
	limit := c.QueryInt("limit", 10)
	records, err := h.Service.SearchMessages(c.UserContext(), userID, query, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Search completed",
		Results: records,
	})
}

func (h *Archive) DateRange(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}

	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return badRequest(c, "from must be an RFC3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return badRequest(c, "to must be an RFC3339 timestamp")
	}

	limit := c.QueryInt("limit", 100)
	records, err := h.Service.GetMessagesByDateRange(c.UserContext(), userID, from, to, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Messages retrieved",
		Results: records,
	})
}

func (h *Archive) Stats(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}

	stats, err := h.Service.GetConversationStats(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Conversation stats retrieved",
		Results: stats,
	})
}

// Export streams the full history as JSON or CSV.
func (h *Archive) Export(c *fiber.Ctx) error {
	userID, ok := userIDParam(c)
	if !ok {
		return badRequest(c, "id must be a positive integer")
	}

	format := c.Query("format", archive.FormatJSON)
	payload, contentType, err := h.Service.ExportMessages(c.UserContext(), userID, format)
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename=messages."+format)
	return c.Send(payload)
}
