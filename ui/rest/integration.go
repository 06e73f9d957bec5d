package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zapa-ai/zapa/integration"
	"github.com/zapa-ai/zapa/msgqueue"
	"github.com/zapa-ai/zapa/pkg/utils"
)

// Integration exposes the platform lifecycle and queue maintenance.
type Integration struct {
	Orchestrator *integration.Orchestrator
	Monitor      *integration.Monitor
	Queue        *msgqueue.Queue
}

func InitRestIntegration(app fiber.Router, orchestrator *integration.Orchestrator, monitor *integration.Monitor, queue *msgqueue.Queue) Integration {
	handler := Integration{Orchestrator: orchestrator, Monitor: monitor, Queue: queue}

	group := app.Group("/api/v1/admin/integration")
	group.Get("/status", handler.GetStatus)
	group.Get("/health", handler.GetHealth)
	group.Post("/initialize", handler.Initialize)
	group.Post("/reinitialize", handler.Reinitialize)
	group.Post("/shutdown", handler.Shutdown)
	group.Post("/queue/requeue-failed", handler.RequeueFailed)
	group.Post("/queue/clear-failed", handler.ClearFailed)

	return handler
}

func (h *Integration) GetStatus(c *fiber.Ctx) error {
	status := h.Orchestrator.GetStatus(c.UserContext())
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Integration status retrieved",
		Results: status,
	})
}

// GetHealth triggers a fresh sweep over every component.
func (h *Integration) GetHealth(c *fiber.Ctx) error {
	health := h.Monitor.GetSystemHealth(c.UserContext())
	status := 200
	if !health.Healthy {
		status = 503
	}
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    "SUCCESS",
		Message: "System health retrieved",
		Results: health,
	})
}

func (h *Integration) Initialize(c *fiber.Ctx) error {
	result, err := h.Orchestrator.Initialize(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Integration initialized",
		Results: result,
	})
}

func (h *Integration) Reinitialize(c *fiber.Ctx) error {
	result, err := h.Orchestrator.Reinitialize(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Integration reinitialized",
		Results: result,
	})
}

func (h *Integration) Shutdown(c *fiber.Ctx) error {
	h.Orchestrator.Shutdown()
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Integration stopped",
	})
}

func (h *Integration) RequeueFailed(c *fiber.Ctx) error {
	n, err := h.Queue.RequeueFailed(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Failed messages requeued",
		Results: fiber.Map{"requeued": n},
	})
}

func (h *Integration) ClearFailed(c *fiber.Ctx) error {
	n, err := h.Queue.ClearFailed(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Failed messages cleared",
		Results: fiber.Map{"cleared": n},
	})
}
