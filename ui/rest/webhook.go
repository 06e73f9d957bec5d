package rest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/usecase"
)

// signatureHeader carries the bridge's HMAC-SHA256 hex digest of the body.
const signatureHeader = "X-Webhook-Signature"

type Webhook struct {
	Service *usecase.WebhookService
	Secret  string
}

func InitRestWebhook(app fiber.Router, service *usecase.WebhookService, secret string) Webhook {
	handler := Webhook{Service: service, Secret: secret}

	group := app.Group("/api/v1/webhooks")
	group.Post("/whatsapp", handler.verifySignature, handler.Receive)
	group.Get("/whatsapp/health", handler.Health)

	return handler
}

// verifySignature rejects bodies whose HMAC does not match. Verification is
// skipped entirely when no secret is configured.
func (h *Webhook) verifySignature(c *fiber.Ctx) error {
	if h.Secret == "" {
		return c.Next()
	}

	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write(c.Body())
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := c.Get(signatureHeader)
	if provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		logrus.Warn("[WEBHOOK] Rejected event with invalid signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "Invalid webhook signature",
		})
	}
	return c.Next()
}

// Receive ingests one bridge event. The response is always 200 so the bridge
// does not redeliver; failures are reported in the body.
func (h *Webhook) Receive(c *fiber.Ctx) error {
	var event usecase.WebhookEvent
	if err := c.BodyParser(&event); err != nil {
		return c.JSON(fiber.Map{
			"status": "error",
			"error":  "malformed event payload",
		})
	}

	result := h.Service.HandleEvent(c.UserContext(), event)
	return c.JSON(result)
}

func (h *Webhook) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":             "ok",
		"signature_required": h.Secret != "",
	})
}
