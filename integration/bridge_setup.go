package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/bridge"
	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/apperror"
)

// SystemSessionID is the bridge session the platform speaks through.
const SystemSessionID = "system"

// webhookEvents is the subscription list pushed to the bridge at startup.
var webhookEvents = []string{
	"message.received",
	"message.sent",
	"message.failed",
	"connection.status",
}

// BridgeSetup provisions the bridge at startup: webhook registration and
// the system session lifecycle.
type BridgeSetup struct {
	client     *bridge.Client
	webhookURL string
}

func NewBridgeSetup(client *bridge.Client, webhookURL string) *BridgeSetup {
	return &BridgeSetup{client: client, webhookURL: webhookURL}
}

// WebhookConfig is what the bridge is told about event delivery.
type WebhookConfig struct {
	URL        string   `json:"url"`
	Events     []string `json:"events"`
	MaxRetries int      `json:"max_retries"`
	RetryDelay int      `json:"retry_delay"`
}

// Configure returns the webhook configuration the bridge receives when the
// system session is created. The bridge stores it per session.
func (b *BridgeSetup) Configure() WebhookConfig {
	return WebhookConfig{
		URL:        b.webhookURL,
		Events:     webhookEvents,
		MaxRetries: 3,
		RetryDelay: 5,
	}
}

// EnsureSystemSession makes sure the system session exists and reports its
// state: "connected", "created" for a fresh session awaiting pairing, or
// "disconnected" with the QR code fetched for re-pairing.
func (b *BridgeSetup) EnsureSystemSession(ctx context.Context) (string, error) {
	status, err := b.client.GetSessionStatus(ctx, SystemSessionID)
	if err != nil {
		var se *apperror.BridgeSessionError
		if !errors.As(err, &se) {
			return "", fmt.Errorf("failed to query system session: %w", err)
		}

		// Session missing: create it, registering the webhook callback.
		created, err := b.client.CreateSession(ctx, SystemSessionID)
		if err != nil {
			return "", fmt.Errorf("failed to create system session: %w", err)
		}
		logrus.WithField("status", created.Status).Info("[BRIDGE-SETUP] System session created")
		return "created", nil
	}

	switch status.Status {
	case models.SessionStatusConnected:
		return "connected", nil
	case models.SessionStatusDisconnected:
		qr, err := b.client.GetQRCode(ctx, SystemSessionID)
		if err != nil {
			logrus.WithError(err).Warn("[BRIDGE-SETUP] Could not fetch pairing QR")
			return "disconnected", nil
		}
		logrus.WithField("timeout", qr.Timeout).Warn("[BRIDGE-SETUP] System session needs re-pairing")
		return "disconnected", nil
	default:
		return status.Status, nil
	}
}

// CheckBridgeHealth probes the bridge and counts its sessions.
func (b *BridgeSetup) CheckBridgeHealth(ctx context.Context) (healthy bool, details map[string]interface{}) {
	details = map[string]interface{}{}

	health, err := b.client.HealthCheck(ctx)
	if err != nil {
		details["error"] = err.Error()
		return false, details
	}
	details["status"] = health.Status
	details["version"] = health.Version

	sessions, err := b.client.ListSessions(ctx)
	if err == nil {
		connected := 0
		for _, s := range sessions {
			if s.Status == models.SessionStatusConnected {
				connected++
			}
		}
		details["sessions"] = len(sessions)
		details["connected_sessions"] = connected
	}

	return health.Status == "healthy", details
}
