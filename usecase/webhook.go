package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/archive"
	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/msgqueue"
	"github.com/zapa-ai/zapa/pkg/retry"
	"github.com/zapa-ai/zapa/repository"
)

// Bridge event types the webhook understands.
const (
	EventMessageReceived  = "message.received"
	EventMessageSent      = "message.sent"
	EventMessageFailed    = "message.failed"
	EventConnectionStatus = "connection.status"
)

// WebhookEvent is the envelope the bridge posts.
type WebhookEvent struct {
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type messageReceivedData struct {
	FromNumber string `json:"from_number"`
	ToNumber   string `json:"to_number"`
	MessageID  string `json:"message_id"`
	Text       string `json:"text"`
	MediaURL   string `json:"media_url"`
	MediaType  string `json:"media_type"`
	Timestamp  string `json:"timestamp"`
}

func (d messageReceivedData) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.FromNumber, validation.Required),
		validation.Field(&d.ToNumber, validation.Required),
		validation.Field(&d.MessageID, validation.Required),
		validation.Field(&d.MediaType, validation.In("", "image", "audio", "video", "document")),
	)
}

type messageSentData struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	ToNumber  string `json:"to_number"`
}

type messageFailedData struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
	ToNumber  string `json:"to_number"`
}

type connectionStatusData struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// AgentInvoker runs one conversational turn. Satisfied by *AgentService.
type AgentInvoker interface {
	ProcessMessage(ctx context.Context, userID uint, content string) (*AgentResponse, error)
}

// WebhookService dispatches typed bridge events: classification, archival
// and agent triggering.
type WebhookService struct {
	archive      *archive.Service
	users        *repository.UserRepository
	agent        AgentInvoker
	queue        *msgqueue.Queue
	systemNumber string
}

func NewWebhookService(
	archiveSvc *archive.Service,
	users *repository.UserRepository,
	agent AgentInvoker,
	queue *msgqueue.Queue,
	systemNumber string,
) *WebhookService {
	return &WebhookService{
		archive:      archiveSvc,
		users:        users,
		agent:        agent,
		queue:        queue,
		systemNumber: systemNumber,
	}
}

// HandleEvent processes one webhook delivery. The returned map is the
// response body; downstream failures surface there, never as an error, so
// the bridge is not pushed into redundant redelivery.
func (s *WebhookService) HandleEvent(ctx context.Context, event WebhookEvent) map[string]interface{} {
	switch event.EventType {
	case EventMessageReceived:
		return s.handleMessageReceived(ctx, event.Data)
	case EventMessageSent:
		return s.handleMessageSent(ctx, event.Data)
	case EventMessageFailed:
		return s.handleMessageFailed(ctx, event.Data)
	case EventConnectionStatus:
		return s.handleConnectionStatus(event.Data)
	default:
		logrus.WithField("event_type", event.EventType).Warn("[WEBHOOK] Unknown event type")
		return map[string]interface{}{"status": "ignored", "reason": "unknown_event_type"}
	}
}

func (s *WebhookService) handleMessageReceived(ctx context.Context, raw json.RawMessage) map[string]interface{} {
	var data messageReceivedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return errorResult(fmt.Errorf("malformed message.received payload: %w", err))
	}
	if err := data.Validate(); err != nil {
		return errorResult(err)
	}

	fromNumber := models.StripJID(data.FromNumber)
	toNumber := models.StripJID(data.ToNumber)

	isSystemMessage := toNumber == s.systemNumber
	owningPhone := toNumber
	if isSystemMessage {
		owningPhone = fromNumber
	}

	user, err := s.users.FindOrCreateByPhone(ctx, owningPhone)
	if err != nil {
		return errorResult(fmt.Errorf("failed to resolve user: %w", err))
	}

	msgType := models.MessageTypeText
	switch data.MediaType {
	case "image":
		msgType = models.MessageTypeImage
	case "audio":
		msgType = models.MessageTypeAudio
	case "video":
		msgType = models.MessageTypeVideo
	case "document":
		msgType = models.MessageTypeDocument
	}

	direction := models.DirectionIncoming
	if !isSystemMessage && fromNumber == user.PhoneNumber {
		direction = models.DirectionOutgoing
	}

	metadata := map[string]interface{}{
		"whatsapp_message_id": data.MessageID,
		"timestamp":           data.Timestamp,
		"is_system_message":   isSystemMessage,
	}
	if data.MediaURL != "" {
		metadata["media_url"] = data.MediaURL
	}
	if data.MediaType != "" {
		metadata["media_type"] = data.MediaType
	}

	var content *string
	if data.Text != "" {
		content = &data.Text
	}

	stored, err := s.archive.StoreMessage(ctx, user.ID, archive.MessageCreate{
		Direction:         direction,
		SenderJID:         data.FromNumber,
		RecipientJID:      data.ToNumber,
		MessageType:       msgType,
		Content:           content,
		WhatsAppMessageID: data.MessageID,
		Metadata:          metadata,
	})
	if err != nil {
		return errorResult(fmt.Errorf("failed to store message: %w", err))
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"system":  isSystemMessage,
		"type":    msgType,
	}).Info("[WEBHOOK] Message received")

	// The agent answers only texts addressed to the system number.
	if !isSystemMessage || data.Text == "" {
		return map[string]interface{}{"status": "stored", "message_id": stored.ID}
	}
	return s.dispatch(ctx, user.ID, data.Text, stored.ID)
}

// dispatch hands the turn to a worker through the queue; without a queue it
// runs the agent in-handler under a bounded retry.
func (s *WebhookService) dispatch(ctx context.Context, userID uint, text string, storedID uint) map[string]interface{} {
	if s.queue != nil {
		if _, err := s.queue.Enqueue(ctx, userID, text, msgqueue.PriorityNormal, map[string]interface{}{
			"stored_message_id": storedID,
		}); err != nil {
			logrus.WithError(err).Error("[WEBHOOK] Enqueue failed")
			return errorResult(err)
		}
		return map[string]interface{}{"status": "queued", "message_id": storedID}
	}

	err := retry.Do(ctx, retry.DefaultConfig(), "agent dispatch", func(ctx context.Context) error {
		_, err := s.agent.ProcessMessage(ctx, userID, text)
		return err
	})
	if err != nil {
		return errorResult(err)
	}
	return map[string]interface{}{"status": "processed", "message_id": storedID}
}

func (s *WebhookService) handleMessageSent(ctx context.Context, raw json.RawMessage) map[string]interface{} {
	var data messageSentData
	if err := json.Unmarshal(raw, &data); err != nil {
		return errorResult(fmt.Errorf("malformed message.sent payload: %w", err))
	}
	status := data.Status
	if status == "" {
		status = "sent"
	}

	msg, err := s.archive.UpdateMessageStatus(ctx, data.MessageID, status)
	if err != nil {
		return errorResult(err)
	}
	if msg == nil {
		return map[string]interface{}{"status": "not_found"}
	}
	return map[string]interface{}{"status": "updated"}
}

func (s *WebhookService) handleMessageFailed(ctx context.Context, raw json.RawMessage) map[string]interface{} {
	var data messageFailedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return errorResult(fmt.Errorf("malformed message.failed payload: %w", err))
	}

	msg, err := s.archive.UpdateMessageStatus(ctx, data.MessageID, "failed: "+data.Error)
	if err != nil {
		return errorResult(err)
	}
	if msg == nil {
		return map[string]interface{}{"status": "not_found"}
	}
	return map[string]interface{}{"status": "updated"}
}

func (s *WebhookService) handleConnectionStatus(raw json.RawMessage) map[string]interface{} {
	var data connectionStatusData
	if err := json.Unmarshal(raw, &data); err != nil {
		return errorResult(fmt.Errorf("malformed connection.status payload: %w", err))
	}
	logrus.WithFields(logrus.Fields{
		"session_id": data.SessionID,
		"status":     data.Status,
	}).Info("[WEBHOOK] Connection status changed")
	return map[string]interface{}{"status": "acknowledged"}
}

func errorResult(err error) map[string]interface{} {
	logrus.WithError(err).Error("[WEBHOOK] Event processing failed")
	return map[string]interface{}{"status": "error", "error": err.Error()}
}
