package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zapa-ai/zapa/archive"
	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/msgqueue"
	"github.com/zapa-ai/zapa/repository"
)

const testSystemNumber = "+5550000001"

type stubAgent struct {
	calls []struct {
		UserID  uint
		Content string
	}
	failures int
}

func (s *stubAgent) ProcessMessage(ctx context.Context, userID uint, content string) (*AgentResponse, error) {
	s.calls = append(s.calls, struct {
		UserID  uint
		Content string
	}{userID, content})
	if s.failures > 0 {
		s.failures--
		return &AgentResponse{Success: false, ErrorMessage: "transient"}, fmt.Errorf("transient")
	}
	return &AgentResponse{Content: "Of course!", Success: true}, nil
}

func webhookTestEnv(t *testing.T, queue *msgqueue.Queue) (*WebhookService, *stubAgent, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})

	agent := &stubAgent{}
	svc := NewWebhookService(
		archive.NewService(db, testSystemNumber),
		repository.NewUserRepository(db),
		agent,
		queue,
		testSystemNumber,
	)
	return svc, agent, db
}

func receivedEvent(t *testing.T, data map[string]interface{}) WebhookEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return WebhookEvent{EventType: EventMessageReceived, Data: raw}
}

func TestHandleEvent_NewUserTextDispatch(t *testing.T) {
	svc, agent, db := webhookTestEnv(t, nil)
	ctx := context.Background()

	result := svc.HandleEvent(ctx, receivedEvent(t, map[string]interface{}{
		"from_number": "+1234567890@s.whatsapp.net",
		"to_number":   testSystemNumber + "@s.whatsapp.net",
		"message_id":  "msg_123",
		"text":        "Hello, can you help me?",
	}))

	assert.Equal(t, "processed", result["status"])
	assert.NotNil(t, result["message_id"])

	// User created on first contact.
	var user models.User
	require.NoError(t, db.First(&user, "phone_number = ?", "+1234567890").Error)
	assert.Equal(t, "User 7890", user.DisplayName)
	assert.True(t, user.IsActive)

	// One stored incoming message carrying the WhatsApp id.
	var msg models.Message
	require.NoError(t, db.First(&msg, "user_id = ?", user.ID).Error)
	assert.Equal(t, models.DirectionIncoming, msg.Direction(user.PhoneNumber))
	assert.Equal(t, "Hello, can you help me?", *msg.Content)
	assert.Equal(t, "msg_123", msg.WhatsAppMessageID())

	// Agent invoked exactly once with the text.
	require.Len(t, agent.calls, 1)
	assert.Equal(t, user.ID, agent.calls[0].UserID)
	assert.Equal(t, "Hello, can you help me?", agent.calls[0].Content)
}

func TestHandleEvent_MediaStoredNotDispatched(t *testing.T) {
	svc, agent, db := webhookTestEnv(t, nil)

	result := svc.HandleEvent(context.Background(), receivedEvent(t, map[string]interface{}{
		"from_number": "+1234567890@s.whatsapp.net",
		"to_number":   testSystemNumber + "@s.whatsapp.net",
		"message_id":  "msg_124",
		"media_url":   "https://ex/img.jpg",
		"media_type":  "image",
	}))

	assert.Equal(t, "stored", result["status"])
	assert.Empty(t, agent.calls, "media without text must not reach the agent")

	var msg models.Message
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, models.MessageTypeImage, msg.MessageType)
	assert.Nil(t, msg.Content)
	assert.Equal(t, "https://ex/img.jpg", msg.MediaURL())
}

func TestHandleEvent_NonSystemMessageStoredOnly(t *testing.T) {
	svc, agent, _ := webhookTestEnv(t, nil)

	// Addressed to a user's own number: archived, never dispatched.
	result := svc.HandleEvent(context.Background(), receivedEvent(t, map[string]interface{}{
		"from_number": "+1234567890@s.whatsapp.net",
		"to_number":   "+1987654321@s.whatsapp.net",
		"message_id":  "msg_125",
		"text":        "hi neighbor",
	}))

	assert.Equal(t, "stored", result["status"])
	assert.Empty(t, agent.calls)
}

func TestHandleEvent_QueuedDispatch(t *testing.T) {
	queue := msgqueue.New(msgqueue.NewMemoryStore(), msgqueue.Config{KeyPrefix: "test"})
	svc, agent, _ := webhookTestEnv(t, queue)
	ctx := context.Background()

	result := svc.HandleEvent(ctx, receivedEvent(t, map[string]interface{}{
		"from_number": "+1234567890@s.whatsapp.net",
		"to_number":   testSystemNumber + "@s.whatsapp.net",
		"message_id":  "msg_126",
		"text":        "queue me",
	}))

	assert.Equal(t, "queued", result["status"])
	assert.Empty(t, agent.calls, "queued dispatch defers the agent to a worker")

	queued, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, "queue me", queued.Content)
}

func TestHandleEvent_DirectDispatchRetries(t *testing.T) {
	svc, agent, _ := webhookTestEnv(t, nil)
	agent.failures = 2

	result := svc.HandleEvent(context.Background(), receivedEvent(t, map[string]interface{}{
		"from_number": "+1234567890@s.whatsapp.net",
		"to_number":   testSystemNumber + "@s.whatsapp.net",
		"message_id":  "msg_127",
		"text":        "flaky turn",
	}))

	assert.Equal(t, "processed", result["status"])
	assert.Len(t, agent.calls, 3, "two failures then success")
}

func TestHandleEvent_StatusUpdate(t *testing.T) {
	svc, _, db := webhookTestEnv(t, nil)
	ctx := context.Background()

	// Seed a prior outbound message.
	user, err := repository.NewUserRepository(db).FindOrCreateByPhone(ctx, "+1234567890")
	require.NoError(t, err)
	archiveSvc := archive.NewService(db, testSystemNumber)
	reply := "earlier reply"
	_, err = archiveSvc.StoreMessage(ctx, user.ID, archive.MessageCreate{
		Direction:         models.DirectionOutgoing,
		Content:           &reply,
		WhatsAppMessageID: "msg_sent_123",
	})
	require.NoError(t, err)

	raw, _ := json.Marshal(map[string]interface{}{
		"message_id": "msg_sent_123",
		"status":     "delivered",
		"to_number":  "+1234567890@s.whatsapp.net",
	})
	result := svc.HandleEvent(ctx, WebhookEvent{EventType: EventMessageSent, Data: raw})
	assert.Equal(t, "updated", result["status"])

	var msg models.Message
	require.NoError(t, db.Last(&msg).Error)
	assert.Equal(t, "delivered", msg.DeliveryStatus())
}

func TestHandleEvent_StatusUpdateNotFound(t *testing.T) {
	svc, _, _ := webhookTestEnv(t, nil)

	raw, _ := json.Marshal(map[string]interface{}{"message_id": "msg_never", "status": "delivered"})
	result := svc.HandleEvent(context.Background(), WebhookEvent{EventType: EventMessageSent, Data: raw})
	assert.Equal(t, "not_found", result["status"])
}

func TestHandleEvent_MessageFailed(t *testing.T) {
	svc, _, db := webhookTestEnv(t, nil)
	ctx := context.Background()

	user, err := repository.NewUserRepository(db).FindOrCreateByPhone(ctx, "+1234567890")
	require.NoError(t, err)
	reply := "doomed reply"
	_, err = archive.NewService(db, testSystemNumber).StoreMessage(ctx, user.ID, archive.MessageCreate{
		Direction:         models.DirectionOutgoing,
		Content:           &reply,
		WhatsAppMessageID: "msg_fail_1",
	})
	require.NoError(t, err)

	raw, _ := json.Marshal(map[string]interface{}{"message_id": "msg_fail_1", "error": "number blocked"})
	result := svc.HandleEvent(ctx, WebhookEvent{EventType: EventMessageFailed, Data: raw})
	assert.Equal(t, "updated", result["status"])

	var msg models.Message
	require.NoError(t, db.Last(&msg).Error)
	assert.Equal(t, "failed: number blocked", msg.DeliveryStatus())
}

func TestHandleEvent_ConnectionStatusAndUnknown(t *testing.T) {
	svc, _, _ := webhookTestEnv(t, nil)
	ctx := context.Background()

	raw, _ := json.Marshal(map[string]interface{}{"status": "connected", "session_id": "system"})
	result := svc.HandleEvent(ctx, WebhookEvent{EventType: EventConnectionStatus, Data: raw})
	assert.Equal(t, "acknowledged", result["status"])

	result = svc.HandleEvent(ctx, WebhookEvent{EventType: "message.edited", Data: raw})
	assert.Equal(t, "ignored", result["status"])
	assert.Equal(t, "unknown_event_type", result["reason"])
}

func TestHandleEvent_ValidationRejectsBadPayload(t *testing.T) {
	svc, agent, _ := webhookTestEnv(t, nil)

	result := svc.HandleEvent(context.Background(), receivedEvent(t, map[string]interface{}{
		"from_number": "+1234567890@s.whatsapp.net",
		// to_number and message_id missing
	}))
	assert.Equal(t, "error", result["status"])
	assert.Empty(t, agent.calls)
}
