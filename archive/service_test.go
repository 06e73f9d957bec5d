package archive

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/repository"
)

const systemNumber = "+5550000001"

func testService(t *testing.T) (*Service, *models.User) {
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

	user, err := repository.NewUserRepository(db).FindOrCreateByPhone(context.Background(), "+1234567890")
	require.NoError(t, err)
	return NewService(db, systemNumber), user
}

func strptr(s string) *string { return &s }

func TestStoreMessage_AutoCreatesMainSession(t *testing.T) {
	svc, user := testService(t)
	ctx := context.Background()

	msg, err := svc.StoreMessage(ctx, user.ID, MessageCreate{
		Direction:         models.DirectionIncoming,
		Content:           strptr("Hello, can you help me?"),
		WhatsAppMessageID: "msg_123",
	})
	require.NoError(t, err)

	assert.Equal(t, user.JID(), msg.SenderJID)
	assert.Equal(t, systemNumber+models.JIDSuffix, msg.RecipientJID)
	assert.Equal(t, models.MessageTypeText, msg.MessageType)
	assert.Equal(t, "msg_123", msg.WhatsAppMessageID())
	assert.Equal(t, models.DirectionIncoming, msg.Direction(user.PhoneNumber))

	var session models.Session
	require.NoError(t, svc.DB().First(&session, msg.SessionID).Error)
	assert.Equal(t, models.SessionTypeMain, session.SessionType)
	assert.Equal(t, models.SessionStatusConnected, session.Status)

	// A second store reuses the session.
	again, err := svc.StoreMessage(ctx, user.ID, MessageCreate{
		Direction: models.DirectionOutgoing,
		Content:   strptr("Of course."),
	})
	require.NoError(t, err)
	assert.Equal(t, msg.SessionID, again.SessionID)
	assert.Equal(t, models.DirectionOutgoing, again.Direction(user.PhoneNumber))
}

func TestStoreMessage_ExplicitJIDsWin(t *testing.T) {
	svc, user := testService(t)

	msg, err := svc.StoreMessage(context.Background(), user.ID, MessageCreate{
		SenderJID:    "+7770001111@s.whatsapp.net",
		RecipientJID: user.JID(),
		Content:      strptr("hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "+7770001111@s.whatsapp.net", msg.SenderJID)
	assert.Equal(t, models.DirectionOutgoing, msg.Direction(user.PhoneNumber))
}

func TestSearchMessages(t *testing.T) {
	svc, user := testService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.StoreMessage(ctx, user.ID, MessageCreate{
			Direction: models.DirectionIncoming,
			Content:   strptr(fmt.Sprintf("plain message %d", i)),
		})
		require.NoError(t, err)
	}
	_, err := svc.StoreMessage(ctx, user.ID, MessageCreate{
		Direction: models.DirectionIncoming,
		Content:   strptr("this one is SPECIAL indeed"),
	})
	require.NoError(t, err)
	_, err = svc.StoreMessage(ctx, user.ID, MessageCreate{
		Direction:   models.DirectionIncoming,
		MessageType: models.MessageTypeImage,
		Caption:     strptr("a special picture"),
	})
	require.NoError(t, err)

	got, err := svc.SearchMessages(ctx, user.ID, "special", 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		text := strings.ToLower(deref(m.Content) + " " + deref(m.Caption))
		assert.Contains(t, text, "special")
	}

	// Empty query matches nothing.
	got, err = svc.SearchMessages(ctx, user.ID, "   ", 50)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetRecentMessages_NewestFirst(t *testing.T) {
	svc, user := testService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.StoreMessage(ctx, user.ID, MessageCreate{
			Direction: models.DirectionIncoming,
			Content:   strptr(fmt.Sprintf("m%d", i)),
		})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	got, err := svc.GetRecentMessages(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", deref(got[0].Content))
	assert.Equal(t, "m1", deref(got[1].Content))
}

func TestGetMessagesByDateRange_Inclusive(t *testing.T) {
	svc, user := testService(t)
	ctx := context.Background()

	msg, err := svc.StoreMessage(ctx, user.ID, MessageCreate{
		Direction: models.DirectionIncoming,
		Content:   strptr("in range"),
	})
	require.NoError(t, err)

	got, err := svc.GetMessagesByDateRange(ctx, user.ID, msg.Timestamp, msg.Timestamp, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1, "both bounds are inclusive")

	got, err = svc.GetMessagesByDateRange(ctx, user.ID,
		msg.Timestamp.Add(time.Second), msg.Timestamp.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetConversationStats(t *testing.T) {
	svc, user := testService(t)
	ctx := context.Background()

	// Zero messages: all-zero stats, nil dates.
	stats, err := svc.GetConversationStats(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Total)
	assert.Nil(t, stats.FirstDate)
	assert.Nil(t, stats.LastDate)
	assert.Zero(t, stats.AvgPerDay)

	for i := 0; i < 3; i++ {
		_, err := svc.StoreMessage(ctx, user.ID, MessageCreate{
			Direction: models.DirectionIncoming,
			Content:   strptr("from user"),
		})
		require.NoError(t, err)
	}
	_, err = svc.StoreMessage(ctx, user.ID, MessageCreate{
		Direction: models.DirectionOutgoing,
		Content:   strptr("to user"),
	})
	require.NoError(t, err)

	stats, err = svc.GetConversationStats(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.Total)
	assert.EqualValues(t, 3, stats.Sent)
	assert.EqualValues(t, 1, stats.Received)
	require.NotNil(t, stats.FirstDate)
	require.NotNil(t, stats.LastDate)
	// All messages land today: span collapses to one day.
	assert.InDelta(t, 4.0, stats.AvgPerDay, 1e-9)
}

func TestUpdateMessageStatus(t *testing.T) {
	svc, user := testService(t)
	ctx := context.Background()

	_, err := svc.StoreMessage(ctx, user.ID, MessageCreate{
		Direction:         models.DirectionOutgoing,
		Content:           strptr("reply"),
		WhatsAppMessageID: "msg_sent_123",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateMessageStatus(ctx, "msg_sent_123", "delivered")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "delivered", updated.DeliveryStatus())

	// Absent id: nil, no error.
	missing, err := svc.UpdateMessageStatus(ctx, "msg_never_sent", "delivered")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestExportMessages(t *testing.T) {
	svc, user := testService(t)
	ctx := context.Background()

	_, err := svc.StoreMessage(ctx, user.ID, MessageCreate{
		Direction: models.DirectionIncoming,
		Content:   strptr("hello"),
	})
	require.NoError(t, err)
	_, err = svc.StoreMessage(ctx, user.ID, MessageCreate{
		Direction: models.DirectionOutgoing,
		Content:   strptr("hi there"),
	})
	require.NoError(t, err)

	raw, contentType, err := svc.ExportMessages(ctx, user.ID, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "incoming", entries[0]["direction"])
	assert.Equal(t, "outgoing", entries[1]["direction"])

	raw, contentType, err = svc.ExportMessages(ctx, user.ID, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	rows, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "direction", rows[0][1])

	_, _, err = svc.ExportMessages(ctx, user.ID, "xml")
	require.Error(t, err)
}
