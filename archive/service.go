package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/apperror"
)

// MessageCreate is the input for storing one message. JIDs may be supplied
// directly; when absent they are derived from Direction.
type MessageCreate struct {
	Direction         models.Direction
	SenderJID         string
	RecipientJID      string
	MessageType       string
	Content           *string
	Caption           *string
	ReplyToID         *uint
	WhatsAppMessageID string
	Metadata          map[string]interface{}
}

// ConversationStats summarizes one user's archive.
type ConversationStats struct {
	Total     int64      `json:"total"`
	Sent      int64      `json:"sent"`
	Received  int64      `json:"received"`
	FirstDate *time.Time `json:"first_date"`
	LastDate  *time.Time `json:"last_date"`
	AvgPerDay float64    `json:"avg_per_day"`
}

// Service provides every domain operation over a user's message archive.
// All queries are scoped by user id.
type Service struct {
	db           *gorm.DB
	systemNumber string
}

func NewService(db *gorm.DB, systemNumber string) *Service {
	return &Service{db: db, systemNumber: systemNumber}
}

// DB exposes the handle for callers that need a transactional scope.
func (s *Service) DB() *gorm.DB { return s.db }

// WithDB returns a copy of the service bound to db, for transactions.
func (s *Service) WithDB(db *gorm.DB) *Service {
	return &Service{db: db, systemNumber: s.systemNumber}
}

// StoreMessage persists one message for the user, auto-creating a connected
// main session when none exists. The timestamp is authoritative: set here,
// in UTC, never taken from the caller.
func (s *Service) StoreMessage(ctx context.Context, userID uint, in MessageCreate) (*models.Message, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFoundError(fmt.Sprintf("user %d not found", userID))
		}
		return nil, err
	}

	session, err := s.ensureMainSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	sender, recipient := s.resolveJIDs(&user, in)

	meta := datatypes.JSONMap{}
	for k, v := range in.Metadata {
		meta[k] = v
	}
	if in.WhatsAppMessageID != "" {
		meta["whatsapp_message_id"] = in.WhatsAppMessageID
	}

	msgType := in.MessageType
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	msg := models.Message{
		UserID:        userID,
		SessionID:     session.ID,
		SenderJID:     sender,
		RecipientJID:  recipient,
		Timestamp:     time.Now().UTC(),
		MessageType:   msgType,
		Content:       in.Content,
		Caption:       in.Caption,
		ReplyToID:     in.ReplyToID,
		MediaMetadata: meta,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"message_id": msg.ID,
		"type":       msgType,
	}).Debug("[ARCHIVE] Message stored")
	return &msg, nil
}

// GetRecentMessages returns the newest count messages, newest first.
func (s *Service) GetRecentMessages(ctx context.Context, userID uint, count int) ([]models.Message, error) {
	if count <= 0 {
		count = 20
	}
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(count).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// SearchMessages finds messages whose content or caption contains query,
// case-insensitively, newest first. An empty query matches nothing.
func (s *Service) SearchMessages(ctx context.Context, userID uint, query string, limit int) ([]models.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Message{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("LOWER(content) LIKE ? OR LOWER(caption) LIKE ?", pattern, pattern).
		Order("timestamp DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetMessagesByDateRange returns messages with start <= timestamp <= end,
// newest first.
func (s *Service) GetMessagesByDateRange(ctx context.Context, userID uint, start, end time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ? AND timestamp <= ?", userID, start, end).
		Order("timestamp DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetConversationStats aggregates the archive. With no messages every
// numeric field is zero and both dates are nil.
func (s *Service) GetConversationStats(ctx context.Context, userID uint) (*ConversationStats, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFoundError(fmt.Sprintf("user %d not found", userID))
		}
		return nil, err
	}
	jid := user.JID()

	stats := &ConversationStats{}
	scoped := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Message{}).Where("user_id = ?", userID)
	}

	if err := scoped().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if stats.Total == 0 {
		return stats, nil
	}

	if err := scoped().Where("sender_jid = ?", jid).Count(&stats.Sent).Error; err != nil {
		return nil, err
	}
	if err := scoped().Where("recipient_jid = ?", jid).Count(&stats.Received).Error; err != nil {
		return nil, err
	}

	var bounds struct {
		First time.Time
		Last  time.Time
	}
	err := scoped().
		Select("MIN(timestamp) AS first, MAX(timestamp) AS last").
		Scan(&bounds).Error
	if err != nil {
		return nil, err
	}
	stats.FirstDate = &bounds.First
	stats.LastDate = &bounds.Last

	days := int64(bounds.Last.Sub(bounds.First).Hours() / 24)
	if days < 1 {
		days = 1
	}
	stats.AvgPerDay = float64(stats.Total) / float64(days)
	return stats, nil
}

// UpdateMessageStatus finds the message carrying the given WhatsApp id in
// its metadata and merges the delivery status in. Returns nil (no error)
// when no such message exists.
func (s *Service) UpdateMessageStatus(ctx context.Context, whatsappMessageID, status string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where(datatypes.JSONQuery("media_metadata").Equals(whatsappMessageID, "whatsapp_message_id")).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if msg.MediaMetadata == nil {
		msg.MediaMetadata = datatypes.JSONMap{}
	}
	msg.MediaMetadata["status"] = status
	if err := s.db.WithContext(ctx).Model(&msg).Update("media_metadata", msg.MediaMetadata).Error; err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"whatsapp_message_id": whatsappMessageID,
		"status":              status,
	}).Debug("[ARCHIVE] Message status updated")
	return &msg, nil
}

// ensureMainSession returns the user's connected main session, creating one
// on first store.
func (s *Service) ensureMainSession(ctx context.Context, userID uint) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND session_type = ? AND status = ?",
			userID, models.SessionTypeMain, models.SessionStatusConnected).
		First(&session).Error
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	session = models.Session{
		UserID:      userID,
		SessionID:   fmt.Sprintf("user_%d_main", userID),
		Status:      models.SessionStatusConnected,
		SessionType: models.SessionTypeMain,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create main session: %w", err)
	}
	return &session, nil
}

func (s *Service) resolveJIDs(user *models.User, in MessageCreate) (sender, recipient string) {
	sender, recipient = in.SenderJID, in.RecipientJID
	if sender != "" && recipient != "" {
		return sender, recipient
	}

	userJID := user.JID()
	systemJID := s.systemNumber + models.JIDSuffix
	switch in.Direction {
	case models.DirectionIncoming:
		sender, recipient = userJID, systemJID
	case models.DirectionOutgoing:
		sender, recipient = systemJID, userJID
	default:
		sender, recipient = systemJID, systemJID
	}
	return sender, recipient
}
