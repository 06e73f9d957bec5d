package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/apperror"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

type exportedMessage struct {
	ID          uint      `json:"id"`
	Direction   string    `json:"direction"`
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	Caption     string    `json:"caption,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ExportMessages renders the user's full archive, oldest first, as JSON or
// CSV. Returns the payload and its content type.
func (s *Service) ExportMessages(ctx context.Context, userID uint, format string) ([]byte, string, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", apperror.NotFoundError(fmt.Sprintf("user %d not found", userID))
		}
		return nil, "", err
	}

	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, "", err
	}

	out := make([]exportedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = exportedMessage{
			ID:          m.ID,
			Direction:   string(m.Direction(user.PhoneNumber)),
			MessageType: m.MessageType,
			Content:     deref(m.Content),
			Caption:     deref(m.Caption),
			Timestamp:   m.Timestamp,
		}
	}

	switch format {
	case FormatJSON, "":
		raw, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, "", err
		}
		return raw, "application/json", nil
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		w.Write([]string{"id", "direction", "message_type", "content", "caption", "timestamp"})
		for _, m := range out {
			w.Write([]string{
				strconv.FormatUint(uint64(m.ID), 10),
				m.Direction,
				m.MessageType,
				m.Content,
				m.Caption,
				m.Timestamp.UTC().Format(time.RFC3339),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", apperror.ValidationError(fmt.Sprintf("unsupported export format: %s", format))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
