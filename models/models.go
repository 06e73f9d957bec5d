package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// JIDSuffix is the WhatsApp JID domain appended to bare phone numbers.
const JIDSuffix = "@s.whatsapp.net"

// Session status values.
const (
	SessionStatusQRPending    = "qr_pending"
	SessionStatusConnected    = "connected"
	SessionStatusDisconnected = "disconnected"
	SessionStatusError        = "error"
)

// Session types.
const (
	SessionTypeMain = "main"
	SessionTypeUser = "user"
)

// Message types.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeAudio    = "audio"
	MessageTypeVideo    = "video"
	MessageTypeDocument = "document"
)

// Message directions, derived at read time (never stored).
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionSystem   Direction = "system"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// User owns every other per-user entity; deleting a user cascades.
type User struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	PhoneNumber string `gorm:"uniqueIndex;size:20;not null" json:"phone_number"`
	DisplayName string `gorm:"size:100" json:"display_name"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
	IsAdmin     bool   `gorm:"default:false" json:"is_admin"`

	Sessions   []Session   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Messages   []Message   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	LLMConfigs []LLMConfig `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AuthCodes  []AuthCode  `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JID returns the user's WhatsApp endpoint identifier.
func (u *User) JID() string { return u.PhoneNumber + JIDSuffix }

// Session is one WhatsApp connection instance owned by a user. Messages
// attach to exactly one connected main session.
type Session struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	UserID      uint   `gorm:"index;not null" json:"user_id"`
	SessionID   string `gorm:"size:100" json:"session_id"`
	Status      string `gorm:"size:20;default:'qr_pending'" json:"status"`
	SessionType string `gorm:"size:10;default:'main'" json:"session_type"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one archived WhatsApp message. Direction is derived from the
// JIDs against the owning user's phone, never persisted.
type Message struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"index;not null" json:"user_id"`
	SessionID    uint       `gorm:"index;not null" json:"session_id"`
	SenderJID    string     `gorm:"size:100;not null;column:sender_jid" json:"sender_jid"`
	RecipientJID string     `gorm:"size:100;not null;column:recipient_jid" json:"recipient_jid"`
	Timestamp    time.Time  `gorm:"index;not null" json:"timestamp"`
	MessageType  string     `gorm:"size:20;default:'text'" json:"message_type"`
	Content      *string    `json:"content"`
	Caption      *string    `json:"caption"`
	ReplyToID    *uint      `json:"reply_to_id"`

	MediaMetadata datatypes.JSONMap `json:"media_metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Direction classifies the message relative to the owning user's phone.
func (m *Message) Direction(userPhone string) Direction {
	jid := userPhone + JIDSuffix
	switch {
	case m.SenderJID == jid:
		return DirectionIncoming
	case m.RecipientJID == jid:
		return DirectionOutgoing
	default:
		return DirectionSystem
	}
}

// WhatsAppMessageID returns media_metadata.whatsapp_message_id when set.
func (m *Message) WhatsAppMessageID() string {
	return metaString(m.MediaMetadata, "whatsapp_message_id")
}

// DeliveryStatus returns media_metadata.status when set.
func (m *Message) DeliveryStatus() string {
	return metaString(m.MediaMetadata, "status")
}

// MediaURL returns media_metadata.media_url when set.
func (m *Message) MediaURL() string {
	return metaString(m.MediaMetadata, "media_url")
}

// LLMConfig stores a user's provider choice and encrypted credentials.
// At most one config per user is active; saving a new one deactivates
// the rest in the same transaction.
type LLMConfig struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	UserID          uint   `gorm:"index;not null" json:"user_id"`
	Provider        string `gorm:"size:20;not null" json:"provider"`
	APIKeyEncrypted string `gorm:"column:api_key_encrypted;type:text;not null" json:"-"`
	IsActive        bool   `gorm:"default:true" json:"is_active"`

	ModelSettings datatypes.JSONMap `json:"model_settings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Model returns model_settings.model when set.
func (c *LLMConfig) Model() string {
	return metaString(c.ModelSettings, "model")
}

// Temperature returns model_settings.temperature, defaulting to 0.7.
func (c *LLMConfig) Temperature() float64 {
	if c.ModelSettings == nil {
		return 0.7
	}
	switch v := c.ModelSettings["temperature"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0.7
}

// MaxTokens returns model_settings.max_tokens, zero when unset.
func (c *LLMConfig) MaxTokens() int {
	if c.ModelSettings == nil {
		return 0
	}
	switch v := c.ModelSettings["max_tokens"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// CustomInstructions returns model_settings.custom_instructions when set.
func (c *LLMConfig) CustomInstructions() string {
	return metaString(c.ModelSettings, "custom_instructions")
}

// AuthCode is a 6-digit one-time login code delivered over WhatsApp.
type AuthCode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Code      string    `gorm:"size:6;not null;index" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`

	CreatedAt time.Time `json:"created_at"`
}

// IsValid reports whether the code can still be redeemed at now.
func (a *AuthCode) IsValid(now time.Time) bool {
	return !a.Used && now.Before(a.ExpiresAt)
}

// StripJID removes the WhatsApp domain suffix from a JID, leaving the
// bare phone number.
func StripJID(jid string) string {
	return strings.TrimSuffix(jid, JIDSuffix)
}

// All lists every entity for schema migration.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Session{},
		&Message{},
		&LLMConfig{},
		&AuthCode{},
	}
}

func metaString(m datatypes.JSONMap, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
