package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestMessage_Direction(t *testing.T) {
	const phone = "+1234567890"

	cases := []struct {
		name      string
		sender    string
		recipient string
		want      Direction
	}{
		{"incoming", phone + JIDSuffix, "+5550000001" + JIDSuffix, DirectionIncoming},
		{"outgoing", "+5550000001" + JIDSuffix, phone + JIDSuffix, DirectionOutgoing},
		{"system", "+5550000001" + JIDSuffix, "+5550000001" + JIDSuffix, DirectionSystem},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Message{SenderJID: tc.sender, RecipientJID: tc.recipient}
			assert.Equal(t, tc.want, m.Direction(phone))
		})
	}
}

func TestMessage_MetadataAccessors(t *testing.T) {
	m := Message{MediaMetadata: datatypes.JSONMap{
		"whatsapp_message_id": "msg_123",
		"status":              "delivered",
		"media_url":           "https://ex/img.jpg",
	}}
	assert.Equal(t, "msg_123", m.WhatsAppMessageID())
	assert.Equal(t, "delivered", m.DeliveryStatus())
	assert.Equal(t, "https://ex/img.jpg", m.MediaURL())

	empty := Message{}
	assert.Equal(t, "", empty.WhatsAppMessageID())
	assert.Equal(t, "", empty.DeliveryStatus())
}

func TestLLMConfig_SettingsAccessors(t *testing.T) {
	c := LLMConfig{ModelSettings: datatypes.JSONMap{
		"model":               "gpt-4o",
		"temperature":         0.2,
		"max_tokens":          float64(512),
		"custom_instructions": "Be terse.",
	}}
	assert.Equal(t, "gpt-4o", c.Model())
	assert.InDelta(t, 0.2, c.Temperature(), 1e-9)
	assert.Equal(t, 512, c.MaxTokens())
	assert.Equal(t, "Be terse.", c.CustomInstructions())

	// Defaults when unset.
	empty := LLMConfig{}
	assert.Equal(t, "", empty.Model())
	assert.InDelta(t, 0.7, empty.Temperature(), 1e-9)
	assert.Equal(t, 0, empty.MaxTokens())
}

func TestAuthCode_IsValid(t *testing.T) {
	now := time.Now().UTC()

	fresh := AuthCode{Code: "123456", ExpiresAt: now.Add(5 * time.Minute)}
	assert.True(t, fresh.IsValid(now))

	used := AuthCode{Code: "123456", ExpiresAt: now.Add(5 * time.Minute), Used: true}
	assert.False(t, used.IsValid(now))

	expired := AuthCode{Code: "123456", ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, expired.IsValid(now))
}

func TestStripJID(t *testing.T) {
	assert.Equal(t, "+1234567890", StripJID("+1234567890@s.whatsapp.net"))
	assert.Equal(t, "+1234567890", StripJID("+1234567890"))
}
