package bridge

import "time"

// SessionStatus is the bridge's view of one WhatsApp session.
type SessionStatus struct {
	SessionID   string     `json:"session_id"`
	Status      string     `json:"status"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// QRCodeResponse carries a pairing QR code and its validity window.
type QRCodeResponse struct {
	QRCode  string `json:"qr_code"`
	Timeout int    `json:"timeout"`
}

// SendMessageResponse is the bridge's acknowledgement of an outbound message.
type SendMessageResponse struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// HealthResponse is the bridge's own health probe.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type createSessionRequest struct {
	SessionID  string `json:"session_id"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type sendMessageRequest struct {
	SessionID       string `json:"session_id"`
	RecipientJID    string `json:"recipient_jid"`
	Content         string `json:"content"`
	QuotedMessageID string `json:"quoted_message_id,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

func (e errorResponse) message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error
}
