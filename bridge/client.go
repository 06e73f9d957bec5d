package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/apperror"
)

const (
	// DefaultTimeout bounds every bridge call unless the config overrides it.
	DefaultTimeout = 30 * time.Second
)

// Client is a typed wrapper over the WhatsApp Bridge HTTP API. It must be
// opened before use and closed when done; calls outside that window fail.
type Client struct {
	baseURL    string
	webhookURL string
	httpClient *http.Client
	open       bool
}

// Config for constructing a Client.
type Config struct {
	BaseURL    string
	WebhookURL string
	Timeout    time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Open marks the client usable. Idempotent.
func (c *Client) Open() {
	c.open = true
}

// Close releases idle transport connections and marks the client unusable.
func (c *Client) Close() {
	c.open = false
	c.httpClient.CloseIdleConnections()
}

// HealthCheck probes the bridge.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession asks the bridge to start a session, registering our webhook
// callback. A 409 means the session already exists.
func (c *Client) CreateSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	body := createSessionRequest{SessionID: sessionID, WebhookURL: c.webhookURL}
	var out SessionStatus
	err := c.do(ctx, http.MethodPost, "/sessions", body, &out, map[int]func(msg string) error{
		http.StatusConflict: func(msg string) error {
			return &apperror.BridgeSessionError{Msg: fmt.Sprintf("session %s already exists", sessionID)}
		},
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSessionStatus fetches one session's state.
func (c *Client) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var out SessionStatus
	err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID, nil, &out, map[int]func(msg string) error{
		http.StatusNotFound: func(msg string) error {
			return &apperror.BridgeSessionError{Msg: fmt.Sprintf("session %s not found", sessionID)}
		},
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetQRCode fetches the pairing QR for a session awaiting scan.
func (c *Client) GetQRCode(ctx context.Context, sessionID string) (*QRCodeResponse, error) {
	var out QRCodeResponse
	err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID+"/qr", nil, &out, map[int]func(msg string) error{
		http.StatusNotFound: func(msg string) error {
			return &apperror.BridgeSessionError{Msg: fmt.Sprintf("session %s not found", sessionID)}
		},
		http.StatusBadRequest: func(msg string) error {
			return &apperror.BridgeSessionError{Msg: fmt.Sprintf("session %s already connected", sessionID)}
		},
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage delivers content to recipient through the given session.
// A bare phone number is normalized to a full JID.
func (c *Client) SendMessage(ctx context.Context, sessionID, recipient, content, quotedMessageID string) (*SendMessageResponse, error) {
	if !strings.Contains(recipient, "@") {
		recipient += models.JIDSuffix
	}
	body := sendMessageRequest{
		SessionID:       sessionID,
		RecipientJID:    recipient,
		Content:         content,
		QuotedMessageID: quotedMessageID,
	}
	var out SendMessageResponse
	err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/messages", body, &out, map[int]func(msg string) error{
		http.StatusNotFound: func(msg string) error {
			return &apperror.BridgeSessionError{Msg: fmt.Sprintf("session %s not found", sessionID)}
		},
		http.StatusBadRequest: func(msg string) error {
			return &apperror.BridgeSessionError{Msg: fmt.Sprintf("session %s not connected: %s", sessionID, msg)}
		},
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"session":    sessionID,
		"message_id": out.MessageID,
	}).Debug("[BRIDGE] Message sent")
	return &out, nil
}

// DeleteSession removes a session. Returns false (no error) when the bridge
// never had it.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	err := c.do(ctx, http.MethodDelete, "/sessions/"+sessionID, nil, nil, map[int]func(msg string) error{
		http.StatusNotFound: func(msg string) error { return errSessionAbsent },
	})
	if err == errSessionAbsent {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListSessions returns every session the bridge knows.
func (c *Client) ListSessions(ctx context.Context) ([]SessionStatus, error) {
	var out []SessionStatus
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

var errSessionAbsent = fmt.Errorf("session absent")

// do issues one bridge request. special maps status codes to typed errors;
// any unmapped non-2xx becomes a BridgeSessionError (4xx) or
// BridgeConnectionError (5xx).
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}, special map[int]func(msg string) error) error {
	if !c.open {
		return &apperror.BridgeConnectionError{Msg: "bridge client is not open"}
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperror.BridgeConnectionError{Msg: fmt.Sprintf("bridge request %s %s failed", method, path), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &apperror.BridgeConnectionError{Msg: "failed to decode bridge response", Err: err}
		}
		return nil
	}

	msg := readErrorMessage(resp.Body)
	if handler, ok := special[resp.StatusCode]; ok {
		return handler(msg)
	}
	if resp.StatusCode >= 500 {
		return &apperror.BridgeConnectionError{Msg: fmt.Sprintf("bridge returned %d on %s %s: %s", resp.StatusCode, method, path, msg)}
	}
	return &apperror.BridgeSessionError{Msg: fmt.Sprintf("bridge returned %d on %s %s: %s", resp.StatusCode, method, path, msg)}
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var parsed errorResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.message() != "" {
		return parsed.message()
	}
	return strings.TrimSpace(string(raw))
}
