package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapa-ai/zapa/pkg/apperror"
)

func openClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c := NewClient(Config{
		BaseURL:    serverURL,
		WebhookURL: "https://app.example.com/api/v1/webhooks/whatsapp",
		Timeout:    5 * time.Second,
	})
	c.Open()
	t.Cleanup(c.Close)
	return c
}

func TestClient_RequiresOpen(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost:0"})

	_, err := c.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.IsBridgeConnection(err))
}

func TestClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", Version: "1.2.0"})
	}))
	defer srv.Close()

	c := openClient(t, srv.URL)
	h, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}

func TestClient_CreateSession_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "system", req["session_id"])
		assert.NotEmpty(t, req["webhook_url"])
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"detail": "session exists"})
	}))
	defer srv.Close()

	c := openClient(t, srv.URL)
	_, err := c.CreateSession(context.Background(), "system")
	require.Error(t, err)

	var se *apperror.BridgeSessionError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Msg, "already exists")
}

func TestClient_GetSessionStatus_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := openClient(t, srv.URL)
	_, err := c.GetSessionStatus(context.Background(), "missing")
	require.Error(t, err)

	var se *apperror.BridgeSessionError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Msg, "not found")
}

func TestClient_SendMessage_NormalizesRecipient(t *testing.T) {
	var gotRecipient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/system/messages", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotRecipient = req["recipient_jid"]
		json.NewEncoder(w).Encode(SendMessageResponse{
			MessageID: "msg_sent_123",
			Timestamp: time.Now().UTC(),
			Status:    "sent",
		})
	}))
	defer srv.Close()

	c := openClient(t, srv.URL)
	resp, err := c.SendMessage(context.Background(), "system", "+1234567890", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "msg_sent_123", resp.MessageID)
	assert.Equal(t, "+1234567890@s.whatsapp.net", gotRecipient)
}

func TestClient_SendMessage_NotConnected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "session not connected"})
	}))
	defer srv.Close()

	c := openClient(t, srv.URL)
	_, err := c.SendMessage(context.Background(), "system", "+1234567890", "hello", "")
	require.Error(t, err)

	var se *apperror.BridgeSessionError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Msg, "not connected")
}

func TestClient_SendMessage_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := openClient(t, srv.URL)
	_, err := c.SendMessage(context.Background(), "system", "+1234567890", "hello", "")
	require.Error(t, err)
	assert.True(t, apperror.IsBridgeConnection(err))
}

func TestClient_DeleteSession(t *testing.T) {
	found := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := openClient(t, srv.URL)

	ok, err := c.DeleteSession(context.Background(), "system")
	require.NoError(t, err)
	assert.True(t, ok)

	found = false
	ok, err = c.DeleteSession(context.Background(), "system")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ListSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]SessionStatus{
			{SessionID: "system", Status: "connected"},
			{SessionID: "user-1", Status: "qr_pending"},
		})
	}))
	defer srv.Close()

	c := openClient(t, srv.URL)
	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "connected", sessions[0].Status)
}

func TestClient_TransportFailure(t *testing.T) {
	c := openClient(t, "http://127.0.0.1:1")

	_, err := c.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.IsBridgeConnection(err))
}
