package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapa-ai/zapa/archive"
	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/utils"
	"github.com/zapa-ai/zapa/repository"
)

func archiveApp(t *testing.T) (*fiber.App, *models.User, *archive.Service) {
	t.Helper()
	db := testDB(t)
	svc := archive.NewService(db, testSystemNumber)

	user, err := repository.NewUserRepository(db).FindOrCreateByPhone(context.Background(), "+1234567890")
	require.NoError(t, err)

	app := fiber.New()
	InitRestArchive(app, svc)
	return app, user, svc
}

func TestArchive_RecentMessages(t *testing.T) {
	app, user, svc := archiveApp(t)

	text := "hello there"
	_, err := svc.StoreMessage(context.Background(), user.ID, archive.MessageCreate{
		Direction: models.DirectionIncoming,
		Content:   &text,
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/users/1/messages/recent", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var body utils.ResponseData
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "SUCCESS", body.Code)

	records, ok := body.Results.([]interface{})
	require.True(t, ok)
	assert.Len(t, records, 1)
}

func TestArchive_BadUserID(t *testing.T) {
	app, _, _ := archiveApp(t)

	req := httptest.NewRequest("GET", "/api/v1/users/abc/messages/recent", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestArchive_ExportCSV(t *testing.T) {
	app, user, svc := archiveApp(t)

	text := "export me"
	_, err := svc.StoreMessage(context.Background(), user.ID, archive.MessageCreate{
		Direction: models.DirectionIncoming,
		Content:   &text,
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/users/1/messages/export?format=csv", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "export me")
}

func TestArchive_ExportUnknownFormat(t *testing.T) {
	app, _, _ := archiveApp(t)

	req := httptest.NewRequest("GET", "/api/v1/users/1/messages/export?format=xml", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestArchive_DateRangeValidation(t *testing.T) {
	app, _, _ := archiveApp(t)

	req := httptest.NewRequest("GET", "/api/v1/users/1/messages/range?from=notadate&to=2026-01-01T00:00:00Z", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
