package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/newlearn-go-api/internal/database"
	"github.com/noah-isme/newlearn-go-api/internal/handler"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
	"github.com/noah-isme/newlearn-go-api/internal/repository"
	"github.com/noah-isme/newlearn-go-api/internal/service"
)

const (
	testUserHeader = "X-Test-User"
	testRoleHeader = "X-Test-Role"
)

type testStack struct {
	app           *fiber.App
	hub           *realtime.Hub
	messages      service.MessageService
	discussions   service.DiscussionService
	notifications service.NotificationService
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

func newTestStack(t *testing.T, uploads service.UploadService) *testStack {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	hub := realtime.NewHub(logger)
	broadcaster := realtime.NewBroadcaster(hub, nil, nil, "test:realtime", logger)

	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), broadcaster, hub, validate, logger)
	messages := service.NewMessageService(repository.NewMessageRepository(db), broadcaster, validate, logger)
	discussions := service.NewDiscussionService(repository.NewDiscussionRepository(db), broadcaster, notifications, validate, logger)

	app := fiber.New()
	api := app.Group("/api/v2", func(c *fiber.Ctx) error {
		if user := c.Get(testUserHeader); user != "" {
			c.Locals("user_id", user)
			c.Locals("user_role", c.Get(testRoleHeader))
		}
		return c.Next()
	})
	handler.NewChatHandler(messages, uploads, nil, logger).Register(api.Group("/chat"))
	handler.NewDiscussionHandler(discussions, logger).Register(api)
	handler.NewNotificationHandler(notifications, logger, time.Second).Register(api.Group("/notifications"))

	return &testStack{app: app, hub: hub, messages: messages, discussions: discussions, notifications: notifications}
}

func (s *testStack) do(t *testing.T, method, path, user, role string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(testUserHeader, user)
		req.Header.Set(testRoleHeader, role)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)

	var out envelope
	decodeResponse(t, resp, &out)
	return resp, out
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
