package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
)

func TestNotificationHandlerReadLifecycle(t *testing.T) {
	stack := newTestStack(t, nil)
	ctx := context.Background()

	first, err := stack.notifications.Publish(ctx, dto.NotificationCreateRequest{UserID: "s1", Type: "chat", Title: "New message"})
	require.NoError(t, err)
	_, err = stack.notifications.Publish(ctx, dto.NotificationCreateRequest{UserID: "s1", Type: "discussion_comment", Title: "New comment"})
	require.NoError(t, err)

	resp, body := stack.do(t, http.MethodGet, "/api/v2/notifications/unread-count", "s1", "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var count dto.UnreadCountResponse
	require.NoError(t, json.Unmarshal(body.Data, &count))
	require.EqualValues(t, 2, count.Count)

	resp, _ = stack.do(t, http.MethodPatch, "/api/v2/notifications/"+itoa(first.ID)+"/read", "s2", "student", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode, "another user's notification is invisible")

	resp, body = stack.do(t, http.MethodPatch, "/api/v2/notifications/"+itoa(first.ID)+"/read", "s1", "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var read dto.NotificationResponse
	require.NoError(t, json.Unmarshal(body.Data, &read))
	require.True(t, read.Read)

	resp, body = stack.do(t, http.MethodPatch, "/api/v2/notifications/read-all", "s1", "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"updated":1}`, string(body.Data))

	resp, body = stack.do(t, http.MethodGet, "/api/v2/notifications?limit=10", "s1", "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed []dto.NotificationResponse
	require.NoError(t, json.Unmarshal(body.Data, &listed))
	require.Len(t, listed, 2)
	for _, item := range listed {
		require.True(t, item.Read)
	}
}

func TestNotificationHandlerRequiresUser(t *testing.T) {
	stack := newTestStack(t, nil)

	for _, path := range []string{"/api/v2/notifications", "/api/v2/notifications/unread-count", "/api/v2/notifications/stream"} {
		resp, _ := stack.do(t, http.MethodGet, path, "", "", nil)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
	}

	resp, _ := stack.do(t, http.MethodGet, "/api/v2/notifications?limit=ten", "s1", "student", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNotificationHandlerPublishRequiresStaff(t *testing.T) {
	stack := newTestStack(t, nil)
	request := dto.NotificationCreateRequest{UserID: "s1", Title: "Quiz moved to Friday"}

	resp, _ := stack.do(t, http.MethodPost, "/api/v2/notifications", "s2", "student", request)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := stack.do(t, http.MethodPost, "/api/v2/notifications", "i1", "instructor", request)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created dto.NotificationResponse
	require.NoError(t, json.Unmarshal(body.Data, &created))
	require.Equal(t, "announcement", created.Type)
	require.Equal(t, "s1", created.UserID)

	resp, _ = stack.do(t, http.MethodPost, "/api/v2/notifications", "i1", "instructor", dto.NotificationCreateRequest{Title: "no recipient"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
