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

func TestDiscussionHandlerLifecycle(t *testing.T) {
	stack := newTestStack(t, nil)

	resp, body := stack.do(t, http.MethodPost, "/api/v2/lectures/L1/discussions", "s1", "student", dto.DiscussionCreateRequest{Topic: "Goroutines"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var discussion dto.DiscussionResponse
	require.NoError(t, json.Unmarshal(body.Data, &discussion))
	require.Equal(t, "L1", discussion.LectureID)

	discussionPath := "/api/v2/discussions/" + itoa(discussion.ID)

	resp, body = stack.do(t, http.MethodPost, discussionPath+"/comments", "s2", "student", dto.CommentCreateRequest{Content: "Use a WaitGroup"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var comment dto.CommentResponse
	require.NoError(t, json.Unmarshal(body.Data, &comment))

	resp, body = stack.do(t, http.MethodGet, "/api/v2/lectures/L1/discussions", "s2", "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed []dto.DiscussionResponse
	require.NoError(t, json.Unmarshal(body.Data, &listed))
	require.Len(t, listed, 1)
	require.Equal(t, 1, listed[0].CommentCount)

	resp, _ = stack.do(t, http.MethodPut, discussionPath, "s2", "student", dto.DiscussionUpdateRequest{Topic: "Mine now"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = stack.do(t, http.MethodPut, "/api/v2/comments/"+itoa(comment.ID), "s2", "student", dto.CommentUpdateRequest{Content: "Use errgroup"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = stack.do(t, http.MethodGet, discussionPath+"/comments", "s1", "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var comments []dto.CommentResponse
	require.NoError(t, json.Unmarshal(body.Data, &comments))
	require.Len(t, comments, 1)
	require.True(t, comments[0].IsEdited)

	resp, _ = stack.do(t, http.MethodDelete, discussionPath, "s2", "student", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = stack.do(t, http.MethodDelete, discussionPath, "a1", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "admins moderate any discussion")

	resp, _ = stack.do(t, http.MethodGet, discussionPath+"/comments", "s1", "student", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDiscussionHandlerValidation(t *testing.T) {
	stack := newTestStack(t, nil)

	resp, body := stack.do(t, http.MethodPost, "/api/v2/lectures/L1/discussions", "s1", "student", dto.DiscussionCreateRequest{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation failed", body.Message)

	resp, _ = stack.do(t, http.MethodPost, "/api/v2/discussions/0/comments", "s1", "student", dto.CommentCreateRequest{Content: "hi"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = stack.do(t, http.MethodPost, "/api/v2/discussions/42/comments", "s1", "student", dto.CommentCreateRequest{Content: "hi"})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = stack.do(t, http.MethodDelete, "/api/v2/comments/42", "s1", "student", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDiscussionHandlerCommentNotifiesCreator(t *testing.T) {
	stack := newTestStack(t, nil)
	ctx := context.Background()

	discussion, err := stack.discussions.Create(ctx, "s1", "student", "L1", dto.DiscussionCreateRequest{Topic: "Channels"})
	require.NoError(t, err)

	resp, _ := stack.do(t, http.MethodPost, "/api/v2/discussions/"+itoa(discussion.ID)+"/comments", "s2", "student", dto.CommentCreateRequest{Content: "Buffered?"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	count, err := stack.notifications.UnreadCount(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
