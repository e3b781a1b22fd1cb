package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
)

const defaultRequestTimeout = 10 * time.Second

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// RESTClient implements Store against the /api/v2 HTTP surface.
type RESTClient struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *fiber.Client
}

var _ Store = (*RESTClient)(nil)

// NewRESTClient builds a client for baseURL (scheme and host, optionally with
// a path prefix ending before /api/v2).
func NewRESTClient(baseURL, token string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v2",
		token:   token,
		timeout: timeout,
		client:  &fiber.Client{},
	}
}

func (r *RESTClient) agent(method, path string) *fiber.Agent {
	target := r.baseURL + path
	switch method {
	case http.MethodPost:
		return r.client.Post(target)
	case http.MethodPut:
		return r.client.Put(target)
	case http.MethodPatch:
		return r.client.Patch(target)
	case http.MethodDelete:
		return r.client.Delete(target)
	default:
		return r.client.Get(target)
	}
}

func (r *RESTClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	agent := r.agent(method, path)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+r.token)
	agent.Timeout(timeout)
	if body != nil {
		agent.JSON(body)
	}

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrTransport, errors.Join(errs...))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if status >= http.StatusBadRequest {
			return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if status >= http.StatusBadRequest || !envelope.Success {
		return &APIError{Status: status, Message: envelope.Message}
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func (r *RESTClient) SendMessage(ctx context.Context, req dto.ChatSendRequest) (dto.ChatMessageResponse, error) {
	var out dto.ChatMessageResponse
	err := r.do(ctx, http.MethodPost, "/chat/messages", req, &out)
	return out, err
}

func (r *RESTClient) EditMessage(ctx context.Context, id uint, req dto.ChatEditRequest) (dto.ChatMessageResponse, error) {
	var out dto.ChatMessageResponse
	err := r.do(ctx, http.MethodPatch, fmt.Sprintf("/chat/messages/%d", id), req, &out)
	return out, err
}

func (r *RESTClient) DeleteMessage(ctx context.Context, id uint) (dto.ChatMessageResponse, error) {
	var out dto.ChatMessageResponse
	err := r.do(ctx, http.MethodDelete, fmt.Sprintf("/chat/messages/%d", id), nil, &out)
	return out, err
}

func (r *RESTClient) MarkRead(ctx context.Context, id uint) (dto.ChatMessageResponse, error) {
	var out dto.ChatMessageResponse
	err := r.do(ctx, http.MethodPatch, fmt.Sprintf("/chat/messages/%d/read", id), nil, &out)
	return out, err
}

func (r *RESTClient) Conversation(ctx context.Context, courseID, counterpartID string) ([]dto.ChatMessageResponse, error) {
	query := url.Values{}
	query.Set("course_id", courseID)
	query.Set("counterpart_id", counterpartID)

	var out []dto.ChatMessageResponse
	err := r.do(ctx, http.MethodGet, "/chat/messages?"+query.Encode(), nil, &out)
	return out, err
}

func (r *RESTClient) Inbox(ctx context.Context, courseID string) ([]dto.ChatMessageResponse, error) {
	path := "/chat/inbox"
	if courseID != "" {
		path += "?course_id=" + url.QueryEscape(courseID)
	}

	var out []dto.ChatMessageResponse
	err := r.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (r *RESTClient) Discussions(ctx context.Context, lectureID string) ([]dto.DiscussionResponse, error) {
	var out []dto.DiscussionResponse
	err := r.do(ctx, http.MethodGet, "/lectures/"+url.PathEscape(lectureID)+"/discussions", nil, &out)
	return out, err
}

func (r *RESTClient) CreateDiscussion(ctx context.Context, lectureID, topic string) (dto.DiscussionResponse, error) {
	var out dto.DiscussionResponse
	err := r.do(ctx, http.MethodPost, "/lectures/"+url.PathEscape(lectureID)+"/discussions", dto.DiscussionCreateRequest{Topic: topic}, &out)
	return out, err
}

func (r *RESTClient) EditDiscussion(ctx context.Context, id uint, topic string) (dto.DiscussionResponse, error) {
	var out dto.DiscussionResponse
	err := r.do(ctx, http.MethodPut, fmt.Sprintf("/discussions/%d", id), dto.DiscussionUpdateRequest{Topic: topic}, &out)
	return out, err
}

func (r *RESTClient) DeleteDiscussion(ctx context.Context, id uint) (dto.DiscussionResponse, error) {
	var out dto.DiscussionResponse
	err := r.do(ctx, http.MethodDelete, fmt.Sprintf("/discussions/%d", id), nil, &out)
	return out, err
}

func (r *RESTClient) Comments(ctx context.Context, discussionID uint) ([]dto.CommentResponse, error) {
	var out []dto.CommentResponse
	err := r.do(ctx, http.MethodGet, fmt.Sprintf("/discussions/%d/comments", discussionID), nil, &out)
	return out, err
}

func (r *RESTClient) CreateComment(ctx context.Context, discussionID uint, content string) (dto.CommentResponse, error) {
	var out dto.CommentResponse
	err := r.do(ctx, http.MethodPost, fmt.Sprintf("/discussions/%d/comments", discussionID), dto.CommentCreateRequest{Content: content}, &out)
	return out, err
}

func (r *RESTClient) EditComment(ctx context.Context, id uint, content string) (dto.CommentResponse, error) {
	var out dto.CommentResponse
	err := r.do(ctx, http.MethodPut, fmt.Sprintf("/comments/%d", id), dto.CommentUpdateRequest{Content: content}, &out)
	return out, err
}

func (r *RESTClient) DeleteComment(ctx context.Context, id uint) (dto.CommentResponse, error) {
	var out dto.CommentResponse
	err := r.do(ctx, http.MethodDelete, fmt.Sprintf("/comments/%d", id), nil, &out)
	return out, err
}

func (r *RESTClient) Notifications(ctx context.Context, limit int) ([]dto.NotificationResponse, error) {
	path := "/notifications"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var out []dto.NotificationResponse
	err := r.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (r *RESTClient) MarkNotificationRead(ctx context.Context, id uint) (dto.NotificationResponse, error) {
	var out dto.NotificationResponse
	err := r.do(ctx, http.MethodPatch, fmt.Sprintf("/notifications/%d/read", id), nil, &out)
	return out, err
}

func (r *RESTClient) MarkAllNotificationsRead(ctx context.Context) error {
	return r.do(ctx, http.MethodPatch, "/notifications/read-all", nil, nil)
}
