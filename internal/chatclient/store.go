package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
)

// ErrTransport marks failures where the request never produced an API response.
var ErrTransport = errors.New("transport failure")

// APIError is a non-2xx response from the messaging API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// MessageStore is the chat half of the messaging API.
type MessageStore interface {
	SendMessage(ctx context.Context, req dto.ChatSendRequest) (dto.ChatMessageResponse, error)
	EditMessage(ctx context.Context, id uint, req dto.ChatEditRequest) (dto.ChatMessageResponse, error)
	DeleteMessage(ctx context.Context, id uint) (dto.ChatMessageResponse, error)
	MarkRead(ctx context.Context, id uint) (dto.ChatMessageResponse, error)
	Conversation(ctx context.Context, courseID, counterpartID string) ([]dto.ChatMessageResponse, error)
	Inbox(ctx context.Context, courseID string) ([]dto.ChatMessageResponse, error)
}

// DiscussionStore is the lecture discussion half of the messaging API.
type DiscussionStore interface {
	Discussions(ctx context.Context, lectureID string) ([]dto.DiscussionResponse, error)
	CreateDiscussion(ctx context.Context, lectureID, topic string) (dto.DiscussionResponse, error)
	EditDiscussion(ctx context.Context, id uint, topic string) (dto.DiscussionResponse, error)
	DeleteDiscussion(ctx context.Context, id uint) (dto.DiscussionResponse, error)
	Comments(ctx context.Context, discussionID uint) ([]dto.CommentResponse, error)
	CreateComment(ctx context.Context, discussionID uint, content string) (dto.CommentResponse, error)
	EditComment(ctx context.Context, id uint, content string) (dto.CommentResponse, error)
	DeleteComment(ctx context.Context, id uint) (dto.CommentResponse, error)
}

// NotificationStore reads and acknowledges persisted notifications.
type NotificationStore interface {
	Notifications(ctx context.Context, limit int) ([]dto.NotificationResponse, error)
	MarkNotificationRead(ctx context.Context, id uint) (dto.NotificationResponse, error)
	MarkAllNotificationsRead(ctx context.Context) error
}

// Store is everything the reconciliation layer needs from the API.
type Store interface {
	MessageStore
	DiscussionStore
	NotificationStore
}
