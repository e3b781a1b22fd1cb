package dto

import (
	"time"

	"github.com/noah-isme/newlearn-go-api/internal/models"
)

// DeletedMessagePlaceholder is displayed in place of a tombstoned message body.
const DeletedMessagePlaceholder = "This message was deleted"

// ChatSendRequest is the payload used to persist a new chat message.
type ChatSendRequest struct {
	CourseID    string `json:"course_id" validate:"required,max=64"`
	RecipientID string `json:"recipient_id" validate:"required,max=64"`
	Content     string `json:"content" validate:"max=4000"`
	MediaURL    string `json:"media_url" validate:"omitempty,url,max=1024"`
	TempID      string `json:"temp_id" validate:"omitempty,max=64"`
}

// ChatEditRequest replaces the body (and optionally the media) of a message.
type ChatEditRequest struct {
	Content  string  `json:"content" validate:"max=4000"`
	MediaURL *string `json:"media_url" validate:"omitempty,max=1024"`
}

// ChatConversationQuery selects the history between the caller and a counterpart.
// Before and Limit are optional; when Limit is zero the whole history is returned.
type ChatConversationQuery struct {
	CourseID      string `query:"course_id" validate:"required,max=64"`
	CounterpartID string `query:"counterpart_id" validate:"required,max=64"`
	Before        uint   `query:"before"`
	Limit         int    `query:"limit" validate:"omitempty,min=1,max=200"`
}

// ChatMessageResponse is the serialized representation of a chat message.
type ChatMessageResponse struct {
	ID          uint      `json:"id"`
	TempID      string    `json:"temp_id,omitempty"`
	CourseID    string    `json:"course_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	MediaURL    string    `json:"media_url,omitempty"`
	IsRead      bool      `json:"is_read"`
	IsEdited    bool      `json:"is_edited"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewChatMessageResponse converts a model into a DTO.
func NewChatMessageResponse(message models.Message) ChatMessageResponse {
	return ChatMessageResponse{
		ID:          message.ID,
		CourseID:    message.CourseID,
		SenderID:    message.SenderID,
		RecipientID: message.RecipientID,
		Content:     message.Content,
		MediaURL:    message.MediaURL,
		TempID:      message.TempID,
		IsRead:      message.IsRead,
		IsEdited:    message.IsEdited,
		IsDeleted:   message.IsDeleted,
		CreatedAt:   message.CreatedAt,
		UpdatedAt:   message.UpdatedAt,
	}
}

// NewChatMessageResponseSlice converts a slice of models into DTOs.
func NewChatMessageResponseSlice(messages []models.Message) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewChatMessageResponse(message))
	}
	return out
}

// Involves reports whether the user is the sender or the recipient.
func (m ChatMessageResponse) Involves(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// Counterpart returns the other participant from the perspective of userID.
func (m ChatMessageResponse) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// DisplayText is the text rendered for the message body.
func (m ChatMessageResponse) DisplayText() string {
	switch {
	case m.IsDeleted:
		return DeletedMessagePlaceholder
	case m.Content != "":
		return m.Content
	case m.MediaURL != "":
		return "Attachment"
	default:
		return ""
	}
}

// DiscussionCreateRequest is the payload to open a discussion on a lecture.
type DiscussionCreateRequest struct {
	Topic string `json:"topic" validate:"required,min=1,max=2000"`
}

// DiscussionUpdateRequest replaces the topic of a discussion.
type DiscussionUpdateRequest struct {
	Topic string `json:"topic" validate:"required,min=1,max=2000"`
}

// DiscussionResponse describes a discussion returned by the API and broadcast to rooms.
type DiscussionResponse struct {
	ID           uint              `json:"id"`
	LectureID    string            `json:"lecture_id"`
	CreatorID    string            `json:"creator_id"`
	Topic        string            `json:"topic"`
	CommentCount int               `json:"comment_count"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewDiscussionResponse converts a model into a DTO.
func NewDiscussionResponse(model models.Discussion) DiscussionResponse {
	response := DiscussionResponse{
		ID:           model.ID,
		LectureID:    model.LectureID,
		CreatorID:    model.CreatorID,
		Topic:        model.Topic,
		CommentCount: model.CommentCount,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
	if model.Metadata != nil {
		response.Metadata = make(map[string]string)
		for key, value := range model.Metadata {
			if str, ok := value.(string); ok {
				response.Metadata[key] = str
			}
		}
	}
	return response
}

// NewDiscussionResponseSlice converts discussions to DTOs.
func NewDiscussionResponseSlice(items []models.Discussion) []DiscussionResponse {
	out := make([]DiscussionResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewDiscussionResponse(item))
	}
	return out
}

// CommentCreateRequest posts a comment on a discussion.
type CommentCreateRequest struct {
	Content string `json:"content" validate:"required,min=1,max=5000"`
}

// CommentUpdateRequest replaces the content of a comment.
type CommentUpdateRequest struct {
	Content string `json:"content" validate:"required,min=1,max=5000"`
}

// CommentResponse describes a serialized comment.
type CommentResponse struct {
	ID           uint      `json:"id"`
	DiscussionID uint      `json:"discussion_id"`
	LectureID    string    `json:"lecture_id"`
	AuthorID     string    `json:"author_id"`
	Content      string    `json:"content"`
	IsEdited     bool      `json:"is_edited"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewCommentResponse converts a comment model to DTO.
func NewCommentResponse(model models.Comment) CommentResponse {
	return CommentResponse{
		ID:           model.ID,
		DiscussionID: model.DiscussionID,
		LectureID:    model.LectureID,
		AuthorID:     model.AuthorID,
		Content:      model.Content,
		IsEdited:     model.IsEdited,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

// NewCommentResponseSlice converts comments to DTOs.
func NewCommentResponseSlice(items []models.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewCommentResponse(item))
	}
	return out
}

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID    string `json:"user_id" validate:"required,max=64"`
	Type      string `json:"type" validate:"required,max=64"`
	Title     string `json:"title" validate:"required,min=1,max=255"`
	Body      string `json:"body" validate:"max=2000"`
	RelatedID string `json:"related_id" validate:"omitempty,max=64"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint      `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	RelatedID string    `json:"related_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Title:     model.Title,
		Body:      model.Body,
		RelatedID: model.RelatedID,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// UnreadCountResponse reports the number of unread notifications.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// UploadResponse is returned once chat media has been stored.
type UploadResponse struct {
	URL       string `json:"url"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}
