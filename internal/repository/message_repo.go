package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/newlearn-go-api/internal/models"
)

// ConversationFilter selects the messages exchanged by two users inside a course.
type ConversationFilter struct {
	CourseID      string
	UserID        string
	CounterpartID string
	Before        uint
	Limit         int
}

// MessageRepository persists direct chat messages.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (models.Message, error)
	UpdateContent(ctx context.Context, id uint, content string, mediaURL *string) (bool, error)
	MarkRead(ctx context.Context, id uint, at time.Time) (bool, error)
	Tombstone(ctx context.Context, id uint, at time.Time) (bool, error)
	ListConversation(ctx context.Context, filter ConversationFilter) ([]models.Message, error)
	ListForUser(ctx context.Context, userID, courseID string) ([]models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// UpdateContent rewrites the body of a live message. It reports false when the
// message is missing or already tombstoned.
func (r *messageRepository) UpdateContent(ctx context.Context, id uint, content string, mediaURL *string) (bool, error) {
	updates := map[string]interface{}{
		"content":    content,
		"is_edited":  true,
		"updated_at": time.Now().UTC(),
	}
	if mediaURL != nil {
		updates["media_url"] = *mediaURL
	}

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkRead flips the read flag once. A false result means the message was already read.
func (r *messageRepository) MarkRead(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]interface{}{
			"is_read":    true,
			"read_at":    at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Tombstone soft-deletes a message, clearing its body and media. A false result
// means the message was already tombstoned.
func (r *messageRepository) Tombstone(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"content":    "",
			"media_url":  "",
			"removed_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *messageRepository) ListConversation(ctx context.Context, filter ConversationFilter) ([]models.Message, error) {
	query := r.db.WithContext(ctx).
		Where("course_id = ?", filter.CourseID).
		Where("((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))",
			filter.UserID, filter.CounterpartID, filter.CounterpartID, filter.UserID)

	if filter.Before > 0 {
		query = query.Where("id < ?", filter.Before)
	}

	var messages []models.Message
	if filter.Limit <= 0 {
		if err := query.Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
			return nil, err
		}
		return messages, nil
	}

	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if err := query.Order("created_at DESC, id DESC").Limit(filter.Limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) ListForUser(ctx context.Context, userID, courseID string) ([]models.Message, error) {
	query := r.db.WithContext(ctx).Where("(sender_id = ? OR recipient_id = ?)", userID, userID)
	if courseID != "" {
		query = query.Where("course_id = ?", courseID)
	}

	var messages []models.Message
	if err := query.Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}
