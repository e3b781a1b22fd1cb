package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/newlearn-go-api/internal/models"
)

// DiscussionRepository persists lecture discussions and their comments.
type DiscussionRepository interface {
	ListByLecture(ctx context.Context, lectureID string) ([]models.Discussion, error)
	GetDiscussion(ctx context.Context, id uint) (models.Discussion, error)
	CreateDiscussion(ctx context.Context, discussion *models.Discussion) error
	UpdateTopic(ctx context.Context, id uint, topic string) error
	DeleteDiscussion(ctx context.Context, discussion models.Discussion, actorID string) error
	GetComment(ctx context.Context, id uint) (models.Comment, error)
	ListComments(ctx context.Context, discussionID uint) ([]models.Comment, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	UpdateComment(ctx context.Context, id uint, content string) error
	DeleteComment(ctx context.Context, comment models.Comment, actorID string) error
	FindDeletion(ctx context.Context, entityType string, id uint) (models.DeletionRecord, error)
}

type discussionRepository struct {
	db *gorm.DB
}

// NewDiscussionRepository constructs a GORM-backed repository.
func NewDiscussionRepository(db *gorm.DB) DiscussionRepository {
	return &discussionRepository{db: db}
}

func (r *discussionRepository) ListByLecture(ctx context.Context, lectureID string) ([]models.Discussion, error) {
	var discussions []models.Discussion
	if err := r.db.WithContext(ctx).
		Where("lecture_id = ?", lectureID).
		Order("created_at DESC, id DESC").
		Find(&discussions).Error; err != nil {
		return nil, err
	}

	return discussions, nil
}

func (r *discussionRepository) GetDiscussion(ctx context.Context, id uint) (models.Discussion, error) {
	var discussion models.Discussion
	if err := r.db.WithContext(ctx).First(&discussion, id).Error; err != nil {
		return models.Discussion{}, err
	}
	return discussion, nil
}

func (r *discussionRepository) CreateDiscussion(ctx context.Context, discussion *models.Discussion) error {
	return r.db.WithContext(ctx).Create(discussion).Error
}

func (r *discussionRepository) UpdateTopic(ctx context.Context, id uint, topic string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Discussion{}).
		Where("id = ?", id).
		Update("topic", topic)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteDiscussion removes the discussion and every comment attached to it
// and records the deletion.
func (r *discussionRepository) DeleteDiscussion(ctx context.Context, discussion models.Discussion, actorID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("discussion_id = ?", discussion.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Discussion{}, discussion.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Create(&models.DeletionRecord{
			EntityType:   models.DeletedDiscussion,
			EntityID:     discussion.ID,
			ActorID:      actorID,
			LectureID:    discussion.LectureID,
			DiscussionID: discussion.ID,
		}).Error
	})
}

func (r *discussionRepository) GetComment(ctx context.Context, id uint) (models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

func (r *discussionRepository) ListComments(ctx context.Context, discussionID uint) ([]models.Comment, error) {
	var comments []models.Comment
	if err := r.db.WithContext(ctx).
		Where("discussion_id = ?", discussionID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error; err != nil {
		return nil, err
	}

	return comments, nil
}

func (r *discussionRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}

		result := tx.Model(&models.Discussion{}).
			Where("id = ?", comment.DiscussionID).
			Updates(map[string]interface{}{
				"comment_count": gorm.Expr("comment_count + ?", 1),
				"updated_at":    comment.CreatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *discussionRepository) UpdateComment(ctx context.Context, id uint, content string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"content": content, "is_edited": true})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *discussionRepository) DeleteComment(ctx context.Context, comment models.Comment, actorID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Comment{}, comment.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Model(&models.Discussion{}).
			Where("id = ? AND comment_count > 0", comment.DiscussionID).
			UpdateColumn("comment_count", gorm.Expr("comment_count - ?", 1)).
			Error; err != nil {
			return err
		}

		return tx.Create(&models.DeletionRecord{
			EntityType:   models.DeletedComment,
			EntityID:     comment.ID,
			ActorID:      actorID,
			LectureID:    comment.LectureID,
			DiscussionID: comment.DiscussionID,
		}).Error
	})
}

func (r *discussionRepository) FindDeletion(ctx context.Context, entityType string, id uint) (models.DeletionRecord, error) {
	var record models.DeletionRecord
	if err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, id).
		First(&record).Error; err != nil {
		return models.DeletionRecord{}, err
	}
	return record, nil
}
