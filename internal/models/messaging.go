package models

import (
	"time"

	"gorm.io/datatypes"
)

// Message is a direct chat message between two users within a course.
type Message struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CourseID    string     `gorm:"size:64;not null;index:idx_messages_conversation,priority:1" json:"course_id"`
	SenderID    string     `gorm:"size:64;not null;index:idx_messages_conversation,priority:2;index" json:"sender_id"`
	RecipientID string     `gorm:"size:64;not null;index:idx_messages_conversation,priority:3;index" json:"recipient_id"`
	Content     string     `gorm:"type:text" json:"content"`
	MediaURL    string     `gorm:"size:1024" json:"media_url"`
	TempID      string     `gorm:"size:64" json:"temp_id"`
	IsRead      bool       `gorm:"not null;default:false" json:"is_read"`
	IsEdited    bool       `gorm:"not null;default:false" json:"is_edited"`
	IsDeleted   bool       `gorm:"not null;default:false" json:"is_deleted"`
	ReadAt      *time.Time `json:"read_at"`
	RemovedAt   *time.Time `json:"removed_at"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Discussion is a lecture-scoped discussion topic.
type Discussion struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	LectureID    string            `gorm:"size:64;not null;index" json:"lecture_id"`
	CreatorID    string            `gorm:"size:64;not null;index" json:"creator_id"`
	Topic        string            `gorm:"type:text;not null" json:"topic"`
	CommentCount int               `gorm:"not null;default:0" json:"comment_count"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Comments     []Comment         `json:"comments,omitempty"`
}

// Comment is a reply posted inside a discussion.
type Comment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DiscussionID uint      `gorm:"not null;index" json:"discussion_id"`
	LectureID    string    `gorm:"size:64;index" json:"lecture_id"`
	AuthorID     string    `gorm:"size:64;not null;index" json:"author_id"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	IsEdited     bool      `gorm:"not null;default:false" json:"is_edited"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Deletion kinds recorded in DeletionRecord.EntityType.
const (
	DeletedDiscussion = "discussion"
	DeletedComment    = "comment"
)

// DeletionRecord remembers who removed a discussion or comment and where it
// lived, since the row itself is gone.
type DeletionRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EntityType   string    `gorm:"size:16;not null;uniqueIndex:idx_deletion_entity,priority:1" json:"entity_type"`
	EntityID     uint      `gorm:"not null;uniqueIndex:idx_deletion_entity,priority:2" json:"entity_id"`
	ActorID      string    `gorm:"size:64;not null" json:"actor_id"`
	LectureID    string    `gorm:"size:64" json:"lecture_id"`
	DiscussionID uint      `json:"discussion_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Notification represents a persisted notification targeted to a specific user.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	Type      string    `gorm:"size:64;not null" json:"type"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	RelatedID string    `gorm:"size:64" json:"related_id"`
	Read      bool      `gorm:"not null;default:false;index" json:"read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UploadRecord stores metadata about uploaded chat media.
type UploadRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;index" json:"user_id"`
	FileName  string    `gorm:"size:255;not null" json:"file_name"`
	URL       string    `gorm:"size:1024;not null" json:"url"`
	MimeType  string    `gorm:"size:128;not null" json:"mime_type"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	Checksum  string    `gorm:"size:128;index" json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}
