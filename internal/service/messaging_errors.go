package service

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrMessageNotFound indicates the referenced chat message does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageForbidden indicates the caller is not the sender or recipient required for the operation.
	ErrMessageForbidden = errors.New("insufficient permissions for message operation")
	// ErrEmptyMessage indicates neither content nor media was supplied.
	ErrEmptyMessage = errors.New("message requires content or media")
	// ErrMessageDeleted indicates an edit was attempted on a tombstoned message.
	// It is reported as not found.
	ErrMessageDeleted = errors.New("message has been deleted")
	// ErrSelfMessage indicates the sender addressed the message to themselves.
	ErrSelfMessage = errors.New("cannot send a message to yourself")

	// ErrDiscussionNotFound indicates the referenced discussion does not exist.
	ErrDiscussionNotFound = errors.New("discussion not found")
	// ErrCommentNotFound indicates the referenced comment does not exist.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrDiscussionForbidden indicates the user attempted an operation they are not allowed to perform.
	ErrDiscussionForbidden = errors.New("insufficient permissions for discussion operation")
	// ErrEmptyContent indicates text was empty once sanitized.
	ErrEmptyContent = errors.New("content empty after sanitization")

	// ErrNotificationNotFound indicates the notification does not exist for the user.
	ErrNotificationNotFound = errors.New("notification not found")
)

// notFound maps gorm's record-not-found onto a domain sentinel.
func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
