package realtime

import (
	"fmt"
	"strings"
)

// ChatRoom is joined by a user taking part in conversations within a course.
func ChatRoom(courseID, userID string) string {
	return fmt.Sprintf("chat:%s:%s", strings.TrimSpace(courseID), strings.TrimSpace(userID))
}

// InboxRoom receives every chat event addressed to or sent by a user, across courses.
func InboxRoom(userID string) string {
	return "inbox:" + strings.TrimSpace(userID)
}

// DiscussionRoom receives comment activity for a single discussion.
func DiscussionRoom(discussionID uint) string {
	return fmt.Sprintf("discussion:%d", discussionID)
}

// LectureRoom receives discussion activity for a lecture.
func LectureRoom(lectureID string) string {
	return "lecture:" + strings.TrimSpace(lectureID)
}

// UserRoom is joined automatically on connect and carries notifications.
func UserRoom(userID string) string {
	return "user:" + strings.TrimSpace(userID)
}

// MessageRooms lists the rooms a chat event fans out to.
func MessageRooms(courseID, senderID, recipientID string) []string {
	return []string{
		ChatRoom(courseID, senderID),
		ChatRoom(courseID, recipientID),
		InboxRoom(senderID),
		InboxRoom(recipientID),
	}
}

// DiscussionRooms lists the rooms an edit or delete of a discussion fans out to.
func DiscussionRooms(lectureID string, discussionID uint) []string {
	return []string{LectureRoom(lectureID), DiscussionRoom(discussionID)}
}

// CommentRooms lists the rooms a comment event fans out to.
func CommentRooms(lectureID string, discussionID uint) []string {
	rooms := []string{DiscussionRoom(discussionID)}
	if strings.TrimSpace(lectureID) != "" {
		rooms = append(rooms, LectureRoom(lectureID))
	}
	return rooms
}
