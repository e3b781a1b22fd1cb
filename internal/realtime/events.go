package realtime

import (
	"encoding/json"
	"errors"
	"strings"
)

// Chat events.
const (
	EventNewMessage     = "newMessage"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
	EventMessageRead    = "messageRead"
)

// Discussion events.
const (
	EventNewDiscussion    = "newDiscussion"
	EventEditDiscussion   = "editDiscussion"
	EventDeleteDiscussion = "deleteDiscussion"
	EventNewComment       = "newComment"
	EventEditComment      = "editComment"
	EventDeleteComment    = "deleteComment"
)

// EventNewNotification is pushed to a user room when a notification is persisted.
const EventNewNotification = "newNotification"

// Room membership and control events.
const (
	EventJoinChatRoom        = "joinChatRoom"
	EventJoinInstructorRoom  = "joinInstructorRoom"
	EventJoinDiscussionRoom  = "joinDiscussionRoom"
	EventJoinLectureRoom     = "joinLectureRoom"
	EventLeaveChatRoom       = "leaveChatRoom"
	EventLeaveInstructorRoom = "leaveInstructorRoom"
	EventLeaveDiscussionRoom = "leaveDiscussionRoom"
	EventLeaveLectureRoom    = "leaveLectureRoom"
	EventJoined              = "joined"
	EventLeft                = "left"
	EventError               = "error"
	EventPing                = "ping"
	EventPong                = "pong"
)

var (
	// ErrEntityNotFound is returned by a Resolver when the relayed entity is not in the store.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrForbidden is returned when the connection identity may not perform the request.
	ErrForbidden = errors.New("forbidden")
	// ErrUnsupportedEvent is returned for event names the gateway does not accept from clients.
	ErrUnsupportedEvent = errors.New("unsupported event")
	// ErrInvalidPayload is returned when an event body cannot be decoded.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNotCommitted is returned when the store does not reflect the relayed change yet.
	ErrNotCommitted = errors.New("change not committed")
)

// Envelope is the frame exchanged over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload into an envelope for the named event.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return Envelope{Event: event, Data: raw}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Encode renders the envelope as a websocket text frame.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the envelope data into target.
func (e Envelope) Decode(target interface{}) error {
	if len(e.Data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

// IsRelayable reports whether clients may emit the event for fan-out.
func IsRelayable(event string) bool {
	switch event {
	case EventNewMessage, EventMessageEdited, EventMessageDeleted, EventMessageRead,
		EventNewDiscussion, EventEditDiscussion, EventDeleteDiscussion,
		EventNewComment, EventEditComment, EventDeleteComment:
		return true
	default:
		return false
	}
}

// JoinChatRoomPayload is sent when a user enters a course conversation.
type JoinChatRoomPayload struct {
	CourseID string `json:"course_id"`
	UserID   string `json:"user_id"`
}

// JoinInstructorRoomPayload is sent when an instructor opens their inbox.
type JoinInstructorRoomPayload struct {
	InstructorID string `json:"instructor_id"`
}

// JoinDiscussionRoomPayload is sent when a discussion thread is expanded.
type JoinDiscussionRoomPayload struct {
	DiscussionID uint `json:"discussion_id"`
}

// JoinLectureRoomPayload is sent when a lecture page is opened.
type JoinLectureRoomPayload struct {
	LectureID string `json:"lecture_id"`
}

// DeletedEntity is the payload relayed for a hard-deleted discussion or comment.
type DeletedEntity struct {
	ID           uint   `json:"id"`
	DiscussionID uint   `json:"discussion_id,omitempty"`
	LectureID    string `json:"lecture_id,omitempty"`
}

// RoomAck acknowledges a join or leave request.
type RoomAck struct {
	Room string `json:"room"`
}

// ErrorPayload describes a rejected client frame.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return strings.EqualFold(i.Role, "admin")
}
