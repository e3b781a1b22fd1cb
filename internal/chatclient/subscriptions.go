package chatclient

import (
	"sort"
	"sync"

	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

// Subscription describes how to enter and leave one room.
type Subscription struct {
	Room  string
	join  string
	leave string
	data  interface{}
}

// ChatSubscription follows a user's conversations within a course.
func ChatSubscription(courseID, userID string) Subscription {
	return Subscription{
		Room:  realtime.ChatRoom(courseID, userID),
		join:  realtime.EventJoinChatRoom,
		leave: realtime.EventLeaveChatRoom,
		data:  realtime.JoinChatRoomPayload{CourseID: courseID, UserID: userID},
	}
}

// InboxSubscription follows every conversation of an instructor.
func InboxSubscription(instructorID string) Subscription {
	return Subscription{
		Room:  realtime.InboxRoom(instructorID),
		join:  realtime.EventJoinInstructorRoom,
		leave: realtime.EventLeaveInstructorRoom,
		data:  realtime.JoinInstructorRoomPayload{InstructorID: instructorID},
	}
}

// DiscussionSubscription follows the comments of one discussion.
func DiscussionSubscription(discussionID uint) Subscription {
	return Subscription{
		Room:  realtime.DiscussionRoom(discussionID),
		join:  realtime.EventJoinDiscussionRoom,
		leave: realtime.EventLeaveDiscussionRoom,
		data:  realtime.JoinDiscussionRoomPayload{DiscussionID: discussionID},
	}
}

// LectureSubscription follows the discussions of one lecture.
func LectureSubscription(lectureID string) Subscription {
	return Subscription{
		Room:  realtime.LectureRoom(lectureID),
		join:  realtime.EventJoinLectureRoom,
		leave: realtime.EventLeaveLectureRoom,
		data:  realtime.JoinLectureRoomPayload{LectureID: lectureID},
	}
}

type roomRef struct {
	sub   Subscription
	count int
}

// Subscriptions reference-counts room membership so that several views can
// share a room, and replays every join after a reconnect.
type Subscriptions struct {
	mu      sync.Mutex
	rooms   map[string]*roomRef
	emitter Emitter
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{rooms: make(map[string]*roomRef)}
}

// Acquire takes a reference on the room, joining it on the first one.
func (s *Subscriptions) Acquire(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.rooms[sub.Room]; ok {
		ref.count++
		return
	}
	s.rooms[sub.Room] = &roomRef{sub: sub, count: 1}
	s.emitLocked(sub.join, sub.data)
}

// Release drops a reference, leaving the room when none remain.
func (s *Subscriptions) Release(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.rooms[room]
	if !ok {
		return
	}
	ref.count--
	if ref.count > 0 {
		return
	}
	delete(s.rooms, room)
	s.emitLocked(ref.sub.leave, ref.sub.data)
}

// Attach binds a live connection and joins every held room on it.
func (s *Subscriptions) Attach(emitter Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emitter = emitter
	for _, room := range s.roomsLocked() {
		ref := s.rooms[room]
		s.emitLocked(ref.sub.join, ref.sub.data)
	}
}

// Detach forgets the connection. Held rooms are kept for the next Attach.
func (s *Subscriptions) Detach() {
	s.mu.Lock()
	s.emitter = nil
	s.mu.Unlock()
}

// Rooms lists the held rooms in sorted order.
func (s *Subscriptions) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomsLocked()
}

func (s *Subscriptions) roomsLocked() []string {
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (s *Subscriptions) emitLocked(event string, data interface{}) {
	if s.emitter == nil {
		return
	}
	// A failed join is retried by the next Attach after reconnecting.
	_ = s.emitter.Emit(event, data)
}
