package chatclient

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

// memoryBackend mimics the messaging API: it persists records and publishes
// the stored copy to every listener after each committed change.
type memoryBackend struct {
	mu            sync.Mutex
	clock         time.Time
	nextID        uint
	messages      map[uint]dto.ChatMessageResponse
	discussions   map[uint]dto.DiscussionResponse
	comments      map[uint]dto.CommentResponse
	notifications map[uint]dto.NotificationResponse

	sendErr     error
	markReadErr error
	markReads   []uint

	// normalize rewrites content before it is stored, like server sanitizing.
	normalize func(string) string
	// dropTempIDs stores rows without the client temp id.
	dropTempIDs bool
	// afterCommit runs once a send is stored but before it returns.
	afterCommit func()

	deferred  bool
	queue     []realtime.Envelope
	listeners []func(realtime.Envelope)
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		clock:         time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		messages:      make(map[uint]dto.ChatMessageResponse),
		discussions:   make(map[uint]dto.DiscussionResponse),
		comments:      make(map[uint]dto.CommentResponse),
		notifications: make(map[uint]dto.NotificationResponse),
	}
}

func (b *memoryBackend) as(user string) *memoryStore {
	return &memoryStore{backend: b, user: user}
}

func (b *memoryBackend) listen(fn func(realtime.Envelope)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

func (b *memoryBackend) tick() time.Time {
	b.clock = b.clock.Add(time.Second)
	return b.clock
}

func (b *memoryBackend) id() uint {
	b.nextID++
	return b.nextID
}

// publish must be called without b.mu held.
func (b *memoryBackend) publish(event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	envelope := realtime.Envelope{Event: event, Data: data}

	b.mu.Lock()
	if b.deferred {
		b.queue = append(b.queue, envelope)
		b.mu.Unlock()
		return
	}
	listeners := append([]func(realtime.Envelope){}, b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(envelope)
	}
}

func (b *memoryBackend) flush() {
	b.mu.Lock()
	queue := b.queue
	b.queue = nil
	b.deferred = false
	listeners := append([]func(realtime.Envelope){}, b.listeners...)
	b.mu.Unlock()

	for _, envelope := range queue {
		for _, fn := range listeners {
			fn(envelope)
		}
	}
}

func (b *memoryBackend) seedMessage(sender, recipient, course, content string) dto.ChatMessageResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.tick()
	message := dto.ChatMessageResponse{
		ID:          b.id(),
		CourseID:    course,
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.messages[message.ID] = message
	return message
}

func (b *memoryBackend) allMessages() []dto.ChatMessageResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]dto.ChatMessageResponse, 0, len(b.messages))
	for _, message := range b.messages {
		out = append(out, message)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memoryStore struct {
	backend *memoryBackend
	user    string
}

func (s *memoryStore) SendMessage(_ context.Context, req dto.ChatSendRequest) (dto.ChatMessageResponse, error) {
	b := s.backend
	b.mu.Lock()
	if b.sendErr != nil {
		err := b.sendErr
		b.mu.Unlock()
		return dto.ChatMessageResponse{}, err
	}
	now := b.tick()
	content := req.Content
	if b.normalize != nil {
		content = b.normalize(content)
	}
	message := dto.ChatMessageResponse{
		ID:          b.id(),
		TempID:      req.TempID,
		CourseID:    req.CourseID,
		SenderID:    s.user,
		RecipientID: req.RecipientID,
		Content:     content,
		MediaURL:    req.MediaURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored := message
	if b.dropTempIDs {
		stored.TempID = ""
	}
	b.messages[message.ID] = stored
	hook := b.afterCommit
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	b.publish(realtime.EventNewMessage, message)
	return message, nil
}

func (s *memoryStore) EditMessage(_ context.Context, id uint, req dto.ChatEditRequest) (dto.ChatMessageResponse, error) {
	b := s.backend
	b.mu.Lock()
	message, ok := b.messages[id]
	if !ok || message.SenderID != s.user || message.IsDeleted {
		b.mu.Unlock()
		return dto.ChatMessageResponse{}, &APIError{Status: 409, Message: "cannot edit"}
	}
	message.Content = req.Content
	message.IsEdited = true
	message.UpdatedAt = b.tick()
	b.messages[id] = message
	b.mu.Unlock()

	b.publish(realtime.EventMessageEdited, message)
	return message, nil
}

func (s *memoryStore) DeleteMessage(_ context.Context, id uint) (dto.ChatMessageResponse, error) {
	b := s.backend
	b.mu.Lock()
	message, ok := b.messages[id]
	if !ok || message.SenderID != s.user {
		b.mu.Unlock()
		return dto.ChatMessageResponse{}, &APIError{Status: 404, Message: "message not found"}
	}
	if message.IsDeleted {
		b.mu.Unlock()
		return message, nil
	}
	message.IsDeleted = true
	message.Content = ""
	message.MediaURL = ""
	b.messages[id] = message
	b.mu.Unlock()

	b.publish(realtime.EventMessageDeleted, message)
	return message, nil
}

func (s *memoryStore) MarkRead(_ context.Context, id uint) (dto.ChatMessageResponse, error) {
	b := s.backend
	b.mu.Lock()
	b.markReads = append(b.markReads, id)
	if b.markReadErr != nil {
		err := b.markReadErr
		b.mu.Unlock()
		return dto.ChatMessageResponse{}, err
	}
	message, ok := b.messages[id]
	if !ok || message.RecipientID != s.user {
		b.mu.Unlock()
		return dto.ChatMessageResponse{}, &APIError{Status: 404, Message: "message not found"}
	}
	changed := !message.IsRead
	message.IsRead = true
	b.messages[id] = message
	b.mu.Unlock()

	if changed {
		b.publish(realtime.EventMessageRead, message)
	}
	return message, nil
}

func (s *memoryStore) Conversation(_ context.Context, courseID, counterpartID string) ([]dto.ChatMessageResponse, error) {
	var out []dto.ChatMessageResponse
	for _, message := range s.backend.allMessages() {
		if message.CourseID != courseID {
			continue
		}
		if (message.SenderID == s.user && message.RecipientID == counterpartID) ||
			(message.SenderID == counterpartID && message.RecipientID == s.user) {
			out = append(out, message)
		}
	}
	return out, nil
}

func (s *memoryStore) Inbox(_ context.Context, courseID string) ([]dto.ChatMessageResponse, error) {
	var out []dto.ChatMessageResponse
	for _, message := range s.backend.allMessages() {
		if courseID != "" && message.CourseID != courseID {
			continue
		}
		if message.SenderID == s.user || message.RecipientID == s.user {
			out = append(out, message)
		}
	}
	return out, nil
}

func (s *memoryStore) Discussions(_ context.Context, lectureID string) ([]dto.DiscussionResponse, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []dto.DiscussionResponse
	for _, discussion := range b.discussions {
		if discussion.LectureID == lectureID {
			out = append(out, discussion)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) CreateDiscussion(_ context.Context, lectureID, topic string) (dto.DiscussionResponse, error) {
	b := s.backend
	b.mu.Lock()
	now := b.tick()
	discussion := dto.DiscussionResponse{ID: b.id(), LectureID: lectureID, CreatorID: s.user, Topic: topic, CreatedAt: now, UpdatedAt: now}
	b.discussions[discussion.ID] = discussion
	b.mu.Unlock()

	b.publish(realtime.EventNewDiscussion, discussion)
	return discussion, nil
}

func (s *memoryStore) EditDiscussion(_ context.Context, id uint, topic string) (dto.DiscussionResponse, error) {
	b := s.backend
	b.mu.Lock()
	discussion, ok := b.discussions[id]
	if !ok {
		b.mu.Unlock()
		return dto.DiscussionResponse{}, &APIError{Status: 404, Message: "discussion not found"}
	}
	discussion.Topic = topic
	discussion.UpdatedAt = b.tick()
	b.discussions[id] = discussion
	b.mu.Unlock()

	b.publish(realtime.EventEditDiscussion, discussion)
	return discussion, nil
}

func (s *memoryStore) DeleteDiscussion(_ context.Context, id uint) (dto.DiscussionResponse, error) {
	b := s.backend
	b.mu.Lock()
	discussion, ok := b.discussions[id]
	if !ok {
		b.mu.Unlock()
		return dto.DiscussionResponse{}, &APIError{Status: 404, Message: "discussion not found"}
	}
	delete(b.discussions, id)
	for commentID, comment := range b.comments {
		if comment.DiscussionID == id {
			delete(b.comments, commentID)
		}
	}
	b.mu.Unlock()

	b.publish(realtime.EventDeleteDiscussion, realtime.DeletedEntity{ID: id, LectureID: discussion.LectureID})
	return discussion, nil
}

func (s *memoryStore) Comments(_ context.Context, discussionID uint) ([]dto.CommentResponse, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []dto.CommentResponse
	for _, comment := range b.comments {
		if comment.DiscussionID == discussionID {
			out = append(out, comment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) CreateComment(_ context.Context, discussionID uint, content string) (dto.CommentResponse, error) {
	b := s.backend
	b.mu.Lock()
	discussion, ok := b.discussions[discussionID]
	if !ok {
		b.mu.Unlock()
		return dto.CommentResponse{}, &APIError{Status: 404, Message: "discussion not found"}
	}
	now := b.tick()
	comment := dto.CommentResponse{ID: b.id(), DiscussionID: discussionID, LectureID: discussion.LectureID, AuthorID: s.user, Content: content, CreatedAt: now, UpdatedAt: now}
	b.comments[comment.ID] = comment
	discussion.CommentCount++
	b.discussions[discussionID] = discussion
	b.mu.Unlock()

	b.publish(realtime.EventNewComment, comment)
	return comment, nil
}

func (s *memoryStore) EditComment(_ context.Context, id uint, content string) (dto.CommentResponse, error) {
	b := s.backend
	b.mu.Lock()
	comment, ok := b.comments[id]
	if !ok {
		b.mu.Unlock()
		return dto.CommentResponse{}, &APIError{Status: 404, Message: "comment not found"}
	}
	comment.Content = content
	comment.IsEdited = true
	b.comments[id] = comment
	b.mu.Unlock()

	b.publish(realtime.EventEditComment, comment)
	return comment, nil
}

func (s *memoryStore) DeleteComment(_ context.Context, id uint) (dto.CommentResponse, error) {
	b := s.backend
	b.mu.Lock()
	comment, ok := b.comments[id]
	if !ok {
		b.mu.Unlock()
		return dto.CommentResponse{}, &APIError{Status: 404, Message: "comment not found"}
	}
	delete(b.comments, id)
	if discussion, ok := b.discussions[comment.DiscussionID]; ok && discussion.CommentCount > 0 {
		discussion.CommentCount--
		b.discussions[comment.DiscussionID] = discussion
	}
	b.mu.Unlock()

	b.publish(realtime.EventDeleteComment, realtime.DeletedEntity{ID: id, DiscussionID: comment.DiscussionID, LectureID: comment.LectureID})
	return comment, nil
}

func (s *memoryStore) Notifications(_ context.Context, limit int) ([]dto.NotificationResponse, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []dto.NotificationResponse
	for _, item := range b.notifications {
		if item.UserID == s.user {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) MarkNotificationRead(_ context.Context, id uint) (dto.NotificationResponse, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	item, ok := b.notifications[id]
	if !ok || item.UserID != s.user {
		return dto.NotificationResponse{}, &APIError{Status: 404, Message: "notification not found"}
	}
	item.Read = true
	b.notifications[id] = item
	return item, nil
}

func (s *memoryStore) MarkAllNotificationsRead(context.Context) error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, item := range b.notifications {
		if item.UserID == s.user {
			item.Read = true
			b.notifications[id] = item
		}
	}
	return nil
}

func (b *memoryBackend) notify(user, title string) dto.NotificationResponse {
	b.mu.Lock()
	item := dto.NotificationResponse{ID: b.id(), UserID: user, Type: "comment", Title: title, CreatedAt: b.tick()}
	b.notifications[item.ID] = item
	b.mu.Unlock()

	b.publish(realtime.EventNewNotification, item)
	return item
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []realtime.Envelope
	err    error
}

func (r *recordingEmitter) Emit(event string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	envelope, err := realtime.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	r.events = append(r.events, envelope)
	return nil
}

func (r *recordingEmitter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, envelope := range r.events {
		out = append(out, envelope.Event)
	}
	return out
}

func envelopeFor(t *testing.T, event string, payload interface{}) realtime.Envelope {
	t.Helper()
	envelope, err := realtime.NewEnvelope(event, payload)
	require.NoError(t, err)
	return envelope
}

func syncSpawn(fn func()) { fn() }

var _ Store = (*memoryStore)(nil)
