package chatclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

// Emitter publishes an event on the realtime socket.
type Emitter interface {
	Emit(event string, payload interface{}) error
}

// Conversation owns the message list between the current user and one
// counterpart inside a course.
type Conversation struct {
	self          string
	courseID      string
	counterpartID string
	store         MessageStore
	relay         Emitter
	opts          options

	mu        sync.Mutex
	entries   []Entry
	attempted map[uint]struct{}
	receipts  sync.WaitGroup
}

// NewConversation creates an empty conversation. relay may be nil, in which
// case confirmed records are not re-published by this client.
func NewConversation(self, courseID, counterpartID string, store MessageStore, relay Emitter, opts ...Option) *Conversation {
	return &Conversation{
		self:          self,
		courseID:      courseID,
		counterpartID: counterpartID,
		store:         store,
		relay:         relay,
		opts:          buildOptions("chat_conversation", opts),
		attempted:     make(map[uint]struct{}),
	}
}

// CourseID returns the course the conversation belongs to.
func (c *Conversation) CourseID() string { return c.courseID }

// CounterpartID returns the other participant.
func (c *Conversation) CounterpartID() string { return c.counterpartID }

// Entries returns a copy of the current list in display order.
func (c *Conversation) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Load replaces confirmed state with the server history. Pending sends stay
// and are reconciled against the fetched records.
func (c *Conversation) Load(ctx context.Context) error {
	messages, err := c.store.Conversation(ctx, c.courseID, c.counterpartID)
	if err != nil {
		c.opts.logger.Error().Err(err).Str("course_id", c.courseID).Str("counterpart_id", c.counterpartID).Msg("failed to load conversation")
		return err
	}

	c.mu.Lock()
	var pending []Entry
	for _, entry := range c.entries {
		if entry.State == StatePending {
			pending = append(pending, entry)
		}
	}
	entries := pending
	for _, message := range messages {
		entries = Merge(entries, message)
	}
	c.entries = entries
	c.attempted = make(map[uint]struct{})
	c.mu.Unlock()

	c.sendReceipts()
	return nil
}

// Send performs an optimistic send. The provisional entry is visible
// immediately and is either confirmed by the server record or removed.
func (c *Conversation) Send(ctx context.Context, content, mediaURL string) (dto.ChatMessageResponse, error) {
	now := c.opts.now().UTC()
	tempID := fmt.Sprintf("temp-%d-%s", now.UnixMilli(), uuid.NewString()[:8])

	provisional := dto.ChatMessageResponse{
		TempID:      tempID,
		CourseID:    c.courseID,
		SenderID:    c.self,
		RecipientID: c.counterpartID,
		Content:     content,
		MediaURL:    mediaURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	c.mu.Lock()
	c.entries = append(c.entries, Entry{Message: provisional, TempID: tempID, State: StatePending})
	c.mu.Unlock()

	confirmed, err := c.store.SendMessage(ctx, dto.ChatSendRequest{
		CourseID:    c.courseID,
		RecipientID: c.counterpartID,
		Content:     content,
		MediaURL:    mediaURL,
		TempID:      tempID,
	})
	if err != nil {
		c.rollback(tempID)
		c.opts.logger.Error().Err(err).Str("temp_id", tempID).Msg("send failed, provisional message removed")
		return dto.ChatMessageResponse{}, err
	}
	if confirmed.TempID == "" {
		confirmed.TempID = tempID
	}

	c.mu.Lock()
	c.entries = Merge(c.entries, confirmed)
	c.mu.Unlock()

	c.publish(realtime.EventNewMessage, confirmed)
	return confirmed, nil
}

// Edit replaces the text of one of the user's messages.
func (c *Conversation) Edit(ctx context.Context, id uint, content string) error {
	updated, err := c.store.EditMessage(ctx, id, dto.ChatEditRequest{Content: content})
	if err != nil {
		c.opts.logger.Error().Err(err).Uint("message_id", id).Msg("edit failed")
		return err
	}

	c.mu.Lock()
	c.entries = Merge(c.entries, updated)
	c.mu.Unlock()

	c.publish(realtime.EventMessageEdited, updated)
	return nil
}

// Delete tombstones one of the user's messages in place.
func (c *Conversation) Delete(ctx context.Context, id uint) error {
	tombstone, err := c.store.DeleteMessage(ctx, id)
	if err != nil {
		c.opts.logger.Error().Err(err).Uint("message_id", id).Msg("delete failed")
		return err
	}

	c.mu.Lock()
	c.entries = Merge(c.entries, tombstone)
	c.mu.Unlock()

	c.publish(realtime.EventMessageDeleted, tombstone)
	return nil
}

// Apply folds a broadcast message event into the list. Events for other
// conversations are ignored.
func (c *Conversation) Apply(envelope realtime.Envelope) bool {
	switch envelope.Event {
	case realtime.EventNewMessage, realtime.EventMessageEdited, realtime.EventMessageDeleted, realtime.EventMessageRead:
	default:
		return false
	}

	var message dto.ChatMessageResponse
	if err := envelope.Decode(&message); err != nil {
		c.opts.logger.Warn().Err(err).Str("event", envelope.Event).Msg("dropping undecodable message event")
		return false
	}
	if !c.owns(message) {
		return false
	}

	c.mu.Lock()
	c.entries = Merge(c.entries, message)
	c.mu.Unlock()

	c.sendReceipts()
	return true
}

// WaitReceipts blocks until in-flight read receipts have finished.
func (c *Conversation) WaitReceipts() {
	c.receipts.Wait()
}

func (c *Conversation) owns(message dto.ChatMessageResponse) bool {
	if message.CourseID != c.courseID {
		return false
	}
	return (message.SenderID == c.self && message.RecipientID == c.counterpartID) ||
		(message.SenderID == c.counterpartID && message.RecipientID == c.self)
}

func (c *Conversation) rollback(tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.entries {
		if entry.State == StatePending && entry.TempID == tempID {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			return
		}
	}
}

// sendReceipts issues one markRead per unread incoming message that has not
// been attempted since the last Load. Failures are logged and not retried.
func (c *Conversation) sendReceipts() {
	c.mu.Lock()
	var ids []uint
	for _, entry := range c.entries {
		message := entry.Message
		if entry.State != StateConfirmed || message.IsRead {
			continue
		}
		if message.SenderID != c.counterpartID || message.RecipientID != c.self {
			continue
		}
		if _, seen := c.attempted[message.ID]; seen {
			continue
		}
		c.attempted[message.ID] = struct{}{}
		ids = append(ids, message.ID)
	}
	c.mu.Unlock()

	for _, id := range ids {
		id := id
		c.receipts.Add(1)
		c.opts.spawn(func() {
			defer c.receipts.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.receiptTimeout)
			defer cancel()

			updated, err := c.store.MarkRead(ctx, id)
			if err != nil {
				c.opts.logger.Warn().Err(err).Uint("message_id", id).Msg("read receipt failed")
				return
			}

			c.mu.Lock()
			c.entries = Merge(c.entries, updated)
			c.mu.Unlock()
		})
	}
}

func (c *Conversation) publish(event string, message dto.ChatMessageResponse) {
	if c.relay == nil {
		return
	}
	if err := c.relay.Emit(event, message); err != nil {
		c.opts.logger.Debug().Err(err).Str("event", event).Msg("relay skipped")
	}
}
