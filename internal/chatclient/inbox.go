package chatclient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

// Preview summarises one (counterpart, course) conversation for the inbox.
type Preview struct {
	CounterpartID string
	CourseID      string
	LastMessage   string
	LastMessageAt time.Time
	LastMessageID uint
	UnreadCount   int
}

type groupKey struct {
	counterpart string
	course      string
}

type inboxGroup struct {
	messages map[uint]dto.ChatMessageResponse
	preview  Preview
}

func newInboxGroup(key groupKey) *inboxGroup {
	return &inboxGroup{
		messages: make(map[uint]dto.ChatMessageResponse),
		preview:  Preview{CounterpartID: key.counterpart, CourseID: key.course},
	}
}

func (g *inboxGroup) upsert(message dto.ChatMessageResponse) {
	if existing, ok := g.messages[message.ID]; ok {
		message = mergeMessage(existing, message)
	}
	g.messages[message.ID] = message
}

// recompute derives the preview from the group's messages. Unread counts
// messages addressed to self that are neither read nor deleted.
func (g *inboxGroup) recompute(self string) {
	preview := Preview{CounterpartID: g.preview.CounterpartID, CourseID: g.preview.CourseID}
	var latest *dto.ChatMessageResponse
	for id := range g.messages {
		message := g.messages[id]
		if latest == nil || before(*latest, message) {
			m := message
			latest = &m
		}
		if message.RecipientID == self && !message.IsRead && !message.IsDeleted {
			preview.UnreadCount++
		}
	}
	if latest != nil {
		preview.LastMessage = latest.DisplayText()
		preview.LastMessageAt = latest.CreatedAt
		preview.LastMessageID = latest.ID
	}
	g.preview = preview
}

// moreRecent orders previews most recently active first.
func moreRecent(a, b Preview) bool {
	if !a.LastMessageAt.Equal(b.LastMessageAt) {
		return a.LastMessageAt.After(b.LastMessageAt)
	}
	return a.LastMessageID > b.LastMessageID
}

// BuildPreviews aggregates a full message set from scratch.
func BuildPreviews(self string, messages []dto.ChatMessageResponse) []Preview {
	groups, order := aggregate(self, messages, nil)
	previews := make([]Preview, 0, len(order))
	for _, key := range order {
		previews = append(previews, groups[key].preview)
	}
	return previews
}

func aggregate(self string, messages []dto.ChatMessageResponse, scope func(dto.ChatMessageResponse) bool) (map[groupKey]*inboxGroup, []groupKey) {
	groups := make(map[groupKey]*inboxGroup)
	for _, message := range messages {
		if scope != nil && !scope(message) {
			continue
		}
		key, ok := keyFor(self, message)
		if !ok {
			continue
		}
		group, exists := groups[key]
		if !exists {
			group = newInboxGroup(key)
			groups[key] = group
		}
		group.upsert(message)
	}

	order := make([]groupKey, 0, len(groups))
	for key, group := range groups {
		group.recompute(self)
		order = append(order, key)
	}
	sort.Slice(order, func(i, j int) bool { return moreRecent(groups[order[i]].preview, groups[order[j]].preview) })
	return groups, order
}

func keyFor(self string, message dto.ChatMessageResponse) (groupKey, bool) {
	if message.ID == 0 || !message.Involves(self) {
		return groupKey{}, false
	}
	return groupKey{counterpart: message.Counterpart(self), course: message.CourseID}, true
}

// Inbox is the instructor's multi-conversation view.
type Inbox struct {
	self     string
	courseID string
	store    MessageStore
	opts     options

	mu     sync.Mutex
	groups map[groupKey]*inboxGroup
	order  []groupKey
}

// NewInbox creates an inbox for self. An empty courseID spans every course.
func NewInbox(self, courseID string, store MessageStore, opts ...Option) *Inbox {
	return &Inbox{
		self:     self,
		courseID: courseID,
		store:    store,
		opts:     buildOptions("chat_inbox", opts),
		groups:   make(map[groupKey]*inboxGroup),
	}
}

// Load rebuilds every group from the server.
func (in *Inbox) Load(ctx context.Context) error {
	messages, err := in.store.Inbox(ctx, in.courseID)
	if err != nil {
		in.opts.logger.Error().Err(err).Str("course_id", in.courseID).Msg("failed to load inbox")
		return err
	}
	in.Rebuild(messages)
	return nil
}

// Rebuild replaces state with an aggregation of messages.
func (in *Inbox) Rebuild(messages []dto.ChatMessageResponse) {
	groups, order := aggregate(in.self, messages, in.inScope)

	in.mu.Lock()
	in.groups = groups
	in.order = order
	in.mu.Unlock()
}

// Apply updates only the group the event belongs to and moves it to its
// recency position.
func (in *Inbox) Apply(envelope realtime.Envelope) bool {
	switch envelope.Event {
	case realtime.EventNewMessage, realtime.EventMessageEdited, realtime.EventMessageDeleted, realtime.EventMessageRead:
	default:
		return false
	}

	var message dto.ChatMessageResponse
	if err := envelope.Decode(&message); err != nil {
		in.opts.logger.Warn().Err(err).Str("event", envelope.Event).Msg("dropping undecodable message event")
		return false
	}
	if !in.inScope(message) {
		return false
	}
	key, ok := keyFor(in.self, message)
	if !ok {
		return false
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	group, exists := in.groups[key]
	if !exists {
		group = newInboxGroup(key)
		in.groups[key] = group
	} else {
		in.removeFromOrder(key)
	}
	group.upsert(message)
	group.recompute(in.self)

	idx := sort.Search(len(in.order), func(i int) bool {
		return !moreRecent(in.groups[in.order[i]].preview, group.preview)
	})
	in.order = append(in.order, groupKey{})
	copy(in.order[idx+1:], in.order[idx:])
	in.order[idx] = key
	return true
}

// Previews returns the inbox in display order.
func (in *Inbox) Previews() []Preview {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Preview, 0, len(in.order))
	for _, key := range in.order {
		out = append(out, in.groups[key].preview)
	}
	return out
}

// Unread returns the unread count for one conversation.
func (in *Inbox) Unread(counterpartID, courseID string) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	if group, ok := in.groups[groupKey{counterpart: counterpartID, course: courseID}]; ok {
		return group.preview.UnreadCount
	}
	return 0
}

func (in *Inbox) inScope(message dto.ChatMessageResponse) bool {
	return in.courseID == "" || message.CourseID == in.courseID
}

func (in *Inbox) removeFromOrder(key groupKey) {
	for i, existing := range in.order {
		if existing == key {
			in.order = append(in.order[:i], in.order[i+1:]...)
			return
		}
	}
}
