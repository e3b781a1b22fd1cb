package chatclient

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

type entityRef struct {
	ID           uint   `json:"id"`
	DiscussionID uint   `json:"discussion_id"`
	LectureID    string `json:"lecture_id"`
}

// Thread owns the discussions of one lecture and the comments of every
// discussion that has been expanded.
type Thread struct {
	lectureID string
	store     DiscussionStore
	relay     Emitter
	subs      *Subscriptions
	opts      options

	mu          sync.Mutex
	discussions []dto.DiscussionResponse
	comments    map[uint][]dto.CommentResponse
	seen        map[uint]uint
	removed     map[uint]struct{}
}

// NewThread creates an empty lecture thread. relay and subs may be nil.
func NewThread(lectureID string, store DiscussionStore, relay Emitter, subs *Subscriptions, opts ...Option) *Thread {
	return &Thread{
		lectureID: lectureID,
		store:     store,
		relay:     relay,
		subs:      subs,
		opts:      buildOptions("discussion_thread", opts),
		comments:  make(map[uint][]dto.CommentResponse),
		seen:      make(map[uint]uint),
		removed:   make(map[uint]struct{}),
	}
}

// LectureID returns the lecture the thread follows.
func (t *Thread) LectureID() string { return t.lectureID }

// Load fetches the lecture's discussions, newest first.
func (t *Thread) Load(ctx context.Context) error {
	discussions, err := t.store.Discussions(ctx, t.lectureID)
	if err != nil {
		t.opts.logger.Error().Err(err).Str("lecture_id", t.lectureID).Msg("failed to load discussions")
		return err
	}

	t.mu.Lock()
	t.discussions = nil
	for _, discussion := range discussions {
		t.upsertDiscussionLocked(discussion)
	}
	t.mu.Unlock()
	return nil
}

// Expand loads a discussion's comments and joins its room.
func (t *Thread) Expand(ctx context.Context, discussionID uint) error {
	comments, err := t.store.Comments(ctx, discussionID)
	if err != nil {
		t.opts.logger.Error().Err(err).Uint("discussion_id", discussionID).Msg("failed to load comments")
		return err
	}

	t.mu.Lock()
	t.comments[discussionID] = append([]dto.CommentResponse(nil), comments...)
	sortComments(t.comments[discussionID])
	for _, comment := range comments {
		t.seen[comment.ID] = discussionID
	}
	t.mu.Unlock()

	if t.subs != nil {
		t.subs.Acquire(DiscussionSubscription(discussionID))
	}
	return nil
}

// Collapse forgets a discussion's comments and leaves its room.
func (t *Thread) Collapse(discussionID uint) {
	t.mu.Lock()
	_, expanded := t.comments[discussionID]
	delete(t.comments, discussionID)
	t.mu.Unlock()

	if expanded && t.subs != nil {
		t.subs.Release(realtime.DiscussionRoom(discussionID))
	}
}

// Discussions returns the lecture's discussions, newest first.
func (t *Thread) Discussions() []dto.DiscussionResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]dto.DiscussionResponse(nil), t.discussions...)
}

// Comments returns the comments of an expanded discussion, oldest first.
func (t *Thread) Comments(discussionID uint) []dto.CommentResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]dto.CommentResponse(nil), t.comments[discussionID]...)
}

func (t *Thread) Create(ctx context.Context, topic string) (dto.DiscussionResponse, error) {
	discussion, err := t.store.CreateDiscussion(ctx, t.lectureID, topic)
	if err != nil {
		t.opts.logger.Error().Err(err).Msg("create discussion failed")
		return dto.DiscussionResponse{}, err
	}
	t.applyDiscussion(discussion)
	t.publish(realtime.EventNewDiscussion, discussion)
	return discussion, nil
}

func (t *Thread) Edit(ctx context.Context, id uint, topic string) error {
	discussion, err := t.store.EditDiscussion(ctx, id, topic)
	if err != nil {
		t.opts.logger.Error().Err(err).Uint("discussion_id", id).Msg("edit discussion failed")
		return err
	}
	t.applyDiscussion(discussion)
	t.publish(realtime.EventEditDiscussion, discussion)
	return nil
}

func (t *Thread) Delete(ctx context.Context, id uint) error {
	discussion, err := t.store.DeleteDiscussion(ctx, id)
	if err != nil {
		t.opts.logger.Error().Err(err).Uint("discussion_id", id).Msg("delete discussion failed")
		return err
	}
	t.removeDiscussion(id)
	t.publish(realtime.EventDeleteDiscussion, realtime.DeletedEntity{ID: discussion.ID, LectureID: discussion.LectureID})
	return nil
}

func (t *Thread) Comment(ctx context.Context, discussionID uint, content string) (dto.CommentResponse, error) {
	comment, err := t.store.CreateComment(ctx, discussionID, content)
	if err != nil {
		t.opts.logger.Error().Err(err).Uint("discussion_id", discussionID).Msg("create comment failed")
		return dto.CommentResponse{}, err
	}
	t.applyComment(comment, true)
	t.publish(realtime.EventNewComment, comment)
	return comment, nil
}

func (t *Thread) EditComment(ctx context.Context, id uint, content string) error {
	comment, err := t.store.EditComment(ctx, id, content)
	if err != nil {
		t.opts.logger.Error().Err(err).Uint("comment_id", id).Msg("edit comment failed")
		return err
	}
	t.applyComment(comment, false)
	t.publish(realtime.EventEditComment, comment)
	return nil
}

func (t *Thread) DeleteComment(ctx context.Context, id uint) error {
	comment, err := t.store.DeleteComment(ctx, id)
	if err != nil {
		t.opts.logger.Error().Err(err).Uint("comment_id", id).Msg("delete comment failed")
		return err
	}
	t.removeComment(entityRef{ID: comment.ID, DiscussionID: comment.DiscussionID})
	t.publish(realtime.EventDeleteComment, realtime.DeletedEntity{ID: comment.ID, DiscussionID: comment.DiscussionID, LectureID: comment.LectureID})
	return nil
}

// Apply folds a broadcast discussion or comment event into the thread.
func (t *Thread) Apply(envelope realtime.Envelope) bool {
	switch envelope.Event {
	case realtime.EventNewDiscussion, realtime.EventEditDiscussion:
		var discussion dto.DiscussionResponse
		if !t.decode(envelope, &discussion) || discussion.LectureID != t.lectureID {
			return false
		}
		t.applyDiscussion(discussion)
	case realtime.EventDeleteDiscussion:
		var ref entityRef
		if !t.decode(envelope, &ref) {
			return false
		}
		return t.removeDiscussion(ref.ID)
	case realtime.EventNewComment, realtime.EventEditComment:
		var comment dto.CommentResponse
		if !t.decode(envelope, &comment) {
			return false
		}
		return t.applyComment(comment, envelope.Event == realtime.EventNewComment)
	case realtime.EventDeleteComment:
		var ref entityRef
		if !t.decode(envelope, &ref) {
			return false
		}
		return t.removeComment(ref)
	default:
		return false
	}
	return true
}

func (t *Thread) decode(envelope realtime.Envelope, target interface{}) bool {
	if err := envelope.Decode(target); err != nil {
		t.opts.logger.Warn().Err(err).Str("event", envelope.Event).Msg("dropping undecodable discussion event")
		return false
	}
	return true
}

func (t *Thread) applyDiscussion(discussion dto.DiscussionResponse) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upsertDiscussionLocked(discussion)
}

func (t *Thread) upsertDiscussionLocked(discussion dto.DiscussionResponse) {
	for i, existing := range t.discussions {
		if existing.ID == discussion.ID {
			t.discussions[i] = discussion
			return
		}
	}
	t.discussions = append(t.discussions, discussion)
	sort.SliceStable(t.discussions, func(i, j int) bool {
		a, b := t.discussions[i], t.discussions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func (t *Thread) removeDiscussion(id uint) bool {
	t.mu.Lock()
	found := false
	for i, existing := range t.discussions {
		if existing.ID == id {
			t.discussions = append(t.discussions[:i], t.discussions[i+1:]...)
			found = true
			break
		}
	}
	_, expanded := t.comments[id]
	delete(t.comments, id)
	t.mu.Unlock()

	if expanded && t.subs != nil {
		t.subs.Release(realtime.DiscussionRoom(id))
	}
	return found
}

// applyComment upserts a comment. Counters move once per comment id, so
// duplicate deliveries and late echoes of removed comments are harmless.
func (t *Thread) applyComment(comment dto.CommentResponse, isNew bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, gone := t.removed[comment.ID]; gone {
		return false
	}
	idx := t.discussionIndexLocked(comment.DiscussionID)
	if idx < 0 {
		return false
	}

	if _, seen := t.seen[comment.ID]; !seen {
		t.seen[comment.ID] = comment.DiscussionID
		if isNew {
			t.discussions[idx].CommentCount++
		}
	}

	list, expanded := t.comments[comment.DiscussionID]
	if !expanded {
		return true
	}
	for i, existing := range list {
		if existing.ID == comment.ID {
			list[i] = comment
			return true
		}
	}
	list = append(list, comment)
	sortComments(list)
	t.comments[comment.DiscussionID] = list
	return true
}

func (t *Thread) removeComment(ref entityRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, gone := t.removed[ref.ID]; gone {
		return false
	}
	discussionID := ref.DiscussionID
	if discussionID == 0 {
		discussionID = t.seen[ref.ID]
	}
	idx := t.discussionIndexLocked(discussionID)
	if idx < 0 {
		return false
	}

	t.removed[ref.ID] = struct{}{}
	delete(t.seen, ref.ID)
	list := t.comments[discussionID]
	for i, existing := range list {
		if existing.ID == ref.ID {
			t.comments[discussionID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if t.discussions[idx].CommentCount > 0 {
		t.discussions[idx].CommentCount--
	}
	return true
}

func (t *Thread) discussionIndexLocked(id uint) int {
	for i, discussion := range t.discussions {
		if discussion.ID == id {
			return i
		}
	}
	return -1
}

func (t *Thread) publish(event string, payload interface{}) {
	if t.relay == nil {
		return
	}
	if err := t.relay.Emit(event, payload); err != nil {
		t.opts.logger.Debug().Err(err).Str("event", event).Msg("relay skipped")
	}
}

func sortComments(comments []dto.CommentResponse) {
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})
}

// Close leaves every expanded discussion room.
func (t *Thread) Close() {
	t.mu.Lock()
	ids := make([]uint, 0, len(t.comments))
	for id := range t.comments {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.Collapse(id)
	}
}
