package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/models"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
	"github.com/noah-isme/newlearn-go-api/internal/repository"
)

type relayReference struct {
	ID     uint   `json:"id"`
	TempID string `json:"temp_id"`
}

type relayResolver struct {
	messages    repository.MessageRepository
	discussions repository.DiscussionRepository
}

// NewRelayResolver verifies events emitted by clients against the store so
// only committed records are fanned out.
func NewRelayResolver(messages repository.MessageRepository, discussions repository.DiscussionRepository) realtime.Resolver {
	return &relayResolver{messages: messages, discussions: discussions}
}

func (r *relayResolver) Resolve(ctx context.Context, actor realtime.Identity, envelope realtime.Envelope) (realtime.Publication, error) {
	var ref relayReference
	if err := envelope.Decode(&ref); err != nil {
		return realtime.Publication{}, err
	}
	if ref.ID == 0 {
		return realtime.Publication{}, realtime.ErrInvalidPayload
	}

	switch envelope.Event {
	case realtime.EventNewMessage, realtime.EventMessageEdited, realtime.EventMessageDeleted, realtime.EventMessageRead:
		return r.resolveMessage(ctx, actor, envelope.Event, ref)
	case realtime.EventNewDiscussion, realtime.EventEditDiscussion:
		return r.resolveDiscussion(ctx, actor, envelope.Event, ref)
	case realtime.EventNewComment, realtime.EventEditComment:
		return r.resolveComment(ctx, actor, envelope.Event, ref)
	case realtime.EventDeleteDiscussion:
		return r.resolveDeletion(ctx, actor, envelope.Event, models.DeletedDiscussion, ref.ID)
	case realtime.EventDeleteComment:
		return r.resolveDeletion(ctx, actor, envelope.Event, models.DeletedComment, ref.ID)
	default:
		return realtime.Publication{}, realtime.ErrUnsupportedEvent
	}
}

func (r *relayResolver) resolveMessage(ctx context.Context, actor realtime.Identity, event string, ref relayReference) (realtime.Publication, error) {
	message, err := r.messages.FindByID(ctx, ref.ID)
	if err != nil {
		return realtime.Publication{}, storeError(err)
	}

	owner := message.SenderID
	committed := true
	switch event {
	case realtime.EventMessageEdited:
		committed = message.IsEdited
	case realtime.EventMessageDeleted:
		committed = message.IsDeleted
	case realtime.EventMessageRead:
		owner = message.RecipientID
		committed = message.IsRead
	}

	if owner != actor.UserID && !actor.IsAdmin() {
		return realtime.Publication{}, realtime.ErrForbidden
	}
	if !committed {
		return realtime.Publication{}, realtime.ErrNotCommitted
	}

	response := dto.NewChatMessageResponse(message)
	if response.TempID == "" && event == realtime.EventNewMessage {
		response.TempID = ref.TempID
	}

	return realtime.Publication{
		Event:   event,
		Rooms:   realtime.MessageRooms(message.CourseID, message.SenderID, message.RecipientID),
		Payload: response,
	}, nil
}

func (r *relayResolver) resolveDiscussion(ctx context.Context, actor realtime.Identity, event string, ref relayReference) (realtime.Publication, error) {
	discussion, err := r.discussions.GetDiscussion(ctx, ref.ID)
	if err != nil {
		return realtime.Publication{}, storeError(err)
	}
	if discussion.CreatorID != actor.UserID && !actor.IsAdmin() {
		return realtime.Publication{}, realtime.ErrForbidden
	}

	rooms := []string{realtime.LectureRoom(discussion.LectureID)}
	if event == realtime.EventEditDiscussion {
		rooms = realtime.DiscussionRooms(discussion.LectureID, discussion.ID)
	}

	return realtime.Publication{Event: event, Rooms: rooms, Payload: dto.NewDiscussionResponse(discussion)}, nil
}

func (r *relayResolver) resolveComment(ctx context.Context, actor realtime.Identity, event string, ref relayReference) (realtime.Publication, error) {
	comment, err := r.discussions.GetComment(ctx, ref.ID)
	if err != nil {
		return realtime.Publication{}, storeError(err)
	}
	if comment.AuthorID != actor.UserID && !actor.IsAdmin() {
		return realtime.Publication{}, realtime.ErrForbidden
	}
	if event == realtime.EventEditComment && !comment.IsEdited {
		return realtime.Publication{}, realtime.ErrNotCommitted
	}

	return realtime.Publication{
		Event:   event,
		Rooms:   realtime.CommentRooms(comment.LectureID, comment.DiscussionID),
		Payload: dto.NewCommentResponse(comment),
	}, nil
}

// resolveDeletion accepts a delete relay only from whoever performed the
// deletion. Rooms come from the deletion record, never from the client.
func (r *relayResolver) resolveDeletion(ctx context.Context, actor realtime.Identity, event, entityType string, id uint) (realtime.Publication, error) {
	record, err := r.discussions.FindDeletion(ctx, entityType, id)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return realtime.Publication{}, err
		}
		if r.stillStored(ctx, entityType, id) {
			return realtime.Publication{}, realtime.ErrNotCommitted
		}
		return realtime.Publication{}, realtime.ErrEntityNotFound
	}
	if record.ActorID != actor.UserID && !actor.IsAdmin() {
		return realtime.Publication{}, realtime.ErrForbidden
	}

	payload := realtime.DeletedEntity{ID: record.EntityID, DiscussionID: record.DiscussionID, LectureID: record.LectureID}
	rooms := realtime.CommentRooms(record.LectureID, record.DiscussionID)
	if entityType == models.DeletedDiscussion {
		payload.DiscussionID = 0
		rooms = realtime.DiscussionRooms(record.LectureID, record.EntityID)
	}

	return realtime.Publication{Event: event, Rooms: rooms, Payload: payload}, nil
}

func (r *relayResolver) stillStored(ctx context.Context, entityType string, id uint) bool {
	var err error
	if entityType == models.DeletedDiscussion {
		_, err = r.discussions.GetDiscussion(ctx, id)
	} else {
		_, err = r.discussions.GetComment(ctx, id)
	}
	return err == nil
}

func storeError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return realtime.ErrEntityNotFound
	}
	return err
}
