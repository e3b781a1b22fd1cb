package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/models"
	"github.com/noah-isme/newlearn-go-api/internal/observability"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
	"github.com/noah-isme/newlearn-go-api/internal/repository"
)

// MessageService exposes direct chat use-cases. Every mutation is broadcast
// only after the repository confirms it.
type MessageService interface {
	Send(ctx context.Context, senderID string, payload dto.ChatSendRequest) (dto.ChatMessageResponse, error)
	Edit(ctx context.Context, actorID string, id uint, payload dto.ChatEditRequest) (dto.ChatMessageResponse, error)
	Delete(ctx context.Context, actorID string, id uint) (dto.ChatMessageResponse, error)
	MarkRead(ctx context.Context, actorID string, id uint) (dto.ChatMessageResponse, error)
	Conversation(ctx context.Context, userID string, query dto.ChatConversationQuery) ([]dto.ChatMessageResponse, error)
	Inbox(ctx context.Context, userID, courseID string) ([]dto.ChatMessageResponse, error)
}

type messageService struct {
	repo      repository.MessageRepository
	publisher realtime.Publisher
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// NewMessageService constructs a chat message service.
func NewMessageService(repo repository.MessageRepository, publisher realtime.Publisher, validate *validator.Validate, logger zerolog.Logger) MessageService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &messageService{
		repo:      repo,
		publisher: publisher,
		validator: validate,
		logger:    logger.With().Str("component", "message_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/newlearn-go-api/internal/service/message"),
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

func (s *messageService) Send(ctx context.Context, senderID string, payload dto.ChatSendRequest) (dto.ChatMessageResponse, error) {
	payload.CourseID = strings.TrimSpace(payload.CourseID)
	payload.RecipientID = strings.TrimSpace(payload.RecipientID)
	payload.MediaURL = strings.TrimSpace(payload.MediaURL)
	senderID = strings.TrimSpace(senderID)

	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatMessageResponse{}, err
	}
	if senderID == "" || senderID == payload.RecipientID {
		return dto.ChatMessageResponse{}, ErrSelfMessage
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" && payload.MediaURL == "" {
		return dto.ChatMessageResponse{}, ErrEmptyMessage
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.course_id", payload.CourseID),
		attribute.String("chat.sender_id", senderID),
		attribute.String("chat.recipient_id", payload.RecipientID),
	))
	defer span.End()

	model := models.Message{
		CourseID:    payload.CourseID,
		SenderID:    senderID,
		RecipientID: payload.RecipientID,
		Content:     content,
		MediaURL:    payload.MediaURL,
		TempID:      strings.TrimSpace(payload.TempID),
	}
	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.ChatMessageResponse{}, err
	}

	kind := "text"
	if model.MediaURL != "" {
		kind = "media"
	}
	observability.ChatMessagesSent().WithLabelValues(kind).Inc()

	response := dto.NewChatMessageResponse(model)
	s.broadcast(spanCtx, realtime.EventNewMessage, response)

	s.logger.Debug().Uint("message_id", model.ID).Str("course_id", model.CourseID).Msg("chat message sent")
	return response, nil
}

func (s *messageService) Edit(ctx context.Context, actorID string, id uint, payload dto.ChatEditRequest) (dto.ChatMessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return dto.ChatMessageResponse{}, notFound(err, ErrMessageNotFound)
	}
	if existing.SenderID != actorID {
		return dto.ChatMessageResponse{}, ErrMessageForbidden
	}
	if existing.IsDeleted {
		return dto.ChatMessageResponse{}, ErrMessageDeleted
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	media := existing.MediaURL
	var mediaUpdate *string
	if payload.MediaURL != nil {
		trimmed := strings.TrimSpace(*payload.MediaURL)
		mediaUpdate = &trimmed
		media = trimmed
	}
	if content == "" && media == "" {
		return dto.ChatMessageResponse{}, ErrEmptyMessage
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.edit", trace.WithAttributes(attribute.Int("chat.message_id", int(id))))
	defer span.End()

	changed, err := s.repo.UpdateContent(spanCtx, id, content, mediaUpdate)
	if err != nil {
		span.RecordError(err)
		return dto.ChatMessageResponse{}, err
	}
	if !changed {
		return dto.ChatMessageResponse{}, ErrMessageDeleted
	}

	updated, err := s.repo.FindByID(spanCtx, id)
	if err != nil {
		return dto.ChatMessageResponse{}, notFound(err, ErrMessageNotFound)
	}

	response := dto.NewChatMessageResponse(updated)
	s.broadcast(spanCtx, realtime.EventMessageEdited, response)
	return response, nil
}

func (s *messageService) Delete(ctx context.Context, actorID string, id uint) (dto.ChatMessageResponse, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return dto.ChatMessageResponse{}, notFound(err, ErrMessageNotFound)
	}
	if existing.SenderID != actorID {
		return dto.ChatMessageResponse{}, ErrMessageForbidden
	}
	if existing.IsDeleted {
		return dto.NewChatMessageResponse(existing), nil
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.delete", trace.WithAttributes(attribute.Int("chat.message_id", int(id))))
	defer span.End()

	changed, err := s.repo.Tombstone(spanCtx, id, s.now().UTC())
	if err != nil {
		span.RecordError(err)
		return dto.ChatMessageResponse{}, err
	}

	tombstone, err := s.repo.FindByID(spanCtx, id)
	if err != nil {
		return dto.ChatMessageResponse{}, notFound(err, ErrMessageNotFound)
	}

	response := dto.NewChatMessageResponse(tombstone)
	if changed {
		s.broadcast(spanCtx, realtime.EventMessageDeleted, response)
	}
	return response, nil
}

func (s *messageService) MarkRead(ctx context.Context, actorID string, id uint) (dto.ChatMessageResponse, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return dto.ChatMessageResponse{}, notFound(err, ErrMessageNotFound)
	}
	if existing.RecipientID != actorID {
		return dto.ChatMessageResponse{}, ErrMessageForbidden
	}
	if existing.IsRead {
		return dto.NewChatMessageResponse(existing), nil
	}

	changed, err := s.repo.MarkRead(ctx, id, s.now().UTC())
	if err != nil {
		return dto.ChatMessageResponse{}, err
	}

	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return dto.ChatMessageResponse{}, notFound(err, ErrMessageNotFound)
	}

	response := dto.NewChatMessageResponse(updated)
	if changed {
		s.broadcast(ctx, realtime.EventMessageRead, response)
	}
	return response, nil
}

func (s *messageService) Conversation(ctx context.Context, userID string, query dto.ChatConversationQuery) ([]dto.ChatMessageResponse, error) {
	query.CourseID = strings.TrimSpace(query.CourseID)
	query.CounterpartID = strings.TrimSpace(query.CounterpartID)
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	messages, err := s.repo.ListConversation(ctx, repository.ConversationFilter{
		CourseID:      query.CourseID,
		UserID:        userID,
		CounterpartID: query.CounterpartID,
		Before:        query.Before,
		Limit:         query.Limit,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewChatMessageResponseSlice(messages), nil
}

func (s *messageService) Inbox(ctx context.Context, userID, courseID string) ([]dto.ChatMessageResponse, error) {
	messages, err := s.repo.ListForUser(ctx, userID, strings.TrimSpace(courseID))
	if err != nil {
		return nil, err
	}
	return dto.NewChatMessageResponseSlice(messages), nil
}

func (s *messageService) broadcast(ctx context.Context, event string, message dto.ChatMessageResponse) {
	if s.publisher == nil {
		return
	}

	rooms := realtime.MessageRooms(message.CourseID, message.SenderID, message.RecipientID)
	if err := s.publisher.Publish(ctx, event, rooms, message); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Uint("message_id", message.ID).Msg("failed to publish chat event")
	}
}
