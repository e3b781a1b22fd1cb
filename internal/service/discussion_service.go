package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/models"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
	"github.com/noah-isme/newlearn-go-api/internal/repository"
)

// NotificationPublisher exposes the subset of notification service needed by discussions.
type NotificationPublisher interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// DiscussionService exposes lecture discussion use-cases.
type DiscussionService interface {
	List(ctx context.Context, lectureID string) ([]dto.DiscussionResponse, error)
	Create(ctx context.Context, userID, role, lectureID string, payload dto.DiscussionCreateRequest) (dto.DiscussionResponse, error)
	Edit(ctx context.Context, actorID string, id uint, payload dto.DiscussionUpdateRequest) (dto.DiscussionResponse, error)
	Delete(ctx context.Context, actorID, role string, id uint) (dto.DiscussionResponse, error)
	ListComments(ctx context.Context, discussionID uint) ([]dto.CommentResponse, error)
	CreateComment(ctx context.Context, userID string, discussionID uint, payload dto.CommentCreateRequest) (dto.CommentResponse, error)
	EditComment(ctx context.Context, actorID string, id uint, payload dto.CommentUpdateRequest) (dto.CommentResponse, error)
	DeleteComment(ctx context.Context, actorID, role string, id uint) (dto.CommentResponse, error)
}

type discussionService struct {
	repo           repository.DiscussionRepository
	publisher      realtime.Publisher
	notifications  NotificationPublisher
	validator      *validator.Validate
	logger         zerolog.Logger
	tracer         trace.Tracer
	sanitizer      *bluemonday.Policy
	mentionPattern *regexp.Regexp
}

// NewDiscussionService constructs a discussion service.
func NewDiscussionService(repo repository.DiscussionRepository, publisher realtime.Publisher, notifications NotificationPublisher, validate *validator.Validate, logger zerolog.Logger) DiscussionService {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("br")

	return &discussionService{
		repo:           repo,
		publisher:      publisher,
		notifications:  notifications,
		validator:      validate,
		logger:         logger.With().Str("component", "discussion_service").Logger(),
		tracer:         otel.Tracer("github.com/noah-isme/newlearn-go-api/internal/service/discussion"),
		sanitizer:      policy,
		mentionPattern: regexp.MustCompile(`@([a-zA-Z0-9_\-:]+)`),
	}
}

func (s *discussionService) List(ctx context.Context, lectureID string) ([]dto.DiscussionResponse, error) {
	discussions, err := s.repo.ListByLecture(ctx, strings.TrimSpace(lectureID))
	if err != nil {
		return nil, err
	}
	return dto.NewDiscussionResponseSlice(discussions), nil
}

func (s *discussionService) Create(ctx context.Context, userID, role, lectureID string, payload dto.DiscussionCreateRequest) (dto.DiscussionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.DiscussionResponse{}, err
	}

	lectureID = strings.TrimSpace(lectureID)
	if lectureID == "" {
		return dto.DiscussionResponse{}, fmt.Errorf("lecture id is required: %w", ErrEmptyContent)
	}

	topic := strings.TrimSpace(s.sanitizer.Sanitize(payload.Topic))
	if topic == "" {
		return dto.DiscussionResponse{}, ErrEmptyContent
	}

	spanCtx, span := s.tracer.Start(ctx, "discussion.create", trace.WithAttributes(
		attribute.String("discussion.lecture_id", lectureID),
		attribute.String("discussion.creator_id", userID),
		attribute.String("discussion.role", role),
	))
	defer span.End()

	discussion := models.Discussion{
		LectureID: lectureID,
		CreatorID: userID,
		Topic:     topic,
		Metadata:  datatypes.JSONMap{"created_by_role": role},
	}
	if err := s.repo.CreateDiscussion(spanCtx, &discussion); err != nil {
		span.RecordError(err)
		return dto.DiscussionResponse{}, err
	}

	s.logger.Info().Uint("discussion_id", discussion.ID).Str("creator_id", userID).Msg("discussion created")

	response := dto.NewDiscussionResponse(discussion)
	s.broadcast(spanCtx, realtime.EventNewDiscussion, []string{realtime.LectureRoom(lectureID)}, response)
	return response, nil
}

func (s *discussionService) Edit(ctx context.Context, actorID string, id uint, payload dto.DiscussionUpdateRequest) (dto.DiscussionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.DiscussionResponse{}, err
	}

	discussion, err := s.repo.GetDiscussion(ctx, id)
	if err != nil {
		return dto.DiscussionResponse{}, notFound(err, ErrDiscussionNotFound)
	}
	if discussion.CreatorID != actorID {
		return dto.DiscussionResponse{}, ErrDiscussionForbidden
	}

	topic := strings.TrimSpace(s.sanitizer.Sanitize(payload.Topic))
	if topic == "" {
		return dto.DiscussionResponse{}, ErrEmptyContent
	}

	if err := s.repo.UpdateTopic(ctx, id, topic); err != nil {
		return dto.DiscussionResponse{}, notFound(err, ErrDiscussionNotFound)
	}

	updated, err := s.repo.GetDiscussion(ctx, id)
	if err != nil {
		return dto.DiscussionResponse{}, notFound(err, ErrDiscussionNotFound)
	}

	response := dto.NewDiscussionResponse(updated)
	s.broadcast(ctx, realtime.EventEditDiscussion, realtime.DiscussionRooms(updated.LectureID, updated.ID), response)
	return response, nil
}

func (s *discussionService) Delete(ctx context.Context, actorID, role string, id uint) (dto.DiscussionResponse, error) {
	discussion, err := s.repo.GetDiscussion(ctx, id)
	if err != nil {
		return dto.DiscussionResponse{}, notFound(err, ErrDiscussionNotFound)
	}
	if err := authorizeMutation(discussion.CreatorID, actorID, role); err != nil {
		return dto.DiscussionResponse{}, err
	}

	if err := s.repo.DeleteDiscussion(ctx, discussion, actorID); err != nil {
		return dto.DiscussionResponse{}, notFound(err, ErrDiscussionNotFound)
	}

	s.logger.Info().Uint("discussion_id", id).Str("actor_id", actorID).Msg("discussion deleted")

	response := dto.NewDiscussionResponse(discussion)
	s.broadcast(ctx, realtime.EventDeleteDiscussion, realtime.DiscussionRooms(discussion.LectureID, discussion.ID), response)
	return response, nil
}

func (s *discussionService) ListComments(ctx context.Context, discussionID uint) ([]dto.CommentResponse, error) {
	if _, err := s.repo.GetDiscussion(ctx, discussionID); err != nil {
		return nil, notFound(err, ErrDiscussionNotFound)
	}

	comments, err := s.repo.ListComments(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	return dto.NewCommentResponseSlice(comments), nil
}

func (s *discussionService) CreateComment(ctx context.Context, userID string, discussionID uint, payload dto.CommentCreateRequest) (dto.CommentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CommentResponse{}, err
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" {
		return dto.CommentResponse{}, ErrEmptyContent
	}

	discussion, err := s.repo.GetDiscussion(ctx, discussionID)
	if err != nil {
		return dto.CommentResponse{}, notFound(err, ErrDiscussionNotFound)
	}

	spanCtx, span := s.tracer.Start(ctx, "discussion.comment", trace.WithAttributes(
		attribute.Int("discussion.id", int(discussionID)),
		attribute.String("discussion.author_id", userID),
	))
	defer span.End()

	comment := models.Comment{
		DiscussionID: discussion.ID,
		LectureID:    discussion.LectureID,
		AuthorID:     userID,
		Content:      content,
	}
	if err := s.repo.CreateComment(spanCtx, &comment); err != nil {
		span.RecordError(err)
		return dto.CommentResponse{}, notFound(err, ErrDiscussionNotFound)
	}

	response := dto.NewCommentResponse(comment)
	s.broadcast(spanCtx, realtime.EventNewComment, realtime.CommentRooms(comment.LectureID, comment.DiscussionID), response)
	s.dispatchNotifications(spanCtx, discussion, comment)
	return response, nil
}

func (s *discussionService) EditComment(ctx context.Context, actorID string, id uint, payload dto.CommentUpdateRequest) (dto.CommentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CommentResponse{}, err
	}

	comment, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return dto.CommentResponse{}, notFound(err, ErrCommentNotFound)
	}
	if comment.AuthorID != actorID {
		return dto.CommentResponse{}, ErrDiscussionForbidden
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" {
		return dto.CommentResponse{}, ErrEmptyContent
	}

	if err := s.repo.UpdateComment(ctx, id, content); err != nil {
		return dto.CommentResponse{}, notFound(err, ErrCommentNotFound)
	}

	updated, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return dto.CommentResponse{}, notFound(err, ErrCommentNotFound)
	}

	response := dto.NewCommentResponse(updated)
	s.broadcast(ctx, realtime.EventEditComment, realtime.CommentRooms(updated.LectureID, updated.DiscussionID), response)
	return response, nil
}

func (s *discussionService) DeleteComment(ctx context.Context, actorID, role string, id uint) (dto.CommentResponse, error) {
	comment, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return dto.CommentResponse{}, notFound(err, ErrCommentNotFound)
	}
	if err := authorizeMutation(comment.AuthorID, actorID, role); err != nil {
		return dto.CommentResponse{}, err
	}

	if err := s.repo.DeleteComment(ctx, comment, actorID); err != nil {
		return dto.CommentResponse{}, notFound(err, ErrCommentNotFound)
	}

	response := dto.NewCommentResponse(comment)
	s.broadcast(ctx, realtime.EventDeleteComment, realtime.CommentRooms(comment.LectureID, comment.DiscussionID), response)
	return response, nil
}

func (s *discussionService) broadcast(ctx context.Context, event string, rooms []string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event, rooms, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to publish discussion event")
	}
}

// authorizeMutation allows the owner, or an admin, to remove content.
func authorizeMutation(ownerID, actorID, role string) error {
	if actorID != "" && actorID == ownerID {
		return nil
	}
	if strings.EqualFold(strings.TrimSpace(role), "admin") {
		return nil
	}
	return ErrDiscussionForbidden
}

func (s *discussionService) dispatchNotifications(ctx context.Context, discussion models.Discussion, comment models.Comment) {
	if s.notifications == nil {
		return
	}

	targets := make(map[string]struct{})
	if discussion.CreatorID != "" && discussion.CreatorID != comment.AuthorID {
		targets[discussion.CreatorID] = struct{}{}
	}
	for _, mention := range s.extractMentions(comment.Content) {
		if mention == comment.AuthorID {
			continue
		}
		targets[mention] = struct{}{}
	}

	for userID := range targets {
		payload := dto.NotificationCreateRequest{
			UserID:    userID,
			Type:      "discussion_comment",
			Title:     "New comment",
			Body:      fmt.Sprintf("New comment on '%s'", truncate(discussion.Topic, 80)),
			RelatedID: fmt.Sprintf("%d", discussion.ID),
		}
		if _, err := s.notifications.Publish(ctx, payload); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to publish discussion notification")
		}
	}
}

func (s *discussionService) extractMentions(content string) []string {
	matches := s.mentionPattern.FindAllStringSubmatch(content, -1)
	mentions := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		mention := strings.TrimSpace(match[1])
		if mention != "" {
			mentions = append(mentions, mention)
		}
	}
	return mentions
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
