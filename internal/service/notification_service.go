package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

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

const notificationBufferSize = 16

// NotificationService persists notifications and pushes them over the broadcaster.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
}

type notificationService struct {
	repo      repository.NotificationRepository
	publisher realtime.Publisher
	hub       *realtime.Hub
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
}

// NewNotificationService constructs a notification service. The hub backs SSE
// subscriptions and may be nil when streaming is not needed.
func NewNotificationService(repo repository.NotificationRepository, publisher realtime.Publisher, hub *realtime.Hub, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		publisher: publisher,
		hub:       hub,
		validator: validate,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/newlearn-go-api/internal/service/notification"),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	title := strings.TrimSpace(s.sanitizer.Sanitize(payload.Title))
	if title == "" {
		return dto.NotificationResponse{}, ErrEmptyContent
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.String("notification.user_id", payload.UserID),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	model := models.Notification{
		UserID:    payload.UserID,
		Type:      payload.Type,
		Title:     title,
		Body:      strings.TrimSpace(s.sanitizer.Sanitize(payload.Body)),
		RelatedID: strings.TrimSpace(payload.RelatedID),
	}
	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	if s.publisher != nil {
		if err := s.publisher.Publish(spanCtx, realtime.EventNewNotification, []string{realtime.UserRoom(model.UserID)}, response); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish notification")
		}
	}

	observability.NotificationsPublished().WithLabelValues(response.Type).Inc()
	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
	))
	defer span.End()

	notification, _, err := s.repo.MarkRead(spanCtx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, notFound(err, ErrNotificationNotFound)
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// Subscribe streams notifications for a user from the hub. The returned
// cleanup must be called once the consumer goes away.
func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	out := make(chan dto.NotificationResponse, notificationBufferSize)
	if s.hub == nil {
		close(out)
		return out, func() {}
	}

	sub := s.hub.Attach(realtime.Identity{UserID: userID}, notificationBufferSize)
	s.hub.Join(sub, realtime.UserRoom(userID))

	go func() {
		defer close(out)
		for {
			select {
			case frame := <-sub.Frames():
				var envelope realtime.Envelope
				if err := json.Unmarshal(frame, &envelope); err != nil || envelope.Event != realtime.EventNewNotification {
					continue
				}
				var notification dto.NotificationResponse
				if err := envelope.Decode(&notification); err != nil {
					continue
				}
				select {
				case out <- notification:
				default:
					s.logger.Debug().Str("user_id", userID).Msg("dropping notification for slow stream")
				}
			case <-sub.Done():
				return
			}
		}
	}()

	return out, func() { s.hub.Detach(sub) }
}
