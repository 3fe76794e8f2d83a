package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"social_platform/internal/domain"
	"social_platform/internal/realtime"
	"social_platform/internal/repository"
	"social_platform/pkg/logger"
)

// Dispatch describes one notification to deliver.
type Dispatch struct {
	Type           domain.NotificationType
	SenderID       uuid.UUID
	ReceiverID     uuid.UUID
	ConversationID *uuid.UUID
	Payload        map[string]any
}

type NotificationService interface {
	// Notify stores the notification unless its type is transient, then
	// pushes the event to the receiver's live sessions. The returned record
	// is nil for transient types.
	Notify(ctx context.Context, d Dispatch) (*domain.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	Remove(ctx context.Context, userID, notificationID uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*domain.Notification, error)
	RemoveByKey(ctx context.Context, t domain.NotificationType, senderID, receiverID uuid.UUID) (int64, error)
}

type notificationService struct {
	notificationRepo repository.NotificationRepository
	emitter          realtime.Emitter
	now              clock
	log              logger.Logger
}

func NewNotificationService(notificationRepo repository.NotificationRepository, emitter realtime.Emitter, log logger.Logger) NotificationService {
	return &notificationService{
		notificationRepo: notificationRepo,
		emitter:          emitter,
		now:              systemClock,
		log:              log,
	}
}

func (s *notificationService) Notify(ctx context.Context, d Dispatch) (*domain.Notification, error) {
	event := d.Type.EventName()
	if event == "" {
		return nil, fmt.Errorf("unknown notification type %q", d.Type)
	}

	payload := make(map[string]any, len(d.Payload)+1)
	for k, v := range d.Payload {
		payload[k] = v
	}

	var stored *domain.Notification
	if !d.Type.Transient() {
		stored = &domain.Notification{
			ID:             uuid.New(),
			Type:           d.Type,
			SenderID:       d.SenderID,
			ReceiverID:     d.ReceiverID,
			ConversationID: d.ConversationID,
			CreatedAt:      s.now(),
		}
		if err := s.notificationRepo.Create(ctx, stored); err != nil {
			return nil, fmt.Errorf("store %s notification: %w", d.Type, err)
		}
		payload["notificationId"] = stored.ID
	}

	s.emitter.EmitToUser(ctx, d.ReceiverID, event, payload)

	s.log.Debug("Notification dispatched",
		"type", d.Type,
		"sender_id", d.SenderID,
		"receiver_id", d.ReceiverID,
		"stored", stored != nil,
	)

	return stored, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.notificationRepo.MarkRead(ctx, notificationID, userID)
}

func (s *notificationService) Remove(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.notificationRepo.Delete(ctx, notificationID, userID)
}

func (s *notificationService) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*domain.Notification, error) {
	return s.notificationRepo.ListByReceiver(ctx, userID, unreadOnly)
}

func (s *notificationService) RemoveByKey(ctx context.Context, t domain.NotificationType, senderID, receiverID uuid.UUID) (int64, error) {
	return s.notificationRepo.DeleteByKey(ctx, t, senderID, receiverID)
}
