package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"social_platform/internal/domain"
	"social_platform/internal/repository"
	apperrors "social_platform/pkg/errors"
	"social_platform/pkg/logger"
)

// PresenceChecker reports whether a user has a live session.
type PresenceChecker interface {
	IsOnline(userID uuid.UUID) bool
}

type FriendService interface {
	Send(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.FriendRequest, error)
	SendByUsername(ctx context.Context, senderID uuid.UUID, username string) (*domain.FriendRequest, error)
	Accept(ctx context.Context, receiverID, senderID uuid.UUID) (*domain.FriendRequest, error)
	Decline(ctx context.Context, receiverID, senderID uuid.UUID) (*domain.FriendRequest, error)
	Cancel(ctx context.Context, senderID, receiverID uuid.UUID) error
	ListSent(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error)
	ListReceived(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error)
	AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error)
	RemoveFriendship(ctx context.Context, userID, friendID uuid.UUID) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]*domain.Friend, error)
}

type friendService struct {
	requestRepo   repository.FriendRequestRepository
	userRepo      repository.UserRepository
	notifications NotificationService
	presence      PresenceChecker
	now           clock
	log           logger.Logger
}

func NewFriendService(
	requestRepo repository.FriendRequestRepository,
	userRepo repository.UserRepository,
	notifications NotificationService,
	presence PresenceChecker,
	log logger.Logger,
) FriendService {
	return &friendService{
		requestRepo:   requestRepo,
		userRepo:      userRepo,
		notifications: notifications,
		presence:      presence,
		now:           systemClock,
		log:           log,
	}
}

func (s *friendService) Send(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.FriendRequest, error) {
	if senderID == receiverID {
		return nil, fmt.Errorf("send friend request: %w", apperrors.ErrSelfReference)
	}
	for _, id := range []uuid.UUID{senderID, receiverID} {
		if _, err := s.userRepo.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}

	existing, err := s.requestRepo.FindBetween(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		switch r.Status {
		case domain.FriendRequestAccepted:
			return nil, apperrors.ErrAlreadyFriends
		case domain.FriendRequestPending:
			return nil, fmt.Errorf("a pending request already exists: %w", apperrors.ErrAlreadyExists)
		}
	}

	req, err := s.requestRepo.UpsertPending(ctx, senderID, receiverID, s.now())
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidState) {
			// Another send or accept got there between the check and the upsert.
			return nil, fmt.Errorf("a request already exists: %w", apperrors.ErrAlreadyExists)
		}
		return nil, err
	}

	s.log.Info("Friend request sent", "sender_id", senderID, "receiver_id", receiverID)

	s.notify(ctx, Dispatch{
		Type:       domain.NotificationFriendRequest,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Payload:    map[string]any{"senderId": senderID, "requestId": req.ID},
	})

	return req, nil
}

func (s *friendService) SendByUsername(ctx context.Context, senderID uuid.UUID, username string) (*domain.FriendRequest, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required: %w", apperrors.ErrInvalidArgument)
	}
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, senderID, user.ID)
}

func (s *friendService) Accept(ctx context.Context, receiverID, senderID uuid.UUID) (*domain.FriendRequest, error) {
	req, err := s.requestRepo.Transition(ctx, senderID, receiverID,
		domain.FriendRequestPending, domain.FriendRequestAccepted, s.now())
	if err != nil {
		return nil, err
	}

	s.log.Info("Friend request accepted", "sender_id", senderID, "receiver_id", receiverID)

	s.dropRequestNotification(ctx, senderID, receiverID)
	s.notify(ctx, Dispatch{
		Type:       domain.NotificationFriendAccepted,
		SenderID:   receiverID,
		ReceiverID: senderID,
		Payload:    map[string]any{"senderId": receiverID},
	})

	return req, nil
}

func (s *friendService) Decline(ctx context.Context, receiverID, senderID uuid.UUID) (*domain.FriendRequest, error) {
	req, err := s.requestRepo.Transition(ctx, senderID, receiverID,
		domain.FriendRequestPending, domain.FriendRequestDeclined, s.now())
	if err != nil {
		return nil, err
	}

	s.log.Info("Friend request declined", "sender_id", senderID, "receiver_id", receiverID)

	s.dropRequestNotification(ctx, senderID, receiverID)
	return req, nil
}

func (s *friendService) Cancel(ctx context.Context, senderID, receiverID uuid.UUID) error {
	req, err := s.requestRepo.DeletePending(ctx, senderID, receiverID)
	if err != nil {
		return err
	}

	s.log.Info("Friend request cancelled", "sender_id", senderID, "receiver_id", receiverID)

	s.dropRequestNotification(ctx, senderID, receiverID)
	s.notify(ctx, Dispatch{
		Type:       domain.NotificationFriendRequestCancelled,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Payload: map[string]any{
			"senderId":   senderID,
			"receiverId": receiverID,
			"requestId":  req.ID,
		},
	})
	return nil
}

func (s *friendService) ListSent(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	return s.requestRepo.ListBySender(ctx, userID, domain.FriendRequestPending)
}

func (s *friendService) ListReceived(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	return s.requestRepo.ListByReceiver(ctx, userID, domain.FriendRequestPending)
}

func (s *friendService) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if a == b {
		return false, nil
	}
	requests, err := s.requestRepo.FindBetween(ctx, a, b)
	if err != nil {
		return false, err
	}
	for _, r := range requests {
		if r.Status == domain.FriendRequestAccepted {
			return true, nil
		}
	}
	return false, nil
}

func (s *friendService) RemoveFriendship(ctx context.Context, userID, friendID uuid.UUID) error {
	if userID == friendID {
		return fmt.Errorf("remove friendship: %w", apperrors.ErrSelfReference)
	}
	if _, err := s.requestRepo.DeleteAccepted(ctx, userID, friendID); err != nil {
		return err
	}

	s.log.Info("Friendship removed", "user_id", userID, "friend_id", friendID)

	// Each side learns which user left its friend list.
	s.notify(ctx, Dispatch{
		Type:       domain.NotificationFriendRemoved,
		SenderID:   userID,
		ReceiverID: friendID,
		Payload:    map[string]any{"userId": userID},
	})
	s.notify(ctx, Dispatch{
		Type:       domain.NotificationFriendRemoved,
		SenderID:   friendID,
		ReceiverID: userID,
		Payload:    map[string]any{"userId": friendID},
	})
	return nil
}

func (s *friendService) ListFriends(ctx context.Context, userID uuid.UUID) ([]*domain.Friend, error) {
	accepted, err := s.requestRepo.ListAccepted(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return []*domain.Friend{}, nil
	}

	ids := make([]uuid.UUID, 0, len(accepted))
	for _, r := range accepted {
		ids = append(ids, r.Other(userID))
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	friends := make([]*domain.Friend, 0, len(users))
	for _, u := range users {
		online := s.presence != nil && s.presence.IsOnline(u.ID)
		friends = append(friends, &domain.Friend{User: u, Online: online})
	}
	return friends, nil
}

// dropRequestNotification removes the receiver's FRIEND_REQUEST entry once
// the request has been acted on.
func (s *friendService) dropRequestNotification(ctx context.Context, senderID, receiverID uuid.UUID) {
	if _, err := s.notifications.RemoveByKey(ctx, domain.NotificationFriendRequest, senderID, receiverID); err != nil {
		s.log.Error("Failed to remove friend request notification",
			"sender_id", senderID, "receiver_id", receiverID, "error", err)
	}
}

// notify runs after the state change is committed. A failure here leaves the
// transition in place and is only logged.
func (s *friendService) notify(ctx context.Context, d Dispatch) {
	if _, err := s.notifications.Notify(ctx, d); err != nil {
		s.log.Error("Failed to dispatch notification",
			"type", d.Type, "receiver_id", d.ReceiverID, "error", err)
	}
}
