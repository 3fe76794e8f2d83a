package service

import (
	"context"

	"github.com/google/uuid"
	"social_platform/internal/domain"
	"social_platform/internal/repository"
	"social_platform/pkg/logger"
)

// Relationship describes how the viewer relates to a profile.
type Relationship string

const (
	RelationshipSelf            Relationship = "self"
	RelationshipNone            Relationship = "none"
	RelationshipFriends         Relationship = "friends"
	RelationshipRequestSent     Relationship = "request_sent"
	RelationshipRequestReceived Relationship = "request_received"
)

type Profile struct {
	User         *domain.User `json:"user"`
	Online       bool         `json:"online"`
	Relationship Relationship `json:"relationship"`
}

type UserService interface {
	GetMe(ctx context.Context, userID uuid.UUID) (*Profile, error)
	GetProfile(ctx context.Context, viewerID, userID uuid.UUID) (*Profile, error)
	GetProfileByUsername(ctx context.Context, viewerID uuid.UUID, username string) (*Profile, error)
}

type userService struct {
	userRepo    repository.UserRepository
	requestRepo repository.FriendRequestRepository
	presence    PresenceChecker
	log         logger.Logger
}

func NewUserService(userRepo repository.UserRepository, requestRepo repository.FriendRequestRepository, presence PresenceChecker, log logger.Logger) UserService {
	return &userService{
		userRepo:    userRepo,
		requestRepo: requestRepo,
		presence:    presence,
		log:         log,
	}
}

func (s *userService) GetMe(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.GetProfile(ctx, userID, userID)
}

func (s *userService) GetProfile(ctx context.Context, viewerID, userID uuid.UUID) (*Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, viewerID, user)
}

func (s *userService) GetProfileByUsername(ctx context.Context, viewerID uuid.UUID, username string) (*Profile, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, viewerID, user)
}

func (s *userService) profile(ctx context.Context, viewerID uuid.UUID, user *domain.User) (*Profile, error) {
	p := &Profile{
		User:         user,
		Online:       s.presence.IsOnline(user.ID),
		Relationship: RelationshipSelf,
	}
	if viewerID == user.ID {
		return p, nil
	}

	requests, err := s.requestRepo.FindBetween(ctx, viewerID, user.ID)
	if err != nil {
		return nil, err
	}
	p.Relationship = relationshipOf(viewerID, requests)
	return p, nil
}

// relationshipOf folds the requests stored for a pair. ACCEPTED in either
// direction wins over a PENDING one.
func relationshipOf(viewerID uuid.UUID, requests []*domain.FriendRequest) Relationship {
	rel := RelationshipNone
	for _, r := range requests {
		switch r.Status {
		case domain.FriendRequestAccepted:
			return RelationshipFriends
		case domain.FriendRequestPending:
			if r.SenderID == viewerID {
				rel = RelationshipRequestSent
			} else {
				rel = RelationshipRequestReceived
			}
		}
	}
	return rel
}
