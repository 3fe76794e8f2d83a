package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"social_platform/internal/domain"
	"social_platform/internal/realtime"
	"social_platform/internal/repository"
	apperrors "social_platform/pkg/errors"
	"social_platform/pkg/logger"
)

type CreateConversationInput struct {
	Kind         domain.ConversationKind `json:"kind" binding:"required"`
	Name         string                  `json:"name"`
	Participants []uuid.UUID             `json:"participants"`
	Password     string                  `json:"password"`
}

type ConversationService interface {
	Create(ctx context.Context, creatorID uuid.UUID, in CreateConversationInput) (*domain.Conversation, error)
	Get(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)
	Delete(ctx context.Context, conversationID, actorID uuid.UUID) error
	SetAccess(ctx context.Context, conversationID, actorID uuid.UUID, kind domain.ConversationKind, password string) (*domain.Conversation, error)

	AddParticipant(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error)
	Join(ctx context.Context, conversationID, userID uuid.UUID, password string) (*domain.Conversation, error)
	RemoveParticipant(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error)
	PromoteAdmin(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error)
	DemoteAdmin(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error)
	Leave(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error)

	Ban(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error)
	Unban(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error)
	Mute(ctx context.Context, conversationID, actorID, targetID uuid.UUID, seconds int64) (*domain.Conversation, error)
	Unmute(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error)
	IsMuted(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	CanPost(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)

	PostMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, conversationID, userID uuid.UUID, limit, offset int) ([]*domain.Message, error)
}

type conversationService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	userRepo         repository.UserRepository
	notifications    NotificationService
	audit            AuditService
	emitter          realtime.Emitter
	maxAttempts      int
	bcryptCost       int
	now              clock
	log              logger.Logger
}

func NewConversationService(
	repos *repository.Repositories,
	notifications NotificationService,
	audit AuditService,
	emitter realtime.Emitter,
	maxAttempts int,
	log logger.Logger,
) ConversationService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &conversationService{
		conversationRepo: repos.Conversation,
		messageRepo:      repos.Message,
		userRepo:         repos.User,
		notifications:    notifications,
		audit:            audit,
		emitter:          emitter,
		maxAttempts:      maxAttempts,
		bcryptCost:       bcrypt.DefaultCost,
		now:              systemClock,
		log:              log,
	}
}

func (s *conversationService) Create(ctx context.Context, creatorID uuid.UUID, in CreateConversationInput) (*domain.Conversation, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown conversation kind %q", apperrors.ErrInvalidArgument, in.Kind)
	}

	others := make([]uuid.UUID, 0, len(in.Participants))
	seen := domain.NewUserSet(creatorID)
	for _, id := range in.Participants {
		if seen.Has(id) {
			continue
		}
		seen.Add(id)
		others = append(others, id)
	}
	for _, id := range seen.Slice() {
		if _, err := s.userRepo.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}

	if in.Kind == domain.ConversationDirect {
		return s.createDirect(ctx, creatorID, in.Participants, others)
	}

	var hash *string
	if in.Kind == domain.ConversationProtected {
		h, err := s.hashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		hash = &h
	}

	conv, err := domain.NewChannel(in.Kind, strings.TrimSpace(in.Name), creatorID, others, s.now())
	if err != nil {
		return nil, err
	}
	conv.PasswordHash = hash

	if err := s.conversationRepo.Create(ctx, conv); err != nil {
		return nil, err
	}

	s.log.Info("Conversation created", "conversation_id", conv.ID, "kind", conv.Kind, "owner_id", creatorID)
	s.auditEvent(ctx, creatorID, conv.ID, domain.EventTypeConversationCreated, map[string]interface{}{
		"kind":         conv.Kind,
		"participants": len(conv.Participants),
	})

	return conv, nil
}

// createDirect returns the existing thread for the pair if there is one.
func (s *conversationService) createDirect(ctx context.Context, creatorID uuid.UUID, requested, others []uuid.UUID) (*domain.Conversation, error) {
	if len(others) == 0 && len(requested) > 0 {
		return nil, fmt.Errorf("direct conversation with yourself: %w", apperrors.ErrSelfReference)
	}
	if len(others) != 1 {
		return nil, fmt.Errorf("%w: a direct conversation needs exactly one other participant", apperrors.ErrInvalidArgument)
	}
	otherID := others[0]

	existing, err := s.conversationRepo.FindDirect(ctx, creatorID, otherID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	conv, err := domain.NewDirectConversation(creatorID, otherID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.conversationRepo.Create(ctx, conv); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			// A concurrent create for the same pair won.
			return s.conversationRepo.FindDirect(ctx, creatorID, otherID)
		}
		return nil, err
	}

	s.log.Info("Direct conversation created", "conversation_id", conv.ID)
	return conv, nil
}

func (s *conversationService) Get(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Participants.Has(userID) {
		return conv, nil
	}
	switch conv.Kind {
	case domain.ConversationPublic, domain.ConversationProtected:
		return conv, nil
	}
	// Private threads are invisible to outsiders.
	return nil, fmt.Errorf("conversation %s: %w", conversationID, apperrors.ErrNotFound)
}

func (s *conversationService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	return s.conversationRepo.ListForUser(ctx, userID)
}

func (s *conversationService) Delete(ctx context.Context, conversationID, actorID uuid.UUID) error {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind == domain.ConversationDirect {
		return fmt.Errorf("%w: direct conversations cannot be deleted", apperrors.ErrInvalidState)
	}
	if !conv.IsOwner(actorID) {
		return fmt.Errorf("%w: only the owner can delete a conversation", apperrors.ErrForbidden)
	}
	if err := s.conversationRepo.Delete(ctx, conversationID); err != nil {
		return err
	}

	s.log.Info("Conversation deleted", "conversation_id", conversationID, "actor_id", actorID)
	s.auditEvent(ctx, actorID, conversationID, domain.EventTypeConversationDeleted, nil)
	return nil
}

func (s *conversationService) SetAccess(ctx context.Context, conversationID, actorID uuid.UUID, kind domain.ConversationKind, password string) (*domain.Conversation, error) {
	var hash *string
	if kind == domain.ConversationProtected {
		h, err := s.hashPassword(password)
		if err != nil {
			return nil, err
		}
		hash = &h
	}

	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		return c.SetAccess(actorID, kind, hash)
	})
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, actorID, conversationID, domain.EventTypeAccessChanged, map[string]interface{}{"kind": kind})
	return conv, nil
}

func (s *conversationService) AddParticipant(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		return nil, err
	}
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		return c.AddParticipant(actorID, targetID)
	})
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, actorID, conversationID, domain.EventTypeMemberAdded, map[string]interface{}{"user_id": targetID})
	return conv, nil
}

func (s *conversationService) Join(ctx context.Context, conversationID, userID uuid.UUID, password string) (*domain.Conversation, error) {
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		passwordOK := c.PasswordHash != nil &&
			bcrypt.CompareHashAndPassword([]byte(*c.PasswordHash), []byte(password)) == nil
		return c.Join(userID, passwordOK)
	})
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, userID, conversationID, domain.EventTypeMemberAdded, map[string]interface{}{"user_id": userID, "self": true})
	return conv, nil
}

func (s *conversationService) RemoveParticipant(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		return c.RemoveParticipant(actorID, targetID)
	})
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, actorID, conversationID, domain.EventTypeMemberRemoved, map[string]interface{}{"user_id": targetID})
	return conv, nil
}

func (s *conversationService) PromoteAdmin(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		return c.PromoteAdmin(actorID, targetID)
	})
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, actorID, conversationID, domain.EventTypeAdminPromoted, map[string]interface{}{"user_id": targetID})
	return conv, nil
}

func (s *conversationService) DemoteAdmin(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		return c.DemoteAdmin(actorID, targetID)
	})
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, actorID, conversationID, domain.EventTypeAdminDemoted, map[string]interface{}{"user_id": targetID})
	return conv, nil
}

func (s *conversationService) Leave(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	var wasOwner bool
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		wasOwner = c.IsOwner(userID)
		return c.Leave(userID)
	})
	if err != nil {
		return nil, err
	}

	if wasOwner {
		s.log.Warn("Owner left conversation, it is now ownerless", "conversation_id", conversationID, "user_id", userID)
	}
	s.auditEvent(ctx, userID, conversationID, domain.EventTypeMemberLeft, map[string]interface{}{"was_owner": wasOwner})
	return conv, nil
}

func (s *conversationService) Ban(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		return c.Ban(actorID, targetID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Member banned", "conversation_id", conversationID, "actor_id", actorID, "user_id", targetID)
	s.auditEvent(ctx, actorID, conversationID, domain.EventTypeMemberBanned, map[string]interface{}{"user_id": targetID})
	s.notify(ctx, Dispatch{
		Type:           domain.NotificationBan,
		SenderID:       actorID,
		ReceiverID:     targetID,
		ConversationID: &conv.ID,
		Payload:        map[string]any{"conversationId": conv.ID, "userId": targetID},
	})
	return conv, nil
}

func (s *conversationService) Unban(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		return c.Unban(actorID, targetID)
	})
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, actorID, conversationID, domain.EventTypeMemberUnbanned, map[string]interface{}{"user_id": targetID})
	return conv, nil
}

// maxMuteSeconds is the longest mute a time.Duration can hold.
const maxMuteSeconds = math.MaxInt64 / int64(time.Second)

func (s *conversationService) Mute(ctx context.Context, conversationID, actorID, targetID uuid.UUID, seconds int64) (*domain.Conversation, error) {
	if seconds <= 0 {
		return nil, fmt.Errorf("%w: mute duration must be positive", apperrors.ErrInvalidArgument)
	}
	if seconds > maxMuteSeconds {
		return nil, fmt.Errorf("%w: mute duration exceeds %d seconds", apperrors.ErrInvalidArgument, maxMuteSeconds)
	}
	duration := time.Duration(seconds) * time.Second

	var expiresAt time.Time
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		until, err := c.Mute(actorID, targetID, duration, s.now())
		expiresAt = until
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Member muted", "conversation_id", conversationID, "user_id", targetID, "expires_at", expiresAt)
	s.auditEvent(ctx, actorID, conversationID, domain.EventTypeMemberMuted, map[string]interface{}{
		"user_id":    targetID,
		"expires_at": expiresAt,
	})
	s.notify(ctx, Dispatch{
		Type:           domain.NotificationMute,
		SenderID:       actorID,
		ReceiverID:     targetID,
		ConversationID: &conv.ID,
		Payload: map[string]any{
			"conversationId": conv.ID,
			"userId":         targetID,
			"expiresAt":      expiresAt,
		},
	})
	return conv, nil
}

func (s *conversationService) Unmute(ctx context.Context, conversationID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
	var removed bool
	conv, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error {
		var err error
		removed, err = c.Unmute(actorID, targetID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if removed {
		s.auditEvent(ctx, actorID, conversationID, domain.EventTypeMemberUnmuted, map[string]interface{}{"user_id": targetID})
	}
	return conv, nil
}

// IsMuted evaluates the mute lazily. A lookup that hits an expired entry
// also clears it.
func (s *conversationService) IsMuted(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	muted, stale := conv.MuteState(userID, s.now())
	if stale {
		s.clearExpiredMutes(ctx, conversationID)
	}
	return muted, nil
}

func (s *conversationService) CanPost(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	now := s.now()
	if _, stale := conv.MuteState(userID, now); stale {
		s.clearExpiredMutes(ctx, conversationID)
	}
	return conv.CanPost(userID, now), nil
}

// clearExpiredMutes is best effort: a failed cleanup leaves an entry that
// every reader already treats as expired.
func (s *conversationService) clearExpiredMutes(ctx context.Context, conversationID uuid.UUID) {
	_, err := s.mutate(ctx, conversationID, func(c *domain.Conversation) error { return nil })
	if err != nil {
		s.log.Warn("Failed to clear expired mutes", "conversation_id", conversationID, "error", err)
	}
}

// mutate applies fn to a fresh copy of the conversation and saves it with an
// optimistic version check. On a version conflict the whole read-apply-save
// cycle is retried, up to maxAttempts times. Expired mutes are dropped on
// every save.
func (s *conversationService) mutate(ctx context.Context, conversationID uuid.UUID, fn func(c *domain.Conversation) error) (*domain.Conversation, error) {
	for attempt := 1; ; attempt++ {
		conv, err := s.conversationRepo.GetByID(ctx, conversationID)
		if err != nil {
			return nil, err
		}

		now := s.now()
		cleared := conv.ClearExpiredMutes(now)
		before := conv.Version
		if err := fn(conv); err != nil {
			return nil, err
		}
		conv.UpdatedAt = now

		err = s.conversationRepo.Update(ctx, conv)
		if err == nil {
			if cleared > 0 {
				s.log.Debug("Cleared expired mutes", "conversation_id", conversationID, "count", cleared)
			}
			return conv, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}
		if attempt >= s.maxAttempts {
			s.log.Warn("Giving up on conflicting conversation update",
				"conversation_id", conversationID, "attempts", attempt, "version", before)
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.log.Debug("Conversation update conflicted, retrying", "conversation_id", conversationID, "attempt", attempt)
	}
}

func (s *conversationService) hashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: protected conversations need a password", apperrors.ErrInvalidArgument)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash conversation password: %w", err)
	}
	return string(hash), nil
}

func (s *conversationService) auditEvent(ctx context.Context, actorID, conversationID uuid.UUID, eventType string, payload map[string]interface{}) {
	if err := s.audit.LogEvent(ctx, &actorID, &conversationID, eventType, payload); err != nil {
		s.log.Error("Failed to write audit log", "event_type", eventType, "conversation_id", conversationID, "error", err)
	}
}

func (s *conversationService) notify(ctx context.Context, d Dispatch) {
	if _, err := s.notifications.Notify(ctx, d); err != nil {
		s.log.Error("Failed to dispatch notification",
			"type", d.Type, "receiver_id", d.ReceiverID, "error", err)
	}
}
