package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"social_platform/internal/domain"
	apperrors "social_platform/pkg/errors"
)

func (s *conversationService) PostMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message is empty", apperrors.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageLength {
		return nil, fmt.Errorf("%w: message is longer than %d characters", apperrors.ErrInvalidArgument, domain.MaxMessageLength)
	}

	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := conv.CheckPost(senderID, now); err != nil {
		return nil, err
	}
	if _, stale := conv.MuteState(senderID, now); stale {
		s.clearExpiredMutes(ctx, conversationID)
	}

	message := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      now,
	}
	if err := s.messageRepo.CreateMessage(ctx, message); err != nil {
		return nil, err
	}

	for _, userID := range conv.Participants.Slice() {
		s.emitter.EmitToUser(ctx, userID, domain.EventNewMessage, message)
	}

	return message, nil
}

func (s *conversationService) ListMessages(ctx context.Context, conversationID, userID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Banned.Has(userID) {
		return nil, apperrors.ErrBanned
	}
	if !conv.Participants.Has(userID) {
		return nil, apperrors.ErrNotMember
	}

	return s.messageRepo.GetMessages(ctx, conversationID, limit, offset)
}
