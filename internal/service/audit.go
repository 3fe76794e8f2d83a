package service

import (
	"context"

	"github.com/google/uuid"
	"social_platform/internal/domain"
	"social_platform/internal/repository"
	"social_platform/pkg/logger"
)

type AuditService interface {
	LogEvent(ctx context.Context, actorUserID *uuid.UUID, conversationID *uuid.UUID, eventType string, payload map[string]interface{}) error
}

type auditService struct {
	auditRepo repository.AuditRepository
	now       clock
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		now:       systemClock,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actorUserID *uuid.UUID, conversationID *uuid.UUID, eventType string, payload map[string]interface{}) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	auditLog := &domain.AuditLog{
		EventTime:      s.now(),
		ActorUserID:    actorUserID,
		ConversationID: conversationID,
		EventType:      eventType,
		Payload:        payload,
	}

	return s.auditRepo.CreateLog(ctx, auditLog)
}
