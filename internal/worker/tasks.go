// Package worker moves audit trail writes off the request path through an
// asynq queue backed by Redis.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"social_platform/internal/domain"
	"social_platform/internal/repository"
	"social_platform/pkg/logger"
)

const TaskAppendAudit = "audit:append"

func newAppendAuditTask(entry *domain.AuditLog) (*asynq.Task, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAppendAudit, payload), nil
}

// appendAuditHandler writes queued audit entries to the durable store.
type appendAuditHandler struct {
	store   repository.AuditRepository
	timeout time.Duration
	log     logger.Logger
}

func (h *appendAuditHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var entry domain.AuditLog
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.store.CreateLog(ctx, &entry); err != nil {
		h.log.Error("Failed to append audit entry", "event_type", entry.EventType, "error", err)
		return err
	}
	return nil
}
