package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"social_platform/internal/domain"
	"social_platform/pkg/logger"
)

const maxTaskRetry = 5

// AuditQueue satisfies repository.AuditRepository by enqueueing the entry
// instead of writing it. Server performs the write.
type AuditQueue struct {
	client *asynq.Client
	queue  string
	log    logger.Logger
}

func NewAuditQueue(redisOpt asynq.RedisConnOpt, queue string, log logger.Logger) *AuditQueue {
	return &AuditQueue{
		client: asynq.NewClient(redisOpt),
		queue:  queue,
		log:    log,
	}
}

func (q *AuditQueue) CreateLog(ctx context.Context, entry *domain.AuditLog) error {
	task, err := newAppendAuditTask(entry)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.queue),
		asynq.MaxRetry(maxTaskRetry),
	)
	if err != nil {
		q.log.Error("Failed to enqueue audit entry", "event_type", entry.EventType, "error", err)
		return err
	}

	q.log.Debug("Audit entry queued", "task_id", info.ID, "event_type", entry.EventType)
	return nil
}

func (q *AuditQueue) Close() error {
	return q.client.Close()
}
