package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"social_platform/internal/domain"
	apperrors "social_platform/pkg/errors"
	"social_platform/pkg/logger"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByReceiver(ctx context.Context, receiverID uuid.UUID, unreadOnly bool) ([]*domain.Notification, error)
	// MarkRead and Delete are scoped to the receiver: nobody else owns the row.
	MarkRead(ctx context.Context, id, receiverID uuid.UUID) error
	Delete(ctx context.Context, id, receiverID uuid.UUID) error
	DeleteByKey(ctx context.Context, t domain.NotificationType, senderID, receiverID uuid.UUID) (int64, error)
}

type notificationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, log logger.Logger) NotificationRepository {
	return &notificationRepository{db: db, log: log}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, type, sender_id, receiver_id, conversation_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		n.ID, n.Type, n.SenderID, n.ReceiverID, n.ConversationID, n.Read, n.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create notification", "error", err)
		return err
	}
	return nil
}

func (r *notificationRepository) ListByReceiver(ctx context.Context, receiverID uuid.UUID, unreadOnly bool) ([]*domain.Notification, error) {
	query := `
		SELECT id, type, sender_id, receiver_id, conversation_id, read, created_at
		FROM notifications
		WHERE receiver_id = $1 AND ($2 = false OR read = false)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, receiverID, unreadOnly)
	if err != nil {
		r.log.Error("Failed to list notifications", "error", err)
		return nil, err
	}

	notifications, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Notification, error) {
		n := &domain.Notification{}
		err := row.Scan(&n.ID, &n.Type, &n.SenderID, &n.ReceiverID, &n.ConversationID, &n.Read, &n.CreatedAt)
		return n, err
	})
	if err != nil {
		r.log.Error("Failed to scan notifications", "error", err)
		return nil, err
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, receiverID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = true WHERE id = $1 AND receiver_id = $2`, id, receiverID)
	if err != nil {
		r.log.Error("Failed to mark notification read", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, id, receiverID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND receiver_id = $2`, id, receiverID)
	if err != nil {
		r.log.Error("Failed to delete notification", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *notificationRepository) DeleteByKey(ctx context.Context, t domain.NotificationType, senderID, receiverID uuid.UUID) (int64, error) {
	query := `DELETE FROM notifications WHERE type = $1 AND sender_id = $2 AND receiver_id = $3`

	tag, err := r.db.Exec(ctx, query, t, senderID, receiverID)
	if err != nil {
		r.log.Error("Failed to delete notifications", "type", t, "error", err)
		return 0, err
	}
	return tag.RowsAffected(), nil
}
