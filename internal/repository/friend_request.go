package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"social_platform/internal/domain"
	apperrors "social_platform/pkg/errors"
	"social_platform/pkg/logger"
)

// FriendRequestRepository persists friend requests. Every state transition
// is a single conditional statement, so two racing callers can never both
// observe the same source state.
type FriendRequestRepository interface {
	Get(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.FriendRequest, error)
	FindBetween(ctx context.Context, a, b uuid.UUID) ([]*domain.FriendRequest, error)
	// UpsertPending creates a PENDING request, or resets a DECLINED one back
	// to PENDING. It returns ErrInvalidState when a PENDING or ACCEPTED
	// record already exists for the pair in either direction.
	UpsertPending(ctx context.Context, senderID, receiverID uuid.UUID, now time.Time) (*domain.FriendRequest, error)
	// Transition moves a request from one status to another. It returns
	// ErrNotFound if no record exists and ErrInvalidState if the stored
	// status is not from.
	Transition(ctx context.Context, senderID, receiverID uuid.UUID, from, to domain.FriendRequestStatus, now time.Time) (*domain.FriendRequest, error)
	DeletePending(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.FriendRequest, error)
	DeleteAccepted(ctx context.Context, a, b uuid.UUID) (*domain.FriendRequest, error)
	ListBySender(ctx context.Context, senderID uuid.UUID, status domain.FriendRequestStatus) ([]*domain.FriendRequest, error)
	ListByReceiver(ctx context.Context, receiverID uuid.UUID, status domain.FriendRequestStatus) ([]*domain.FriendRequest, error)
	ListAccepted(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error)
}

type friendRequestRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewFriendRequestRepository(db *pgxpool.Pool, log logger.Logger) FriendRequestRepository {
	return &friendRequestRepository{db: db, log: log}
}

const friendRequestColumns = `id, sender_id, receiver_id, status, created_at, updated_at`

func scanFriendRequest(row pgx.Row) (*domain.FriendRequest, error) {
	req := &domain.FriendRequest{}
	err := row.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *friendRequestRepository) Get(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.FriendRequest, error) {
	query := `SELECT ` + friendRequestColumns + ` FROM friend_requests WHERE sender_id = $1 AND receiver_id = $2`

	req, err := scanFriendRequest(r.db.QueryRow(ctx, query, senderID, receiverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("friend request: %w", apperrors.ErrNotFound)
		}
		r.log.Error("Failed to get friend request", "error", err)
		return nil, err
	}
	return req, nil
}

func (r *friendRequestRepository) FindBetween(ctx context.Context, a, b uuid.UUID) ([]*domain.FriendRequest, error) {
	query := `
		SELECT ` + friendRequestColumns + `
		FROM friend_requests
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
	`
	return r.list(ctx, query, a, b)
}

func (r *friendRequestRepository) UpsertPending(ctx context.Context, senderID, receiverID uuid.UUID, now time.Time) (*domain.FriendRequest, error) {
	query := `
		INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'PENDING', $4, $4)
		ON CONFLICT (sender_id, receiver_id) DO UPDATE
		SET status = 'PENDING', updated_at = EXCLUDED.updated_at
		WHERE friend_requests.status = 'DECLINED'
		RETURNING ` + friendRequestColumns

	req, err := scanFriendRequest(r.db.QueryRow(ctx, query, uuid.New(), senderID, receiverID, now))
	if err != nil {
		// No row: this direction is PENDING or ACCEPTED. Unique violation:
		// the opposite direction is.
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return nil, fmt.Errorf("friend request: %w", apperrors.ErrInvalidState)
		}
		r.log.Error("Failed to upsert friend request", "error", err)
		return nil, err
	}
	return req, nil
}

func (r *friendRequestRepository) Transition(ctx context.Context, senderID, receiverID uuid.UUID, from, to domain.FriendRequestStatus, now time.Time) (*domain.FriendRequest, error) {
	query := `
		UPDATE friend_requests
		SET status = $4, updated_at = $5
		WHERE sender_id = $1 AND receiver_id = $2 AND status = $3
		RETURNING ` + friendRequestColumns

	req, err := scanFriendRequest(r.db.QueryRow(ctx, query, senderID, receiverID, from, to, now))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.log.Error("Failed to transition friend request", "error", err)
		return nil, err
	}

	// Nothing matched: either there is no record or it left `from` already.
	if _, getErr := r.Get(ctx, senderID, receiverID); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("friend request is not %s: %w", from, apperrors.ErrInvalidState)
}

func (r *friendRequestRepository) DeletePending(ctx context.Context, senderID, receiverID uuid.UUID) (*domain.FriendRequest, error) {
	query := `
		DELETE FROM friend_requests
		WHERE sender_id = $1 AND receiver_id = $2 AND status = 'PENDING'
		RETURNING ` + friendRequestColumns

	req, err := scanFriendRequest(r.db.QueryRow(ctx, query, senderID, receiverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pending friend request: %w", apperrors.ErrNotFound)
		}
		r.log.Error("Failed to delete friend request", "error", err)
		return nil, err
	}
	return req, nil
}

func (r *friendRequestRepository) DeleteAccepted(ctx context.Context, a, b uuid.UUID) (*domain.FriendRequest, error) {
	query := `
		DELETE FROM friend_requests
		WHERE status = 'ACCEPTED'
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		RETURNING ` + friendRequestColumns

	req, err := scanFriendRequest(r.db.QueryRow(ctx, query, a, b))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("friendship: %w", apperrors.ErrNotFound)
		}
		r.log.Error("Failed to delete friendship", "error", err)
		return nil, err
	}
	return req, nil
}

func (r *friendRequestRepository) ListBySender(ctx context.Context, senderID uuid.UUID, status domain.FriendRequestStatus) ([]*domain.FriendRequest, error) {
	query := `
		SELECT ` + friendRequestColumns + `
		FROM friend_requests
		WHERE sender_id = $1 AND status = $2
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, senderID, status)
}

func (r *friendRequestRepository) ListByReceiver(ctx context.Context, receiverID uuid.UUID, status domain.FriendRequestStatus) ([]*domain.FriendRequest, error) {
	query := `
		SELECT ` + friendRequestColumns + `
		FROM friend_requests
		WHERE receiver_id = $1 AND status = $2
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, receiverID, status)
}

func (r *friendRequestRepository) ListAccepted(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	query := `
		SELECT ` + friendRequestColumns + `
		FROM friend_requests
		WHERE status = 'ACCEPTED' AND (sender_id = $1 OR receiver_id = $1)
		ORDER BY updated_at ASC
	`
	return r.list(ctx, query, userID)
}

func (r *friendRequestRepository) list(ctx context.Context, query string, args ...any) ([]*domain.FriendRequest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list friend requests", "error", err)
		return nil, err
	}
	defer rows.Close()

	requests := []*domain.FriendRequest{}
	for rows.Next() {
		req, err := scanFriendRequest(rows)
		if err != nil {
			r.log.Error("Failed to scan friend request", "error", err)
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}
