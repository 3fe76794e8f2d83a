package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"social_platform/pkg/logger"
)

type Repositories struct {
	User          UserRepository
	FriendRequest FriendRequestRepository
	Conversation  ConversationRepository
	Message       MessageRepository
	Notification  NotificationRepository
	Audit         AuditRepository
	RateLimit     RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{
		User:          NewUserRepository(db, log),
		FriendRequest: NewFriendRequestRepository(db, log),
		Conversation:  NewConversationRepository(db, log),
		Message:       NewMessageRepository(db, log),
		Notification:  NewNotificationRepository(db, log),
		Audit:         NewAuditRepository(db, log),
		RateLimit:     NewRateLimitRepository(redis, log),
	}

	log.Info("Postgres repositories initialized")

	return repos
}

// isUniqueViolation reports whether err is Postgres error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
