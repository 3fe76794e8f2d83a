package service

import (
	"time"

	"social_platform/internal/config"
	"social_platform/internal/realtime"
	"social_platform/internal/repository"
	"social_platform/pkg/logger"
)

type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

type Services struct {
	Friend       FriendService
	Conversation ConversationService
	Notification NotificationService
	RateLimit    RateLimitService
	Audit        AuditService
	User         UserService
}

// NewServices wires the engines. emitter delivers events (the local gateway
// or the Redis fanout in front of it) and presence answers online checks.
func NewServices(
	repos *repository.Repositories,
	emitter realtime.Emitter,
	presence PresenceChecker,
	cfg *config.Config,
	log logger.Logger,
) *Services {
	audit := NewAuditService(repos.Audit, log)
	notifications := NewNotificationService(repos.Notification, emitter, log)

	services := &Services{
		Friend:       NewFriendService(repos.FriendRequest, repos.User, notifications, presence, log),
		Conversation: NewConversationService(repos, notifications, audit, emitter, cfg.Moderation.MaxRetries, log),
		Notification: notifications,
		RateLimit:    NewRateLimitService(repos.RateLimit, log),
		Audit:        audit,
		User:         NewUserService(repos.User, repos.FriendRequest, presence, log),
	}

	log.Info("Services initialized", "moderation_max_retries", cfg.Moderation.MaxRetries)

	return services
}
