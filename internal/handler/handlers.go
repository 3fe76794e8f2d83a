package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"social_platform/internal/config"
	"social_platform/internal/realtime"
	"social_platform/internal/service"
	apperrors "social_platform/pkg/errors"
	"social_platform/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Friend       *FriendHandler
	Conversation *ConversationHandler
	Chat         *ChatHandler
	Notification *NotificationHandler
	WebSocket    *WebSocketHandler
	User         *UserHandler
}

func NewHandlers(services *service.Services, gateway *realtime.Gateway, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(cfg),
		Friend:       NewFriendHandler(services.Friend, log),
		Conversation: NewConversationHandler(services.Conversation, log),
		Chat:         NewChatHandler(services.Conversation, log),
		Notification: NewNotificationHandler(services.Notification, log),
		WebSocket:    NewWebSocketHandler(gateway, cfg.Realtime.SendBuffer, log),
		User:         NewUserHandler(services.User, log),
	}
}

// currentUser returns the id the auth middleware stored. Routes behind
// RequireAuth always have it.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return uuid.Nil, false
	}
	userID, ok := v.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return uuid.Nil, false
	}
	return userID, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return uuid.Nil, false
	}
	return id, true
}

// fail hands err to the ErrorHandler middleware, which picks the status.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func badRequest(c *gin.Context, err error) {
	fail(c, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err))
}
