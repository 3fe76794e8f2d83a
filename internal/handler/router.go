package handler

import (
	"github.com/gin-gonic/gin"
	"social_platform/internal/config"
	"social_platform/internal/middleware"
	"social_platform/pkg/logger"
)

func NewRouter(
	handlers *Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/server-info", handlers.Health.ServerInfo)

	// Event stream. The token may come in the query string.
	router.GET("/ws", authMiddleware.RequireAuth(), handlers.WebSocket.HandleEvents)

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth())
	v1.Use(rateLimitMiddleware.Limit("api", cfg.RateLimit.RequestsPerMinute))
	{
		users := v1.Group("/users")
		{
			users.GET("/me", handlers.User.GetMe)
			users.GET("/by-username/:username", handlers.User.GetByUsername)
			users.GET("/:userId", handlers.User.Get)
		}

		friends := v1.Group("/friends")
		{
			friends.GET("", handlers.Friend.List)
			friends.GET("/:userId/status", handlers.Friend.Status)
			friends.DELETE("/:userId", handlers.Friend.Remove)
		}

		requests := v1.Group("/friend-requests")
		{
			requests.POST("", rateLimitMiddleware.Limit("friend-requests", cfg.RateLimit.FriendRequestsPerMinute), handlers.Friend.Send)
			requests.GET("/sent", handlers.Friend.ListSent)
			requests.GET("/received", handlers.Friend.ListReceived)
			requests.POST("/:userId/accept", handlers.Friend.Accept)
			requests.POST("/:userId/decline", handlers.Friend.Decline)
			requests.DELETE("/:userId", handlers.Friend.Cancel)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", handlers.Notification.List)
			notifications.POST("/:id/read", handlers.Notification.MarkRead)
			notifications.DELETE("/:id", handlers.Notification.Remove)
		}

		conversations := v1.Group("/conversations")
		{
			conversations.POST("", handlers.Conversation.Create)
			conversations.GET("", handlers.Conversation.List)
			conversations.GET("/:id", handlers.Conversation.Get)
			conversations.DELETE("/:id", handlers.Conversation.Delete)
			conversations.PUT("/:id/access", handlers.Conversation.SetAccess)
			conversations.POST("/:id/join", handlers.Conversation.Join)
			conversations.POST("/:id/leave", handlers.Conversation.Leave)
			conversations.GET("/:id/can-post", handlers.Conversation.CanPost)

			conversations.POST("/:id/participants", handlers.Conversation.AddParticipant)
			conversations.DELETE("/:id/participants/:userId", handlers.Conversation.RemoveParticipant())
			conversations.PUT("/:id/admins/:userId", handlers.Conversation.PromoteAdmin())
			conversations.DELETE("/:id/admins/:userId", handlers.Conversation.DemoteAdmin())
			conversations.PUT("/:id/bans/:userId", handlers.Conversation.Ban())
			conversations.DELETE("/:id/bans/:userId", handlers.Conversation.Unban())
			conversations.PUT("/:id/mutes/:userId", handlers.Conversation.Mute())
			conversations.DELETE("/:id/mutes/:userId", handlers.Conversation.Unmute())
			conversations.GET("/:id/mutes/:userId", handlers.Conversation.MuteStatus)

			conversations.GET("/:id/messages", handlers.Chat.GetMessages)
			conversations.POST("/:id/messages", handlers.Chat.SendMessage)
		}
	}

	return router
}
