package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"social_platform/internal/domain"
	"social_platform/internal/service"
	"social_platform/pkg/logger"
)

type ConversationHandler struct {
	conversationService service.ConversationService
	log                 logger.Logger
}

func NewConversationHandler(conversationService service.ConversationService, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		log:                 log,
	}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.CreateConversationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	conv, err := h.conversationService.Create(c.Request.Context(), userID, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	conversations, err := h.conversationService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	conv, err := h.conversationService.Get(c.Request.Context(), convID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.conversationService.Delete(c.Request.Context(), convID, userID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type SetAccessRequest struct {
	Kind     domain.ConversationKind `json:"kind" binding:"required"`
	Password string                  `json:"password"`
}

func (h *ConversationHandler) SetAccess(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req SetAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	conv, err := h.conversationService.SetAccess(c.Request.Context(), convID, userID, req.Kind, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

type JoinRequest struct {
	Password string `json:"password"`
}

func (h *ConversationHandler) Join(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req JoinRequest
	// The body is optional for conversations without a password.
	_ = c.ShouldBindJSON(&req)

	conv, err := h.conversationService.Join(c.Request.Context(), convID, userID, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Leave(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	conv, err := h.conversationService.Leave(c.Request.Context(), convID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

type AddParticipantRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	conv, err := h.conversationService.AddParticipant(c.Request.Context(), convID, userID, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

type moderationFunc func(c *gin.Context, convID, actorID, targetID uuid.UUID) (*domain.Conversation, error)

// moderate handles every route shaped /conversations/:id/<set>/:userId.
func (h *ConversationHandler) moderate(fn moderationFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := currentUser(c)
		if !ok {
			return
		}
		convID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		targetID, ok := uuidParam(c, "userId")
		if !ok {
			return
		}

		conv, err := fn(c, convID, actorID, targetID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func (h *ConversationHandler) RemoveParticipant() gin.HandlerFunc {
	return h.moderate(func(c *gin.Context, convID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
		return h.conversationService.RemoveParticipant(c.Request.Context(), convID, actorID, targetID)
	})
}

func (h *ConversationHandler) PromoteAdmin() gin.HandlerFunc {
	return h.moderate(func(c *gin.Context, convID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
		return h.conversationService.PromoteAdmin(c.Request.Context(), convID, actorID, targetID)
	})
}

func (h *ConversationHandler) DemoteAdmin() gin.HandlerFunc {
	return h.moderate(func(c *gin.Context, convID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
		return h.conversationService.DemoteAdmin(c.Request.Context(), convID, actorID, targetID)
	})
}

func (h *ConversationHandler) Ban() gin.HandlerFunc {
	return h.moderate(func(c *gin.Context, convID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
		return h.conversationService.Ban(c.Request.Context(), convID, actorID, targetID)
	})
}

func (h *ConversationHandler) Unban() gin.HandlerFunc {
	return h.moderate(func(c *gin.Context, convID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
		return h.conversationService.Unban(c.Request.Context(), convID, actorID, targetID)
	})
}

func (h *ConversationHandler) Unmute() gin.HandlerFunc {
	return h.moderate(func(c *gin.Context, convID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
		return h.conversationService.Unmute(c.Request.Context(), convID, actorID, targetID)
	})
}

type MuteRequest struct {
	Seconds int64 `json:"seconds" binding:"required"`
}

func (h *ConversationHandler) Mute() gin.HandlerFunc {
	return h.moderate(func(c *gin.Context, convID, actorID, targetID uuid.UUID) (*domain.Conversation, error) {
		var req MuteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			// A zero or missing duration is rejected by the service.
			req.Seconds = 0
		}
		return h.conversationService.Mute(c.Request.Context(), convID, actorID, targetID, req.Seconds)
	})
}

func (h *ConversationHandler) MuteStatus(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	muted, err := h.conversationService.IsMuted(c.Request.Context(), convID, targetID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (h *ConversationHandler) CanPost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	allowed, err := h.conversationService.CanPost(c.Request.Context(), convID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_post": allowed})
}
