package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"social_platform/internal/service"
	"social_platform/pkg/logger"
)

type ChatHandler struct {
	conversationService service.ConversationService
	log                 logger.Logger
}

func NewChatHandler(conversationService service.ConversationService, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		conversationService: conversationService,
		log:                 log,
	}
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.conversationService.ListMessages(c.Request.Context(), convID, userID, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	message, err := h.conversationService.PostMessage(c.Request.Context(), convID, userID, req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}
