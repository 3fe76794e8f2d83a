package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"social_platform/internal/service"
	"social_platform/pkg/logger"
)

type FriendHandler struct {
	friendService service.FriendService
	log           logger.Logger
}

func NewFriendHandler(friendService service.FriendService, log logger.Logger) *FriendHandler {
	return &FriendHandler{
		friendService: friendService,
		log:           log,
	}
}

// SendRequest accepts either a receiver id or a username.
type SendRequest struct {
	ReceiverID *uuid.UUID `json:"receiver_id"`
	Username   string     `json:"username"`
}

func (h *FriendHandler) Send(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	switch {
	case req.ReceiverID != nil:
		fr, err := h.friendService.Send(ctx, userID, *req.ReceiverID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, fr)
	case req.Username != "":
		fr, err := h.friendService.SendByUsername(ctx, userID, req.Username)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, fr)
	default:
		badRequest(c, errors.New("receiver_id or username is required"))
	}
}

// Accept and Decline take the sender's id: the caller is the receiver.
func (h *FriendHandler) Accept(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	senderID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	fr, err := h.friendService.Accept(c.Request.Context(), userID, senderID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fr)
}

func (h *FriendHandler) Decline(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	senderID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	fr, err := h.friendService.Decline(c.Request.Context(), userID, senderID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fr)
}

// Cancel takes the receiver's id: the caller is the sender.
func (h *FriendHandler) Cancel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	receiverID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	if err := h.friendService.Cancel(c.Request.Context(), userID, receiverID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FriendHandler) ListSent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	requests, err := h.friendService.ListSent(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (h *FriendHandler) ListReceived(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	requests, err := h.friendService.ListReceived(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (h *FriendHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	friends, err := h.friendService.ListFriends(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, friends)
}

func (h *FriendHandler) Status(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	otherID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	friends, err := h.friendService.AreFriends(c.Request.Context(), userID, otherID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

func (h *FriendHandler) Remove(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	friendID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	if err := h.friendService.RemoveFriendship(c.Request.Context(), userID, friendID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
