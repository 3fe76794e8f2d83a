package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"social_platform/internal/service"
	"social_platform/pkg/logger"
)

// UserHandler serves profile lookups. Profiles themselves are edited by the
// account service.
type UserHandler struct {
	userService service.UserService
	log         logger.Logger
}

func NewUserHandler(userService service.UserService, log logger.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		log:         log,
	}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.userService.GetMe(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) Get(c *gin.Context) {
	viewerID, ok := currentUser(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	profile, err := h.userService.GetProfile(c.Request.Context(), viewerID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) GetByUsername(c *gin.Context) {
	viewerID, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.userService.GetProfileByUsername(c.Request.Context(), viewerID, c.Param("username"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
