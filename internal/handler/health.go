package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"social_platform/internal/config"
)

type HealthHandler struct {
	environment string
	storage     string
}

func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		environment: cfg.Environment,
		storage:     cfg.Storage.Driver,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "social-platform",
	})
}

// ServerInfo tells clients where the API and the event stream live.
func (h *HealthHandler) ServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"environment": h.environment,
		"storage":     h.storage,
		"api_base":    "/api/v1",
		"events_url":  "/ws",
	})
}
