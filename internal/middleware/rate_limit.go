package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"social_platform/internal/service"
	"social_platform/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

// Limit allows limit requests per minute for each caller under scope. The
// caller is the authenticated user when there is one, the client IP
// otherwise. A limit of zero disables the check.
func (m *RateLimitMiddleware) Limit(scope string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		key := scope + ":" + c.ClientIP()
		if v, ok := c.Get("user_id"); ok {
			if userID, ok := v.(uuid.UUID); ok {
				key = scope + ":" + userID.String()
			}
		}

		allowed, err := m.rateLimitService.Allow(c.Request.Context(), key, limit, time.Minute)
		if err != nil {
			// Fail open when the limiter store is unavailable.
			m.log.Error("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		c.Next()
	}
}
