package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"social_platform/internal/config"
	"social_platform/pkg/jwt"
	"social_platform/pkg/logger"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	mw := NewAuthMiddleware(config.JWTConfig{AccessSecret: "secret", Issuer: "accounts"}, logger.Nop())

	r := gin.New()
	r.GET("/me", mw.RequireAuth(), func(c *gin.Context) {
		id, _ := c.Get("user_id")
		c.String(http.StatusOK, id.(uuid.UUID).String())
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	r := newAuthRouter()
	userID := uuid.New()

	valid, _ := jwt.GenerateAccessToken(userID, "a@example.com", "secret", "accounts", time.Hour)
	expired, _ := jwt.GenerateAccessToken(userID, "a@example.com", "secret", "accounts", -time.Minute)
	wrongIssuer, _ := jwt.GenerateAccessToken(userID, "a@example.com", "secret", "elsewhere", time.Hour)
	wrongSecret, _ := jwt.GenerateAccessToken(userID, "a@example.com", "other", "accounts", time.Hour)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"valid header", "Bearer " + valid, "", http.StatusOK},
		{"valid query token", "", valid, http.StatusOK},
		{"malformed header", "Token " + valid, "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + wrongIssuer, "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + wrongSecret, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/me"
			if tt.query != "" {
				path += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusOK && w.Body.String() != userID.String() {
				t.Errorf("expected user id in context, got %q", w.Body.String())
			}
		})
	}
}
