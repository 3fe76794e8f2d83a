package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"social_platform/internal/config"
	"social_platform/internal/domain"
	"social_platform/internal/middleware"
	"social_platform/internal/realtime"
	"social_platform/internal/repository/memory"
	"social_platform/internal/service"
	"social_platform/pkg/jwt"
	"social_platform/pkg/logger"
)

const testSecret = "test-secret"

type testServer struct {
	router *gin.Engine
	users  *memory.UserStore
}

func newTestServer(t *testing.T, friendLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{AccessSecret: testSecret},
		Storage:     config.StorageConfig{Driver: config.StorageDriverMemory},
		Realtime:    config.RealtimeConfig{SendBuffer: 16},
		Moderation:  config.ModerationConfig{MaxRetries: 3},
		RateLimit:   config.RateLimitConfig{FriendRequestsPerMinute: friendLimit},
	}
	log := logger.Nop()

	repos, users := memory.NewRepositories()
	gateway := realtime.NewGateway(log)
	services := service.NewServices(repos, gateway, gateway, cfg, log)
	handlers := NewHandlers(services, gateway, cfg, log)

	router := NewRouter(handlers,
		middleware.NewAuthMiddleware(cfg.JWT, log),
		middleware.NewRateLimitMiddleware(services.RateLimit, log),
		cfg, log)

	return &testServer{router: router, users: users}
}

func (s *testServer) user(t *testing.T, name string) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	s.users.Add(&domain.User{ID: id, Username: name, Email: name + "@example.com"})
	token, err := jwt.GenerateAccessToken(id, name+"@example.com", testSecret, "", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return id, token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)
	if w := s.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRequiresToken(t *testing.T) {
	s := newTestServer(t, 0)
	if w := s.do(t, http.MethodGet, "/api/v1/friends", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/friends", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", w.Code)
	}
}

func TestFriendRequestFlow(t *testing.T) {
	s := newTestServer(t, 0)
	aliceID, alice := s.user(t, "alice")
	bobID, bob := s.user(t, "bob")

	w := s.do(t, http.MethodPost, "/api/v1/friend-requests", alice, map[string]any{"username": "bob"})
	if w.Code != http.StatusCreated {
		t.Fatalf("send: expected 201, got %d %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodPost, "/api/v1/friend-requests", alice, map[string]any{"receiver_id": bobID})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate send: expected 409, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/v1/friend-requests", alice, map[string]any{"receiver_id": aliceID})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self send: expected 400, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/notifications?unread=true", bob, nil)
	var notes []domain.Notification
	json.Unmarshal(w.Body.Bytes(), &notes)
	if len(notes) != 1 {
		t.Fatalf("expected one notification for bob, got %s", w.Body)
	}

	w = s.do(t, http.MethodPost, "/api/v1/friend-requests/"+aliceID.String()+"/accept", bob, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d %s", w.Code, w.Body)
	}
	w = s.do(t, http.MethodPost, "/api/v1/friend-requests/"+aliceID.String()+"/accept", bob, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second accept: expected 409, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/friends/"+bobID.String()+"/status", alice, nil)
	var status map[string]bool
	json.Unmarshal(w.Body.Bytes(), &status)
	if !status["friends"] {
		t.Errorf("expected friends, got %s", w.Body)
	}

	if w := s.do(t, http.MethodDelete, "/api/v1/friends/"+aliceID.String(), bob, nil); w.Code != http.StatusNoContent {
		t.Errorf("unfriend: expected 204, got %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/v1/friends/"+aliceID.String(), bob, nil); w.Code != http.StatusNotFound {
		t.Errorf("second unfriend: expected 404, got %d", w.Code)
	}
}

func TestFriendRequestRateLimit(t *testing.T) {
	s := newTestServer(t, 1)
	_, alice := s.user(t, "alice")
	s.user(t, "bob")
	s.user(t, "carol")

	if w := s.do(t, http.MethodPost, "/api/v1/friend-requests", alice, map[string]any{"username": "bob"}); w.Code != http.StatusCreated {
		t.Fatalf("first send: expected 201, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/friend-requests", alice, map[string]any{"username": "carol"}); w.Code != http.StatusTooManyRequests {
		t.Errorf("second send: expected 429, got %d", w.Code)
	}
}

func TestConversationModerationOverHTTP(t *testing.T) {
	s := newTestServer(t, 0)
	_, owner := s.user(t, "owner")
	adminID, admin := s.user(t, "admin")
	memberID, member := s.user(t, "member")

	w := s.do(t, http.MethodPost, "/api/v1/conversations", owner, map[string]any{
		"kind":         "PRIVATE",
		"name":         "team",
		"participants": []uuid.UUID{adminID, memberID},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", w.Code, w.Body)
	}
	var conv domain.Conversation
	json.Unmarshal(w.Body.Bytes(), &conv)
	base := "/api/v1/conversations/" + conv.ID.String()

	if w := s.do(t, http.MethodPut, base+"/bans/"+adminID.String(), member, nil); w.Code != http.StatusForbidden {
		t.Errorf("member banning: expected 403, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPut, base+"/admins/"+adminID.String(), owner, nil); w.Code != http.StatusOK {
		t.Fatalf("promote: expected 200, got %d %s", w.Code, w.Body)
	}
	if w := s.do(t, http.MethodPut, base+"/mutes/"+memberID.String(), admin, map[string]any{"seconds": 0}); w.Code != http.StatusBadRequest {
		t.Errorf("zero mute: expected 400, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPut, base+"/mutes/"+memberID.String(), admin, map[string]any{"seconds": 600}); w.Code != http.StatusOK {
		t.Fatalf("mute: expected 200, got %d %s", w.Code, w.Body)
	}
	if w := s.do(t, http.MethodPost, base+"/messages", member, map[string]any{"content": "hi"}); w.Code != http.StatusForbidden {
		t.Errorf("muted post: expected 403, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPut, base+"/bans/"+memberID.String(), admin, nil); w.Code != http.StatusOK {
		t.Fatalf("ban: expected 200, got %d %s", w.Code, w.Body)
	}
	if w := s.do(t, http.MethodPost, base+"/participants", owner, map[string]any{"user_id": memberID}); w.Code != http.StatusForbidden {
		t.Errorf("re-adding banned user: expected 403, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, base, member, nil); w.Code != http.StatusNotFound {
		t.Errorf("banned user reading private conversation: expected 404, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/conversations/not-a-uuid", owner, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
}
