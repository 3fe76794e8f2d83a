package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"social_platform/internal/domain"
	"social_platform/internal/repository"
	"social_platform/internal/repository/memory"
	"social_platform/pkg/logger"
)

type sentEvent struct {
	userID  uuid.UUID
	event   string
	payload any
}

// recordingEmitter stands in for the gateway. Only users marked online
// receive events, the way a real gateway drops events for absent users.
type recordingEmitter struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	events []sentEvent
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{online: make(map[uuid.UUID]bool)}
}

func (e *recordingEmitter) EmitToUser(_ context.Context, userID uuid.UUID, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.online[userID] {
		e.events = append(e.events, sentEvent{userID: userID, event: event, payload: payload})
	}
}

func (e *recordingEmitter) Broadcast(_ context.Context, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.online {
		e.events = append(e.events, sentEvent{userID: id, event: event, payload: payload})
	}
}

func (e *recordingEmitter) IsOnline(userID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online[userID]
}

func (e *recordingEmitter) connect(ids ...uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		e.online[id] = true
	}
}

func (e *recordingEmitter) received(userID uuid.UUID, event string) []sentEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []sentEvent
	for _, ev := range e.events {
		if ev.userID == userID && ev.event == event {
			out = append(out, ev)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	repos         *repository.Repositories
	users         *memory.UserStore
	audit         *memory.AuditStore
	emitter       *recordingEmitter
	clock         *fakeClock
	notifications NotificationService
	friends       *friendService
	conversations *conversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Nop()
	repos, users := memory.NewRepositories()
	clk := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	emitter := newRecordingEmitter()

	notif := NewNotificationService(repos.Notification, emitter, log).(*notificationService)
	notif.now = clk.Now
	audit := NewAuditService(repos.Audit, log).(*auditService)
	audit.now = clk.Now

	friends := NewFriendService(repos.FriendRequest, repos.User, notif, emitter, log).(*friendService)
	friends.now = clk.Now

	convs := NewConversationService(repos, notif, audit, emitter, 3, log).(*conversationService)
	convs.now = clk.Now
	convs.bcryptCost = bcrypt.MinCost

	return &fixture{
		repos:         repos,
		users:         users,
		audit:         repos.Audit.(*memory.AuditStore),
		emitter:       emitter,
		clock:         clk,
		notifications: notif,
		friends:       friends,
		conversations: convs,
	}
}

// user seeds a profile and returns its id.
func (f *fixture) user(name string) uuid.UUID {
	id := uuid.New()
	f.users.Add(&domain.User{ID: id, Username: name, Email: name + "@example.com"})
	return id
}
