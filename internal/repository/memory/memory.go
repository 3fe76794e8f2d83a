// Package memory implements the repository interfaces in process. Each
// repository guards its state with one mutex, which gives the same
// single-record atomicity the Postgres statements provide. It backs the
// STORAGE_DRIVER=memory mode and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"social_platform/internal/domain"
	"social_platform/internal/repository"
	apperrors "social_platform/pkg/errors"
)

// NewRepositories wires every in-memory repository. The returned UserStore
// is the same value as repos.User, exposed so callers can seed profiles.
func NewRepositories() (*repository.Repositories, *UserStore) {
	users := NewUserStore()
	return &repository.Repositories{
		User:          users,
		FriendRequest: NewFriendRequestStore(),
		Conversation:  NewConversationStore(),
		Message:       NewMessageStore(),
		Notification:  NewNotificationStore(),
		Audit:         NewAuditStore(),
		RateLimit:     NewRateLimitStore(),
	}, users
}

type UserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uuid.UUID]*domain.User)}
}

func (s *UserStore) Add(users ...*domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		copied := *u
		s.users[u.ID] = &copied
	}
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

func (s *UserStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, apperrors.ErrNotFound)
}

func (s *UserStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.User{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			copied := *u
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

type pairKey struct {
	sender, receiver uuid.UUID
}

type FriendRequestStore struct {
	mu       sync.Mutex
	requests map[pairKey]*domain.FriendRequest
}

func NewFriendRequestStore() *FriendRequestStore {
	return &FriendRequestStore{requests: make(map[pairKey]*domain.FriendRequest)}
}

func copyRequest(r *domain.FriendRequest) *domain.FriendRequest {
	copied := *r
	return &copied
}

func (s *FriendRequestStore) Get(_ context.Context, senderID, receiverID uuid.UUID) (*domain.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[pairKey{senderID, receiverID}]
	if !ok {
		return nil, fmt.Errorf("friend request: %w", apperrors.ErrNotFound)
	}
	return copyRequest(r), nil
}

func (s *FriendRequestStore) FindBetween(_ context.Context, a, b uuid.UUID) ([]*domain.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.FriendRequest{}
	for _, key := range []pairKey{{a, b}, {b, a}} {
		if r, ok := s.requests[key]; ok {
			out = append(out, copyRequest(r))
		}
	}
	return out, nil
}

func (s *FriendRequestStore) UpsertPending(_ context.Context, senderID, receiverID uuid.UUID, now time.Time) (*domain.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opposite, ok := s.requests[pairKey{receiverID, senderID}]; ok && opposite.Status != domain.FriendRequestDeclined {
		return nil, fmt.Errorf("friend request: %w", apperrors.ErrInvalidState)
	}
	key := pairKey{senderID, receiverID}
	r, ok := s.requests[key]
	if !ok {
		r = &domain.FriendRequest{
			ID:         uuid.New(),
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     domain.FriendRequestPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.requests[key] = r
		return copyRequest(r), nil
	}
	if r.Status != domain.FriendRequestDeclined {
		return nil, fmt.Errorf("friend request: %w", apperrors.ErrInvalidState)
	}
	r.Status = domain.FriendRequestPending
	r.UpdatedAt = now
	return copyRequest(r), nil
}

func (s *FriendRequestStore) Transition(_ context.Context, senderID, receiverID uuid.UUID, from, to domain.FriendRequestStatus, now time.Time) (*domain.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[pairKey{senderID, receiverID}]
	if !ok {
		return nil, fmt.Errorf("friend request: %w", apperrors.ErrNotFound)
	}
	if r.Status != from {
		return nil, fmt.Errorf("friend request is not %s: %w", from, apperrors.ErrInvalidState)
	}
	r.Status = to
	r.UpdatedAt = now
	return copyRequest(r), nil
}

func (s *FriendRequestStore) DeletePending(_ context.Context, senderID, receiverID uuid.UUID) (*domain.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{senderID, receiverID}
	r, ok := s.requests[key]
	if !ok || r.Status != domain.FriendRequestPending {
		return nil, fmt.Errorf("pending friend request: %w", apperrors.ErrNotFound)
	}
	delete(s.requests, key)
	return r, nil
}

func (s *FriendRequestStore) DeleteAccepted(_ context.Context, a, b uuid.UUID) (*domain.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []pairKey{{a, b}, {b, a}} {
		if r, ok := s.requests[key]; ok && r.Status == domain.FriendRequestAccepted {
			delete(s.requests, key)
			return r, nil
		}
	}
	return nil, fmt.Errorf("friendship: %w", apperrors.ErrNotFound)
}

func (s *FriendRequestStore) filter(match func(*domain.FriendRequest) bool) []*domain.FriendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.FriendRequest{}
	for _, r := range s.requests {
		if match(r) {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *FriendRequestStore) ListBySender(_ context.Context, senderID uuid.UUID, status domain.FriendRequestStatus) ([]*domain.FriendRequest, error) {
	return s.filter(func(r *domain.FriendRequest) bool {
		return r.SenderID == senderID && r.Status == status
	}), nil
}

func (s *FriendRequestStore) ListByReceiver(_ context.Context, receiverID uuid.UUID, status domain.FriendRequestStatus) ([]*domain.FriendRequest, error) {
	return s.filter(func(r *domain.FriendRequest) bool {
		return r.ReceiverID == receiverID && r.Status == status
	}), nil
}

func (s *FriendRequestStore) ListAccepted(_ context.Context, userID uuid.UUID) ([]*domain.FriendRequest, error) {
	return s.filter(func(r *domain.FriendRequest) bool {
		return r.Status == domain.FriendRequestAccepted && (r.SenderID == userID || r.ReceiverID == userID)
	}), nil
}

type ConversationStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*domain.Conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{conversations: make(map[uuid.UUID]*domain.Conversation)}
}

func (s *ConversationStore) Create(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; ok {
		return fmt.Errorf("conversation %s: %w", conv.ID, apperrors.ErrAlreadyExists)
	}
	if key := conv.DirectKey(); key != "" {
		for _, other := range s.conversations {
			if other.DirectKey() == key {
				return fmt.Errorf("direct conversation %s: %w", key, apperrors.ErrAlreadyExists)
			}
		}
	}
	s.conversations[conv.ID] = conv.Clone()
	return nil
}

func (s *ConversationStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, apperrors.ErrNotFound)
	}
	return conv.Clone(), nil
}

func (s *ConversationStore) FindDirect(_ context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.Kind == domain.ConversationDirect && conv.Participants.Has(a) && conv.Participants.Has(b) {
			return conv.Clone(), nil
		}
	}
	return nil, fmt.Errorf("direct conversation: %w", apperrors.ErrNotFound)
}

func (s *ConversationStore) ListForUser(_ context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Conversation{}
	for _, conv := range s.conversations {
		if conv.Participants.Has(userID) {
			out = append(out, conv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *ConversationStore) Update(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.conversations[conv.ID]
	if !ok || stored.Version != conv.Version {
		return fmt.Errorf("conversation %s: %w", conv.ID, apperrors.ErrConflict)
	}
	conv.Version++
	s.conversations[conv.ID] = conv.Clone()
	return nil
}

func (s *ConversationStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("conversation %s: %w", id, apperrors.ErrNotFound)
	}
	delete(s.conversations, id)
	return nil
}

type MessageStore struct {
	mu       sync.Mutex
	nextID   int64
	messages map[uuid.UUID][]*domain.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[uuid.UUID][]*domain.Message)}
}

func (s *MessageStore) CreateMessage(_ context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message.ID = s.nextID
	copied := *message
	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], &copied)
	return nil
}

func (s *MessageStore) GetMessages(_ context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[conversationID]
	out := []*domain.Message{}
	for i := offset; i < len(all) && len(out) < limit; i++ {
		copied := *all[i]
		out = append(out, &copied)
	}
	return out, nil
}

type NotificationStore struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*domain.Notification
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{notifications: make(map[uuid.UUID]*domain.Notification)}
}

func (s *NotificationStore) Create(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *n
	s.notifications[n.ID] = &copied
	return nil
}

func (s *NotificationStore) ListByReceiver(_ context.Context, receiverID uuid.UUID, unreadOnly bool) ([]*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Notification{}
	for _, n := range s.notifications {
		if n.ReceiverID != receiverID || (unreadOnly && n.Read) {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *NotificationStore) MarkRead(_ context.Context, id, receiverID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.ReceiverID != receiverID {
		return fmt.Errorf("notification %s: %w", id, apperrors.ErrNotFound)
	}
	n.Read = true
	return nil
}

func (s *NotificationStore) Delete(_ context.Context, id, receiverID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.ReceiverID != receiverID {
		return fmt.Errorf("notification %s: %w", id, apperrors.ErrNotFound)
	}
	delete(s.notifications, id)
	return nil
}

func (s *NotificationStore) DeleteByKey(_ context.Context, t domain.NotificationType, senderID, receiverID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, notif := range s.notifications {
		if notif.Type == t && notif.SenderID == senderID && notif.ReceiverID == receiverID {
			delete(s.notifications, id)
			n++
		}
	}
	return n, nil
}

type AuditStore struct {
	mu     sync.Mutex
	nextID int64
	logs   []*domain.AuditLog
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) CreateLog(_ context.Context, log *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	log.ID = s.nextID
	copied := *log
	s.logs = append(s.logs, &copied)
	return nil
}

// Logs returns every entry of the given event type, oldest first.
func (s *AuditStore) Logs(eventType string) []*domain.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.AuditLog{}
	for _, l := range s.logs {
		if strings.EqualFold(l.EventType, eventType) {
			out = append(out, l)
		}
	}
	return out
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

type RateLimitStore struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*rateWindow
}

func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{now: time.Now, windows: make(map[string]*rateWindow)}
}

func (s *RateLimitStore) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}
