package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationFriendRequest          NotificationType = "FRIEND_REQUEST"
	NotificationFriendAccepted         NotificationType = "FRIEND_ACCEPTED"
	NotificationFriendRequestCancelled NotificationType = "FRIEND_REQUEST_CANCELLED"
	NotificationFriendRemoved          NotificationType = "FRIEND_REMOVED"
	NotificationBan                    NotificationType = "BAN"
	NotificationMute                   NotificationType = "MUTE"
)

// Realtime event names as seen by clients.
const (
	EventFriendRequest          = "friend-request"
	EventFriendRequestAccepted  = "friend-request-accepted"
	EventFriendRequestCancelled = "friend-request-cancelled"
	EventFriendRemoved          = "friend-removed"
	EventMemberBanned           = "member-banned"
	EventMemberMuted            = "member-muted"
	EventNewMessage             = "new-message"
)

type Notification struct {
	ID             uuid.UUID        `json:"id"`
	Type           NotificationType `json:"type"`
	SenderID       uuid.UUID        `json:"sender_id"`
	ReceiverID     uuid.UUID        `json:"receiver_id"`
	ConversationID *uuid.UUID       `json:"conversation_id,omitempty"`
	Read           bool             `json:"read"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Transient notifications are pushed to live sessions but never stored:
// they compensate for a record that is being deleted.
func (t NotificationType) Transient() bool {
	switch t {
	case NotificationFriendRequestCancelled, NotificationFriendRemoved:
		return true
	}
	return false
}

func (t NotificationType) EventName() string {
	switch t {
	case NotificationFriendRequest:
		return EventFriendRequest
	case NotificationFriendAccepted:
		return EventFriendRequestAccepted
	case NotificationFriendRequestCancelled:
		return EventFriendRequestCancelled
	case NotificationFriendRemoved:
		return EventFriendRemoved
	case NotificationBan:
		return EventMemberBanned
	case NotificationMute:
		return EventMemberMuted
	}
	return ""
}
