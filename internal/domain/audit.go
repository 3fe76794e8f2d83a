package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID             int64                  `json:"id"`
	EventTime      time.Time              `json:"event_time"`
	ActorUserID    *uuid.UUID             `json:"actor_user_id,omitempty"`
	ConversationID *uuid.UUID             `json:"conversation_id,omitempty"`
	EventType      string                 `json:"event_type"`
	Payload        map[string]interface{} `json:"payload"`
}

const (
	EventTypeConversationCreated = "CONVERSATION_CREATED"
	EventTypeConversationDeleted = "CONVERSATION_DELETED"
	EventTypeAccessChanged       = "ACCESS_CHANGED"
	EventTypeMemberAdded         = "MEMBER_ADDED"
	EventTypeMemberRemoved       = "MEMBER_REMOVED"
	EventTypeMemberLeft          = "MEMBER_LEFT"
	EventTypeAdminPromoted       = "ADMIN_PROMOTED"
	EventTypeAdminDemoted        = "ADMIN_DEMOTED"
	EventTypeMemberBanned        = "MEMBER_BANNED"
	EventTypeMemberUnbanned      = "MEMBER_UNBANNED"
	EventTypeMemberMuted         = "MEMBER_MUTED"
	EventTypeMemberUnmuted       = "MEMBER_UNMUTED"
)
