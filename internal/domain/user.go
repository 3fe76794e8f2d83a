package domain

import (
	"github.com/google/uuid"
)

// User is owned by the profile service; the core only references it.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
}
