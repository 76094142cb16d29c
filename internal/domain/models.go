package domain

import (
	"strconv"
	"time"
)

// UserID is the canonical user identifier. Every per-user map in the
// realtime layer is keyed by it.
type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// ConversationID identifies a conversation and, by extension, its room.
type ConversationID int64

func (id ConversationID) String() string { return strconv.FormatInt(int64(id), 10) }

// MessageID identifies a persisted message.
type MessageID int64

// ConnectionID identifies one live transport session.
type ConnectionID string

// User represents an application user as stored by the external user store.
type User struct {
	ID          UserID    `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	DisplayName string    `db:"display_name" json:"displayName"`
	AvatarURL   *string   `db:"avatar_url" json:"avatarUrl"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Profile is the identity bound to a connection after authentication.
type Profile struct {
	UserID      UserID  `json:"userId"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// ProfileOf builds the connection identity for a stored user.
func ProfileOf(u *User) Profile {
	display := u.DisplayName
	if display == "" {
		display = u.Username
	}
	return Profile{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: display,
		AvatarURL:   u.AvatarURL,
	}
}

// Presence builds the payload announcing this profile's online state.
func (p Profile) Presence(online bool) PresencePayload {
	return PresencePayload{
		UserID:      p.UserID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		IsOnline:    online,
	}
}

// Conversation represents a chat conversation (direct or group).
type Conversation struct {
	ID        ConversationID `db:"id" json:"id"`
	Name      *string        `db:"name" json:"name"`
	IsGroup   bool           `db:"is_group" json:"isGroup"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// SeenState is the durable form of a conversation's read state.
type SeenState struct {
	ConversationID ConversationID
	SeenBy         []UserID
	UnreadCounts   map[UserID]int
}
