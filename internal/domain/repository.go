package domain

import (
	"context"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id UserID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// ConversationRepository exposes the membership queries the realtime layer
// depends on. Conversations are created by an external collaborator; Create
// exists for seeding and tests.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation, memberIDs []UserID) error
	Exists(ctx context.Context, id ConversationID) (bool, error)
	ListIDsForUser(ctx context.Context, userID UserID) ([]ConversationID, error)
	// ListMemberIDs returns ErrNotFound when the conversation does not exist.
	ListMemberIDs(ctx context.Context, id ConversationID) ([]UserID, error)
}

// SeenStateRepository persists per-conversation read state.
type SeenStateRepository interface {
	// LoadSeenState returns an empty state when nothing was saved yet.
	LoadSeenState(ctx context.Context, id ConversationID) (*SeenState, error)
	SaveSeenState(ctx context.Context, st *SeenState) error
}
