package service

import (
	"context"

	"chatrelay/internal/friends"
)

// NotifyFriendRequestChange relays a stored relationship change to its target.
func (s *RealtimeService) NotifyFriendRequestChange(ctx context.Context, ev friends.Event) (int, error) {
	return s.friends.Notify(ctx, ev)
}
