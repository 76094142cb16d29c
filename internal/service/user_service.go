package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"chatrelay/internal/domain"
	"chatrelay/internal/presence"
)

// UserService answers presence queries.
type UserService struct {
	users    domain.UserRepository
	registry *presence.Registry
}

func NewUserService(users domain.UserRepository, registry *presence.Registry) *UserService {
	return &UserService{users: users, registry: registry}
}

type PresenceStatus struct {
	domain.PresencePayload
	Connections int `json:"connections"`
}

// Presence reports whether the user currently has a live connection.
func (s *UserService) Presence(ctx context.Context, id domain.UserID) (*PresenceStatus, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	p := domain.ProfileOf(user)
	conns := s.registry.ConnectionsOf(id)
	return &PresenceStatus{
		PresencePayload: p.Presence(len(conns) > 0),
		Connections:     len(conns),
	}, nil
}

// Online lists every user with at least one live connection, using the
// profile captured when the connection authenticated.
func (s *UserService) Online() []PresenceStatus {
	return lo.FilterMap(s.registry.OnlineUsers(), func(uid domain.UserID, _ int) (PresenceStatus, bool) {
		conns := s.registry.ConnectionsOf(uid)
		if len(conns) == 0 {
			return PresenceStatus{}, false
		}
		p := conns[0].Profile()
		return PresenceStatus{
			PresencePayload: p.Presence(true),
			Connections:     len(conns),
		}, true
	})
}
