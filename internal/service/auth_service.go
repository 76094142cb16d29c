package service

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/internal/domain"
)

// TokenVerifier resolves a bearer token to the username it was issued for.
type TokenVerifier interface {
	Subject(token string) (string, error)
}

// AuthService resolves connection credentials to an active user.
type AuthService struct {
	users  domain.UserRepository
	tokens TokenVerifier
}

func NewAuthService(users domain.UserRepository, tokens TokenVerifier) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
	}
}

// Authenticate validates the token and loads its user. Every credential
// problem is reported as domain.ErrUnauthorized; storage failures are not.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", domain.ErrUnauthorized)
	}
	username, err := s.tokens.Subject(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, domain.ErrUnauthorized)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && user == nil) {
		return nil, fmt.Errorf("unknown user %q: %w", username, domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user account is inactive: %w", domain.ErrUnauthorized)
	}
	return user, nil
}
