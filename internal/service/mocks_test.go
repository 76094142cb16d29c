package service_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatrelay/internal/domain"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) Create(ctx context.Context, c *domain.Conversation, memberIDs []domain.UserID) error {
	args := m.Called(ctx, c, memberIDs)
	return args.Error(0)
}

func (m *MockConversationRepo) Exists(ctx context.Context, id domain.ConversationID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockConversationRepo) ListIDsForUser(ctx context.Context, userID domain.UserID) ([]domain.ConversationID, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConversationID), args.Error(1)
}

func (m *MockConversationRepo) ListMemberIDs(ctx context.Context, id domain.ConversationID) ([]domain.UserID, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.UserID), args.Error(1)
}

type MockSeenRepo struct {
	mock.Mock
}

func (m *MockSeenRepo) LoadSeenState(ctx context.Context, id domain.ConversationID) (*domain.SeenState, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SeenState), args.Error(1)
}

func (m *MockSeenRepo) SaveSeenState(ctx context.Context, st *domain.SeenState) error {
	args := m.Called(ctx, st)
	return args.Error(0)
}

type stubVerifier map[string]string

func (s stubVerifier) Subject(token string) (string, error) {
	sub, ok := s[token]
	if !ok {
		return "", assertErr("bad token")
	}
	return sub, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
