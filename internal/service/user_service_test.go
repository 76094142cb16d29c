package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/presence"
	"chatrelay/internal/service"
)

func TestUserService(t *testing.T) {
	ctx := context.Background()
	repo := new(MockUserRepo)
	reg := presence.NewRegistry(zap.NewNop())
	svc := service.NewUserService(repo, reg)

	repo.On("GetByID", mock.Anything, alice).Return(&domain.User{ID: alice, Username: "alice"}, nil)
	repo.On("GetByID", mock.Anything, bob).Return(&domain.User{ID: bob, Username: "bob", DisplayName: "Bob"}, nil)
	repo.On("GetByID", mock.Anything, carol).Return(nil, domain.ErrNotFound)

	for range 2 {
		_, err := reg.Register(presence.NewConn(domain.Profile{UserID: bob, Username: "bob", DisplayName: "Bob"}, 4))
		require.NoError(t, err)
	}

	t.Run("offline", func(t *testing.T) {
		st, err := svc.Presence(ctx, alice)
		require.NoError(t, err)
		assert.False(t, st.IsOnline)
		assert.Equal(t, "alice", st.DisplayName)
		assert.Zero(t, st.Connections)
	})

	t.Run("online with two devices", func(t *testing.T) {
		st, err := svc.Presence(ctx, bob)
		require.NoError(t, err)
		assert.True(t, st.IsOnline)
		assert.Equal(t, 2, st.Connections)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Presence(ctx, carol)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("online list", func(t *testing.T) {
		online := svc.Online()
		require.Len(t, online, 1)
		assert.Equal(t, bob, online[0].UserID)
		assert.Equal(t, 2, online[0].Connections)
	})
}
