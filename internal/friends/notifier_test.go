package friends

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/fanout"
	"chatrelay/internal/presence"
	"chatrelay/internal/rooms"
)

type MockUnicaster struct {
	mock.Mock
}

func (m *MockUnicaster) UnicastToUser(ctx context.Context, userID domain.UserID, event string, payload any) int {
	args := m.Called(ctx, userID, event, payload)
	return args.Int(0)
}

func TestNotifier_Notify(t *testing.T) {
	cases := []struct {
		kind  Kind
		event string
	}{
		{RequestSent, domain.EventNewFriendRequest},
		{RequestAccepted, domain.EventFriendRequestAccepted},
		{RequestDeclined, domain.EventFriendRequestDeclined},
		{RequestCancelled, domain.EventFriendRequestCancelled},
		{Unfriended, domain.EventUnfriended},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			router := new(MockUnicaster)
			payload := map[string]any{"requestId": "r1"}
			router.On("UnicastToUser", mock.Anything, domain.UserID(7), tc.event, payload).Return(2).Once()

			n := NewNotifier(router, zap.NewNop())
			delivered, err := n.Notify(context.Background(), Event{Kind: tc.kind, ActorID: 3, Target: 7, Payload: payload})
			require.NoError(t, err)
			assert.Equal(t, 2, delivered)
			router.AssertExpectations(t)
		})
	}
}

func TestNotifier_Rejects(t *testing.T) {
	router := new(MockUnicaster)
	n := NewNotifier(router, zap.NewNop())
	ctx := context.Background()

	_, err := n.Notify(ctx, Event{Kind: "poke", Target: 2})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = n.Notify(ctx, Event{Kind: RequestSent})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = n.Notify(ctx, Event{Kind: RequestSent, ActorID: 4, Target: 4})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	router.AssertNotCalled(t, "UnicastToUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifier_OfflineTargetIsNotAnError(t *testing.T) {
	log := zap.NewNop()
	reg := presence.NewRegistry(log)
	router := fanout.NewRouter(reg, rooms.NewManager(log), log)
	n := NewNotifier(router, log)

	sender := presence.NewConn(domain.Profile{UserID: 1}, 8)
	_, err := reg.Register(sender)
	require.NoError(t, err)

	delivered, err := n.Notify(context.Background(), Event{Kind: RequestSent, ActorID: 1, Target: 4, Payload: map[string]any{"from": 1}})
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)

	// the target connects later and gets nothing replayed
	target := presence.NewConn(domain.Profile{UserID: 4}, 8)
	_, err = reg.Register(target)
	require.NoError(t, err)
	for {
		select {
		case raw := <-target.Outbound():
			var f domain.Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			assert.NotEqual(t, domain.EventNewFriendRequest, f.Type)
			continue
		default:
		}
		break
	}
}
