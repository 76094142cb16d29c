package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/fanout"
	"chatrelay/internal/friends"
	"chatrelay/internal/presence"
	"chatrelay/internal/rooms"
	"chatrelay/internal/security"
	"chatrelay/internal/seen"
	"chatrelay/internal/service"
	"chatrelay/internal/store/sqlite"
	"chatrelay/internal/ws"
)

const origin = "http://localhost:3000"

type stack struct {
	srv      *httptest.Server
	url      string
	tokens   *security.TokenService
	registry *presence.Registry
	svc      *service.RealtimeService
	conv     domain.ConversationID
	users    map[string]domain.UserID
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	userRepo := sqlite.NewUserRepo(db)
	convRepo := sqlite.NewConversationRepo(db)
	seenRepo := sqlite.NewSeenStateRepo(db)

	users := map[string]domain.UserID{}
	for _, name := range []string{"alice", "bob", "mallory"} {
		u := &domain.User{Username: name, IsActive: name != "mallory"}
		require.NoError(t, userRepo.Create(ctx, u))
		users[name] = u.ID
	}
	conv := &domain.Conversation{}
	require.NoError(t, convRepo.Create(ctx, conv, []domain.UserID{users["alice"], users["bob"]}))

	reg := presence.NewRegistry(log)
	rm := rooms.NewManager(log)
	router := fanout.NewRouter(reg, rm, log)
	persister := seen.NewPersister(seenRepo, seen.PersisterConfig{Workers: 2}, log)
	reconciler := seen.NewReconciler(convRepo, seenRepo, router, persister, log)
	svc := service.NewRealtimeService(convRepo, reg, rm, router, reconciler, friends.NewNotifier(router, log), log)

	tokens := security.NewTokenService("test-secret", time.Hour)
	handler := ws.MakeHandler(svc, service.NewAuthService(userRepo, tokens), ws.Options{
		AllowedOrigins: []string{origin},
		SendBuffer:     64,
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
	}, log)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &stack{
		srv:      srv,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		tokens:   tokens,
		registry: reg,
		svc:      svc,
		conv:     conv.ID,
		users:    users,
	}
}

func (s *stack) dial(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	tok, err := s.tokens.CreateForUser(username)
	require.NoError(t, err)
	h := http.Header{}
	h.Set("Origin", origin)
	h.Set("Authorization", "Bearer "+tok)
	c, _, err := websocket.DefaultDialer.Dial(s.url, h)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	uid := s.users[username]
	require.Eventually(t, func() bool { return s.registry.IsOnline(uid) }, time.Second, 10*time.Millisecond)
	return c
}

// next reads frames until one of the wanted type arrives.
func next(t *testing.T, c *websocket.Conn, want string) domain.Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		var f domain.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == want {
			return f
		}
	}
}

// presenceOf waits for a presence event about uid.
func presenceOf(t *testing.T, c *websocket.Conn, event string, uid domain.UserID) domain.PresencePayload {
	t.Helper()
	for {
		f := next(t, c, event)
		var p domain.PresencePayload
		require.NoError(t, json.Unmarshal(f.Payload, &p))
		if p.UserID == uid {
			return p
		}
	}
}

func TestHandshakeRejections(t *testing.T) {
	s := newStack(t)

	dial := func(h http.Header) int {
		c, resp, err := websocket.DefaultDialer.Dial(s.url, h)
		if err == nil {
			c.Close()
			return http.StatusSwitchingProtocols
		}
		require.NotNil(t, resp)
		return resp.StatusCode
	}

	h := http.Header{}
	h.Set("Origin", origin)
	assert.Equal(t, http.StatusUnauthorized, dial(h), "missing token")

	h.Set("Authorization", "Bearer nonsense")
	assert.Equal(t, http.StatusUnauthorized, dial(h), "bad token")

	tok, err := s.tokens.CreateForUser("mallory")
	require.NoError(t, err)
	h.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, dial(h), "inactive user")

	tok, err = s.tokens.CreateForUser("alice")
	require.NoError(t, err)
	h.Set("Authorization", "Bearer "+tok)
	h.Set("Origin", "http://evil.example")
	assert.Equal(t, http.StatusForbidden, dial(h), "foreign origin")

	assert.Zero(t, s.registry.Len(), "rejected handshakes leave no state")
}

func TestSubprotocolToken(t *testing.T) {
	s := newStack(t)
	tok, err := s.tokens.CreateForUser("alice")
	require.NoError(t, err)

	dialer := websocket.Dialer{Subprotocols: []string{"bearer", tok}}
	h := http.Header{}
	h.Set("Origin", origin)
	c, resp, err := dialer.Dial(s.url, h)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "bearer", resp.Header.Get("Sec-WebSocket-Protocol"))
	assert.Eventually(t, func() bool { return s.registry.IsOnline(s.users["alice"]) }, time.Second, 10*time.Millisecond)
}

func TestMessageSeenRoundTrip(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	a := s.dial(t, "alice")
	b := s.dial(t, "bob")

	p := presenceOf(t, a, domain.EventUserOnline, s.users["bob"])
	assert.True(t, p.IsOnline)
	assert.Equal(t, "bob", p.DisplayName)

	n, err := s.svc.NotifyNewMessage(ctx, s.conv, s.users["alice"], map[string]any{"content": "hello"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, c := range []*websocket.Conn{a, b} {
		next(t, c, domain.EventNewMessage)
		f := next(t, c, domain.EventUnreadCountsUpdated)
		var unread seen.UnreadPayload
		require.NoError(t, json.Unmarshal(f.Payload, &unread))
		assert.Equal(t, 1, unread.UnreadCounts[s.users["bob"]])
	}

	require.NoError(t, b.WriteJSON(map[string]any{
		"type":      domain.CommandSeenMessage,
		"requestId": "seen-1",
		"payload":   map[string]any{"conversationId": s.conv},
	}))
	ack := next(t, b, domain.EventAck)
	assert.Equal(t, "seen-1", ack.RequestID)
	var body domain.Ack
	require.NoError(t, json.Unmarshal(ack.Payload, &body))
	assert.Equal(t, domain.AckOK, body.Status)

	seenFrame := next(t, a, domain.EventConversationSeen)
	var sp seen.SeenPayload
	require.NoError(t, json.Unmarshal(seenFrame.Payload, &sp))
	assert.Equal(t, s.users["bob"], sp.UserID)
}

func TestMalformedFrameGetsErrorAck(t *testing.T) {
	s := newStack(t)
	a := s.dial(t, "alice")

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := next(t, a, domain.EventAck)
	var body domain.Ack
	require.NoError(t, json.Unmarshal(f.Payload, &body))
	assert.Equal(t, domain.AckError, body.Status)

	require.NoError(t, a.WriteJSON(map[string]any{"type": domain.CommandJoinConversation, "requestId": "j", "payload": 0}))
	f = next(t, a, domain.EventAck)
	require.NoError(t, json.Unmarshal(f.Payload, &body))
	assert.Equal(t, domain.AckError, body.Status)
	assert.Equal(t, "j", f.RequestID)
}

func TestCloseDisconnects(t *testing.T) {
	s := newStack(t)
	a := s.dial(t, "alice")
	b := s.dial(t, "bob")

	require.NoError(t, b.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	b.Close()

	assert.Eventually(t, func() bool { return !s.registry.IsOnline(s.users["bob"]) }, 2*time.Second, 10*time.Millisecond)
	p := presenceOf(t, a, domain.EventUserOffline, s.users["bob"])
	assert.False(t, p.IsOnline)
}
