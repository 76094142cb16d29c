package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/presence"
)

// Authenticator resolves a bearer token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// Sessions is the core the transport drives for each connection.
type Sessions interface {
	Connect(ctx context.Context, c *presence.Conn) error
	Disconnect(connID domain.ConnectionID)
	HandleCommand(ctx context.Context, c *presence.Conn, cmd domain.Frame) domain.Ack
	Reply(c *presence.Conn, requestID string, ack domain.Ack) bool
}

type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

func (o *Options) norm() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}
	if _, wildcard := allowed["*"]; wildcard {
		return func(r *http.Request) bool {
			return true
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// The client authenticates with a bearer token (Authorization header or
// Sec-WebSocket-Protocol: bearer, <token>) before the upgrade; nothing is
// registered for a request that fails authentication. After the upgrade the
// connection accepts join_conversation, leave_conversation and seen_message
// commands and receives every event routed to it.
func MakeHandler(sessions Sessions, auth Authenticator, opts Options, log *zap.Logger) http.HandlerFunc {
	opts.norm()
	checkOrigin := makeCheckOrigin(opts.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := auth.Authenticate(ctx, tokenStr)
		if errors.Is(err, domain.ErrUnauthorized) {
			log.Debug("ws: authentication failed", zap.Error(err))
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		if err != nil {
			log.Error("ws: authenticate", zap.Error(err))
			http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		conn := presence.NewConn(domain.ProfileOf(user), opts.SendBuffer)
		if err := sessions.Connect(ctx, conn); err != nil {
			log.Error("ws: connect",
				zap.Stringer("user_id", user.ID),
				zap.Error(err),
			)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "connect failed"),
				time.Now().Add(opts.WriteWait))
			ws.Close()
			return
		}

		s := &session{
			ws:       ws,
			conn:     conn,
			sessions: sessions,
			opts:     opts,
			log:      log.With(zap.String("conn_id", string(conn.ID())), zap.Stringer("user_id", user.ID)),
		}
		s.run(ctx)
	}
}
