package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/presence"
)

// session pumps one upgraded connection. Only the write pump writes to the
// socket; commands run on their own goroutine so a slow store never stalls
// reads or pings.
type session struct {
	ws       *websocket.Conn
	conn     *presence.Conn
	sessions Sessions
	opts     Options
	log      *zap.Logger
}

func (s *session) run(ctx context.Context) {
	commands := make(chan domain.Frame, 16)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump()
	}()
	go func() {
		defer wg.Done()
		s.commandLoop(ctx, commands)
	}()

	defer func() {
		close(commands)
		s.sessions.Disconnect(s.conn.ID())
		s.ws.Close()
		wg.Wait()
	}()
	s.readPump(commands)
}

func (s *session) readPump(commands chan<- domain.Frame) {
	s.ws.SetReadLimit(s.opts.MaxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("ws: read", zap.Error(err))
			}
			return
		}

		var cmd domain.Frame
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
			s.reply("", domain.Ack{Status: domain.AckError, Message: "malformed frame"})
			continue
		}

		select {
		case commands <- cmd:
		case <-s.conn.Done():
			return
		}
	}
}

func (s *session) commandLoop(ctx context.Context, commands <-chan domain.Frame) {
	for cmd := range commands {
		ack := s.sessions.HandleCommand(ctx, s.conn, cmd)
		s.reply(cmd.RequestID, ack)
	}
}

func (s *session) reply(requestID string, ack domain.Ack) {
	s.sessions.Reply(s.conn, requestID, ack)
}

func (s *session) writePump() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		s.ws.Close()
	}()

	for {
		select {
		case frame := <-s.conn.Outbound():
			_ = s.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("ws: write", zap.Error(err))
				return
			}
		case <-s.conn.Done():
			code, reason := websocket.CloseNormalClosure, ""
			if s.conn.Kicked() {
				code, reason = websocket.ClosePolicyViolation, "send queue full"
				s.log.Warn("ws: slow consumer disconnected")
			}
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason),
				time.Now().Add(s.opts.WriteWait))
			return
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
