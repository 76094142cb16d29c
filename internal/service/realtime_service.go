// Package service is the relay's core: it ties connections, rooms, fan-out
// and read-state reconciliation together behind the operations the transport
// and the REST collaborators call.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/fanout"
	"chatrelay/internal/friends"
	"chatrelay/internal/presence"
	"chatrelay/internal/rooms"
	"chatrelay/internal/seen"
)

type RealtimeService struct {
	conversations domain.ConversationRepository
	registry      *presence.Registry
	rooms         *rooms.Manager
	router        *fanout.Router
	seen          *seen.Reconciler
	friends       *friends.Notifier
	validate      *validator.Validate
	log           *zap.Logger
}

func NewRealtimeService(
	conversations domain.ConversationRepository,
	registry *presence.Registry,
	rooms *rooms.Manager,
	router *fanout.Router,
	reconciler *seen.Reconciler,
	notifier *friends.Notifier,
	log *zap.Logger,
) *RealtimeService {
	return &RealtimeService{
		conversations: conversations,
		registry:      registry,
		rooms:         rooms,
		router:        router,
		seen:          reconciler,
		friends:       notifier,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log,
	}
}

// Connect registers an authenticated connection and subscribes it to every
// conversation its user belongs to. If the membership lookup fails the
// connection is unregistered again and the error returned.
func (s *RealtimeService) Connect(ctx context.Context, c *presence.Conn) error {
	if _, err := s.registry.Register(c); err != nil {
		return fmt.Errorf("register connection: %w", err)
	}

	ids, err := s.conversations.ListIDsForUser(ctx, c.UserID())
	if err != nil {
		s.registry.Unregister(c.ID())
		return fmt.Errorf("list conversations for user %s: %w", c.UserID(), err)
	}
	joined := s.rooms.SubscribeAll(c, ids)

	s.log.Info("connection established",
		zap.String("conn_id", string(c.ID())),
		zap.Stringer("user_id", c.UserID()),
		zap.Int("rooms", joined),
	)
	return nil
}

// Disconnect removes a connection everywhere. It is safe to call more than
// once.
func (s *RealtimeService) Disconnect(connID domain.ConnectionID) {
	c, _ := s.registry.Lookup(connID)
	removed := s.registry.Unregister(connID)
	s.rooms.Drop(connID)
	if !removed {
		return
	}

	fields := []zap.Field{zap.String("conn_id", string(connID))}
	if c != nil {
		fields = append(fields, zap.Stringer("user_id", c.UserID()), zap.Bool("kicked", c.Kicked()))
	}
	s.log.Info("connection closed", fields...)
}

// HandleCommand executes a client command and returns the acknowledgement to
// send back on the same connection.
func (s *RealtimeService) HandleCommand(ctx context.Context, c *presence.Conn, cmd domain.Frame) domain.Ack {
	var err error
	switch cmd.Type {
	case domain.CommandJoinConversation:
		err = s.withConversation(ctx, cmd, func(id domain.ConversationID) error {
			return s.joinConversation(ctx, c, id)
		})
	case domain.CommandLeaveConversation:
		err = s.withConversation(ctx, cmd, func(id domain.ConversationID) error {
			s.rooms.Leave(c.ID(), id)
			return nil
		})
	case domain.CommandSeenMessage:
		err = s.withConversation(ctx, cmd, func(id domain.ConversationID) error {
			_, err := s.seen.OnSeenAck(ctx, id, c.UserID())
			return err
		})
	default:
		err = fmt.Errorf("unknown command %q: %w", cmd.Type, domain.ErrInvalidInput)
	}
	return s.ackOf(c, cmd, err)
}

// Reply queues a command acknowledgement on the connection.
func (s *RealtimeService) Reply(c *presence.Conn, requestID string, ack domain.Ack) bool {
	return s.router.Reply(c, domain.EventAck, requestID, ack)
}

func (s *RealtimeService) withConversation(ctx context.Context, cmd domain.Frame, fn func(domain.ConversationID) error) error {
	ref, err := parseConversationRef(cmd.Payload)
	if err != nil {
		return err
	}
	if err := s.validate.StructCtx(ctx, ref); err != nil {
		return fmt.Errorf("invalid %s payload: %w", cmd.Type, domain.ErrInvalidInput)
	}
	return fn(ref.ConversationID)
}

// ackOf hides storage failures from clients; only domain errors are echoed.
func (s *RealtimeService) ackOf(c *presence.Conn, cmd domain.Frame, err error) domain.Ack {
	if err == nil {
		return domain.AckOf(nil)
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrInvalidInput):
		s.log.Debug("command rejected",
			zap.String("conn_id", string(c.ID())),
			zap.String("command", cmd.Type),
			zap.Error(err),
		)
		return domain.AckOf(err)
	default:
		s.log.Error("command failed",
			zap.String("conn_id", string(c.ID())),
			zap.Stringer("user_id", c.UserID()),
			zap.String("command", cmd.Type),
			zap.Error(err),
		)
		return domain.Ack{Status: domain.AckError, Message: "internal error"}
	}
}
