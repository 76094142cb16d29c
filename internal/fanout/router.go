// Package fanout delivers domain events to live connections.
//
// Delivery is at-most-once and best-effort: targets with no live connection
// are skipped and nothing is queued for later. Broadcasts to the same room
// are serialized, so every subscriber of a room observes that room's events
// in submission order.
package fanout

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/keylock"
	"chatrelay/internal/presence"
	"chatrelay/internal/rooms"
	"chatrelay/internal/telemetry"
)

type Router struct {
	registry *presence.Registry
	rooms    *rooms.Manager
	order    *keylock.Locker[domain.ConversationID]
	tracer   trace.Tracer
	log      *zap.Logger
}

func NewRouter(registry *presence.Registry, rooms *rooms.Manager, log *zap.Logger) *Router {
	return &Router{
		registry: registry,
		rooms:    rooms,
		order:    keylock.New[domain.ConversationID](),
		tracer:   telemetry.Tracer(),
		log:      log,
	}
}

// BroadcastToRoom enqueues the event on every connection that is both
// subscribed to the room and still registered. It returns the number of
// connections reached.
func (r *Router) BroadcastToRoom(ctx context.Context, id domain.ConversationID, event string, payload any) int {
	_, span := r.tracer.Start(ctx, "fanout.BroadcastToRoom", trace.WithAttributes(
		attribute.Int64("conversation.id", int64(id)),
		attribute.String("event", event),
	))
	defer span.End()

	frame, err := domain.EncodeFrame(event, "", payload)
	if err != nil {
		r.log.Error("encode room event", zap.String("event", event), zap.Error(err))
		return 0
	}

	unlock := r.order.Lock(id)
	defer unlock()

	delivered := 0
	for _, c := range r.rooms.Subscribers(id) {
		if !r.registry.IsActive(c.ID()) {
			continue
		}
		if r.enqueue(c, event, frame) {
			delivered++
		}
	}
	span.SetAttributes(attribute.Int("delivered", delivered))
	if delivered == 0 {
		r.log.Debug("room event had no live subscribers",
			zap.Stringer("conversation_id", id),
			zap.String("event", event),
		)
	}
	return delivered
}

// UnicastToUser enqueues the event on every live connection of the user.
func (r *Router) UnicastToUser(ctx context.Context, userID domain.UserID, event string, payload any) int {
	return r.UnicastToUsers(ctx, []domain.UserID{userID}, event, payload)
}

// UnicastToUsers enqueues the event once per live connection of each listed
// user. Duplicate ids are delivered once.
func (r *Router) UnicastToUsers(ctx context.Context, userIDs []domain.UserID, event string, payload any) int {
	_, span := r.tracer.Start(ctx, "fanout.UnicastToUsers", trace.WithAttributes(
		attribute.Int("users", len(userIDs)),
		attribute.String("event", event),
	))
	defer span.End()

	frame, err := domain.EncodeFrame(event, "", payload)
	if err != nil {
		r.log.Error("encode user event", zap.String("event", event), zap.Error(err))
		return 0
	}

	seen := make(map[domain.UserID]struct{}, len(userIDs))
	delivered := 0
	for _, uid := range userIDs {
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		for _, c := range r.registry.ConnectionsOf(uid) {
			if r.enqueue(c, event, frame) {
				delivered++
			}
		}
	}
	span.SetAttributes(attribute.Int("delivered", delivered))
	return delivered
}

// Reply sends a frame to a single connection, typically a command ack.
func (r *Router) Reply(c *presence.Conn, event, requestID string, payload any) bool {
	frame, err := domain.EncodeFrame(event, requestID, payload)
	if err != nil {
		r.log.Error("encode reply", zap.String("event", event), zap.Error(err))
		return false
	}
	return r.enqueue(c, event, frame)
}

func (r *Router) enqueue(c *presence.Conn, event string, frame []byte) bool {
	if c.Kicked() {
		return false
	}
	if c.Enqueue(frame) {
		return true
	}
	r.log.Warn("frame dropped",
		zap.String("conn_id", string(c.ID())),
		zap.Stringer("user_id", c.UserID()),
		zap.String("event", event),
		zap.Bool("slow_consumer", c.Kicked()),
	)
	return false
}
