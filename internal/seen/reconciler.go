// Package seen reconciles per-conversation read state.
//
// New-message and seen-ack mutations for one conversation run inside a
// critical section keyed by the conversation id, so increments and resets are
// applied in a single order and never lost. Different conversations proceed
// concurrently. The room broadcast for a mutation is enqueued inside the same
// critical section; durable persistence happens afterwards, in the background.
package seen

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/keylock"
	"chatrelay/internal/telemetry"
)

// MemberSource lists the members of a conversation. It returns
// domain.ErrNotFound for unknown conversations.
type MemberSource interface {
	ListMemberIDs(ctx context.Context, id domain.ConversationID) ([]domain.UserID, error)
}

// RoomBroadcaster delivers an event to the live subscribers of a room.
type RoomBroadcaster interface {
	BroadcastToRoom(ctx context.Context, id domain.ConversationID, event string, payload any) int
}

// Scheduler accepts snapshots for asynchronous persistence. Dirty reports
// whether a conversation still has a snapshot waiting to be saved.
type Scheduler interface {
	Schedule(snap Snapshot)
	Dirty(id domain.ConversationID) bool
}

type UnreadPayload struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UnreadCounts   map[domain.UserID]int `json:"unreadCounts"`
	SeenBy         []domain.UserID       `json:"seenBy"`
}

type SeenPayload struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
	SeenAt         time.Time             `json:"seenAt"`
}

type Reconciler struct {
	members MemberSource
	store   domain.SeenStateRepository
	router  RoomBroadcaster
	persist Scheduler
	locks   *keylock.Locker[domain.ConversationID]
	now     func() time.Time
	tracer  trace.Tracer
	log     *zap.Logger

	mu     sync.RWMutex
	states map[domain.ConversationID]*state
}

func NewReconciler(
	members MemberSource,
	store domain.SeenStateRepository,
	router RoomBroadcaster,
	persist Scheduler,
	log *zap.Logger,
) *Reconciler {
	return &Reconciler{
		members: members,
		store:   store,
		router:  router,
		persist: persist,
		locks:   keylock.New[domain.ConversationID](),
		now:     time.Now,
		tracer:  telemetry.Tracer(),
		log:     log,
		states:  make(map[domain.ConversationID]*state),
	}
}

// OnNewMessage resets seenBy to the sender and increments the unread count of
// every other member.
func (r *Reconciler) OnNewMessage(ctx context.Context, id domain.ConversationID, senderID domain.UserID) (Snapshot, error) {
	snap, _, err := r.newMessage(ctx, id, senderID, nil)
	return snap, err
}

// RelayNewMessage is OnNewMessage that also broadcasts new_message with the
// given payload, inside the same critical section as the counter update. It
// returns the number of connections that received new_message.
func (r *Reconciler) RelayNewMessage(
	ctx context.Context,
	id domain.ConversationID,
	senderID domain.UserID,
	payload any,
) (Snapshot, int, error) {
	return r.newMessage(ctx, id, senderID, func(ctx context.Context) int {
		return r.router.BroadcastToRoom(ctx, id, domain.EventNewMessage, payload)
	})
}

func (r *Reconciler) newMessage(
	ctx context.Context,
	id domain.ConversationID,
	senderID domain.UserID,
	announce func(context.Context) int,
) (Snapshot, int, error) {
	ctx, span := r.tracer.Start(ctx, "seen.OnNewMessage", trace.WithAttributes(
		attribute.Int64("conversation.id", int64(id)),
		attribute.Int64("sender.id", int64(senderID)),
	))
	defer span.End()

	// Membership is fetched before locking so a slow store does not hold up
	// other mutations of the conversation. Nothing is broadcast until the
	// lock is held.
	members, err := r.members.ListMemberIDs(ctx, id)
	if err != nil {
		return Snapshot{}, 0, fmt.Errorf("list members of conversation %d: %w", id, err)
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	st, err := r.stateLocked(ctx, id)
	if err != nil {
		return Snapshot{}, 0, err
	}

	clear(st.seenBy)
	st.seenBy[senderID] = struct{}{}
	for _, uid := range members {
		if uid == senderID {
			continue
		}
		st.unread[uid]++
	}
	st.version++
	st.touched = r.now()
	snap := st.snapshot(id)

	delivered := 0
	if announce != nil {
		delivered = announce(ctx)
	}
	r.router.BroadcastToRoom(ctx, id, domain.EventUnreadCountsUpdated, UnreadPayload{
		ConversationID: id,
		UnreadCounts:   snap.UnreadCounts,
		SeenBy:         snap.SeenBy,
	})
	r.persist.Schedule(snap)
	return snap, delivered, nil
}

// OnSeenAck records that userID has seen the conversation's newest message.
// Unknown conversations yield domain.ErrNotFound and non-members
// domain.ErrForbidden.
func (r *Reconciler) OnSeenAck(ctx context.Context, id domain.ConversationID, userID domain.UserID) (Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "seen.OnSeenAck", trace.WithAttributes(
		attribute.Int64("conversation.id", int64(id)),
		attribute.Int64("user.id", int64(userID)),
	))
	defer span.End()

	members, err := r.members.ListMemberIDs(ctx, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list members of conversation %d: %w", id, err)
	}
	if !slices.Contains(members, userID) {
		return Snapshot{}, fmt.Errorf("user %d in conversation %d: %w", userID, id, domain.ErrForbidden)
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	st, err := r.stateLocked(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	_, seen := st.seenBy[userID]
	count, tracked := st.unread[userID]
	changed := !seen || !tracked || count != 0

	st.seenBy[userID] = struct{}{}
	st.unread[userID] = 0
	if changed {
		st.version++
	}
	st.touched = r.now()
	snap := st.snapshot(id)

	r.router.BroadcastToRoom(ctx, id, domain.EventConversationSeen, SeenPayload{
		ConversationID: id,
		UserID:         userID,
		SeenAt:         r.now().UTC(),
	})
	if changed {
		r.persist.Schedule(snap)
	}
	return snap, nil
}

// Snapshot returns the in-memory state of a conversation that has been
// touched since startup.
func (r *Reconciler) Snapshot(id domain.ConversationID) (Snapshot, bool) {
	unlock := r.locks.Lock(id)
	defer unlock()

	r.mu.RLock()
	st, ok := r.states[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return st.snapshot(id), true
}

// stateLocked returns the conversation's state, loading the persisted one on
// first use. The caller must hold the conversation lock.
func (r *Reconciler) stateLocked(ctx context.Context, id domain.ConversationID) (*state, error) {
	r.mu.RLock()
	st, ok := r.states[id]
	r.mu.RUnlock()
	if ok {
		return st, nil
	}

	saved, err := r.store.LoadSeenState(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load seen state for conversation %d: %w", id, err)
	}
	st = stateFrom(saved)
	st.touched = r.now()

	r.mu.Lock()
	r.states[id] = st
	r.mu.Unlock()

	r.log.Debug("seen state loaded",
		zap.Stringer("conversation_id", id),
		zap.Int("seen_by", len(st.seenBy)),
	)
	return st, nil
}

// Forget drops the in-memory state of a conversation. The next mutation
// reloads it from the store.
func (r *Reconciler) Forget(id domain.ConversationID) {
	unlock := r.locks.Lock(id)
	defer unlock()

	r.mu.Lock()
	delete(r.states, id)
	r.mu.Unlock()
}

// EvictIdle drops states that were not mutated for idle and have nothing
// left to persist. It returns the number of evicted conversations.
func (r *Reconciler) EvictIdle(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.RLock()
	candidates := make([]domain.ConversationID, 0)
	for id, st := range r.states {
		if st.touched.Before(cutoff) {
			candidates = append(candidates, id)
		}
	}
	r.mu.RUnlock()

	evicted := 0
	for _, id := range candidates {
		if r.evictIfIdle(id, cutoff) {
			evicted++
		}
	}
	if evicted > 0 {
		r.log.Debug("idle seen states evicted", zap.Int("count", evicted))
	}
	return evicted
}

func (r *Reconciler) evictIfIdle(id domain.ConversationID, cutoff time.Time) bool {
	unlock := r.locks.Lock(id)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok || !st.touched.Before(cutoff) || r.persist.Dirty(id) {
		return false
	}
	delete(r.states, id)
	return true
}

// Sweep calls EvictIdle every interval until ctx is cancelled.
func (r *Reconciler) Sweep(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle(idle)
		}
	}
}
