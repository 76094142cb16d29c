// Package friends relays relationship changes to the affected user.
//
// The notifier is a low-latency shortcut only. Requests and friendships are
// persisted by the caller before Notify runs; a target that is offline learns
// about the change from its next query.
package friends

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chatrelay/internal/domain"
)

type Kind string

const (
	RequestSent      Kind = "request_sent"
	RequestAccepted  Kind = "request_accepted"
	RequestDeclined  Kind = "request_declined"
	RequestCancelled Kind = "request_cancelled"
	Unfriended       Kind = "unfriended"
)

var eventNames = map[Kind]string{
	RequestSent:      domain.EventNewFriendRequest,
	RequestAccepted:  domain.EventFriendRequestAccepted,
	RequestDeclined:  domain.EventFriendRequestDeclined,
	RequestCancelled: domain.EventFriendRequestCancelled,
	Unfriended:       domain.EventUnfriended,
}

// EventName maps a kind to its wire event name.
func EventName(k Kind) (string, bool) {
	name, ok := eventNames[k]
	return name, ok
}

// Event is a relationship change that has already been validated and stored.
type Event struct {
	Kind    Kind
	ActorID domain.UserID
	Target  domain.UserID
	Payload any
}

// UserUnicaster delivers an event to every live connection of a user.
type UserUnicaster interface {
	UnicastToUser(ctx context.Context, userID domain.UserID, event string, payload any) int
}

type Notifier struct {
	router UserUnicaster
	log    *zap.Logger
}

func NewNotifier(router UserUnicaster, log *zap.Logger) *Notifier {
	return &Notifier{router: router, log: log}
}

// Notify delivers the event to the target's live connections and returns how
// many were reached. Zero is not an error.
func (n *Notifier) Notify(ctx context.Context, ev Event) (int, error) {
	name, ok := EventName(ev.Kind)
	if !ok {
		return 0, fmt.Errorf("friend event kind %q: %w", ev.Kind, domain.ErrInvalidInput)
	}
	if ev.Target == 0 {
		return 0, fmt.Errorf("friend event without target: %w", domain.ErrInvalidInput)
	}
	if ev.ActorID != 0 && ev.ActorID == ev.Target {
		return 0, fmt.Errorf("friend event targets its own actor: %w", domain.ErrInvalidInput)
	}

	delivered := n.router.UnicastToUser(ctx, ev.Target, name, ev.Payload)
	n.log.Debug("friend event relayed",
		zap.String("event", name),
		zap.Stringer("target_id", ev.Target),
		zap.Int("delivered", delivered),
	)
	return delivered, nil
}
