package seen

import (
	"slices"
	"time"

	"chatrelay/internal/domain"
)

// state is the in-memory read state of one conversation. It is only touched
// while the conversation's key lock is held.
type state struct {
	seenBy  map[domain.UserID]struct{}
	unread  map[domain.UserID]int
	version uint64
	touched time.Time
}

func newState() *state {
	return &state{
		seenBy: make(map[domain.UserID]struct{}),
		unread: make(map[domain.UserID]int),
	}
}

func stateFrom(st *domain.SeenState) *state {
	s := newState()
	if st == nil {
		return s
	}
	for _, uid := range st.SeenBy {
		s.seenBy[uid] = struct{}{}
	}
	for uid, n := range st.UnreadCounts {
		s.unread[uid] = max(n, 0)
	}
	return s
}

// Snapshot is an immutable copy of a conversation's read state.
type Snapshot struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	SeenBy         []domain.UserID       `json:"seenBy"`
	UnreadCounts   map[domain.UserID]int `json:"unreadCounts"`
	Version        uint64                `json:"-"`
}

func (s *state) snapshot(id domain.ConversationID) Snapshot {
	seenBy := make([]domain.UserID, 0, len(s.seenBy))
	for uid := range s.seenBy {
		seenBy = append(seenBy, uid)
	}
	slices.Sort(seenBy)

	unread := make(map[domain.UserID]int, len(s.unread))
	for uid, n := range s.unread {
		unread[uid] = n
	}
	return Snapshot{
		ConversationID: id,
		SeenBy:         seenBy,
		UnreadCounts:   unread,
		Version:        s.version,
	}
}

// Unread returns the user's unread count; absent users count as zero.
func (s Snapshot) Unread(uid domain.UserID) int {
	return s.UnreadCounts[uid]
}

// HasSeen reports whether uid acknowledged the newest message.
func (s Snapshot) HasSeen(uid domain.UserID) bool {
	return slices.Contains(s.SeenBy, uid)
}

func (s Snapshot) toDomain() *domain.SeenState {
	return &domain.SeenState{
		ConversationID: s.ConversationID,
		SeenBy:         s.SeenBy,
		UnreadCounts:   s.UnreadCounts,
	}
}
