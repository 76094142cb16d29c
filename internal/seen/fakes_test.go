package seen

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"chatrelay/internal/domain"
)

type memberStub map[domain.ConversationID][]domain.UserID

func (m memberStub) ListMemberIDs(_ context.Context, id domain.ConversationID) ([]domain.UserID, error) {
	ids, ok := m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ids, nil
}

type sentEvent struct {
	conversation domain.ConversationID
	event        string
	payload      any
}

type recordingRouter struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recordingRouter) BroadcastToRoom(_ context.Context, id domain.ConversationID, event string, payload any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{conversation: id, event: event, payload: payload})
	return 1
}

func (r *recordingRouter) sent() []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentEvent(nil), r.events...)
}

type recordingScheduler struct {
	mu    sync.Mutex
	snaps []Snapshot
	dirty map[domain.ConversationID]bool
}

func (s *recordingScheduler) Dirty(id domain.ConversationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty[id]
}

func (s *recordingScheduler) setDirty(id domain.ConversationID, dirty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty == nil {
		s.dirty = make(map[domain.ConversationID]bool)
	}
	s.dirty[id] = dirty
}

func (s *recordingScheduler) Schedule(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *recordingScheduler) scheduled() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snaps...)
}

// memSeenStore keeps saved states in memory and can be told to fail.
type memSeenStore struct {
	mu     sync.Mutex
	saved  map[domain.ConversationID]domain.SeenState
	saves  int
	failN  int
	failOn error
}

var errStoreDown = errors.New("store unavailable")

func newMemSeenStore() *memSeenStore {
	return &memSeenStore{saved: make(map[domain.ConversationID]domain.SeenState)}
}

func (s *memSeenStore) LoadSeenState(_ context.Context, id domain.ConversationID) (*domain.SeenState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.saved[id]
	if !ok {
		return &domain.SeenState{ConversationID: id, UnreadCounts: map[domain.UserID]int{}}, nil
	}
	return &st, nil
}

func (s *memSeenStore) SaveSeenState(_ context.Context, st *domain.SeenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failOn != nil {
		return s.failOn
	}
	if s.failN > 0 {
		s.failN--
		return errStoreDown
	}
	s.saved[st.ConversationID] = *st
	return nil
}

func (s *memSeenStore) get(id domain.ConversationID) (domain.SeenState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.saved[id]
	return st, ok
}

func (s *memSeenStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memSeenStore) setFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = err
}

type MockSeenStore struct {
	mock.Mock
}

func (m *MockSeenStore) LoadSeenState(ctx context.Context, id domain.ConversationID) (*domain.SeenState, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SeenState), args.Error(1)
}

func (m *MockSeenStore) SaveSeenState(ctx context.Context, st *domain.SeenState) error {
	args := m.Called(ctx, st)
	return args.Error(0)
}
