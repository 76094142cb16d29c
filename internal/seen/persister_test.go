package seen

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
)

func snapshotOf(id domain.ConversationID, version uint64, unread map[domain.UserID]int) Snapshot {
	return Snapshot{ConversationID: id, SeenBy: []domain.UserID{alice}, UnreadCounts: unread, Version: version}
}

func fastConfig() PersisterConfig {
	return PersisterConfig{
		Workers:        2,
		Attempts:       3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		SweepInterval:  time.Hour,
		FailThreshold:  2,
	}
}

func TestPersister_CoalescesToNewestVersion(t *testing.T) {
	store := newMemSeenStore()
	p := NewPersister(store, fastConfig(), zap.NewNop())

	p.Schedule(snapshotOf(conv, 1, map[domain.UserID]int{bob: 1}))
	p.Schedule(snapshotOf(conv, 3, map[domain.UserID]int{bob: 3}))
	p.Schedule(snapshotOf(conv, 2, map[domain.UserID]int{bob: 2}))
	assert.Equal(t, 1, p.Pending())

	require.NoError(t, p.Flush(context.Background()))

	saved, ok := store.get(conv)
	require.True(t, ok)
	assert.Equal(t, 3, saved.UnreadCounts[bob])
	assert.Equal(t, 1, store.saveCount())
	assert.Equal(t, 0, p.Pending())
}

func TestPersister_HealthAfterRepeatedFailures(t *testing.T) {
	store := newMemSeenStore()
	store.setFailure(errStoreDown)
	p := NewPersister(store, fastConfig(), zap.NewNop())
	ctx := context.Background()

	p.Schedule(snapshotOf(conv, 1, map[domain.UserID]int{bob: 1}))

	assert.ErrorIs(t, p.Flush(ctx), errStoreDown)
	assert.True(t, p.Health().Healthy)

	assert.ErrorIs(t, p.Flush(ctx), errStoreDown)
	h := p.Health()
	assert.False(t, h.Healthy)
	assert.Equal(t, map[domain.ConversationID]int{conv: 2}, h.Failing)
	assert.Equal(t, 1, h.Pending)

	store.setFailure(nil)
	require.NoError(t, p.Flush(ctx))
	h = p.Health()
	assert.True(t, h.Healthy)
	assert.Equal(t, 0, h.Pending)
	_, ok := store.get(conv)
	assert.True(t, ok)
}

func TestPersister_WorkerRetriesWithBackoff(t *testing.T) {
	store := newMemSeenStore()
	store.failN = 2
	p := NewPersister(store, fastConfig(), zap.NewNop())
	p.Start(context.Background())
	defer p.Close(context.Background())

	p.Schedule(snapshotOf(conv, 1, map[domain.UserID]int{bob: 7}))

	require.Eventually(t, func() bool {
		_, ok := store.get(conv)
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, store.saveCount())
	assert.True(t, p.Health().Healthy)
}

func TestPersister_SweepRetriesFailedSnapshots(t *testing.T) {
	store := newMemSeenStore()
	store.setFailure(errStoreDown)
	cfg := fastConfig()
	cfg.Attempts = 1
	cfg.SweepInterval = 20 * time.Millisecond
	p := NewPersister(store, cfg, zap.NewNop())
	p.Start(context.Background())
	defer p.Close(context.Background())

	p.Schedule(snapshotOf(conv, 1, map[domain.UserID]int{bob: 1}))
	require.Eventually(t, func() bool { return store.saveCount() >= 1 }, time.Second, 5*time.Millisecond)

	store.setFailure(nil)
	require.Eventually(t, func() bool {
		_, ok := store.get(conv)
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.Pending())
}

func TestPersister_CloseFlushesPending(t *testing.T) {
	store := newMemSeenStore()
	cfg := fastConfig()
	p := NewPersister(store, cfg, zap.NewNop())

	// no workers: everything is left for Close
	p.Schedule(snapshotOf(1, 1, map[domain.UserID]int{bob: 1}))
	p.Schedule(snapshotOf(2, 1, map[domain.UserID]int{bob: 2}))

	require.NoError(t, p.Close(context.Background()))
	_, ok1 := store.get(1)
	_, ok2 := store.get(2)
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestPersister_WithReconciler(t *testing.T) {
	store := newMemSeenStore()
	p := NewPersister(store, fastConfig(), zap.NewNop())
	rec := NewReconciler(memberStub{conv: {alice, bob}}, store, &recordingRouter{}, p, zap.NewNop())
	ctx := context.Background()

	_, err := rec.OnNewMessage(ctx, conv, alice)
	require.NoError(t, err)
	_, err = rec.OnNewMessage(ctx, conv, alice)
	require.NoError(t, err)
	require.NoError(t, p.Flush(ctx))

	saved, ok := store.get(conv)
	require.True(t, ok)
	assert.Equal(t, []domain.UserID{alice}, saved.SeenBy)
	assert.Equal(t, 2, saved.UnreadCounts[bob])

	_, err = rec.OnSeenAck(ctx, conv, bob)
	require.NoError(t, err)
	require.NoError(t, p.Flush(ctx))

	saved, _ = store.get(conv)
	assert.ElementsMatch(t, []domain.UserID{alice, bob}, saved.SeenBy)
	assert.Equal(t, 0, saved.UnreadCounts[bob])
}

func TestPersister_DropsSnapshotOfDeletedConversation(t *testing.T) {
	store := newMemSeenStore()
	store.setFailure(fmt.Errorf("conversation %d: %w", conv, domain.ErrNotFound))
	p := NewPersister(store, fastConfig(), zap.NewNop())
	var forgotten []domain.ConversationID
	p.OnDiscard(func(id domain.ConversationID) { forgotten = append(forgotten, id) })
	ctx := context.Background()

	p.Schedule(snapshotOf(conv, 1, map[domain.UserID]int{bob: 1}))
	for range 5 {
		require.NoError(t, p.Flush(ctx))
	}

	assert.Equal(t, 1, store.saveCount(), "not found is not retried")
	assert.Equal(t, 0, p.Pending())
	assert.False(t, p.Dirty(conv))
	h := p.Health()
	assert.True(t, h.Healthy)
	assert.Empty(t, h.Failing)
	assert.Equal(t, []domain.ConversationID{conv}, forgotten)
}

func TestPersister_DiscardEvictsReconcilerState(t *testing.T) {
	store := newMemSeenStore()
	p := NewPersister(store, fastConfig(), zap.NewNop())
	rec := NewReconciler(memberStub{conv: {alice, bob}}, store, &recordingRouter{}, p, zap.NewNop())
	p.OnDiscard(rec.Forget)
	ctx := context.Background()

	_, err := rec.OnNewMessage(ctx, conv, alice)
	require.NoError(t, err)
	store.setFailure(domain.ErrNotFound)

	require.NoError(t, p.Flush(ctx))
	_, ok := rec.Snapshot(conv)
	assert.False(t, ok)
	assert.True(t, p.Health().Healthy)
}

func TestPersister_Dirty(t *testing.T) {
	store := newMemSeenStore()
	p := NewPersister(store, fastConfig(), zap.NewNop())

	assert.False(t, p.Dirty(conv))
	p.Schedule(snapshotOf(conv, 1, map[domain.UserID]int{bob: 1}))
	assert.True(t, p.Dirty(conv))
	require.NoError(t, p.Flush(context.Background()))
	assert.False(t, p.Dirty(conv))
}
