package seen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/telemetry"
)

type PersisterConfig struct {
	Workers        int
	Attempts       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SweepInterval  time.Duration
	FailThreshold  int
}

func (c *PersisterConfig) norm() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 15 * time.Second
	}
	if c.FailThreshold <= 0 {
		c.FailThreshold = 3
	}
}

type pending struct {
	snap   Snapshot
	failed bool
}

// shard owns the dirty snapshots of the conversations hashed to it. work is
// held for the whole of a persistence pass, so saves for one conversation
// never overlap or reorder.
type shard struct {
	mu      sync.Mutex
	pending map[domain.ConversationID]*pending
	work    sync.Mutex
	wake    chan struct{}
}

// Persister writes read-state snapshots to the store in the background.
// Snapshots are coalesced per conversation, so only the newest version is
// written and an older one never overwrites a newer one.
type Persister struct {
	store  domain.SeenStateRepository
	cfg    PersisterConfig
	shards []*shard
	tracer trace.Tracer
	log    *zap.Logger

	mu       sync.Mutex
	failures map[domain.ConversationID]int

	onDiscard func(domain.ConversationID)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPersister(store domain.SeenStateRepository, cfg PersisterConfig, log *zap.Logger) *Persister {
	cfg.norm()
	p := &Persister{
		store:    store,
		cfg:      cfg,
		shards:   make([]*shard, cfg.Workers),
		tracer:   telemetry.Tracer(),
		log:      log,
		failures: make(map[domain.ConversationID]int),
	}
	for i := range p.shards {
		p.shards[i] = &shard{
			pending: make(map[domain.ConversationID]*pending),
			wake:    make(chan struct{}, 1),
		}
	}
	return p
}

// OnDiscard registers fn to be called with the id of every conversation whose
// snapshot was dropped because the store no longer knows the conversation.
// It must be called before Start.
func (p *Persister) OnDiscard(fn func(domain.ConversationID)) {
	p.onDiscard = fn
}

// Start launches one worker per shard. Workers stop when ctx is cancelled
// or Close is called.
func (p *Persister) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, s := range p.shards {
		p.wg.Add(1)
		go func(s *shard) {
			defer p.wg.Done()
			p.run(ctx, s)
		}(s)
	}
}

// Close stops the workers and makes a last attempt at every dirty snapshot.
func (p *Persister) Close(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return p.Flush(ctx)
}

// Schedule marks the snapshot for persistence without blocking.
func (p *Persister) Schedule(snap Snapshot) {
	s := p.shardOf(snap.ConversationID)

	s.mu.Lock()
	if cur, ok := s.pending[snap.ConversationID]; ok && cur.snap.Version >= snap.Version {
		s.mu.Unlock()
		return
	}
	s.pending[snap.ConversationID] = &pending{snap: snap}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Flush synchronously persists every dirty snapshot once, including ones
// that previously failed.
func (p *Persister) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range p.shards {
		if err := p.drain(ctx, s, true, 1); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dirty reports whether the conversation has a snapshot that is not saved yet.
func (p *Persister) Dirty(id domain.ConversationID) bool {
	s := p.shardOf(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Pending returns the number of conversations with unsaved state.
func (p *Persister) Pending() int {
	n := 0
	for _, s := range p.shards {
		s.mu.Lock()
		n += len(s.pending)
		s.mu.Unlock()
	}
	return n
}

// Health lists conversations whose consecutive persistence failures reached
// the configured threshold.
type Health struct {
	Healthy   bool                          `json:"healthy"`
	Pending   int                           `json:"pending"`
	Failing   map[domain.ConversationID]int `json:"failing,omitempty"`
	Threshold int                           `json:"threshold"`
}

func (p *Persister) Health() Health {
	h := Health{Pending: p.Pending(), Threshold: p.cfg.FailThreshold}

	p.mu.Lock()
	for id, n := range p.failures {
		if n >= p.cfg.FailThreshold {
			if h.Failing == nil {
				h.Failing = make(map[domain.ConversationID]int)
			}
			h.Failing[id] = n
		}
	}
	p.mu.Unlock()

	h.Healthy = len(h.Failing) == 0
	return h
}

func (p *Persister) run(ctx context.Context, s *shard) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			_ = p.drain(ctx, s, false, p.cfg.Attempts)
		case <-ticker.C:
			_ = p.drain(ctx, s, true, p.cfg.Attempts)
		}
	}
}

// drain persists the shard's dirty snapshots. Snapshots that failed before
// are only retried when includeFailed is set (sweep ticks and flushes).
func (p *Persister) drain(ctx context.Context, s *shard, includeFailed bool, attempts uint) error {
	s.work.Lock()
	defer s.work.Unlock()

	s.mu.Lock()
	batch := make([]Snapshot, 0, len(s.pending))
	for _, item := range s.pending {
		if item.failed && !includeFailed {
			continue
		}
		batch = append(batch, item.snap)
	}
	s.mu.Unlock()

	var errs []error
	for _, snap := range batch {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		err := p.save(ctx, snap, attempts)
		if errors.Is(err, domain.ErrNotFound) {
			p.discard(s, snap, err)
			continue
		}

		s.mu.Lock()
		cur, ok := s.pending[snap.ConversationID]
		if ok && cur.snap.Version == snap.Version {
			if err == nil {
				delete(s.pending, snap.ConversationID)
			} else {
				cur.failed = true
			}
		}
		s.mu.Unlock()

		p.record(snap.ConversationID, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// discard forgets a snapshot that can never be saved. Any newer snapshot of
// the same conversation is dropped too, since it would fail the same way.
func (p *Persister) discard(s *shard, snap Snapshot, err error) {
	id := snap.ConversationID

	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()

	p.mu.Lock()
	delete(p.failures, id)
	p.mu.Unlock()

	p.log.Error("seen state dropped, conversation no longer stored",
		zap.Stringer("conversation_id", id),
		zap.Uint64("version", snap.Version),
		zap.Error(err),
	)
	if p.onDiscard != nil {
		p.onDiscard(id)
	}
}

func (p *Persister) save(ctx context.Context, snap Snapshot, attempts uint) error {
	ctx, span := p.tracer.Start(ctx, "seen.Persist", trace.WithAttributes(
		attribute.Int64("conversation.id", int64(snap.ConversationID)),
		attribute.Int64("version", int64(snap.Version)),
	))
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := p.store.SaveSeenState(ctx, snap.toDomain())
		if errors.Is(err, domain.ErrNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist seen state")
		return fmt.Errorf("persist seen state for conversation %d: %w", snap.ConversationID, err)
	}
	return nil
}

func (p *Persister) record(id domain.ConversationID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		if n := p.failures[id]; n > 0 {
			p.log.Info("seen state persisted after failures",
				zap.Stringer("conversation_id", id),
				zap.Int("failures", n),
			)
		}
		delete(p.failures, id)
		return
	}

	p.failures[id]++
	n := p.failures[id]
	fields := []zap.Field{
		zap.Stringer("conversation_id", id),
		zap.Int("consecutive_failures", n),
		zap.Error(err),
	}
	if n >= p.cfg.FailThreshold {
		p.log.Error("seen state persistence failing repeatedly", fields...)
	} else {
		p.log.Warn("seen state persistence failed", fields...)
	}
}

func (p *Persister) shardOf(id domain.ConversationID) *shard {
	i := uint64(id) % uint64(len(p.shards))
	return p.shards[i]
}
