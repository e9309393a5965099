// Package store holds conversation state in an in-process cache with
// best-effort write-through to Postgres. The cache is authoritative after
// startup hydration; the durable tier only buys persistence across restarts.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
	"github.com/emersonmadrid/feliz-horizonte-bot/internal/repository"
)

const (
	hydrateAttempts = 3
	hydrateBackoff  = 500 * time.Millisecond
	durableTimeout  = 5 * time.Second
)

type entry struct {
	state     model.ConversationState
	updatedAt time.Time
}

// Metrics is the operational snapshot exposed to the admin surface.
type Metrics struct {
	ActiveCount  int   `json:"activeCount"`
	ExpiredCount int64 `json:"expiredCount"`
	TTLMinutes   int   `json:"ttlMinutes"`
}

// ActiveConversation pairs an identity with its live state for listing.
type ActiveConversation struct {
	Identity  string                  `json:"identity"`
	State     model.ConversationState `json:"state"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// Store is the hybrid cache/durable conversation-state store. All methods
// are safe for concurrent use. A read-decide-write sequence against one
// identity (router decisions, timer callbacks, sweeps racing a merge) must
// be wrapped in Lock(identity) so it cannot interleave with another writer
// of the same identity.
type Store struct {
	durable repository.StateRepository
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]entry

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// Flips off permanently on the first durable-store failure so every
	// later mutation skips the round trip instead of retrying forever.
	durableEnabled atomic.Bool
	expiredCount   atomic.Int64

	sweepInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup

	now     func() time.Time
	backoff time.Duration
}

// New creates a Store. The durable repository may be nil, in which case the
// store runs cache-only from the start.
func New(durable repository.StateRepository, ttl, sweepInterval time.Duration) *Store {
	s := &Store{
		durable:       durable,
		ttl:           ttl,
		cache:         make(map[string]entry),
		locks:         make(map[string]*sync.Mutex),
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
		now:           time.Now,
		backoff:       hydrateBackoff,
	}
	s.durableEnabled.Store(durable != nil)
	return s
}

// Hydrate bulk-loads all durable records newer than now-TTL into the cache.
// The bulk read is retried up to 3 times with exponential backoff; after
// that the store starts empty rather than blocking startup.
func (s *Store) Hydrate(ctx context.Context) {
	if !s.durableEnabled.Load() {
		return
	}

	backoff := s.backoff
	for attempt := 1; attempt <= hydrateAttempts; attempt++ {
		recs, err := s.durable.BulkLoadSince(ctx, s.now().Add(-s.ttl))
		if err == nil {
			s.mu.Lock()
			for _, rec := range recs {
				var state model.ConversationState
				if jsonErr := json.Unmarshal(rec.State, &state); jsonErr != nil {
					log.Warn().Err(jsonErr).Str("identity", rec.Identity).Msg("skipping undecodable state record")
					continue
				}
				state.Identity = rec.Identity
				s.cache[rec.Identity] = entry{state: state, updatedAt: rec.UpdatedAt}
			}
			size := len(s.cache)
			s.mu.Unlock()
			log.Info().Int("conversations", size).Msg("conversation state hydrated from durable store")
			return
		}

		log.Warn().Err(err).Int("attempt", attempt).Int("maxAttempts", hydrateAttempts).
			Msg("failed to hydrate conversation state")
		if attempt < hydrateAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	log.Warn().Msg("hydration gave up; starting with an empty cache")
}

// Start launches the background TTL sweep.
func (s *Store) Start() {
	s.wg.Add(1)
	go s.sweepLoop()
	log.Info().Dur("interval", s.sweepInterval).Dur("ttl", s.ttl).Msg("state sweep started")
}

// Close stops the background sweep and waits for it to finish.
func (s *Store) Close() {
	close(s.done)
	s.wg.Wait()
}

func (s *Store) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep evicts every cache entry whose age reached the TTL and issues a
// best-effort delete to the durable store for each.
func (s *Store) Sweep() {
	now := s.now()

	s.mu.Lock()
	var evicted []string
	for identity, e := range s.cache {
		if now.Sub(e.updatedAt) >= s.ttl {
			delete(s.cache, identity)
			evicted = append(evicted, identity)
		}
	}
	s.mu.Unlock()

	if len(evicted) == 0 {
		return
	}
	s.expiredCount.Add(int64(len(evicted)))
	log.Info().Int("count", len(evicted)).Msg("expired conversations evicted")

	for _, identity := range evicted {
		s.deleteDurable(identity)
	}
}

// Lock acquires the per-identity mutex, creating it on first use. The
// caller must invoke the returned function to release.
func (s *Store) Lock(identity string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[identity]
	if !ok {
		l = &sync.Mutex{}
		s.locks[identity] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns the live state for an identity, or nil when none exists. A
// cache miss falls through to a single durable lookup.
func (s *Store) Get(ctx context.Context, identity string) *model.ConversationState {
	now := s.now()

	s.mu.RLock()
	e, ok := s.cache[identity]
	s.mu.RUnlock()

	if ok {
		if now.Sub(e.updatedAt) < s.ttl {
			state := e.state
			return &state
		}
		// Expired but not yet swept; evict eagerly.
		s.mu.Lock()
		if cur, still := s.cache[identity]; still && now.Sub(cur.updatedAt) >= s.ttl {
			delete(s.cache, identity)
			s.expiredCount.Add(1)
		}
		s.mu.Unlock()
		s.deleteDurable(identity)
	}

	if !s.durableEnabled.Load() {
		return nil
	}

	rec, err := s.durable.Find(ctx, identity, now.Add(-s.ttl))
	if err != nil {
		s.disableDurable(err, "durable state lookup failed")
		return nil
	}
	if rec == nil {
		return nil
	}

	var state model.ConversationState
	if err := json.Unmarshal(rec.State, &state); err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("durable state record undecodable")
		return nil
	}
	state.Identity = identity

	s.mu.Lock()
	s.cache[identity] = entry{state: state, updatedAt: rec.UpdatedAt}
	s.mu.Unlock()

	return &state
}

// Merge shallow-merges the update over the current state (a fresh record
// when none exists), stamps last activity, writes the cache synchronously
// and the durable store best-effort off the caller's path.
func (s *Store) Merge(ctx context.Context, identity string, update model.StateUpdate) model.ConversationState {
	current := s.Get(ctx, identity)
	if current == nil {
		fresh := model.NewConversationState(identity)
		current = &fresh
	}

	update.Apply(current)
	now := s.now()
	current.LastActivityAt = now

	s.mu.Lock()
	s.cache[identity] = entry{state: *current, updatedAt: now}
	s.mu.Unlock()

	s.persistDurable(identity, *current, now)
	return *current
}

// Touch refreshes last activity without changing any flags.
func (s *Store) Touch(ctx context.Context, identity string) model.ConversationState {
	return s.Merge(ctx, identity, model.StateUpdate{})
}

// Delete removes the identity from the cache and, best-effort, from the
// durable store.
func (s *Store) Delete(ctx context.Context, identity string) {
	s.mu.Lock()
	delete(s.cache, identity)
	s.mu.Unlock()
	s.deleteDurable(identity)
}

// ListActive returns all unexpired cached conversations.
func (s *Store) ListActive() []ActiveConversation {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ActiveConversation, 0, len(s.cache))
	for identity, e := range s.cache {
		if now.Sub(e.updatedAt) >= s.ttl {
			continue
		}
		out = append(out, ActiveConversation{Identity: identity, State: e.state, UpdatedAt: e.updatedAt})
	}
	return out
}

func (s *Store) Metrics() Metrics {
	s.mu.RLock()
	active := len(s.cache)
	s.mu.RUnlock()

	return Metrics{
		ActiveCount:  active,
		ExpiredCount: s.expiredCount.Load(),
		TTLMinutes:   int(s.ttl / time.Minute),
	}
}

// persistDurable issues the write-through without blocking the caller.
func (s *Store) persistDurable(identity string, state model.ConversationState, updatedAt time.Time) {
	if !s.durableEnabled.Load() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), durableTimeout)
		defer cancel()
		if err := s.durable.Upsert(ctx, identity, state, updatedAt); err != nil {
			s.disableDurable(err, "durable state upsert failed")
		}
	}()
}

func (s *Store) deleteDurable(identity string) {
	if !s.durableEnabled.Load() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), durableTimeout)
		defer cancel()
		if err := s.durable.Delete(ctx, identity); err != nil {
			s.disableDurable(err, "durable state delete failed")
		}
	}()
}

func (s *Store) disableDurable(err error, msg string) {
	if s.durableEnabled.CompareAndSwap(true, false) {
		log.Error().Err(err).Msg(msg + "; continuing cache-only for the rest of the process")
	}
}

// DurableEnabled reports whether write-through is still active.
func (s *Store) DurableEnabled() bool {
	return s.durableEnabled.Load()
}
