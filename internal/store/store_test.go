package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersonmadrid/feliz-horizonte-bot/internal/model"
)

type fakeDurable struct {
	mu        sync.Mutex
	rows      map[string]model.StateRecord
	failAll   bool
	failsLeft int

	upserts int
	deletes int
	loads   int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{rows: make(map[string]model.StateRecord)}
}

func (f *fakeDurable) fail() bool {
	if f.failAll {
		return true
	}
	if f.failsLeft > 0 {
		f.failsLeft--
		return true
	}
	return false
}

func (f *fakeDurable) Upsert(_ context.Context, identity string, state model.ConversationState, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.fail() {
		return errors.New("durable down")
	}
	raw, _ := json.Marshal(state)
	f.rows[identity] = model.StateRecord{Identity: identity, State: raw, UpdatedAt: updatedAt}
	return nil
}

func (f *fakeDurable) Find(_ context.Context, identity string, since time.Time) (*model.StateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail() {
		return nil, errors.New("durable down")
	}
	rec, ok := f.rows[identity]
	if !ok || rec.UpdatedAt.Before(since) {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeDurable) Delete(_ context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.fail() {
		return errors.New("durable down")
	}
	delete(f.rows, identity)
	return nil
}

func (f *fakeDurable) BulkLoadSince(_ context.Context, since time.Time) ([]model.StateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.fail() {
		return nil, errors.New("durable down")
	}
	var out []model.StateRecord
	for _, rec := range f.rows {
		if !rec.UpdatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeDurable) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

func (f *fakeDurable) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}

func newTestStore(durable *fakeDurable, ttl time.Duration) (*Store, *time.Time) {
	s := New(durable, ttl, time.Minute)
	current := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }
	return s, &current
}

func TestGetReturnsNilForUnknownIdentity(t *testing.T) {
	s, _ := newTestStore(newFakeDurable(), time.Hour)
	assert.Nil(t, s.Get(context.Background(), "51999000111"))
}

func TestMergeCreatesDefaultRecord(t *testing.T) {
	s, now := newTestStore(newFakeDurable(), time.Hour)
	ctx := context.Background()

	state := s.Merge(ctx, "51999000111", model.StateUpdate{
		LastIntent: model.Str("precios"),
	})

	assert.Equal(t, "51999000111", state.Identity)
	assert.Equal(t, *now, state.LastActivityAt)
	require.NotNil(t, state.LastIntent)
	assert.Equal(t, "precios", *state.LastIntent)
	assert.False(t, state.HandoffActive)

	got := s.Get(ctx, "51999000111")
	require.NotNil(t, got)
	assert.Equal(t, "precios", *got.LastIntent)
}

func TestMergeLeavesUnsetFieldsUntouched(t *testing.T) {
	s, _ := newTestStore(newFakeDurable(), time.Hour)
	ctx := context.Background()

	s.Merge(ctx, "id", model.StateUpdate{HandoffActive: model.Bool(true), LastIntent: model.Str("queja")})
	state := s.Merge(ctx, "id", model.StateUpdate{AwaitingScheduling: model.Bool(true)})

	assert.True(t, state.HandoffActive)
	assert.True(t, state.AwaitingScheduling)
	assert.Equal(t, "queja", *state.LastIntent)
}

func TestServiceChangeResetsScheduling(t *testing.T) {
	s, _ := newTestStore(newFakeDurable(), time.Hour)
	ctx := context.Background()

	s.Merge(ctx, "id", model.StateUpdate{
		ServicePreference: model.Str("therapy"),
		Scheduling: &model.SchedulingState{
			PriceConfirmed:   true,
			PaymentExplained: true,
			PendingService:   model.Str("therapy"),
			PendingPrice:     model.Float(140),
		},
	})

	state := s.Merge(ctx, "id", model.StateUpdate{ServicePreference: model.Str("psychiatry")})

	assert.False(t, state.Scheduling.PriceConfirmed)
	assert.False(t, state.Scheduling.PaymentExplained)
	assert.False(t, state.Scheduling.AwaitingPriceConfirm)
	assert.False(t, state.Scheduling.AwaitingPaymentConfirm)
	assert.Nil(t, state.Scheduling.PendingService)
	assert.Nil(t, state.Scheduling.PendingPrice)
}

func TestSameServiceKeepsScheduling(t *testing.T) {
	s, _ := newTestStore(newFakeDurable(), time.Hour)
	ctx := context.Background()

	s.Merge(ctx, "id", model.StateUpdate{
		ServicePreference: model.Str("therapy"),
		Scheduling:        &model.SchedulingState{PriceConfirmed: true},
	})
	state := s.Merge(ctx, "id", model.StateUpdate{ServicePreference: model.Str("therapy")})

	assert.True(t, state.Scheduling.PriceConfirmed)
}

func TestTTLEviction(t *testing.T) {
	durable := newFakeDurable()
	s, now := newTestStore(durable, time.Hour)
	ctx := context.Background()

	s.Merge(ctx, "stale", model.StateUpdate{})
	*now = now.Add(time.Hour)

	assert.Nil(t, s.Get(ctx, "stale"))
	assert.Empty(t, s.ListActive())

	metrics := s.Metrics()
	assert.EqualValues(t, 1, metrics.ExpiredCount)
	assert.Equal(t, 60, metrics.TTLMinutes)

	require.Eventually(t, func() bool {
		return durable.deleteCount() >= 1
	}, time.Second, 10*time.Millisecond, "eviction should issue a durable delete")
}

func TestSweepEvictsOnlyExpired(t *testing.T) {
	s, now := newTestStore(newFakeDurable(), time.Hour)
	ctx := context.Background()

	s.Merge(ctx, "old", model.StateUpdate{})
	*now = now.Add(30 * time.Minute)
	s.Merge(ctx, "fresh", model.StateUpdate{})
	*now = now.Add(30 * time.Minute)

	s.Sweep()

	active := s.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].Identity)
	assert.EqualValues(t, 1, s.Metrics().ExpiredCount)
}

func TestDurableFailureDegradesToCacheOnly(t *testing.T) {
	durable := newFakeDurable()
	durable.failAll = true
	s, _ := newTestStore(durable, time.Hour)
	ctx := context.Background()

	state := s.Merge(ctx, "id", model.StateUpdate{LastIntent: model.Str("agendar")})
	assert.Equal(t, "agendar", *state.LastIntent)

	got := s.Get(ctx, "id")
	require.NotNil(t, got)
	assert.Equal(t, "agendar", *got.LastIntent)

	require.Eventually(t, func() bool {
		return !s.DurableEnabled()
	}, time.Second, 10*time.Millisecond, "first failure should flip the circuit breaker")

	before := durable.upsertCount()
	s.Merge(ctx, "id", model.StateUpdate{WelcomeSent: model.Bool(true)})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, durable.upsertCount(), "degraded store must not keep calling the durable tier")
}

func TestGetFallsThroughToDurable(t *testing.T) {
	durable := newFakeDurable()
	s, now := newTestStore(durable, time.Hour)
	ctx := context.Background()

	raw, _ := json.Marshal(model.ConversationState{Identity: "id", WelcomeSent: true})
	durable.rows["id"] = model.StateRecord{Identity: "id", State: raw, UpdatedAt: *now}

	got := s.Get(ctx, "id")
	require.NotNil(t, got)
	assert.True(t, got.WelcomeSent)

	// Second read must come from cache.
	durable.failAll = true
	got = s.Get(ctx, "id")
	require.NotNil(t, got)
	assert.True(t, s.DurableEnabled())
}

func TestHydrateLoadsRecentRecords(t *testing.T) {
	durable := newFakeDurable()
	s, now := newTestStore(durable, time.Hour)

	raw, _ := json.Marshal(model.ConversationState{Identity: "live", HandoffActive: true})
	durable.rows["live"] = model.StateRecord{Identity: "live", State: raw, UpdatedAt: now.Add(-10 * time.Minute)}
	durable.rows["dead"] = model.StateRecord{Identity: "dead", State: raw, UpdatedAt: now.Add(-2 * time.Hour)}

	s.Hydrate(context.Background())

	got := s.Get(context.Background(), "live")
	require.NotNil(t, got)
	assert.True(t, got.HandoffActive)
	assert.Len(t, s.ListActive(), 1)
}

func TestHydrateRetriesWithBackoff(t *testing.T) {
	durable := newFakeDurable()
	durable.failsLeft = 2
	s, now := newTestStore(durable, time.Hour)
	s.backoff = time.Millisecond

	raw, _ := json.Marshal(model.ConversationState{Identity: "id"})
	durable.rows["id"] = model.StateRecord{Identity: "id", State: raw, UpdatedAt: *now}

	s.Hydrate(context.Background())

	assert.NotNil(t, s.Get(context.Background(), "id"))
	assert.True(t, s.DurableEnabled(), "hydration retries must not trip the write circuit breaker")
}

func TestDeleteRemovesFromCache(t *testing.T) {
	durable := newFakeDurable()
	s, _ := newTestStore(durable, time.Hour)
	ctx := context.Background()

	s.Merge(ctx, "id", model.StateUpdate{})
	s.Delete(ctx, "id")

	assert.Nil(t, s.Get(ctx, "id"))
	require.Eventually(t, func() bool {
		return durable.deleteCount() >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestConcurrentMergesDistinctIdentities(t *testing.T) {
	s, _ := newTestStore(newFakeDurable(), time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			identity := string(rune('a' + n%10))
			unlock := s.Lock(identity)
			s.Merge(ctx, identity, model.StateUpdate{WelcomeSent: model.Bool(true)})
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.ListActive(), 10)
}
