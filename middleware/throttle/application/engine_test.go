package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"throttle-gateway/middleware/throttle/domain"

	"go.uber.org/goleak"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// mapStore é um TrackerStore mínimo; conta os Set para verificar a gravação.
type mapStore struct {
	mu      sync.Mutex
	entries map[domain.Key]*domain.TrackerEntry
	sets    int
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[domain.Key]*domain.TrackerEntry)}
}

func (s *mapStore) TryGet(k domain.Key) (*domain.TrackerEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	return e, ok
}

func (s *mapStore) TryAdd(k domain.Key, e *domain.TrackerEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[k]; ok {
		return false
	}
	s.entries[k] = e
	return true
}

func (s *mapStore) Set(k domain.Key, e *domain.TrackerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = e
	s.sets++
}

func newTestEngine(t *testing.T, limit int, window time.Duration) (*Engine, *mapStore, *fakeClock) {
	t.Helper()
	store := newMapStore()
	clock := newFakeClock()
	e, err := NewEngine(domain.MustQuota(limit, window), store, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, store, clock
}

func mustDecide(t *testing.T, e *Engine, key domain.Key) domain.Decision {
	t.Helper()
	dec, err := e.Decide(context.Background(), key)
	if err != nil {
		t.Fatalf("Decide(%q): %v", key, err)
	}
	return dec
}

func TestNewEngine_FailsFastOnBadConfig(t *testing.T) {
	if _, err := NewEngine(domain.Quota{}, newMapStore()); !errors.Is(err, ErrNilQuota) {
		t.Fatalf("expected ErrNilQuota, got %v", err)
	}
	if _, err := NewEngine(domain.MustQuota(1, time.Second), nil); !errors.Is(err, ErrNilStore) {
		t.Fatalf("expected ErrNilStore, got %v", err)
	}
}

func TestEngine_CountsMonotonicallyWithinWindow(t *testing.T) {
	e, _, clock := newTestEngine(t, 5, time.Minute)

	for i := 1; i <= 7; i++ {
		dec := mustDecide(t, e, "k")
		if dec.Total != i {
			t.Fatalf("observation %d: expected total=%d, got %d", i, i, dec.Total)
		}
		if want := max(5-i, 0); dec.Metadata.Remaining != want {
			t.Fatalf("observation %d: expected remaining=%d, got %d", i, want, dec.Metadata.Remaining)
		}
		if dec.Metadata.Limit != 5 {
			t.Fatalf("expected limit=5, got %d", dec.Metadata.Limit)
		}
		clock.Advance(time.Second)
	}
}

func TestEngine_WindowRolloverResetsToOne(t *testing.T) {
	e, _, clock := newTestEngine(t, 3, time.Minute)

	mustDecide(t, e, "k")
	mustDecide(t, e, "k")
	clock.Advance(61 * time.Second)

	dec := mustDecide(t, e, "k")
	if dec.Total != 1 {
		t.Fatalf("expected total=1 after rollover, got %d", dec.Total)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed after rollover")
	}
	if want := clock.Now().Add(time.Minute); !dec.Metadata.ResetAt.Equal(want) {
		t.Fatalf("expected resetAt=%s, got %s", want, dec.Metadata.ResetAt)
	}
}

func TestEngine_DeniesAboveLimit(t *testing.T) {
	e, _, _ := newTestEngine(t, 3, time.Minute)

	for i := 1; i <= 3; i++ {
		if dec := mustDecide(t, e, "k"); !dec.Allowed {
			t.Fatalf("observation %d should be allowed", i)
		}
	}
	dec := mustDecide(t, e, "k")
	if dec.Allowed {
		t.Fatalf("4th observation should be denied")
	}
	rej := dec.Rejection
	if rej == nil {
		t.Fatalf("expected a rejection on deny")
	}
	if rej.Status != 429 || rej.Limit != 3 || rej.Key != "k" {
		t.Fatalf("unexpected rejection %+v", rej)
	}
	if rej.Delta < 0 {
		t.Fatalf("expected delta >= 0, got %s", rej.Delta)
	}
	if dec.Metadata.Remaining != 0 {
		t.Fatalf("expected remaining=0, got %d", dec.Metadata.Remaining)
	}
}

func TestEngine_ExampleScenario(t *testing.T) {
	e, _, clock := newTestEngine(t, 2, 10*time.Second)
	start := clock.Now()

	d1 := mustDecide(t, e, "k")
	clock.Advance(time.Second)
	d2 := mustDecide(t, e, "k")
	clock.Advance(time.Second)
	d3 := mustDecide(t, e, "k")

	if !d1.Allowed || d1.Total != 1 {
		t.Fatalf("t=0: expected allow(total=1), got %+v", d1)
	}
	if !d2.Allowed || d2.Total != 2 {
		t.Fatalf("t=1: expected allow(total=2), got %+v", d2)
	}
	if d3.Allowed || d3.Total != 3 {
		t.Fatalf("t=2: expected deny(total=3), got %+v", d3)
	}
	if d3.Rejection.Delta != 8*time.Second {
		t.Fatalf("expected delta=8s, got %s", d3.Rejection.Delta)
	}
	if !d3.Rejection.ResetAt.Equal(start.Add(10 * time.Second)) {
		t.Fatalf("expected resetAt=%s, got %s", start.Add(10*time.Second), d3.Rejection.ResetAt)
	}
}

func TestEngine_CustomRejectStatus(t *testing.T) {
	e, err := NewEngine(domain.MustQuota(1, time.Minute), newMapStore(), WithRejectStatus(503))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	mustDecide(t, e, "k")
	if dec := mustDecide(t, e, "k"); dec.Rejection == nil || dec.Rejection.Status != 503 {
		t.Fatalf("expected rejection with status 503, got %+v", dec.Rejection)
	}
}

func TestEngine_DistinctKeysAreIndependent(t *testing.T) {
	e, _, _ := newTestEngine(t, 1, time.Minute)

	mustDecide(t, e, "A")
	if dec := mustDecide(t, e, "A"); dec.Allowed {
		t.Fatalf("expected A to be denied on 2nd observation")
	}
	dec := mustDecide(t, e, "B")
	if !dec.Allowed || dec.Total != 1 {
		t.Fatalf("expected B to start fresh, got %+v", dec)
	}
}

func TestEngine_EmptyKeyBypasses(t *testing.T) {
	e, store, _ := newTestEngine(t, 1, time.Minute)

	for i := 0; i < 3; i++ {
		dec := mustDecide(t, e, "")
		if !dec.Allowed || dec.Metadata != nil || dec.Rejection != nil {
			t.Fatalf("expected bare allow for empty key, got %+v", dec)
		}
		if !dec.Bypassed() {
			t.Fatalf("expected Bypassed() for empty key")
		}
	}
	if len(store.entries) != 0 || store.sets != 0 {
		t.Fatalf("expected store untouched, got %d entries and %d sets", len(store.entries), store.sets)
	}
}

func TestEngine_PersistsEntryEvenOnDeny(t *testing.T) {
	e, store, _ := newTestEngine(t, 1, time.Minute)

	mustDecide(t, e, "k")
	mustDecide(t, e, "k")
	mustDecide(t, e, "k")

	if store.sets != 3 {
		t.Fatalf("expected Set on every observation, got %d", store.sets)
	}
	if got := store.entries["k"].Total(); got != 3 {
		t.Fatalf("expected stored total=3, got %d", got)
	}
}

func TestEngine_ConcurrentObservationsHaveNoLostUpdates(t *testing.T) {
	const m = 64
	e, _, _ := newTestEngine(t, 1000, time.Minute)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		totals []int
	)
	start := make(chan struct{})
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			dec, err := e.Decide(context.Background(), "same")
			if err != nil {
				t.Errorf("Decide: %v", err)
				return
			}
			mu.Lock()
			totals = append(totals, dec.Total)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	sort.Ints(totals)
	if len(totals) != m {
		t.Fatalf("expected %d decisions, got %d", m, len(totals))
	}
	for i, got := range totals {
		if got != i+1 {
			t.Fatalf("expected totals 1..%d without gaps, got %v", m, totals)
		}
	}
}

func TestEngine_CancelledWhileWaitingForLock(t *testing.T) {
	e, store, _ := newTestEngine(t, 1, time.Minute)

	// segura o lock como se outra requisição estivesse no meio da decisão
	if err := e.lock.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer e.lock.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Decide(ctx, "k")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if _, rejected := domain.AsRejection(err); rejected {
		t.Fatalf("cancellation must not surface as a rejection")
	}
	if len(store.entries) != 0 {
		t.Fatalf("expected no entry to be created")
	}
}

// racyStore simula outro escritor que insere a chave entre o TryGet e o TryAdd.
type racyStore struct {
	*mapStore
	missOnce bool
}

func (s *racyStore) TryGet(k domain.Key) (*domain.TrackerEntry, bool) {
	if s.missOnce {
		s.missOnce = false
		return nil, false
	}
	return s.mapStore.TryGet(k)
}

func TestEngine_LostInsertRaceUsesExistingEntry(t *testing.T) {
	clock := newFakeClock()
	q := domain.MustQuota(5, time.Minute)
	inner := newMapStore()
	existing := domain.NewTrackerEntry(q, clock.Now())
	existing.Increment() // total=2, gravado pelo "outro" escritor
	inner.entries["k"] = existing

	e, err := NewEngine(q, &racyStore{mapStore: inner, missOnce: true}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	dec := mustDecide(t, e, "k")
	if dec.Total != 3 {
		t.Fatalf("expected existing entry to be incremented to 3, got %d", dec.Total)
	}
	if inner.entries["k"] != existing {
		t.Fatalf("expected existing entry not to be replaced")
	}
}

// fullStore é um store limitado sem vaga: recusa toda chave nova.
type fullStore struct {
	*mapStore
}

func (s *fullStore) TryAdd(domain.Key, *domain.TrackerEntry) bool { return false }

func (s *fullStore) Set(k domain.Key, e *domain.TrackerEntry) {
	if _, ok := s.mapStore.TryGet(k); ok {
		s.mapStore.Set(k, e)
	}
}

func TestEngine_DeniesKeyRefusedByBoundedStore(t *testing.T) {
	clock := newFakeClock()
	q := domain.MustQuota(5, time.Minute)
	store := &fullStore{mapStore: newMapStore()}

	e, err := NewEngine(q, store, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	dec := mustDecide(t, e, "newcomer")
	if dec.Allowed || dec.Rejection == nil {
		t.Fatalf("expected refused key to be denied, got %+v", dec)
	}
	if dec.Rejection.Delta != time.Minute || dec.Metadata.Remaining != 0 {
		t.Fatalf("expected full window delta and no remaining, got %+v %+v", dec.Rejection, dec.Metadata)
	}
	if !dec.Rejection.ResetAt.Equal(clock.Now().Add(time.Minute)) {
		t.Fatalf("unexpected reset: %v", dec.Rejection.ResetAt)
	}
	if len(store.entries) != 0 || store.sets != 0 {
		t.Fatalf("expected nothing stored for a refused key, got %d entries %d sets", len(store.entries), store.sets)
	}
}

type sweepStore struct {
	*mapStore
	mu     sync.Mutex
	sweeps int
	at     time.Time
}

func (s *sweepStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	s.at = now
	return 0
}

func (s *sweepStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

func TestEngine_SweepUsesEngineClock(t *testing.T) {
	clock := newFakeClock()
	store := &sweepStore{mapStore: newMapStore()}
	e, err := NewEngine(domain.MustQuota(1, time.Minute), store, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if _, err := e.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if store.count() != 1 || !store.at.Equal(clock.Now()) {
		t.Fatalf("expected one sweep at %s, got %d at %s", clock.Now(), store.count(), store.at)
	}
}

func TestEngine_SweepWithoutSweeperIsNoop(t *testing.T) {
	e, _, _ := newTestEngine(t, 1, time.Minute)
	n, err := e.Sweep(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil), got (%d, %v)", n, err)
	}
}

func TestEngine_JanitorStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &sweepStore{mapStore: newMapStore()}
	e, err := NewEngine(domain.MustQuota(1, time.Minute), store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.StartJanitor(ctx, 2*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for store.count() == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("janitor never swept")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
}
