package infra

import (
	"sync"
	"time"

	"throttle-gateway/middleware/throttle/domain"
)

// MemoryTrackerStore é o TrackerStore em memória (map + mutex).
//
// Sem varredura cresce uma entrada por chave distinta para sempre. Sweep
// remove entradas cuja janela terminou há mais de idleTTL; isso não muda a
// semântica por chave, porque a próxima observação de uma chave assim zeraria
// o contador de qualquer forma. Sweep lê as entradas, então deve rodar sob o
// mesmo lock que as altera (Engine.StartJanitor faz isso).
type MemoryTrackerStore struct {
	mu      sync.RWMutex
	entries map[domain.Key]*domain.TrackerEntry
	idleTTL time.Duration
}

type StoreOption func(*MemoryTrackerStore)

// WithIdleTTL define quanto tempo depois do fim da janela a entrada ainda fica.
func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *MemoryTrackerStore) {
		if d >= 0 {
			s.idleTTL = d
		}
	}
}

func NewMemoryTrackerStore(opts ...StoreOption) *MemoryTrackerStore {
	s := &MemoryTrackerStore{
		entries: make(map[domain.Key]*domain.TrackerEntry),
		idleTTL: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryTrackerStore) TryGet(key domain.Key) (*domain.TrackerEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MemoryTrackerStore) TryAdd(key domain.Key, e *domain.TrackerEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return false
	}
	s.entries[key] = e
	return true
}

func (s *MemoryTrackerStore) Set(key domain.Key, e *domain.TrackerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}

func (s *MemoryTrackerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep remove entradas cuja janela terminou antes de now-idleTTL.
// Implementa domain.Sweeper.
func (s *MemoryTrackerStore) Sweep(now time.Time) int {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.Expires().Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}
