package infra

import (
	"context"
	"maps"
	"sync"

	"throttle-gateway/middleware/throttle/domain"
)

type Counters struct {
	Allowed   int64
	Throttled int64
}

func (c *Counters) add(o domain.Outcome) {
	if o == domain.OutcomeThrottled {
		c.Throttled++
		return
	}
	c.Allowed++
}

// MemoryStatsStore guarda contadores em memória. Útil para testes e
// desenvolvimento; não expira nada.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[domain.Key]Counters
	// maior total já visto por chave (pico dentro de uma janela)
	peak map[domain.Key]int

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[domain.Key]Counters),
		peak:    make(map[domain.Key]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)

	c := s.byRoute[route]
	c.add(ev.Outcome)
	s.byRoute[route] = c

	if s.trackKeys {
		k := s.byKey[ev.Key]
		k.add(ev.Outcome)
		s.byKey[ev.Key] = k
		if ev.Total > s.peak[ev.Key] {
			s.peak[ev.Key] = ev.Total
		}
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[domain.Key]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}

// Peak retorna o maior total observado para a chave (0 se desconhecida).
func (s *MemoryStatsStore) Peak(key domain.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak[key]
}
