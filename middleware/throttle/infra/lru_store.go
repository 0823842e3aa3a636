package infra

import (
	"fmt"
	"time"

	"throttle-gateway/middleware/throttle/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUTrackerStore é um TrackerStore com número máximo de chaves.
//
// Cheio, ele só abre espaço descartando a chave usada há mais tempo se a
// janela dela já terminou. Se ainda está viva, a chave nova é recusada
// (TryAdd retorna false e TryGet continua sem achá-la); uma chave negada
// nunca perde a contagem por causa de outras chaves.
type LRUTrackerStore struct {
	cache   *lru.Cache[domain.Key, *domain.TrackerEntry]
	maxKeys int
	now     func() time.Time
}

type LRUStoreOption func(*LRUTrackerStore)

// WithLRUClock troca a fonte de tempo usada para decidir se a entrada mais
// antiga já expirou. Use o mesmo relógio do Engine.
func WithLRUClock(now func() time.Time) LRUStoreOption {
	return func(s *LRUTrackerStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewLRUTrackerStore(maxKeys int, opts ...LRUStoreOption) (*LRUTrackerStore, error) {
	c, err := lru.New[domain.Key, *domain.TrackerEntry](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("lru tracker store: %w", err)
	}
	s := &LRUTrackerStore{cache: c, maxKeys: maxKeys, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *LRUTrackerStore) TryGet(key domain.Key) (*domain.TrackerEntry, bool) {
	return s.cache.Get(key)
}

// TryAdd retorna false se a chave já existe ou se não há vaga.
func (s *LRUTrackerStore) TryAdd(key domain.Key, e *domain.TrackerEntry) bool {
	if s.cache.Contains(key) || !s.makeRoom() {
		return false
	}
	s.cache.Add(key, e)
	return true
}

// Set também promove a chave para "usada recentemente". Chave nova sem vaga
// é ignorada.
func (s *LRUTrackerStore) Set(key domain.Key, e *domain.TrackerEntry) {
	if !s.cache.Contains(key) && !s.makeRoom() {
		return
	}
	s.cache.Add(key, e)
}

func (s *LRUTrackerStore) Len() int { return s.cache.Len() }

// Sweep remove todas as entradas cuja janela já terminou.
func (s *LRUTrackerStore) Sweep(now time.Time) int {
	removed := 0
	for _, k := range s.cache.Keys() {
		if e, ok := s.cache.Peek(k); ok && now.After(e.Expires()) {
			s.cache.Remove(k)
			removed++
		}
	}
	return removed
}

// makeRoom garante uma vaga livre sem descartar janela viva.
func (s *LRUTrackerStore) makeRoom() bool {
	if s.cache.Len() < s.maxKeys {
		return true
	}
	_, oldest, ok := s.cache.GetOldest()
	if !ok {
		return true
	}
	if !s.now().UTC().After(oldest.Expires()) {
		return false
	}
	s.cache.RemoveOldest()
	return true
}
