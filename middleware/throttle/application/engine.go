package application

import (
	"context"
	"errors"
	"time"

	"throttle-gateway/middleware/throttle/domain"

	"golang.org/x/sync/semaphore"
)

// 429 Too Many Requests; o pacote não importa net/http.
const defaultRejectStatus = 429

var (
	ErrNilQuota = errors.New("throttle: quota is required")
	ErrNilStore = errors.New("throttle: tracker store is required")
)

// Engine concentra a decisão allow/deny por janela, sem saber nada de HTTP.
//
// Toda a sequência get-or-create/refresh/increment/grava roda sob um único
// lock do Engine (não por chave). Cada instância tem o seu lock, então dois
// pipelines com engines diferentes não disputam entre si.
type Engine struct {
	quota        domain.Quota
	store        domain.TrackerStore
	now          func() time.Time
	rejectStatus int

	// semáforo de peso 1 no lugar de sync.Mutex: a espera respeita ctx.
	lock *semaphore.Weighted
}

type EngineOption func(*Engine)

// WithClock troca a fonte de tempo (testes).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithRejectStatus(status int) EngineOption {
	return func(e *Engine) {
		if status > 0 {
			e.rejectStatus = status
		}
	}
}

func NewEngine(quota domain.Quota, store domain.TrackerStore, opts ...EngineOption) (*Engine, error) {
	if quota.IsZero() {
		return nil, ErrNilQuota
	}
	if store == nil {
		return nil, ErrNilStore
	}
	e := &Engine{
		quota:        quota,
		store:        store,
		now:          time.Now,
		rejectStatus: defaultRejectStatus,
		lock:         semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Quota() domain.Quota { return e.quota }

// Decide registra uma observação para key e decide se ela passa.
//
// Chave vazia: passa sem metadata. O único erro retornado é o do ctx, quando a
// espera pelo lock é cancelada; negação não é erro, vem em Decision.Rejection.
func (e *Engine) Decide(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if key == "" {
		return domain.Decision{Allowed: true}, nil
	}

	if err := e.lock.Acquire(ctx, 1); err != nil {
		return domain.Decision{}, err
	}
	defer e.lock.Release(1)

	now := e.now().UTC()

	entry, found := e.store.TryGet(key)
	if !found {
		entry = domain.NewTrackerEntry(e.quota, now)
		if !e.store.TryAdd(key, entry) {
			// outro escritor (store compartilhado) chegou antes: usa a entrada
			// dele em vez de sobrescrever
			entry, found = e.store.TryGet(key)
			if !found {
				// store limitado e cheio de janelas vivas
				return e.refuse(key, now), nil
			}
			entry.Refresh(now)
			entry.Increment()
		}
	} else {
		entry.Refresh(now)
		entry.Increment()
	}
	// grava de volta em qualquer caminho, inclusive na negação
	defer e.store.Set(key, entry)

	limit := e.quota.Limit()
	delta := entry.Expires().Sub(now)
	resetAt := now.Add(delta)

	dec := domain.Decision{
		Allowed: true,
		Total:   entry.Total(),
		Metadata: &domain.Metadata{
			Limit:     limit,
			Remaining: max(limit-entry.Total(), 0),
			ResetAt:   resetAt,
		},
	}

	// a segunda condição cobre um total antigo lido logo após um refresh
	if entry.Total() > limit && entry.Expires().After(now) {
		dec.Allowed = false
		dec.Rejection = &domain.Rejection{
			Status:  e.rejectStatus,
			Limit:   limit,
			Delta:   delta,
			ResetAt: resetAt,
			Key:     key,
		}
	}
	return dec, nil
}

// refuse nega uma chave que o store não aceitou guardar. Sem entrada não há
// expiração conhecida; a janela inteira é o prazo sugerido.
func (e *Engine) refuse(key domain.Key, now time.Time) domain.Decision {
	window := e.quota.Window()
	resetAt := now.Add(window)
	return domain.Decision{
		Metadata: &domain.Metadata{
			Limit:   e.quota.Limit(),
			ResetAt: resetAt,
		},
		Rejection: &domain.Rejection{
			Status:  e.rejectStatus,
			Limit:   e.quota.Limit(),
			Delta:   window,
			ResetAt: resetAt,
			Key:     key,
		},
	}
}

// Sweep descarta entradas antigas se o store souber fazer isso (domain.Sweeper).
// Roda sob o mesmo lock de Decide.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	sw, ok := e.store.(domain.Sweeper)
	if !ok {
		return 0, nil
	}
	if err := e.lock.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer e.lock.Release(1)
	return sw.Sweep(e.now().UTC()), nil
}

// StartJanitor inicia uma goroutine que chama Sweep a cada intervalo.
// Pare cancelando o contexto. Sem efeito se every <= 0 ou se o store não
// implementa domain.Sweeper.
func (e *Engine) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	if _, ok := e.store.(domain.Sweeper); !ok {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = e.Sweep(ctx)
			}
		}
	}()
}
