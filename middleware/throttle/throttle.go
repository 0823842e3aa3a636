package throttle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"throttle-gateway/middleware/throttle/application"
	"throttle-gateway/middleware/throttle/domain"
	"throttle-gateway/middleware/throttle/infra"

	"golang.org/x/time/rate"
)

var ErrNoResolver = errors.New("throttle: context resolver is required")

// Throttler liga o Engine ao net/http. Middleware (pipeline) e HandlerFunc
// (decorator por handler) usam o mesmo Engine, então a quota é compartilhada
// entre todas as rotas embrulhadas pelo mesmo Throttler.
type Throttler struct {
	opts   Options
	engine *application.Engine
	log    *slog.Logger

	// no máximo um log de negação por segundo
	denyLog rate.Sometimes
}

// New valida a configuração e monta o Engine. Erros de configuração aparecem
// aqui, nunca durante uma requisição.
func New(opts Options) (*Throttler, error) {
	if opts.ContextResolver == nil {
		return nil, ErrNoResolver
	}
	opts.applyDefaults()
	if opts.Store == nil {
		opts.Store = infra.NewMemoryTrackerStore()
	}

	engine, err := application.NewEngine(opts.Quota, opts.Store,
		application.WithClock(opts.Clock),
		application.WithRejectStatus(opts.RejectStatus),
	)
	if err != nil {
		return nil, err
	}

	return &Throttler{
		opts:    opts,
		engine:  engine,
		log:     opts.Logger.With(slog.String("component", "throttle"), slog.String("quota", opts.Quota.String())),
		denyLog: rate.Sometimes{Interval: time.Second},
	}, nil
}

// Middleware é o atalho para New(opts) + Throttler.Middleware.
func Middleware(opts Options) (func(next http.Handler) http.Handler, error) {
	t, err := New(opts)
	if err != nil {
		return nil, err
	}
	return t.Middleware, nil
}

func (t *Throttler) Engine() *application.Engine { return t.engine }

// StartJanitor varre entradas antigas do store a cada intervalo (ver
// application.Engine.StartJanitor).
func (t *Throttler) StartJanitor(ctx context.Context, every time.Duration) {
	t.engine.StartJanitor(ctx, every)
}

func (t *Throttler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.admit(w, r) {
			next.ServeHTTP(w, r)
		}
	})
}

// HandlerFunc embrulha um único handler, para rotas com quota própria.
func (t *Throttler) HandlerFunc(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if t.admit(w, r) {
			fn(w, r)
		}
	}
}

// admit decide e escreve headers/resposta. Retorna true se a requisição
// deve seguir para o próximo handler.
func (t *Throttler) admit(w http.ResponseWriter, r *http.Request) bool {
	start := time.Now()
	key := domain.Key(t.opts.ContextResolver(r))

	dec, err := t.engine.Decide(r.Context(), key)
	if err != nil {
		outcome := errorOutcome(err)
		t.opts.Metrics.observeDecision(outcome, time.Since(start))
		if outcome == outcomeCancelled {
			// cliente foi embora enquanto esperava o lock; não há a quem responder
			t.log.Debug("request cancelled while waiting for throttle decision", slog.String("key", string(key)), slog.Any("error", err))
			return false
		}
		t.log.Error("throttle decision failed", slog.String("key", string(key)), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}

	if dec.Bypassed() {
		t.opts.Metrics.observeDecision(outcomeBypassed, time.Since(start))
		return true
	}

	t.writeMetadata(w, dec.Metadata)
	t.record(r, key, dec)

	if dec.Allowed {
		t.opts.Metrics.observeDecision(outcomeAllowed, time.Since(start))
		return true
	}

	t.opts.Metrics.observeDecision(outcomeThrottled, time.Since(start))
	t.denyLog.Do(func() {
		t.log.Info("request throttled",
			slog.String("key", string(key)),
			slog.Int("total", dec.Total),
			slog.Int("limit", dec.Rejection.Limit),
			slog.Duration("delta", dec.Rejection.Delta),
			slog.String("path", r.URL.Path),
		)
	})
	t.reject(w, r, dec.Rejection)
	return false
}

func errorOutcome(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return outcomeCancelled
	}
	return outcomeError
}

func (t *Throttler) writeMetadata(w http.ResponseWriter, md *domain.Metadata) {
	h := w.Header()
	h.Set(t.opts.RateLimitHeaderName, formatInt(md.Limit))
	h.Set(t.opts.RateLimitRemainingHeaderName, formatInt(md.Remaining))
	h.Set(t.opts.RateLimitResetHeaderName, formatUnix(md.ResetAt))
}

func (t *Throttler) reject(w http.ResponseWriter, r *http.Request, rej *domain.Rejection) {
	if t.opts.Transformer != nil {
		t.opts.Transformer(w, r, rej)
		return
	}
	if t.opts.UseRetryAfterHeader {
		w.Header().Set("Retry-After", rej.RetryAfter(t.opts.RetryAfterStyle))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(rej.Status)
	_, _ = w.Write(t.opts.RejectionBody)
}

// record é best-effort: erro no StatsStore só vira log.
func (t *Throttler) record(r *http.Request, key domain.Key, dec domain.Decision) {
	if t.opts.Stats == nil {
		return
	}
	outcome := domain.OutcomeAllowed
	if !dec.Allowed {
		outcome = domain.OutcomeThrottled
	}
	err := t.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Key:     key,
		Outcome: outcome,
		Total:   dec.Total,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      t.opts.Clock(),
	})
	if err != nil {
		t.log.Warn("failed to record throttle stats", slog.Any("error", err))
	}
}
