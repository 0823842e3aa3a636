package throttle

import (
	"log/slog"
	"net/http"
	"time"

	"throttle-gateway/middleware/throttle/domain"
)

const (
	DefaultRateLimitHeaderName          = "X-RateLimit-Limit"
	DefaultRateLimitRemainingHeaderName = "X-RateLimit-Remaining"
	DefaultRateLimitResetHeaderName     = "X-RateLimit-Reset"

	DefaultRejectionBody = "Throttling rate limit quota violation. Quota limit exceeded."
)

// RejectionTransformer monta a resposta de uma requisição negada. Recebe a
// Rejection completa; pode definir status, headers (inclusive Retry-After) e
// corpo. Os headers de quota já foram escritos quando ele é chamado.
type RejectionTransformer func(w http.ResponseWriter, r *http.Request, rej *domain.Rejection)

type Options struct {
	// ContextResolver é obrigatório. Chave vazia = sem throttling.
	ContextResolver ContextResolver
	// Quota é obrigatória.
	Quota domain.Quota

	RateLimitHeaderName          string
	RateLimitRemainingHeaderName string
	RateLimitResetHeaderName     string

	UseRetryAfterHeader bool
	RetryAfterStyle     domain.RetryAfterStyle
	// RejectionBody vazio usa DefaultRejectionBody.
	RejectionBody []byte
	// Transformer substitui a resposta padrão de negação.
	Transformer RejectionTransformer
	// RejectStatus padrão 429.
	RejectStatus int

	// Store padrão: infra.MemoryTrackerStore sem janitor.
	Store domain.TrackerStore
	Stats domain.StatsStore

	Metrics *Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
}

func (o *Options) applyDefaults() {
	if o.RateLimitHeaderName == "" {
		o.RateLimitHeaderName = DefaultRateLimitHeaderName
	}
	if o.RateLimitRemainingHeaderName == "" {
		o.RateLimitRemainingHeaderName = DefaultRateLimitRemainingHeaderName
	}
	if o.RateLimitResetHeaderName == "" {
		o.RateLimitResetHeaderName = DefaultRateLimitResetHeaderName
	}
	if len(o.RejectionBody) == 0 {
		o.RejectionBody = []byte(DefaultRejectionBody)
	}
	if o.RejectStatus == 0 {
		o.RejectStatus = http.StatusTooManyRequests
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}
