package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// env lê variáveis de ambiente sobre valores já carregados. Valor vazio mantém
// o atual; valor inválido vira erro (em vez de cair silenciosamente no padrão).
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) get(k string) (string, bool) {
	v, ok := e.lookup(k)
	return v, ok && v != ""
}

func (e *env) str(k string, dst *string) {
	if v, ok := e.get(k); ok {
		*dst = v
	}
}

func (e *env) int(k string, dst *int) {
	if v, ok := e.get(k); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, k, v))
			return
		}
		*dst = i
	}
}

func (e *env) bool(k string, dst *bool) {
	if v, ok := e.get(k); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, k, v))
			return
		}
		*dst = b
	}
}

func (e *env) duration(k string, dst *time.Duration) {
	if v, ok := e.get(k); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, k, v))
			return
		}
		*dst = d
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	e := &env{lookup: lookup}

	e.str("LISTEN_ADDR", &cfg.ListenAddr)
	e.str("UPSTREAM_URL", &cfg.UpstreamURL)
	e.str("METRICS_PATH", &cfg.MetricsPath)

	t := &cfg.Throttle
	e.bool("THROTTLE_ENABLED", &t.Enabled)
	e.int("THROTTLE_LIMIT", &t.Limit)
	e.duration("THROTTLE_WINDOW", &t.Window)
	e.str("THROTTLE_KEY_HEADER", &t.KeyHeader)
	e.bool("TRUST_XFF", &t.TrustXFF)
	e.str("THROTTLE_LIMIT_HEADER", &t.LimitHeader)
	e.str("THROTTLE_REMAINING_HEADER", &t.RemainingHeader)
	e.str("THROTTLE_RESET_HEADER", &t.ResetHeader)
	e.bool("THROTTLE_RETRY_AFTER", &t.RetryAfter)
	e.str("THROTTLE_RETRY_AFTER_STYLE", &t.RetryAfterStyle)
	e.str("THROTTLE_REJECTION_BODY", &t.RejectionBody)
	e.int("THROTTLE_MAX_KEYS", &t.MaxKeys)
	e.duration("THROTTLE_IDLE_TTL", &t.IdleTTL)
	e.duration("THROTTLE_CLEANUP_EVERY", &t.CleanupEvery)

	e.int("CONCURRENCY_MAX", &cfg.Concurrency.Max)
	e.duration("CONCURRENCY_TIMEOUT", &cfg.Concurrency.Timeout)

	s := &cfg.Stats
	e.bool("STATS_ENABLED", &s.Enabled)
	e.str("STATS_REDIS_ADDR", &s.RedisAddr)
	e.str("STATS_REDIS_PASSWORD", &s.RedisPassword)
	e.int("STATS_REDIS_DB", &s.RedisDB)
	e.str("STATS_PREFIX", &s.Prefix)
	e.duration("STATS_TTL", &s.TTL)
	e.str("STATS_BUCKET", &s.Bucket)
	e.bool("STATS_TRACK_KEYS", &s.TrackKeys)
	e.duration("STATS_TIMEOUT", &s.Timeout)

	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(e.errs...)
}
