package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidQuota = errors.New("throttle: invalid quota")

// Quota é imutável depois de construída e pode ser compartilhada por várias
// TrackerEntry.
type Quota struct {
	limit  int
	window time.Duration
}

// NewQuota exige limit > 0 e window > 0.
func NewQuota(limit int, window time.Duration) (Quota, error) {
	if limit <= 0 {
		return Quota{}, fmt.Errorf("%w: limit must be > 0, got %d", ErrInvalidQuota, limit)
	}
	if window <= 0 {
		return Quota{}, fmt.Errorf("%w: window must be > 0, got %s", ErrInvalidQuota, window)
	}
	return Quota{limit: limit, window: window}, nil
}

// NewQuotaPer monta a janela como count * unit (ex.: 5 por 2 minutos).
func NewQuotaPer(limit, count int, unit time.Duration) (Quota, error) {
	if count <= 0 || unit <= 0 {
		return Quota{}, fmt.Errorf("%w: window %d x %s", ErrInvalidQuota, count, unit)
	}
	return NewQuota(limit, time.Duration(count)*unit)
}

// MustQuota é útil em testes e em wiring estático.
func MustQuota(limit int, window time.Duration) Quota {
	q, err := NewQuota(limit, window)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quota) Limit() int { return q.limit }
func (q Quota) Window() time.Duration { return q.window }
func (q Quota) IsZero() bool { return q.limit == 0 && q.window == 0 }

func (q Quota) String() string {
	return fmt.Sprintf("%d/%s", q.limit, q.window)
}
