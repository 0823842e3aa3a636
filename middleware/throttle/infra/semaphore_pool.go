package infra

import (
	"context"

	"throttle-gateway/middleware/throttle/domain"

	"golang.org/x/sync/semaphore"
)

type semaphorePool struct {
	sem *semaphore.Weighted
	max int
}

// NewSemaphorePool cria um SlotPool com capacidade max.
func NewSemaphorePool(max int) domain.SlotPool {
	return &semaphorePool{sem: semaphore.NewWeighted(int64(max)), max: max}
}

func (p *semaphorePool) Capacity() int { return p.max }

func (p *semaphorePool) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { p.sem.Release(1) }, nil
}
