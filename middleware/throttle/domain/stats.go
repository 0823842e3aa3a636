package domain

import (
	"context"
	"time"
)

type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeThrottled Outcome = "throttled"
)

// StatsEvent representa uma decisão do throttling para uma chave.
//
// Method/Path são strings genéricas (HTTP, gRPC...). Cuidado com
// cardinalidade ao persistir Key/Path em Redis ou Prometheus.
type StatsEvent struct {
	Key     Key
	Outcome Outcome
	// Total é o contador da chave após a observação.
	Total int

	Method string
	Path   string

	At time.Time
}

// StatsStore persiste estatísticas das decisões.
// O middleware trata erro como best-effort (não derruba a requisição).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
