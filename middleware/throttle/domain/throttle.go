package domain

// Camada de domínio do throttling.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key identifica quem está sendo limitado (IP, API key, usuário...).
// Chave vazia significa "sem throttling".
type Key string

// TrackerStore associa uma chave a exatamente uma TrackerEntry.
//
// Cada operação é atômica isoladamente. Isso não basta para o ciclo
// get-or-create-incrementa-grava: quem usa o store (o engine) envolve a
// sequência inteira numa seção crítica própria.
type TrackerStore interface {
	TryGet(key Key) (*TrackerEntry, bool)
	// TryAdd só insere se a chave não existir; retorna false caso contrário.
	// Um store limitado também retorna false quando não tem vaga; nesse caso
	// TryGet continua sem achar a chave.
	TryAdd(key Key, e *TrackerEntry) bool
	// Set grava (upsert). Um store limitado pode ignorar chave nova sem vaga.
	Set(key Key, e *TrackerEntry)
}

// Sweeper é opcional: stores que sabem descartar entradas antigas.
// Sweep lê as entradas e precisa rodar sob o lock de quem as altera.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Metadata são os três valores expostos ao cliente em toda decisão com chave.
type Metadata struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Decision struct {
	Allowed bool
	// Metadata é nil quando a chave é vazia (bypass).
	Metadata *Metadata
	// Total é o contador da chave depois desta observação.
	Total int
	// Rejection só é preenchido quando Allowed=false.
	Rejection *Rejection
}

// Bypassed indica que o throttling não se aplicou a esta requisição.
func (d Decision) Bypassed() bool { return d.Allowed && d.Metadata == nil }
