package domain

import "time"

// TrackerEntry acompanha o uso de uma chave ao longo do tempo.
//
// Não é segura para uso concorrente: o engine só a toca dentro da sua seção
// crítica.
type TrackerEntry struct {
	quota   Quota
	total   int
	expires time.Time
}

// NewTrackerEntry cria a entrada da primeira observação: total=1 e a janela
// começa em now.
func NewTrackerEntry(q Quota, now time.Time) *TrackerEntry {
	return &TrackerEntry{
		quota:   q,
		total:   1,
		expires: now.UTC().Add(q.window),
	}
}

func (e *TrackerEntry) Increment() { e.total++ }

// Refresh zera o contador quando a janela já passou. Ele nunca deixa total=1
// sozinho; quem chama incrementa em seguida.
func (e *TrackerEntry) Refresh(now time.Time) {
	if now.After(e.expires) {
		e.expires = now.UTC().Add(e.quota.window)
		e.total = 0
	}
}

func (e *TrackerEntry) Total() int { return e.total }
func (e *TrackerEntry) Expires() time.Time { return e.expires }
func (e *TrackerEntry) Quota() Quota { return e.quota }
