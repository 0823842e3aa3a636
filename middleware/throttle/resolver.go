package throttle

import (
	"net"
	"net/http"
	"strings"
)

// ContextResolver extrai a chave de throttling da requisição.
// String vazia significa que o throttling não se aplica.
type ContextResolver func(r *http.Request) string

// HeaderResolver usa o valor (sem espaços) de um header, ex.: X-Api-Key.
// Requisições sem o header passam sem throttling.
func HeaderResolver(name string) ContextResolver {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// UnknownClientKey agrupa requisições sem endereço de origem, que assim
// continuam limitadas (juntas) em vez de escapar do throttling.
const UnknownClientKey = "unknown"

// ClientIPResolver usa o IP do cliente. Com trustXFF, o primeiro IP do
// X-Forwarded-For (cliente original) tem prioridade; só habilite atrás de um
// proxy confiável. Nunca retorna vazio.
func ClientIPResolver(trustXFF bool) ContextResolver {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		if addr == "" {
			return UnknownClientKey
		}
		return addr
	}
}

// DefaultResolver tenta o header (se configurado) e cai para o IP do cliente.
func DefaultResolver(keyHeader string, trustXFF bool) ContextResolver {
	byIP := ClientIPResolver(trustXFF)
	if keyHeader == "" {
		return byIP
	}
	byHeader := HeaderResolver(keyHeader)
	return func(r *http.Request) string {
		if v := byHeader(r); v != "" {
			return v
		}
		return byIP(r)
	}
}
