// Package throttle fornece adapters HTTP (net/http) para throttling por janela
// e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: Quota, TrackerEntry, TrackerStore, Decision, Rejection (sem net/http)
//   - application: Engine (decisão allow/deny sob lock) e ConcurrencyService
//   - infra: stores em memória/LRU, estatísticas (memória/Redis), semáforo
//   - throttle (este pacote): middleware, decorator, resolvers de chave,
//     headers X-RateLimit-*, resposta 429 e métricas Prometheus
//
// Fluxo por requisição:
//
//  1. ContextResolver extrai a chave (header, IP, XFF); vazia = passa direto
//  2. Engine.Decide conta a observação e decide
//  3. Headers X-RateLimit-Limit/Remaining/Reset são escritos em toda decisão
//  4. Se negada, responde 429 (ou o Transformer configurado), com Retry-After opcional
//  5. Se permitida, chama o próximo handler (ex.: reverse proxy)
//
// O binário cmd/gateway lê a configuração de arquivo (CONFIG_FILE) e de
// variáveis de ambiente, como THROTTLE_LIMIT, THROTTLE_WINDOW e CONCURRENCY_MAX.
package throttle
