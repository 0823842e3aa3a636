// Package infra contém implementações concretas dos contratos do pacote domain.
//
//   - MemoryTrackerStore: map em memória com janitor opcional
//   - LRUTrackerStore: número máximo de chaves (hashicorp/golang-lru)
//   - MemoryStatsStore / RedisStatsStore: estatísticas das decisões
//   - SemaphorePool: vagas para o limite de concorrência (x/sync/semaphore)
package infra
