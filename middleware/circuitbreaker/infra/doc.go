// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Storage:
//   - RedisStorage: estado compartilhado entre processos (go-redis/v9)
//   - BadgerStorage: estado durável em processo único (badger/v4)
//   - MemoryStorage: testes e desenvolvimento
//
// Eventos:
//   - MemoryEventSink, RedisEventSink, LogEventSink (zap), PrometheusEventSink
//   - ThrottledSink: token bucket por serviço usando golang.org/x/time/rate
//   - FanOut: entrega para vários sinks
package infra
