// Package circuitbreaker fornece adapters HTTP (net/http) para um circuit breaker
// com estado compartilhado.
//
// Visão geral (camadas):
//
//   - domain: estado, configuração por serviço, contratos de storage e eventos
//   - application: engine por serviço e Manager (sem net/http)
//   - infra: backends (Redis, Badger, memória) e sinks de eventos
//   - circuitbreaker (este pacote): middleware HTTP, rotas administrativas
//     (chi) e Build, que monta tudo a partir de config.Settings
//
// Fluxo no gateway:
//
//  1. Descobre o serviço (nome fixo, header ou primeiro segmento do path)
//  2. Pergunta ao Manager se a chamada pode passar
//  3. Se o circuito está aberto, responde 503 (com Retry-After opcional)
//  4. Se passou, chama o próximo handler (ex: reverse proxy) e registra
//     falha (status >= 500) ou sucesso
package circuitbreaker
