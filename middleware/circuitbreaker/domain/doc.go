// Package domain define contratos e tipos de domínio do circuit breaker.
//
// Este pacote não depende de net/http nem de backends concretos (Redis, Badger).
// Aqui ficam o estado do circuito, a configuração por serviço, o contrato de
// storage compartilhado, o contrato de eventos e os erros tipados.
package domain
