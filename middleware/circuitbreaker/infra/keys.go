package infra

import (
	"strconv"
	"strings"
)

// DefaultKeyPrefix é o prefixo padrão de todas as chaves do breaker.
const DefaultKeyPrefix = "cb:"

// Keys gera o namespace lógico por serviço:
//
//	{prefix}circuit_breaker:{service}:open
//	{prefix}circuit_breaker:{service}:half_open
//	{prefix}circuit_breaker:{service}:failure
//	{prefix}circuit_breaker:{service}:override
//
// Eventos de falha individuais (badger) ficam em outro namespace, ver
// FailurePrefix.
//
// Com HashTag o serviço vai entre chaves ({service}) para que todas as chaves
// de um serviço caiam no mesmo slot de um Redis Cluster.
type Keys struct {
	Prefix  string
	HashTag bool
}

func NewKeys(prefix string) Keys { return Keys{Prefix: prefix} }

func (k Keys) base(service string) string {
	var b strings.Builder
	b.Grow(len(k.Prefix) + len("circuit_breaker:") + len(service) + 3)
	b.WriteString(k.Prefix)
	b.WriteString("circuit_breaker:")
	if k.HashTag {
		b.WriteByte('{')
		b.WriteString(service)
		b.WriteByte('}')
	} else {
		b.WriteString(service)
	}
	b.WriteByte(':')
	return b.String()
}

func (k Keys) Open(service string) string     { return k.base(service) + "open" }
func (k Keys) HalfOpen(service string) string { return k.base(service) + "half_open" }
func (k Keys) Failure(service string) string  { return k.base(service) + "failure" }
func (k Keys) Override(service string) string { return k.base(service) + "override" }

// FailureEvent é a chave de um evento de falha individual (backends sem ZSET).
func (k Keys) FailureEvent(service, id string) string {
	return k.FailurePrefix(service) + id
}

// FailurePrefix é o prefixo dos eventos de falha de um serviço, para
// varredura por prefixo. O nome vem precedido do seu tamanho em bytes, senão
// "a" enxergaria as chaves de "a:failure" ou "a:b".
//
//	{prefix}circuit_breaker_failure:{len(service)}:{service}:
func (k Keys) FailurePrefix(service string) string {
	return k.Prefix + "circuit_breaker_failure:" + strconv.Itoa(len(service)) + ":" + service + ":"
}
