package domain

import "strings"

// State é a fase observável do circuito de um serviço.
type State int

const (
	// Closed é a operação normal: chamadas passam.
	Closed State = iota
	// Open bloqueia chamadas; a dependência é considerada indisponível.
	Open
	// HalfOpen é o período de prova depois do Open: chamadas passam,
	// mas uma única falha reabre o circuito.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// States lista os estados válidos na ordem em que aparecem em mensagens.
func States() []State { return []State{Closed, Open, HalfOpen} }

// ParseState converte o nome de um estado (closed, open, half_open).
// Aceita maiúsculas e "half-open".
func ParseState(v string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "closed":
		return Closed, nil
	case "open":
		return Open, nil
	case "half_open", "half-open":
		return HalfOpen, nil
	default:
		return Closed, &InvalidStateError{Value: v}
	}
}

// DeriveState aplica a precedência OPEN -> HALF_OPEN -> CLOSED a partir dos
// marcadores vivos no storage. Todos os backends derivam o estado por aqui.
// Os dois marcadores são gravados juntos na abertura; OPEN sempre vence.
func DeriveState(openLive, halfOpenLive bool) State {
	switch {
	case openLive:
		return Open
	case halfOpenLive:
		return HalfOpen
	default:
		return Closed
	}
}
