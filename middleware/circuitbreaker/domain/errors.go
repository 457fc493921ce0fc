package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCircuitOpen casa (errors.Is) com qualquer *CircuitOpenError.
	ErrCircuitOpen = errors.New("circuit is open")

	// ErrEmptyService é retornado quando o nome do serviço está vazio.
	ErrEmptyService = errors.New("service name is required")
)

// StorageError envolve qualquer falha de I/O do backend, inclusive deadline
// do contexto. Nunca é engolido pelo breaker.
type StorageError struct {
	Op      string
	Service string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("circuit breaker storage: %s %q: %v", e.Op, e.Service, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError retorna nil quando err é nil.
func NewStorageError(op, service string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Service: service, Err: err}
}

// CircuitOpenError é retornado por CanPass quando ExceptionsEnabled está ligado
// e o circuito está aberto.
type CircuitOpenError struct {
	Service string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit for service %q is open", e.Service)
}

func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// InvalidStateError indica um nome de estado desconhecido (ex.: no force administrativo).
type InvalidStateError struct {
	Value string
}

func (e *InvalidStateError) Error() string {
	names := make([]string, 0, len(States()))
	for _, s := range States() {
		names = append(names, s.String())
	}
	return fmt.Sprintf("invalid state %q (valid states: %s)", e.Value, strings.Join(names, ", "))
}

// ConfigurationError é fatal: backend desconhecido ou thresholds inválidos.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "circuit breaker configuration: " + e.Reason
	}
	return fmt.Sprintf("circuit breaker configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
