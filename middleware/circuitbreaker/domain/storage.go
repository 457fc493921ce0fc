package domain

import (
	"context"
	"time"
)

// Storage é o estado durável e compartilhado entre processos, por serviço.
//
// Cada operação é atômica em relação à chave de um único serviço. Qualquer
// falha de I/O (inclusive deadline do ctx) deve voltar como *StorageError.
// Nenhuma ordenação é garantida entre OpenCircuit e SetHalfOpen: ambos
// significam "não passa" durante a transição.
type Storage interface {
	// RecordFailure registra uma falha que deixa de contar depois de window.
	// window == 0 significa sem janela: conta até o próximo CloseCircuit.
	RecordFailure(ctx context.Context, service string, window time.Duration) error
	FailureCount(ctx context.Context, service string) (int, error)

	OpenCircuit(ctx context.Context, service string, ttl time.Duration) error
	SetHalfOpen(ctx context.Context, service string, ttl time.Duration) error
	// CloseCircuit remove OPEN, HALF_OPEN e as falhas de uma vez.
	CloseCircuit(ctx context.Context, service string) error

	// DerivedState ignora qualquer override.
	DerivedState(ctx context.Context, service string) (State, error)

	// ForceState grava um override administrativo. ttl <= 0 não expira.
	ForceState(ctx context.Context, service string, state State, ttl time.Duration) error
	ClearOverride(ctx context.Context, service string) error

	// State retorna o override se vivo, senão DerivedState.
	State(ctx context.Context, service string) (State, error)
}
