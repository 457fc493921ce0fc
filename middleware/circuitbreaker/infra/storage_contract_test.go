package infra

import (
	"context"
	"testing"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageContract roda o comportamento comum a todos os backends, sem
// depender de expiração (cada backend testa o tempo à sua maneira).
func runStorageContract(t *testing.T, newStorage func(t *testing.T) domain.Storage) {
	t.Helper()
	ctx := context.Background()

	t.Run("never seen service is closed", func(t *testing.T) {
		s := newStorage(t)
		st, err := s.State(ctx, "ghost")
		require.NoError(t, err)
		assert.Equal(t, domain.Closed, st)

		n, err := s.FailureCount(ctx, "ghost")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("failures are counted per service", func(t *testing.T) {
		s := newStorage(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.RecordFailure(ctx, "a", time.Minute))
		}
		require.NoError(t, s.RecordFailure(ctx, "b", time.Minute))

		na, err := s.FailureCount(ctx, "a")
		require.NoError(t, err)
		nb, err := s.FailureCount(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, 3, na)
		assert.Equal(t, 1, nb)
	})

	t.Run("service names sharing a prefix stay isolated", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.RecordFailure(ctx, "x:failure", time.Minute))
		require.NoError(t, s.OpenCircuit(ctx, "x:failure", 30*time.Second))
		require.NoError(t, s.SetHalfOpen(ctx, "x:failure", 50*time.Second))
		require.NoError(t, s.RecordFailure(ctx, "x", time.Minute))

		n, err := s.FailureCount(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, s.CloseCircuit(ctx, "x"))

		n, err = s.FailureCount(ctx, "x:failure")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		st, err := s.State(ctx, "x:failure")
		require.NoError(t, err)
		assert.Equal(t, domain.Open, st)
	})

	t.Run("zero window keeps failures until close", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.RecordFailure(ctx, "nowin", 0))
		require.NoError(t, s.RecordFailure(ctx, "nowin", 0))

		n, err := s.FailureCount(ctx, "nowin")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("open wins over half open", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.OpenCircuit(ctx, "svc", 30*time.Second))
		require.NoError(t, s.SetHalfOpen(ctx, "svc", 50*time.Second))

		st, err := s.DerivedState(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, domain.Open, st)
	})

	t.Run("half open marker alone", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.SetHalfOpen(ctx, "svc", 50*time.Second))

		st, err := s.State(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, domain.HalfOpen, st)
	})

	t.Run("close removes markers and failures", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.RecordFailure(ctx, "svc", time.Minute))
		require.NoError(t, s.OpenCircuit(ctx, "svc", 30*time.Second))
		require.NoError(t, s.SetHalfOpen(ctx, "svc", 50*time.Second))

		require.NoError(t, s.CloseCircuit(ctx, "svc"))

		st, err := s.State(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, domain.Closed, st)
		n, err := s.FailureCount(ctx, "svc")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("override outranks derived state", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.OpenCircuit(ctx, "svc", 30*time.Second))
		require.NoError(t, s.ForceState(ctx, "svc", domain.Closed, 0))

		st, err := s.State(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, domain.Closed, st)

		derived, err := s.DerivedState(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, domain.Open, derived)

		require.NoError(t, s.ClearOverride(ctx, "svc"))
		st, err = s.State(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, domain.Open, st)
	})

	t.Run("override survives close", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.ForceState(ctx, "svc", domain.Open, 0))
		require.NoError(t, s.CloseCircuit(ctx, "svc"))

		st, err := s.State(ctx, "svc")
		require.NoError(t, err)
		assert.Equal(t, domain.Open, st)
	})

	t.Run("canceled context is a storage error", func(t *testing.T) {
		s := newStorage(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.State(cctx, "svc")
		var se *domain.StorageError
		require.ErrorAs(t, err, &se)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
