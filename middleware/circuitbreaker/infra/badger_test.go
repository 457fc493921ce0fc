package infra

import (
	"context"
	"testing"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBadger(t *testing.T) *BadgerStorage {
	t.Helper()
	s, err := OpenBadgerStorage(BadgerOptions{InMemory: true, Prefix: DefaultKeyPrefix})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStorage_Contract(t *testing.T) {
	runStorageContract(t, func(t *testing.T) domain.Storage {
		return openTestBadger(t)
	})
}

func TestBadgerStorage_RequiresPathWhenPersistent(t *testing.T) {
	_, err := OpenBadgerStorage(BadgerOptions{})
	var ce *domain.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "badger.path", ce.Field)
}

func TestBadgerStorage_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStorage(BadgerOptions{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.ForceState(ctx, "svc", domain.Open, 0))
	require.NoError(t, s.Close())

	s, err = OpenBadgerStorage(BadgerOptions{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	st, err := s.State(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, domain.Open, st)
}

func TestBadgerStorage_EntriesExpire(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real time (badger TTL has second granularity)")
	}
	s := openTestBadger(t)
	ctx := context.Background()

	require.NoError(t, s.OpenCircuit(ctx, "svc", 2*time.Second))
	require.NoError(t, s.SetHalfOpen(ctx, "svc", time.Hour))
	require.NoError(t, s.RecordFailure(ctx, "svc", 2*time.Second))

	st, err := s.State(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, domain.Open, st)

	time.Sleep(2100 * time.Millisecond)

	st, err = s.State(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, domain.HalfOpen, st)

	n, err := s.FailureCount(ctx, "svc")
	require.NoError(t, err)
	assert.Zero(t, n)
}
