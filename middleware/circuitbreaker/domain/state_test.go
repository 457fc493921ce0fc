package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveState_OpenWinsOverHalfOpen(t *testing.T) {
	assert.Equal(t, Open, DeriveState(true, true))
	assert.Equal(t, Open, DeriveState(true, false))
	assert.Equal(t, HalfOpen, DeriveState(false, true))
	assert.Equal(t, Closed, DeriveState(false, false))
}

func TestParseState(t *testing.T) {
	cases := map[string]State{
		"closed":    Closed,
		"OPEN":      Open,
		"half_open": HalfOpen,
		"half-open": HalfOpen,
		" Open ":    Open,
	}
	for in, want := range cases {
		got, err := ParseState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseState_InvalidName(t *testing.T) {
	_, err := ParseState("broken")
	require.Error(t, err)

	var ise *InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, "broken", ise.Value)
	assert.Contains(t, err.Error(), "closed, open, half_open")
}

func TestState_StringRoundTrip(t *testing.T) {
	for _, s := range States() {
		got, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestCircuitOpenError_MatchesSentinel(t *testing.T) {
	err := error(&CircuitOpenError{Service: "payment-api"})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Contains(t, err.Error(), "payment-api")
}

func TestNewStorageError(t *testing.T) {
	assert.NoError(t, NewStorageError("get", "svc", nil))

	cause := errors.New("connection refused")
	err := NewStorageError("get", "svc", cause)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "get", se.Op)
	assert.Equal(t, "svc", se.Service)
	assert.True(t, errors.Is(err, cause))

	// não embrulha duas vezes
	again := NewStorageError("set", "svc", err)
	require.True(t, errors.As(again, &se))
	assert.Equal(t, "get", se.Op)
}
