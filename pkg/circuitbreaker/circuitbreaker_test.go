package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 3, Timeout: time.Minute})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", cb.State())

	err := cb.Execute(func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker test is open")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 2, Timeout: time.Minute})
	boom := errors.New("boom")

	require.Error(t, cb.Execute(func() error { return boom }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.Error(t, cb.Execute(func() error { return boom }))

	assert.Equal(t, "closed", cb.State())
}

func TestProbeAfterTimeoutClosesOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 1, Timeout: 10 * time.Millisecond})

	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))
	assert.Equal(t, "open", cb.State())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, "closed", cb.State())
}
