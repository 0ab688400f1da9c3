package circuitbreaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BigBirdReturns/axm-core/pkg/circuitbreaker"
)

func TestNew_AppliesDefaultsForNonPositiveArgs(t *testing.T) {
	t.Parallel()

	cb := circuitbreaker.New(0, 0)

	assert.False(t, cb.IsOpen())
	assert.True(t, cb.AllowRequest())
}

func TestRecordFailure_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := circuitbreaker.New(2, time.Minute)

	cb.RecordFailure()
	assert.False(t, cb.IsOpen())
	assert.True(t, cb.AllowRequest())

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.AllowRequest())
}

func TestRecordSuccess_ClosesTheCircuit(t *testing.T) {
	t.Parallel()

	cb := circuitbreaker.New(1, time.Minute)

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())

	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
	assert.True(t, cb.AllowRequest())
}

func TestAllowRequest_HalfOpensAfterTimeout(t *testing.T) {
	t.Parallel()

	now := time.Now()
	restore := circuitbreaker.SetTimeNow(func() time.Time { return now })

	defer restore()

	cb := circuitbreaker.New(1, 10*time.Second)

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.AllowRequest(), "timeout has not elapsed yet")

	now = now.Add(11 * time.Second)

	assert.True(t, cb.AllowRequest(), "half-open window should allow exactly one request through")
}

func TestForceOpen_SetsOpenState(t *testing.T) {
	t.Parallel()

	cb := circuitbreaker.New(5, time.Minute)

	cb.ForceOpen()

	assert.True(t, cb.IsOpen())
	assert.False(t, cb.AllowRequest())
}
