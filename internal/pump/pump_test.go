package pump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/operant-box/internal/clock"
)

func TestTriggerWhileDispensingRejected(t *testing.T) {
	p := New(2000)

	require.True(t, p.Trigger(1000))
	assert.False(t, p.Trigger(1500), "second trigger inside the window")
	assert.Equal(t, 1, p.Accepted())
	assert.Equal(t, 1, p.Rejected())

	// The window still ends relative to the first trigger.
	assert.True(t, p.Tick(2999))
	assert.False(t, p.Tick(3000))
}

func TestTotalDispenseTimeIsOneDuration(t *testing.T) {
	p := New(200)
	var on clock.Millis

	for now := clock.Millis(0); now < 1000; now++ {
		if now == 0 || now == 50 || now == 199 {
			p.Trigger(now)
		}
		if p.Tick(now) {
			on++
		}
	}
	assert.Equal(t, clock.Millis(200), on)
}

func TestTriggerAfterCompletion(t *testing.T) {
	p := New(100)
	require.True(t, p.Trigger(0))
	assert.False(t, p.Tick(100))
	assert.True(t, p.Trigger(100))
	assert.True(t, p.Tick(150))
	assert.Equal(t, 2, p.Accepted())
}

func TestStop(t *testing.T) {
	p := New(100)
	p.Trigger(0)
	p.Stop()
	assert.False(t, p.Dispensing())
	assert.False(t, p.Tick(1))
	assert.Equal(t, StateIdle, p.State())
}

func TestDispenseAcrossClockWrap(t *testing.T) {
	p := New(500)
	start := ^clock.Millis(0) - 99
	require.True(t, p.Trigger(start))

	assert.True(t, p.Tick(start+200), "still dispensing after wrap")
	assert.True(t, p.Tick(start+499))
	assert.False(t, p.Tick(start+500))
}

func TestIdleTickReturnsFalse(t *testing.T) {
	assert.False(t, New(100).Tick(12345))
}
