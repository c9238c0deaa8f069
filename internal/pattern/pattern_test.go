package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/operant-box/internal/clock"
)

func TestValidate(t *testing.T) {
	assert.Error(t, Train{}.Validate())
	assert.Error(t, Train{Steps: []Step{{On: 10, Off: 10}, {}}}.Validate())
	assert.NoError(t, Pulses(3, 10, 5).Validate())
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, clock.Millis(45), Pulses(3, 10, 5).Period())
}

func TestPlaySingleTrain(t *testing.T) {
	p := NewPlayer(Train{Steps: []Step{{On: 10, Off: 20}, {On: 5, Off: 5}}})
	p.Start(100)

	want := []struct {
		at   clock.Millis
		on   bool
		idx  int
		idle bool
	}{
		{100, true, 0, false},
		{109, true, 0, false},
		{110, false, 0, false},
		{129, false, 0, false},
		{130, true, 1, false},
		{134, true, 1, false},
		{135, false, 1, false},
		{139, false, 1, false},
		{140, false, 0, true},
		{500, false, 0, true},
	}
	for _, w := range want {
		got := p.Tick(w.at)
		assert.Equal(t, w.on, got, "t=%d", w.at)
		assert.Equal(t, w.idx, p.Index(), "index at t=%d", w.at)
		assert.Equal(t, !w.idle, p.Active(), "active at t=%d", w.at)
	}
	assert.Equal(t, 1, p.Passes())
}

func TestRepeatWrapsToStart(t *testing.T) {
	train := Pulses(2, 10, 10)
	train.Repeat = true
	p := NewPlayer(train)
	p.Start(0)

	assert.True(t, p.Tick(0))
	assert.False(t, p.Tick(15))
	assert.True(t, p.Tick(20))
	assert.Equal(t, 1, p.Index())
	assert.True(t, p.Tick(40), "wrapped to step 0")
	assert.Equal(t, 0, p.Index())
	assert.True(t, p.Active())
	assert.Equal(t, 1, p.Passes())
}

func TestLateTickCatchesUp(t *testing.T) {
	p := NewPlayer(Pulses(3, 10, 10))
	p.Start(0)

	// Jump into the middle of the third pulse.
	assert.True(t, p.Tick(45))
	assert.Equal(t, 2, p.Index())

	// Jump past the end.
	assert.False(t, p.Tick(1000))
	assert.False(t, p.Active())
}

func TestStop(t *testing.T) {
	p := NewPlayer(Pulses(3, 10, 10))
	p.Start(0)
	require.True(t, p.Tick(1))
	p.Stop()
	assert.False(t, p.Tick(2))
	assert.Equal(t, PhaseIdle, p.Phase())
}

func TestZeroOffStep(t *testing.T) {
	p := NewPlayer(Train{Steps: []Step{{On: 10}, {On: 10}}})
	p.Start(0)
	assert.True(t, p.Tick(10), "second step starts as the first ends")
	assert.Equal(t, 1, p.Index())
	assert.False(t, p.Tick(20))
	assert.False(t, p.Active())
}

func TestPlayAcrossClockWrap(t *testing.T) {
	p := NewPlayer(Pulses(1, 10, 10))
	start := ^clock.Millis(0) - 4
	p.Start(start)
	assert.True(t, p.Tick(start+9))
	assert.False(t, p.Tick(start+10))
	assert.True(t, p.Active())
	assert.False(t, p.Tick(start+20))
	assert.False(t, p.Active())
}

func TestEmptyTrainNeverStarts(t *testing.T) {
	p := NewPlayer(Train{})
	p.Start(0)
	assert.False(t, p.Active())
	assert.False(t, p.Tick(1))
}
