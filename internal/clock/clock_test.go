package clock

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElapsedSimple(t *testing.T) {
	assert.Equal(t, Millis(250), Elapsed(1000, 1250))
	assert.Equal(t, Millis(0), Elapsed(1000, 1000))
}

func TestElapsedAcrossWrap(t *testing.T) {
	start := Millis(math.MaxUint32 - 9) // 10ms before wrap
	now := start + 30                   // wraps to 20

	assert.Equal(t, Millis(20), now)
	assert.Equal(t, Millis(30), Elapsed(start, now))
	assert.True(t, Reached(start, now, 30))
	assert.False(t, Reached(start, now, 31))
}

func TestReachedBoundary(t *testing.T) {
	assert.False(t, Reached(100, 199, 100))
	assert.True(t, Reached(100, 200, 100))
}

func TestFromDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want Millis
	}{
		{0, 0},
		{-time.Second, 0},
		{1500 * time.Microsecond, 1},
		{2 * time.Second, 2000},
		{100 * 24 * time.Hour, math.MaxUint32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromDuration(tt.in), "FromDuration(%v)", tt.in)
	}
}

func TestMillisDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Millis(1500).Duration())
}

func TestFakeAdvanceWraps(t *testing.T) {
	f := NewFake(math.MaxUint32)
	assert.Equal(t, Millis(4), f.Advance(5))
	assert.Equal(t, Millis(4), f.Now())

	f.Set(77)
	assert.Equal(t, Millis(77), f.Now())
}

func TestMonotonicOffset(t *testing.T) {
	m := NewMonotonic(math.MaxUint32 - 1)
	// Either still before the wrap or just past it; both stay close to the offset.
	got := Elapsed(math.MaxUint32-1, m.Now())
	assert.Less(t, uint32(got), uint32(1000))
}
