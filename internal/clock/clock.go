// Package clock provides the millisecond counter the control loop runs on.
// The counter is 32 bits wide and wraps after ~49.7 days, so every interval
// comparison goes through Elapsed, which uses unsigned subtraction.
package clock

import (
	"sync"
	"time"
)

// Millis is a wrapping millisecond timestamp or duration.
type Millis uint32

// Elapsed returns the time from since to now. The result is correct across
// a single wrap of the counter.
func Elapsed(since, now Millis) Millis {
	return now - since
}

// Reached reports whether at least d has passed since since.
func Reached(since, now, d Millis) bool {
	return Elapsed(since, now) >= d
}

// FromDuration converts a duration to Millis, saturating at the counter maximum.
func FromDuration(d time.Duration) Millis {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 0
	}
	if ms > int64(^Millis(0)) {
		return ^Millis(0)
	}
	return Millis(ms)
}

// Duration converts m to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Source yields the current counter value.
type Source interface {
	Now() Millis
}

// Monotonic counts milliseconds from its construction using Go's monotonic
// clock. The value is truncated to 32 bits, so it wraps like a
// microcontroller millis() counter.
type Monotonic struct {
	start  time.Time
	offset Millis
}

// NewMonotonic creates a counter starting at offset.
func NewMonotonic(offset Millis) *Monotonic {
	return &Monotonic{start: time.Now(), offset: offset}
}

// Now returns the current counter value.
func (m *Monotonic) Now() Millis {
	return m.offset + Millis(uint64(time.Since(m.start).Milliseconds()))
}

// Fake is a manually advanced Source for tests.
type Fake struct {
	mu  sync.Mutex
	now Millis
}

// NewFake creates a Fake starting at now.
func NewFake(now Millis) *Fake {
	return &Fake{now: now}
}

// Now returns the current fake time.
func (f *Fake) Now() Millis {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the fake clock to now.
func (f *Fake) Set(now Millis) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// Advance moves the fake clock forward by d, wrapping like the real counter.
func (f *Fake) Advance(d Millis) Millis {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += d
	return f.now
}
