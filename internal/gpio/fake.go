package gpio

import (
	"errors"
	"sync"
)

// Write records one SetOutput call.
type Write struct {
	Channel string
	Level   bool
}

// FakeBoard is a test double with scripted inputs and recorded writes.
type FakeBoard struct {
	mu sync.Mutex

	// Samples holds a script of raw values per input channel. Each ReadRaw
	// consumes the next sample; once exhausted, the last one repeats.
	Samples map[string][]bool
	index   map[string]int

	// Writes records every successful SetOutput in order.
	Writes []Write
	levels map[string]bool

	// ReadError / WriteError, if set, are returned by every call.
	ReadError  error
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeBoard creates a FakeBoard. Channels without samples read false.
func NewFakeBoard() *FakeBoard {
	return &FakeBoard{
		Samples: make(map[string][]bool),
		index:   make(map[string]int),
		levels:  make(map[string]bool),
	}
}

// Script sets the samples for an input channel.
func (f *FakeBoard) Script(channel string, samples ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples[channel] = samples
	f.index[channel] = 0
}

// Hold makes an input channel read level until changed.
func (f *FakeBoard) Hold(channel string, level bool) {
	f.Script(channel, level)
}

// ReadRaw returns the next scripted sample for channel.
func (f *FakeBoard) ReadRaw(channel string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if f.Closed {
		return false, errors.New("gpio: board closed")
	}
	samples := f.Samples[channel]
	if len(samples) == 0 {
		return false, nil
	}
	i := f.index[channel]
	if i < len(samples)-1 {
		f.index[channel] = i + 1
	}
	return samples[i], nil
}

// SetOutput records the write.
func (f *FakeBoard) SetOutput(channel string, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if f.Closed {
		return errors.New("gpio: board closed")
	}
	f.Writes = append(f.Writes, Write{Channel: channel, Level: level})
	f.levels[channel] = level
	return nil
}

// Level returns the last level written to channel.
func (f *FakeBoard) Level(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[channel]
}

// Close drives every written output low and marks the board closed.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.levels {
		f.levels[ch] = false
	}
	f.Closed = true
	return nil
}
