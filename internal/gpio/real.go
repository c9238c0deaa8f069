//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives actual hardware using the Linux GPIO character device.
type RealBoard struct {
	chip    *gpiocdev.Chip
	inputs  map[string]*gpiocdev.Line
	outputs map[string]*gpiocdev.Line
}

// NewRealBoard requests every line in pins. Inputs are pulled up; outputs
// start low.
func NewRealBoard(pins Pins) (*RealBoard, error) {
	if err := pins.Validate(); err != nil {
		return nil, err
	}
	name := pins.Chip
	if name == "" {
		name = DefaultChip
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealBoard{
		chip:    chip,
		inputs:  make(map[string]*gpiocdev.Line),
		outputs: make(map[string]*gpiocdev.Line),
	}

	for ch, pin := range pins.Inputs {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
		if pins.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(pin, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request input %s pin %d: %w", ch, pin, err)
		}
		b.inputs[ch] = line
	}

	for ch, pin := range pins.Outputs {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request output %s pin %d: %w", ch, pin, err)
		}
		b.outputs[ch] = line
	}

	return b, nil
}

// ReadRaw returns the logical level of an input channel.
func (b *RealBoard) ReadRaw(channel string) (bool, error) {
	line, ok := b.inputs[channel]
	if !ok {
		return false, ErrUnknownChannel{Channel: channel}
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", channel, err)
	}
	return v == 1, nil
}

// SetOutput drives an output channel.
func (b *RealBoard) SetOutput(channel string, level bool) error {
	line, ok := b.outputs[channel]
	if !ok {
		return ErrUnknownChannel{Channel: channel}
	}
	v := 0
	if level {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write %s: %w", channel, err)
	}
	return nil
}

// Close drives every output low, then reconfigures all lines to input with
// pull-down (matching Pi boot defaults) before releasing them.
func (b *RealBoard) Close() error {
	var errs []error

	for ch, line := range b.outputs {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive %s low: %w", ch, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ch, err))
		}
	}
	for ch, line := range b.inputs {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ch, err))
		}
	}
	b.outputs = nil
	b.inputs = nil

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}

	return errors.Join(errs...)
}
