// Package gpio drives the box hardware: lever inputs and actuator outputs.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Board reads lever inputs and drives actuator outputs by channel name.
type Board interface {
	// ReadRaw returns the logical level of an input channel: true = closed.
	ReadRaw(channel string) (bool, error)

	// SetOutput drives an output channel high (true) or low.
	SetOutput(channel string, level bool) error

	// Close drives outputs low and releases GPIO resources.
	Close() error
}

// Pins maps channel names to BCM line offsets.
type Pins struct {
	// Chip is the gpiochip device name, e.g. "gpiochip0".
	Chip    string
	Inputs  map[string]int
	Outputs map[string]int
	// ActiveLow inverts inputs, for microswitches wired to ground.
	ActiveLow bool
}

// Default pin assignment (BCM numbering).
const (
	DefaultChip   = "gpiochip0"
	PinLeverLeft  = 17
	PinLeverRight = 27
	PinCue        = 22
	PinPump       = 23
	PinLaser      = 24
)

// Default input channel names.
const (
	ChannelLeverLeft  = "lever_left"
	ChannelLeverRight = "lever_right"
)

// DefaultPins returns the standard two-lever wiring.
func DefaultPins() Pins {
	return Pins{
		Chip: DefaultChip,
		Inputs: map[string]int{
			ChannelLeverLeft:  PinLeverLeft,
			ChannelLeverRight: PinLeverRight,
		},
		Outputs: map[string]int{
			"cue":   PinCue,
			"pump":  PinPump,
			"laser": PinLaser,
		},
		ActiveLow: true,
	}
}

// Validate checks that no line is claimed twice.
func (p Pins) Validate() error {
	used := make(map[int]string)
	check := func(ch string, pin int) error {
		if pin < 0 {
			return fmt.Errorf("gpio: channel %q has negative pin %d", ch, pin)
		}
		if other, ok := used[pin]; ok {
			return fmt.Errorf("gpio: pin %d used by both %q and %q", pin, other, ch)
		}
		used[pin] = ch
		return nil
	}
	for ch, pin := range p.Inputs {
		if err := check(ch, pin); err != nil {
			return err
		}
	}
	for ch, pin := range p.Outputs {
		if _, dup := p.Inputs[ch]; dup {
			return fmt.Errorf("gpio: channel %q is both input and output", ch)
		}
		if err := check(ch, pin); err != nil {
			return err
		}
	}
	return nil
}

// ErrUnknownChannel is returned for a channel that has no pin.
type ErrUnknownChannel struct {
	Channel string
}

func (e ErrUnknownChannel) Error() string {
	return fmt.Sprintf("gpio: unknown channel %q", e.Channel)
}
