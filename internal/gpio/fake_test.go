package gpio

import (
	"errors"
	"testing"
)

func TestFakeBoardScript(t *testing.T) {
	f := NewFakeBoard()
	f.Script(ChannelLeverLeft, true, false, true)

	want := []bool{true, false, true, true}
	for i, w := range want {
		got, err := f.ReadRaw(ChannelLeverLeft)
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("read %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestFakeBoardUnscriptedReadsFalse(t *testing.T) {
	f := NewFakeBoard()

	got, err := f.ReadRaw(ChannelLeverRight)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("expected false for unscripted channel")
	}
}

func TestFakeBoardErrors(t *testing.T) {
	f := NewFakeBoard()
	f.ReadError = errors.New("simulated read error")
	f.WriteError = errors.New("simulated write error")

	if _, err := f.ReadRaw(ChannelLeverLeft); err == nil || err.Error() != "simulated read error" {
		t.Errorf("unexpected read error: %v", err)
	}
	if err := f.SetOutput("pump", true); err == nil || err.Error() != "simulated write error" {
		t.Errorf("unexpected write error: %v", err)
	}
	if len(f.Writes) != 0 {
		t.Errorf("failed write recorded: %v", f.Writes)
	}
}

func TestFakeBoardRecordsWrites(t *testing.T) {
	f := NewFakeBoard()
	f.SetOutput("pump", true)
	f.SetOutput("cue", true)
	f.SetOutput("pump", false)

	want := []Write{{"pump", true}, {"cue", true}, {"pump", false}}
	if len(f.Writes) != len(want) {
		t.Fatalf("expected %d writes, got %d", len(want), len(f.Writes))
	}
	for i := range want {
		if f.Writes[i] != want[i] {
			t.Errorf("write %d: expected %v, got %v", i, want[i], f.Writes[i])
		}
	}
	if f.Level("pump") {
		t.Error("pump should be low")
	}
	if !f.Level("cue") {
		t.Error("cue should be high")
	}
}

func TestFakeBoardCloseDrivesLow(t *testing.T) {
	f := NewFakeBoard()
	f.SetOutput("laser", true)

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if f.Level("laser") {
		t.Error("laser should be low after Close()")
	}
	if err := f.SetOutput("laser", true); err == nil {
		t.Error("expected error writing to closed board")
	}
}

func TestDefaultPinsValid(t *testing.T) {
	if err := DefaultPins().Validate(); err != nil {
		t.Fatalf("default pins invalid: %v", err)
	}
}

func TestPinsValidate(t *testing.T) {
	tests := []struct {
		name string
		pins Pins
	}{
		{
			name: "duplicate pin",
			pins: Pins{Inputs: map[string]int{"a": 4}, Outputs: map[string]int{"b": 4}},
		},
		{
			name: "negative pin",
			pins: Pins{Inputs: map[string]int{"a": -1}},
		},
		{
			name: "channel both ways",
			pins: Pins{Inputs: map[string]int{"a": 4}, Outputs: map[string]int{"a": 5}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.pins.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestErrUnknownChannel(t *testing.T) {
	err := error(ErrUnknownChannel{Channel: "fan"})
	var target ErrUnknownChannel
	if !errors.As(err, &target) || target.Channel != "fan" {
		t.Errorf("errors.As failed for %v", err)
	}
}
