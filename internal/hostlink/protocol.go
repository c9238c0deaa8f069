// Package hostlink speaks the line protocol between the box and the
// monitoring host.
//
// Frames are ASCII lines terminated by '\n'. The device sends PING,
// LINKED/UNLINKED, EVT and SESSION frames; the host sends LINK, UNLINK,
// START and END commands.
package hostlink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknown is returned for a line that is not a recognised frame or command.
var ErrUnknown = errors.New("hostlink: unknown line")

// Command is a host-to-device instruction.
type Command int

const (
	// CmdLink acknowledges a ping and marks the link up.
	CmdLink Command = iota + 1
	// CmdUnlink says the host is going away.
	CmdUnlink
	// CmdStart starts a session.
	CmdStart
	// CmdEnd ends the running session.
	CmdEnd
)

var commandNames = map[Command]string{
	CmdLink:   "LINK",
	CmdUnlink: "UNLINK",
	CmdStart:  "START",
	CmdEnd:    "END",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseCommand parses one line from the host. Case and surrounding
// whitespace (including a trailing '\r') are ignored.
func ParseCommand(line string) (Command, error) {
	word := strings.ToUpper(strings.TrimSpace(line))
	for c, name := range commandNames {
		if word == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknown, line)
}

// Frame is a device-to-host message.
type Frame interface {
	Encode() string
}

// Ping is the heartbeat frame.
type Ping struct{}

func (Ping) Encode() string { return "PING" }

// Status carries the connection-status token.
type Status struct {
	Linked bool
}

func (s Status) Encode() string {
	if s.Linked {
		return "LINKED"
	}
	return "UNLINKED"
}

// Event reports a session event. T is ms since session start and Dur the
// event's duration in ms, or zero.
type Event struct {
	Kind  string
	Lever string
	T     uint32
	Dur   uint32
}

func (e Event) Encode() string {
	return fmt.Sprintf("EVT,%s,%s,%d,%d", e.Kind, e.Lever, e.T, e.Dur)
}

// Session marks a session boundary.
type Session struct {
	// Phase is "start" or "end".
	Phase  string
	ID     string
	Reason string
}

func (s Session) Encode() string {
	return fmt.Sprintf("SESSION,%s,%s,%s", s.Phase, s.ID, s.Reason)
}

// ParseFrame parses one device line. It is the host-side counterpart of
// Encode.
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimSpace(line)
	fields := strings.Split(line, ",")
	switch fields[0] {
	case "PING":
		return Ping{}, nil
	case "LINKED":
		return Status{Linked: true}, nil
	case "UNLINKED":
		return Status{Linked: false}, nil
	case "EVT":
		if len(fields) != 5 {
			return nil, fmt.Errorf("hostlink: EVT needs 4 fields, got %d", len(fields)-1)
		}
		t, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("hostlink: EVT time: %w", err)
		}
		dur, err := strconv.ParseUint(fields[4], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("hostlink: EVT duration: %w", err)
		}
		return Event{Kind: fields[1], Lever: fields[2], T: uint32(t), Dur: uint32(dur)}, nil
	case "SESSION":
		if len(fields) != 4 {
			return nil, fmt.Errorf("hostlink: SESSION needs 3 fields, got %d", len(fields)-1)
		}
		return Session{Phase: fields[1], ID: fields[2], Reason: fields[3]}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknown, line)
}
