package state

import (
	"fmt"
	"time"
)

const (
	// PongInterval is how often an agent is expected to heartbeat.
	PongInterval = 4 * time.Second
	// StaleMultiplier is how many missed intervals make a computer stale.
	StaleMultiplier = 4
)

// State is the command lifecycle of a single computer.
type State int

const (
	Online State = iota
	ShutdownRequested
	ShutdownAccepted
)

var wireNames = [...]string{
	Online:            "online",
	ShutdownRequested: "shutdown_requested",
	ShutdownAccepted:  "shutdown_accepted",
}

// Parse converts a wire string into a State.
func Parse(s string) (State, error) {
	for i, name := range wireNames {
		if name == s {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", s)
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return s >= Online && s <= ShutdownAccepted
}

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return wireNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid state %d", int(s))
	}
	return []byte(wireNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StaleThreshold returns the staleness window for a heartbeat interval.
func StaleThreshold(interval time.Duration, multiplier int) time.Duration {
	return time.Duration(multiplier) * interval
}
