package state

import (
	"encoding/json"
	"testing"
	"time"
)

func TestWireStrings(t *testing.T) {
	tests := []struct {
		state State
		wire  string
	}{
		{Online, "online"},
		{ShutdownRequested, "shutdown_requested"},
		{ShutdownAccepted, "shutdown_accepted"},
	}

	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			data, err := json.Marshal(tt.state)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if got, want := string(data), `"`+tt.wire+`"`; got != want {
				t.Fatalf("marshal = %s, want %s", got, want)
			}

			var decoded State
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if decoded != tt.state {
				t.Fatalf("unmarshal = %v, want %v", decoded, tt.state)
			}
			if tt.state.String() != tt.wire {
				t.Fatalf("String() = %q, want %q", tt.state.String(), tt.wire)
			}
		})
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, input := range []string{"", "Online", "offline", "shutdown"} {
		if _, err := Parse(input); err == nil {
			t.Fatalf("Parse(%q) succeeded, want error", input)
		}
	}

	var s State
	if err := json.Unmarshal([]byte(`"rebooting"`), &s); err == nil {
		t.Fatal("unmarshal of unknown state succeeded")
	}
}

func TestMarshalInvalidState(t *testing.T) {
	if _, err := json.Marshal(State(7)); err == nil {
		t.Fatal("marshal of invalid state succeeded")
	}
	if State(7).Valid() {
		t.Fatal("State(7) reported valid")
	}
}

func TestOrdering(t *testing.T) {
	if !(Online < ShutdownRequested && ShutdownRequested < ShutdownAccepted) {
		t.Fatal("states are not ordered along the lifecycle")
	}
}

func TestStaleThreshold(t *testing.T) {
	if got := StaleThreshold(PongInterval, StaleMultiplier); got != 16*time.Second {
		t.Fatalf("StaleThreshold = %s, want 16s", got)
	}
}
