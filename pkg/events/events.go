package events

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"shutdownd/pkg/state"
)

const (
	// StreamName is the JetStream stream that carries every fleet event.
	StreamName = "SHUTDOWND_FLEET"

	ShutdownRequestedSubject = "shutdownd.fleet.shutdown_requested"
	ShutdownAcceptedSubject  = "shutdownd.fleet.shutdown_accepted"
	ComputerEvictedSubject   = "shutdownd.fleet.computer_evicted"

	// AllSubjects matches every fleet subject.
	AllSubjects = "shutdownd.fleet.>"
)

// Kinds of fleet events, also used as the audit action.
const (
	KindShutdownRequested = "shutdown_requested"
	KindShutdownAccepted  = "shutdown_accepted"
	KindComputerEvicted   = "computer_evicted"
)

// Event is published whenever the fleet registry changes in a way operators care about.
type Event struct {
	ID       uuid.UUID   `json:"id"`
	Kind     string      `json:"kind"`
	Group    string      `json:"group_name"`
	Computer string      `json:"computer_name"`
	State    state.State `json:"state"`
	Actor    string      `json:"actor,omitempty"`
	At       time.Time   `json:"at"`
}

// New builds an event with a fresh id and timestamp.
func New(kind, group, computer string, st state.State, actor string) Event {
	return Event{
		ID:       uuid.New(),
		Kind:     kind,
		Group:    group,
		Computer: computer,
		State:    st,
		Actor:    actor,
		At:       time.Now().UTC(),
	}
}

// Subject returns the subject an event of the given kind is published on.
func Subject(kind string) (string, error) {
	switch kind {
	case KindShutdownRequested:
		return ShutdownRequestedSubject, nil
	case KindShutdownAccepted:
		return ShutdownAcceptedSubject, nil
	case KindComputerEvicted:
		return ComputerEvictedSubject, nil
	default:
		return "", errors.New("unknown event kind " + kind)
	}
}

// Validate checks the fields every consumer relies on.
func (e Event) Validate() error {
	if e.ID == uuid.Nil {
		return errors.New("event id missing")
	}
	if _, err := Subject(e.Kind); err != nil {
		return err
	}
	if e.Group == "" || e.Computer == "" {
		return errors.New("event group_name and computer_name are required")
	}
	return nil
}

// AuditEntry is one recorded fleet event as listed to operators.
type AuditEntry struct {
	ID      int64          `json:"id" db:"id"`
	EventID string         `json:"event_id" db:"event_id"`
	Actor   string         `json:"actor" db:"actor"`
	Action  string         `json:"action" db:"action"`
	Obj     string         `json:"obj" db:"obj"`
	Details map[string]any `json:"details" db:"details"`
	At      time.Time      `json:"at" db:"at"`
}
