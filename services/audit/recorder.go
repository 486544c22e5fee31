package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shutdownd/pkg/bus"
	"shutdownd/pkg/db"
	"shutdownd/pkg/events"
)

const durableName = "shutdownd-audit"

// Subscriber consumes messages from a durable bus subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)
}

// Recorder persists fleet events from the bus into the audit table.
type Recorder struct {
	conn   db.Conn
	bus    Subscriber
	logger zerolog.Logger

	subMu sync.Mutex
	sub   io.Closer
}

// NewRecorder constructs a Recorder for the provided dependencies.
func NewRecorder(conn db.Conn, subscriber Subscriber, logger zerolog.Logger) (*Recorder, error) {
	if conn == nil {
		return nil, errors.New("database connection is required")
	}
	if subscriber == nil {
		return nil, errors.New("bus is required")
	}
	return &Recorder{conn: conn, bus: subscriber, logger: logger}, nil
}

// Start subscribes to every fleet subject and records events until ctx is cancelled.
func (r *Recorder) Start(ctx context.Context) error {
	if r == nil {
		return errors.New("nil recorder")
	}

	sub, err := r.bus.Subscribe(ctx, events.AllSubjects, durableName, r.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.AllSubjects, err)
	}

	r.subMu.Lock()
	r.sub = sub
	r.subMu.Unlock()
	return nil
}

// Close stops the underlying subscription if it was created.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}

	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.sub == nil {
		return nil
	}
	err := r.sub.Close()
	r.sub = nil
	return err
}

func (r *Recorder) handleEvent(ctx context.Context, data []byte) error {
	var evt events.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		r.logger.Error().Err(err).Msg("decode fleet event")
		return bus.Permanent(err)
	}
	if err := evt.Validate(); err != nil {
		r.logger.Error().Err(err).Msg("invalid fleet event")
		return bus.Permanent(err)
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	actor := evt.Actor
	if actor == "" {
		actor = "system"
	}

	details, err := json.Marshal(map[string]any{
		"group_name":    evt.Group,
		"computer_name": evt.Computer,
		"state":         evt.State,
	})
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, r.conn, `
INSERT INTO audit (event_id, actor, action, obj, details, at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)
ON CONFLICT (event_id) DO NOTHING
`, evt.ID.String(), actor, evt.Kind, evt.Group+"/"+evt.Computer, string(details), evt.At)
	return err
}

// Recent returns the newest audit entries first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]events.AuditEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid limit %d", limit)
	}

	var entries []events.AuditEntry
	err := db.Select(ctx, r.conn, &entries, `
SELECT id, event_id::text AS event_id, actor, action, obj, COALESCE(details, '{}'::jsonb) AS details, at
FROM audit
ORDER BY at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []events.AuditEntry{}
	}
	return entries, nil
}
