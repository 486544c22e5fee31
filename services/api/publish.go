package api

import (
	"context"

	"shutdownd/pkg/events"
	"shutdownd/services/registry"
)

// publish sends evt to the bus. Failures are logged and never reach the
// caller: the registry has already changed and the agent protocol does not
// depend on the bus.
func (a *API) publish(ctx context.Context, evt events.Event) {
	if a.bus == nil {
		return
	}
	subject, err := events.Subject(evt.Kind)
	if err != nil {
		a.logger.Error().Err(err).Msg("publish event")
		return
	}
	if err := a.bus.Publish(context.WithoutCancel(ctx), subject, evt); err != nil {
		a.logger.Error().
			Err(err).
			Str("subject", subject).
			Str("group", evt.Group).
			Str("computer", evt.Computer).
			Msg("publish event")
	}
}

func (a *API) publishEvictions(ctx context.Context, evicted []registry.Eviction) {
	for _, ev := range evicted {
		a.publish(ctx, events.New(events.KindComputerEvicted, ev.Group, ev.Computer, ev.State, "sweeper"))
	}
}
