package registry

import (
	"time"

	"shutdownd/pkg/state"
)

type computer struct {
	state         state.State
	lastHeartbeat time.Time
}

func newComputer(now time.Time) *computer {
	return &computer{state: state.Online, lastHeartbeat: now}
}

func (c *computer) recordHeartbeat(now time.Time) {
	c.lastHeartbeat = now
}

func (c *computer) eligibleForShutdown() bool {
	return c.state == state.Online
}

func (c *computer) requestShutdown() error {
	if !c.eligibleForShutdown() {
		return ErrIneligibleState
	}
	c.state = state.ShutdownRequested
	return nil
}

func (c *computer) awaitingAcceptance() bool {
	return c.state == state.ShutdownRequested
}

// acceptShutdown is called once the agent has seen the pending request.
func (c *computer) acceptShutdown() {
	c.state = state.ShutdownAccepted
}

func (c *computer) stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(c.lastHeartbeat) >= threshold
}
