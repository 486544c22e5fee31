// Package registry tracks the liveness and shutdown state of every computer in
// the fleet. All operations are serialised behind a single exclusive lock.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"shutdownd/pkg/state"
)

// ComputerStatus is the externally visible view of one computer.
type ComputerStatus struct {
	State state.State `json:"state"`
}

// Snapshot maps group name to computer name to status.
type Snapshot map[string]map[string]ComputerStatus

// Entry is one row of a flattened snapshot.
type Entry struct {
	Group    string      `json:"group_name"`
	Computer string      `json:"computer_name"`
	State    state.State `json:"state"`
}

// Entries flattens the snapshot sorted by group then computer.
func (s Snapshot) Entries() []Entry {
	var entries []Entry
	for groupName, computers := range s {
		for computerName, status := range computers {
			entries = append(entries, Entry{Group: groupName, Computer: computerName, State: status.State})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Group != entries[j].Group {
			return entries[i].Group < entries[j].Group
		}
		return entries[i].Computer < entries[j].Computer
	})
	return entries
}

// Eviction describes a computer removed by a staleness sweep.
type Eviction struct {
	Group         string
	Computer      string
	State         state.State
	LastHeartbeat time.Time
}

// Registry is the in-memory fleet registry.
type Registry struct {
	lock      chan struct{}
	groups    map[string]*group
	now       func() time.Time
	threshold time.Duration
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStaleThreshold sets the staleness window used by Status and the sweeper.
func WithStaleThreshold(threshold time.Duration) Option {
	return func(r *Registry) {
		if threshold > 0 {
			r.threshold = threshold
		}
	}
}

// New returns an empty registry. The default staleness window is
// StaleMultiplier pong intervals.
func New(opts ...Option) *Registry {
	r := &Registry{
		lock:      make(chan struct{}, 1),
		groups:    make(map[string]*group),
		now:       time.Now,
		threshold: state.StaleThreshold(state.PongInterval, state.StaleMultiplier),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold returns the configured staleness window.
func (r *Registry) Threshold() time.Duration {
	return r.threshold
}

func (r *Registry) acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	select {
	case r.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrLockUnavailable, ctx.Err())
	}
}

func (r *Registry) release() {
	<-r.lock
}

// Heartbeat records a pong from a computer, registering the group and the
// computer if they are unknown. When a shutdown request is pending it is
// marked accepted and ShutdownRequested is returned, since that is the value
// the agent acts on.
func (r *Registry) Heartbeat(ctx context.Context, groupName, computerName string) (state.State, error) {
	if err := r.acquire(ctx); err != nil {
		return 0, err
	}
	defer r.release()

	now := r.now()
	g, ok := r.groups[groupName]
	if !ok {
		g = newGroup()
		r.groups[groupName] = g
	}
	c := g.ensureFresh(computerName, now)
	c.recordHeartbeat(now)

	if c.awaitingAcceptance() {
		c.acceptShutdown()
		return state.ShutdownRequested, nil
	}
	return c.state, nil
}

// RequestShutdownComputer asks a single online computer to power off.
func (r *Registry) RequestShutdownComputer(ctx context.Context, groupName, computerName string) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()

	g, err := r.group(groupName)
	if err != nil {
		return err
	}
	c, err := g.member(computerName)
	if err != nil {
		return err
	}
	if err := c.requestShutdown(); err != nil {
		return fmt.Errorf("unable to shut down computer %q: %w", computerName, err)
	}
	return nil
}

// RequestShutdownGroup asks every online computer of a group to power off.
// Computers already past online are skipped. It returns the computers that
// were moved to shutdown_requested.
func (r *Registry) RequestShutdownGroup(ctx context.Context, groupName string) ([]string, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	g, err := r.group(groupName)
	if err != nil {
		return nil, err
	}
	requested, err := g.requestShutdown()
	if err != nil {
		return nil, fmt.Errorf("unable to shut down group %q: %w", groupName, err)
	}
	return requested, nil
}

// Sweep evicts every computer whose last heartbeat is at least threshold
// old, then drops the groups left empty.
func (r *Registry) Sweep(ctx context.Context, now time.Time, threshold time.Duration) ([]Eviction, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	return r.sweepLocked(now, threshold), nil
}

// Snapshot returns the current state of every registered computer.
func (r *Registry) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	return r.snapshotLocked(), nil
}

// Status sweeps with the configured threshold and returns the resulting
// snapshot along with the evictions of that sweep.
func (r *Registry) Status(ctx context.Context) (Snapshot, []Eviction, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, nil, err
	}
	defer r.release()

	evicted := r.sweepLocked(r.now(), r.threshold)
	return r.snapshotLocked(), evicted, nil
}

func (r *Registry) group(name string) (*group, error) {
	g, ok := r.groups[name]
	if !ok {
		return nil, fmt.Errorf("no group with name %q: %w", name, ErrNotFound)
	}
	return g, nil
}

func (r *Registry) sweepLocked(now time.Time, threshold time.Duration) []Eviction {
	var evicted []Eviction
	for groupName, g := range r.groups {
		for computerName, c := range g.sweep(now, threshold) {
			evicted = append(evicted, Eviction{
				Group:         groupName,
				Computer:      computerName,
				State:         c.state,
				LastHeartbeat: c.lastHeartbeat,
			})
		}
	}
	for groupName, g := range r.groups {
		if g.empty() {
			delete(r.groups, groupName)
		}
	}

	sort.Slice(evicted, func(i, j int) bool {
		if evicted[i].Group != evicted[j].Group {
			return evicted[i].Group < evicted[j].Group
		}
		return evicted[i].Computer < evicted[j].Computer
	})
	return evicted
}

func (r *Registry) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(r.groups))
	for groupName, g := range r.groups {
		computers := make(map[string]ComputerStatus, len(g.computers))
		for computerName, c := range g.computers {
			computers[computerName] = ComputerStatus{State: c.state}
		}
		snap[groupName] = computers
	}
	return snap
}
