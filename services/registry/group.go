package registry

import (
	"fmt"
	"sort"
	"time"
)

type group struct {
	computers map[string]*computer
}

func newGroup() *group {
	return &group{computers: make(map[string]*computer)}
}

// ensureFresh returns the named computer, registering it as online if absent.
func (g *group) ensureFresh(name string, now time.Time) *computer {
	if c, ok := g.computers[name]; ok {
		return c
	}
	c := newComputer(now)
	g.computers[name] = c
	return c
}

func (g *group) hasAnyEligibleForShutdown() bool {
	for _, c := range g.computers {
		if c.eligibleForShutdown() {
			return true
		}
	}
	return false
}

// requestShutdown moves every online member to shutdown_requested and leaves
// the others untouched. It returns the sorted names of the members it moved.
func (g *group) requestShutdown() ([]string, error) {
	if !g.hasAnyEligibleForShutdown() {
		return nil, ErrNoEligibleMembers
	}

	var requested []string
	for name, c := range g.computers {
		if !c.eligibleForShutdown() {
			continue
		}
		if err := c.requestShutdown(); err != nil {
			return nil, err
		}
		requested = append(requested, name)
	}
	sort.Strings(requested)
	return requested, nil
}

func (g *group) member(name string) (*computer, error) {
	c, ok := g.computers[name]
	if !ok {
		return nil, fmt.Errorf("no computer with name %q in this group: %w", name, ErrNotFound)
	}
	return c, nil
}

func (g *group) empty() bool {
	return len(g.computers) == 0
}

// sweep removes stale members and returns them keyed by name.
func (g *group) sweep(now time.Time, threshold time.Duration) map[string]*computer {
	var evicted map[string]*computer
	for name, c := range g.computers {
		if !c.stale(now, threshold) {
			continue
		}
		if evicted == nil {
			evicted = make(map[string]*computer)
		}
		evicted[name] = c
		delete(g.computers, name)
	}
	return evicted
}
