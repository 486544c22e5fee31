package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"shutdownd/pkg/state"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(WithClock(clock.Now)), clock
}

func mustHeartbeat(t *testing.T, r *Registry, groupName, computerName string) state.State {
	t.Helper()
	got, err := r.Heartbeat(context.Background(), groupName, computerName)
	if err != nil {
		t.Fatalf("Heartbeat(%q, %q): %v", groupName, computerName, err)
	}
	return got
}

func mustSnapshot(t *testing.T, r *Registry) Snapshot {
	t.Helper()
	snap, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func TestHeartbeatCreatesUnknownComputer(t *testing.T) {
	r, _ := newTestRegistry(t)

	if got := mustHeartbeat(t, r, "lab", "pc-1"); got != state.Online {
		t.Fatalf("first heartbeat = %v, want online", got)
	}

	want := Snapshot{"lab": {"pc-1": {State: state.Online}}}
	if got := mustSnapshot(t, r); !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
}

func TestSingleShotAcceptance(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	mustHeartbeat(t, r, "lab", "pc-1")
	if err := r.RequestShutdownComputer(ctx, "lab", "pc-1"); err != nil {
		t.Fatalf("RequestShutdownComputer: %v", err)
	}

	snap := mustSnapshot(t, r)
	if got := snap["lab"]["pc-1"].State; got != state.ShutdownRequested {
		t.Fatalf("state before pong = %v, want shutdown_requested", got)
	}

	if got := mustHeartbeat(t, r, "lab", "pc-1"); got != state.ShutdownRequested {
		t.Fatalf("first pong after request = %v, want shutdown_requested", got)
	}
	snap = mustSnapshot(t, r)
	if got := snap["lab"]["pc-1"].State; got != state.ShutdownAccepted {
		t.Fatalf("state after pong = %v, want shutdown_accepted", got)
	}

	for i := 0; i < 3; i++ {
		if got := mustHeartbeat(t, r, "lab", "pc-1"); got != state.ShutdownAccepted {
			t.Fatalf("pong %d after acceptance = %v, want shutdown_accepted", i, got)
		}
	}
}

func TestRequestShutdownComputerTwice(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	mustHeartbeat(t, r, "lab", "pc-1")
	if err := r.RequestShutdownComputer(ctx, "lab", "pc-1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	err := r.RequestShutdownComputer(ctx, "lab", "pc-1")
	if !errors.Is(err, ErrIneligibleState) {
		t.Fatalf("second request error = %v, want ErrIneligibleState", err)
	}
}

func TestRequestShutdownUnknownTarget(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	mustHeartbeat(t, r, "lab", "pc-1")
	before := mustSnapshot(t, r)

	tests := []struct {
		name string
		call func() error
	}{
		{"unknown group computer", func() error { return r.RequestShutdownComputer(ctx, "office", "pc-1") }},
		{"unknown computer", func() error { return r.RequestShutdownComputer(ctx, "lab", "pc-9") }},
		{"unknown group", func() error {
			_, err := r.RequestShutdownGroup(ctx, "office")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrNotFound) {
				t.Fatalf("error = %v, want ErrNotFound", err)
			}
			if after := mustSnapshot(t, r); !reflect.DeepEqual(after, before) {
				t.Fatalf("registry mutated: %v, want %v", after, before)
			}
		})
	}
}

func TestGroupShutdownFanOut(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		mustHeartbeat(t, r, "lab", name)
	}
	if err := r.RequestShutdownComputer(ctx, "lab", "b"); err != nil {
		t.Fatalf("request b: %v", err)
	}

	requested, err := r.RequestShutdownGroup(ctx, "lab")
	if err != nil {
		t.Fatalf("RequestShutdownGroup: %v", err)
	}
	if want := []string{"a", "c"}; !reflect.DeepEqual(requested, want) {
		t.Fatalf("requested = %v, want %v", requested, want)
	}

	want := Snapshot{"lab": {
		"a": {State: state.ShutdownRequested},
		"b": {State: state.ShutdownRequested},
		"c": {State: state.ShutdownRequested},
	}}
	if got := mustSnapshot(t, r); !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
}

func TestGroupShutdownNoEligibleMembers(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	mustHeartbeat(t, r, "lab", "a")
	mustHeartbeat(t, r, "lab", "b")
	if _, err := r.RequestShutdownGroup(ctx, "lab"); err != nil {
		t.Fatalf("first group request: %v", err)
	}
	// a accepts, b stays requested.
	mustHeartbeat(t, r, "lab", "a")
	before := mustSnapshot(t, r)

	_, err := r.RequestShutdownGroup(ctx, "lab")
	if !errors.Is(err, ErrNoEligibleMembers) {
		t.Fatalf("error = %v, want ErrNoEligibleMembers", err)
	}
	if after := mustSnapshot(t, r); !reflect.DeepEqual(after, before) {
		t.Fatalf("registry mutated: %v, want %v", after, before)
	}
}

func TestSweepEvictsAndCascades(t *testing.T) {
	r, clock := newTestRegistry(t)
	ctx := context.Background()
	threshold := state.StaleThreshold(state.PongInterval, state.StaleMultiplier)

	mustHeartbeat(t, r, "lab", "old")
	mustHeartbeat(t, r, "office", "alone")
	clock.Advance(threshold / 2)
	mustHeartbeat(t, r, "lab", "fresh")
	clock.Advance(threshold / 2)

	evicted, err := r.Sweep(ctx, clock.Now(), threshold)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	var names []string
	for _, ev := range evicted {
		names = append(names, fmt.Sprintf("%s/%s", ev.Group, ev.Computer))
	}
	if want := []string{"lab/old", "office/alone"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("evicted = %v, want %v", names, want)
	}

	want := Snapshot{"lab": {"fresh": {State: state.Online}}}
	if got := mustSnapshot(t, r); !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
}

func TestSweepKeepsComputersJustUnderThreshold(t *testing.T) {
	r, clock := newTestRegistry(t)
	threshold := 16 * time.Second

	mustHeartbeat(t, r, "lab", "pc-1")
	clock.Advance(threshold - time.Nanosecond)

	evicted, err := r.Sweep(context.Background(), clock.Now(), threshold)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("evicted = %v, want none", evicted)
	}
}

func TestSweepEvictsRegardlessOfState(t *testing.T) {
	r, clock := newTestRegistry(t)
	ctx := context.Background()
	threshold := r.Threshold()

	mustHeartbeat(t, r, "lab", "pc-1")
	if err := r.RequestShutdownComputer(ctx, "lab", "pc-1"); err != nil {
		t.Fatalf("request: %v", err)
	}
	clock.Advance(threshold)

	evicted, err := r.Sweep(ctx, clock.Now(), threshold)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(evicted) != 1 || evicted[0].State != state.ShutdownRequested {
		t.Fatalf("evicted = %+v, want one shutdown_requested computer", evicted)
	}

	// Recreated fresh after eviction.
	if got := mustHeartbeat(t, r, "lab", "pc-1"); got != state.Online {
		t.Fatalf("heartbeat after eviction = %v, want online", got)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	r, clock := newTestRegistry(t)
	ctx := context.Background()
	threshold := r.Threshold()

	mustHeartbeat(t, r, "lab", "a")
	clock.Advance(threshold)
	mustHeartbeat(t, r, "lab", "b")

	if _, err := r.Sweep(ctx, clock.Now(), threshold); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	once := mustSnapshot(t, r)

	evicted, err := r.Sweep(ctx, clock.Now(), threshold)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("second sweep evicted %v", evicted)
	}
	if twice := mustSnapshot(t, r); !reflect.DeepEqual(once, twice) {
		t.Fatalf("second sweep changed snapshot: %v != %v", twice, once)
	}
}

func TestStatusSweepsWithConfiguredThreshold(t *testing.T) {
	clock := newFakeClock()
	r := New(WithClock(clock.Now), WithStaleThreshold(10*time.Second))

	mustHeartbeat(t, r, "lab", "pc-1")
	clock.Advance(9 * time.Second)

	snap, evicted, err := r.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(evicted) != 0 || len(snap) != 1 {
		t.Fatalf("status too early: snap=%v evicted=%v", snap, evicted)
	}

	clock.Advance(time.Second)
	snap, evicted, err = r.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(evicted) != 1 || len(snap) != 0 {
		t.Fatalf("status after threshold: snap=%v evicted=%v", snap, evicted)
	}
}

func TestHeartbeatRefreshesTimestamp(t *testing.T) {
	r, clock := newTestRegistry(t)
	threshold := r.Threshold()

	mustHeartbeat(t, r, "lab", "pc-1")
	for i := 0; i < 5; i++ {
		clock.Advance(threshold / 2)
		mustHeartbeat(t, r, "lab", "pc-1")
	}

	evicted, err := r.Sweep(context.Background(), clock.Now(), threshold)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("heartbeating computer evicted: %v", evicted)
	}
}

func TestMonotonicObservedStates(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	steps := []func(){
		func() { _ = r.RequestShutdownComputer(ctx, "lab", "pc-1") },
		func() {},
		func() { _, _ = r.RequestShutdownGroup(ctx, "lab") },
		func() { _ = r.RequestShutdownComputer(ctx, "lab", "pc-1") },
		func() {},
	}

	last := mustHeartbeat(t, r, "lab", "pc-1")
	for i, step := range steps {
		step()
		got := mustHeartbeat(t, r, "lab", "pc-1")
		if got < last {
			t.Fatalf("step %d: observed %v after %v", i, got, last)
		}
		last = got
	}
	if last != state.ShutdownAccepted {
		t.Fatalf("final state = %v, want shutdown_accepted", last)
	}
}

func TestLockUnavailableOnCancelledContext(t *testing.T) {
	r, _ := newTestRegistry(t)
	mustHeartbeat(t, r, "lab", "pc-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Heartbeat(ctx, "lab", "pc-2"); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("Heartbeat error = %v, want ErrLockUnavailable", err)
	}
	if err := r.RequestShutdownComputer(ctx, "lab", "pc-1"); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("RequestShutdownComputer error = %v, want ErrLockUnavailable", err)
	}
	if _, _, err := r.Status(ctx); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("Status error = %v, want ErrLockUnavailable", err)
	}

	want := Snapshot{"lab": {"pc-1": {State: state.Online}}}
	if got := mustSnapshot(t, r); !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
}

func TestLockUnavailableWhileHeld(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer r.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Snapshot(ctx); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("Snapshot error = %v, want ErrLockUnavailable", err)
	}
}

func TestConcurrentHeartbeatsAndShutdowns(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	const groups, computers = 4, 25
	var wg sync.WaitGroup
	for g := 0; g < groups; g++ {
		for c := 0; c < computers; c++ {
			wg.Add(1)
			go func(g, c int) {
				defer wg.Done()
				groupName := fmt.Sprintf("group-%d", g)
				computerName := fmt.Sprintf("pc-%d", c)
				for i := 0; i < 20; i++ {
					if _, err := r.Heartbeat(ctx, groupName, computerName); err != nil {
						t.Errorf("Heartbeat: %v", err)
						return
					}
				}
			}(g, c)
		}
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, _ = r.RequestShutdownGroup(ctx, fmt.Sprintf("group-%d", g))
				_, _, _ = r.Status(ctx)
			}
		}(g)
	}
	wg.Wait()

	entries := mustSnapshot(t, r).Entries()
	if len(entries) != groups*computers {
		t.Fatalf("entries = %d, want %d", len(entries), groups*computers)
	}
}

func TestSnapshotEntriesSorted(t *testing.T) {
	snap := Snapshot{
		"b": {"z": {State: state.Online}, "a": {State: state.ShutdownAccepted}},
		"a": {"m": {State: state.ShutdownRequested}},
	}
	want := []Entry{
		{Group: "a", Computer: "m", State: state.ShutdownRequested},
		{Group: "b", Computer: "a", State: state.ShutdownAccepted},
		{Group: "b", Computer: "z", State: state.Online},
	}
	if got := snap.Entries(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	r := New(WithClock(clock.Now), WithStaleThreshold(time.Second))
	mustHeartbeat(t, r, "lab", "pc-1")
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	batches := make(chan []Eviction, 1)
	done := make(chan error, 1)
	go func() {
		done <- r.RunSweeper(ctx, 5*time.Millisecond, func(ev []Eviction) {
			select {
			case batches <- ev:
			default:
			}
		})
	}()

	select {
	case ev := <-batches:
		if len(ev) != 1 || ev[0].Computer != "pc-1" {
			t.Fatalf("evictions = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not evict")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunSweeper returned %v, want context.Canceled", err)
	}
}

func TestRunSweeperRejectsBadInterval(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.RunSweeper(context.Background(), 0, nil); err == nil {
		t.Fatal("RunSweeper accepted zero interval")
	}
}
