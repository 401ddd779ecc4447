package engine

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"elevsim/src/config"
	"elevsim/src/request"
	"elevsim/src/timer"
	"elevsim/src/types"
)

var t0 = time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *timer.ManualClock) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := timer.NewManualClock(t0)
	e, err := New(cfg, clock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, clock
}

func step(e *Engine, clock *timer.ManualClock, n int) {
	for range n {
		clock.Advance(config.TickInterval)
		e.Step()
	}
}

func mustAdd(t *testing.T, e *Engine, d request.Data) string {
	t.Helper()
	id, err := e.AddRequest(d)
	if err != nil {
		t.Fatalf("AddRequest(%+v): %v", d, err)
	}
	return id
}

func checkCapacity(t *testing.T, s types.Snapshot) {
	t.Helper()
	for _, el := range s.Elevators {
		if len(el.Riders) > el.Capacity {
			t.Fatalf("Elevator %d carries %d riders, capacity %d", el.ID, len(el.Riders), el.Capacity)
		}
	}
}

// Every assigned request's origin is queued on its car, or the car is loading there.
func checkAssignments(t *testing.T, s types.Snapshot) {
	t.Helper()
	for _, r := range s.Requests {
		if r.AssignedElevator < 0 || r.IsServed {
			continue
		}
		el := s.Elevators[r.AssignedElevator]
		loading := el.Floor == r.Origin && el.Behaviour == types.Loading
		if !loading && !slices.Contains(el.Queue, r.Origin) {
			t.Fatalf("Request %s assigned to %d but origin %d not queued (floor %d, queue %v)",
				r.ID, el.ID, r.Origin, el.Floor, el.Queue)
		}
	}
}

// Scenario A: one trip from the lobby to floor 10
func TestTripIsServed(t *testing.T) {
	e, clock := newEngine(t, nil)
	id := mustAdd(t, e, request.Data{Origin: 1, Destination: 10})

	carrier := -1
	delivered := false
	for i := 0; i < 300 && !delivered; i++ {
		step(e, clock, 1)
		s := e.GetState()
		for _, el := range s.Elevators {
			for _, p := range el.Riders {
				if p.RequestID == id {
					carrier = el.ID
				}
			}
		}
		if carrier >= 0 {
			el := s.Elevators[carrier]
			delivered = el.Floor == 10 && len(el.Riders) == 0
		}
	}
	if carrier < 0 || !delivered {
		t.Fatalf("Expected the passenger delivered to floor 10, carrier %d", carrier)
	}

	r, ok := e.Request(id)
	if !ok || !r.IsServed || r.WaitMs <= 0 {
		t.Fatalf("Expected served with a positive final wait, got %+v", r)
	}
	for _, el := range e.GetState().Elevators {
		if el.ID != carrier && el.Floor == 10 {
			t.Errorf("Elevator %d also reached floor 10", el.ID)
		}
	}
	m := e.Metrics()
	if m.ServedTotal != 1 || m.ActiveRequests != 0 {
		t.Errorf("Expected 1 served and none active, got %+v", m)
	}
	if _, ok := m.Scheduler.LastAssignedMs[carrier]; !ok || m.PriorityCacheMisses == 0 {
		t.Errorf("Expected the carrier's assignment and priority lookups recorded, got %+v", m)
	}
}

// Scenario B: nothing can serve, so the request starves
func TestUnservedRequestStarves(t *testing.T) {
	e, clock := newEngine(t, nil)
	for id := range 3 {
		if err := e.SetMaintenance(id, true); err != nil {
			t.Fatalf("SetMaintenance: %v", err)
		}
	}
	id := mustAdd(t, e, request.Data{Origin: 4, Destination: 8})
	step(e, clock, 1)
	r, _ := e.Request(id)
	if r.IsServed || r.WaitMs > 100 {
		t.Fatalf("Expected a fresh unserved request, got %+v", r)
	}

	clock.Advance(31 * time.Second)
	e.Step()
	r, _ = e.Request(id)
	if r.Starvation != "early" || r.IsServed || r.AssignedElevator != -1 {
		t.Errorf("Expected an early-starving unassigned request, got %+v", r)
	}
	if m := e.Metrics(); m.StarvingByLevel["early"] != 1 || m.Scheduler.Unplaceable == 0 {
		t.Errorf("Expected the starving request counted and retried, got %+v", m)
	}
}

// Scenario C: arrivals beyond the admit limit are backlogged and drained in batches
func TestSaturationBacklogsAndDrains(t *testing.T) {
	for _, algo := range []string{"hybrid", "scan"} {
		t.Run(algo, func(t *testing.T) {
			e, clock := newEngine(t, func(c *config.Config) { c.Algorithm = algo })
			for i := 0; i < 100; i++ {
				mustAdd(t, e, request.Data{Origin: 2 + i%14, Destination: 1})
			}

			step(e, clock, 1)
			if m := e.Metrics(); m.ActiveRequests != 30 || m.Backlog != 70 {
				t.Fatalf("Expected 30 active and 70 backlogged, got %d and %d", m.ActiveRequests, m.Backlog)
			}
			step(e, clock, 1)
			if m := e.Metrics(); m.ActiveRequests != 50 || m.Backlog != 50 {
				t.Fatalf("Expected a batch of 20 drained, got %d active and %d backlogged", m.ActiveRequests, m.Backlog)
			}
			step(e, clock, 2)
			if m := e.Metrics(); m.Backlog != 0 || m.ActiveRequests+m.ServedTotal != 100 {
				t.Fatalf("Expected the backlog drained, got %+v", m)
			}

			for range 600 {
				step(e, clock, 1)
				s := e.GetState()
				checkCapacity(t, s)
				checkAssignments(t, s)
			}
			if m := e.Metrics(); m.ServedTotal == 0 {
				t.Error("Expected requests to be served under saturation")
			}
		})
	}
}

func TestOverloadRejects(t *testing.T) {
	e, _ := newEngine(t, nil)
	for i := 0; i < config.MaxBacklog; i++ {
		mustAdd(t, e, request.Data{Origin: 3, Destination: 9})
	}
	if _, err := e.AddRequest(request.Data{Origin: 3, Destination: 9}); !errors.Is(err, ErrOverloaded) {
		t.Errorf("Expected ErrOverloaded, got %v", err)
	}
}

// Scenario D: switching strategy clears and re-derives assignments
func TestSwitchAlgorithmReassigns(t *testing.T) {
	e, clock := newEngine(t, nil)
	for _, o := range []int{4, 7, 9, 12} {
		mustAdd(t, e, request.Data{Origin: o, Destination: 2})
	}
	step(e, clock, 1)
	for _, r := range e.GetState().Requests {
		if r.AssignedElevator < 0 {
			t.Fatalf("Expected hybrid to assign %s", r.ID)
		}
	}

	if err := e.SwitchAlgorithm("scan"); err != nil {
		t.Fatalf("SwitchAlgorithm: %v", err)
	}
	s := e.GetState()
	if s.Algorithm != types.AlgorithmScan {
		t.Fatalf("Expected scan, got %s", s.Algorithm)
	}
	for _, r := range s.Requests {
		if r.AssignedElevator != -1 {
			t.Errorf("Expected %s unassigned right after the switch", r.ID)
		}
	}
	for _, el := range s.Elevators {
		if len(el.Queue) != 0 {
			t.Errorf("Expected elevator %d queue trimmed, got %v", el.ID, el.Queue)
		}
	}

	step(e, clock, 1)
	s = e.GetState()
	if len(s.Requests) != 4 {
		t.Fatalf("Expected 4 active requests, got %d", len(s.Requests))
	}
	for _, r := range s.Requests {
		if r.AssignedElevator < 0 {
			t.Errorf("Expected scan to assign %s within one tick", r.ID)
		}
	}
}

// Scenario E: a request waiting over 90 s is forced onto an idle car
func TestEmergencyOverride(t *testing.T) {
	for _, algo := range []string{"hybrid", "scan"} {
		t.Run(algo, func(t *testing.T) {
			e, clock := newEngine(t, func(c *config.Config) { c.Algorithm = algo })
			id := mustAdd(t, e, request.Data{Origin: 5, Destination: 9})
			clock.Advance(91 * time.Second)
			e.Step()

			r, _ := e.Request(id)
			if r.AssignedElevator < 0 {
				t.Fatalf("Expected a forced assignment, got %+v", r)
			}
			if r.Starvation != "critical" || !r.Emergency {
				t.Errorf("Expected critical with the emergency latch, got %+v", r)
			}
			if m := e.Metrics(); m.EmergencyAssignments != 1 {
				t.Errorf("Expected 1 emergency assignment, got %d", m.EmergencyAssignments)
			}
		})
	}
}

func TestResetIsIdempotent(t *testing.T) {
	e, clock := newEngine(t, nil)
	mustAdd(t, e, request.Data{Origin: 1, Destination: 6})
	mustAdd(t, e, request.Data{Origin: 8, Destination: 3})
	step(e, clock, 40)

	e.Reset()
	first := e.GetState()
	e.Reset()
	second := e.GetState()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical states after two resets:\n%+v\n%+v", first, second)
	}
	for _, el := range second.Elevators {
		if el.Floor != 1 || el.Behaviour != types.Idle || len(el.Queue) != 0 {
			t.Errorf("Expected elevator %d idle at the lobby, got %+v", el.ID, el)
		}
	}
	if m := e.Metrics(); m.ActiveRequests != 0 || m.ServedTotal != 0 {
		t.Errorf("Expected no requests after reset, got %+v", m)
	}
}

func TestStartStop(t *testing.T) {
	e, _ := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !e.Start(ctx) {
		t.Fatal("Expected the first Start to succeed")
	}
	if e.Start(ctx) {
		t.Error("Expected Start to be a no-op while running")
	}
	if err := e.UpdateConfig(config.Update{NumFloors: ptr(20)}); !errors.Is(err, ErrImmutableWhileRunning) {
		t.Errorf("Expected ErrImmutableWhileRunning, got %v", err)
	}
	if !e.Stop() {
		t.Error("Expected Stop to succeed")
	}
	if e.Stop() || e.Running() {
		t.Error("Expected a second Stop to be a no-op")
	}
}

func TestEmergencyStop(t *testing.T) {
	e, clock := newEngine(t, nil)
	mustAdd(t, e, request.Data{Origin: 1, Destination: 12})
	mustAdd(t, e, request.Data{Origin: 6, Destination: 2})
	step(e, clock, 40)

	e.EmergencyStop()
	s := e.GetState()
	if len(s.Requests) != 0 || s.Backlog != 0 {
		t.Errorf("Expected every request discarded, got %d and %d", len(s.Requests), s.Backlog)
	}
	moved := false
	for _, el := range s.Elevators {
		if el.Behaviour != types.Idle || len(el.Queue) != 0 || len(el.Riders) != 0 {
			t.Errorf("Expected elevator %d safe and idle, got %+v", el.ID, el)
		}
		moved = moved || el.Floor != 1
	}
	if !moved {
		t.Error("Expected cars to halt where they were, not return to the lobby")
	}
}

func TestControlErrors(t *testing.T) {
	e, _ := newEngine(t, nil)
	if err := e.SwitchAlgorithm("elevator-magic"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Expected ErrUnknownAlgorithm, got %v", err)
	}
	if err := e.SetMaintenance(7, true); !errors.Is(err, ErrNoSuchElevator) {
		t.Errorf("Expected ErrNoSuchElevator, got %v", err)
	}
	if _, err := e.AddRequest(request.Data{Origin: 1, Destination: 4, PassengerCount: 9}); !errors.Is(err, request.ErrInvalidRequest) {
		t.Errorf("Expected an oversized party rejected, got %v", err)
	}
	if _, err := e.AddRequest(request.Data{Origin: 1, Destination: 40}); !errors.Is(err, request.ErrInvalidRequest) {
		t.Errorf("Expected an invalid floor rejected, got %v", err)
	}

	cfg := config.Default()
	cfg.Algorithm = "lifo"
	if _, err := New(cfg, timer.NewManualClock(t0)); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Expected ErrUnknownAlgorithm from New, got %v", err)
	}
}

func TestUpdateConfig(t *testing.T) {
	e, _ := newEngine(t, nil)
	if err := e.UpdateConfig(config.Update{Speed: ptr(2.0)}); err != nil {
		t.Fatalf("UpdateConfig speed: %v", err)
	}
	for _, el := range e.elevators {
		if el.Speed != 2 || el.MoveInterval() != 500*time.Millisecond {
			t.Errorf("Expected speed pushed to elevator %d, got %g", el.ID, el.Speed)
		}
	}

	if err := e.UpdateConfig(config.Update{RequestFrequency: ptr(6.0)}); err != nil {
		t.Fatalf("UpdateConfig frequency: %v", err)
	}
	if got := e.generationInterval(); got != 10*time.Second {
		t.Errorf("Expected a 10s generation interval, got %v", got)
	}
	mustAdd(t, e, request.Data{Origin: 2, Destination: 9, Source: types.SourceAuto})
	mustAdd(t, e, request.Data{Origin: 3, Destination: 9})
	if err := e.UpdateConfig(config.Update{RequestFrequency: ptr(0.0)}); err != nil {
		t.Fatalf("UpdateConfig frequency: %v", err)
	}
	if m := e.Metrics(); m.Backlog != 1 {
		t.Errorf("Expected the generated request purged, %d waiting", m.Backlog)
	}

	if err := e.UpdateConfig(config.Update{NumElevators: ptr(5)}); err != nil {
		t.Fatalf("UpdateConfig roster: %v", err)
	}
	if s := e.GetState(); len(s.Elevators) != 5 || s.Backlog != 0 {
		t.Errorf("Expected a rebuilt roster of 5, got %d cars and %d waiting", len(s.Elevators), s.Backlog)
	}
	if err := e.UpdateConfig(config.Update{Capacity: ptr(0)}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if err := e.UpdateConfig(config.Update{RequestFrequency: ptr(1e9)}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Expected an unbounded frequency rejected, got %v", err)
	}
	if got := e.Config().RequestFrequency; got > config.MaxRequestFrequency {
		t.Errorf("Expected the frequency unchanged, got %g", got)
	}
}

func TestFloorCallGetsDestination(t *testing.T) {
	e, clock := newEngine(t, nil)
	id := mustAdd(t, e, request.Data{Origin: 5, Dir: types.DirUp})
	step(e, clock, 1)
	if calls := e.GetState().FloorCalls; len(calls) != 1 || calls[0].Floor != 5 {
		t.Fatalf("Expected one floor call at 5, got %+v", calls)
	}

	step(e, clock, 100)
	r, _ := e.Request(id)
	if !r.IsServed || r.Destination <= 5 {
		t.Fatalf("Expected served with an upward destination, got %+v", r)
	}
	if calls := e.GetState().FloorCalls; len(calls) != 0 {
		t.Errorf("Expected the floor call cleared, got %+v", calls)
	}
}

func TestUpdatesArePublishedWithoutBlocking(t *testing.T) {
	e, clock := newEngine(t, nil)
	step(e, clock, 1)
	select {
	case u := <-e.Updates():
		if len(u.State.Elevators) != 3 {
			t.Errorf("Expected 3 elevators in the update, got %d", len(u.State.Elevators))
		}
	default:
		t.Fatal("Expected an update after a tick")
	}

	step(e, clock, config.UpdateBufferSize+4)
	if m := e.Metrics(); m.DroppedUpdates != 4 {
		t.Errorf("Expected 4 dropped updates, got %d", m.DroppedUpdates)
	}
}

func TestGeneratedTripsAreValid(t *testing.T) {
	e, _ := newEngine(t, nil)
	for hour := 0; hour < 24; hour++ {
		for range 50 {
			d := e.randomTrip(hour, 15, 8)
			if _, err := request.New(d, t0, 15); err != nil {
				t.Fatalf("Generated invalid trip %+v at %02d:00: %v", d, hour, err)
			}
			if d.Source != types.SourceAuto {
				t.Fatalf("Expected an automatic source, got %s", d.Source)
			}
		}
	}
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3)
	var all []*request.Request
	for i := range 4 {
		r, _ := request.New(request.Data{Origin: 1, Destination: 2 + i}, t0.Add(time.Duration(i)*time.Minute), 15)
		r.Serve(r.CreatedAt.Add(time.Second))
		h.Add(r)
		all = append(all, r)
	}
	if h.Len() != 3 {
		t.Fatalf("Expected 3 retained, got %d", h.Len())
	}
	if _, ok := h.Get(all[0].ID); ok {
		t.Error("Expected the oldest entry overwritten")
	}
	if got := h.All(); got[0] != all[1] || got[2] != all[3] {
		t.Errorf("Expected oldest-first order, got %v", got)
	}

	// all[1] was served at t0+1m1s
	if n := h.Prune(t0.Add(6*time.Minute+2*time.Second), config.HistoryMaxAge); n != 1 {
		t.Errorf("Expected 1 aged entry pruned, got %d", n)
	}
}

func ptr[T any](v T) *T {
	return &v
}
