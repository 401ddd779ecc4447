package engine

import (
	"time"

	"github.com/tiendc/go-deepcopy"

	"elevsim/src/elev"
	"elevsim/src/request"
	"elevsim/src/types"
)

// GetState returns a deep snapshot that shares nothing with the engine.
func (e *Engine) GetState() types.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) Metrics() types.Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics()
}

// Request looks up an active, waiting or recently served request.
func (e *Engine) Request(id string) (types.RequestSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.index[id]; ok {
		return r.Snapshot(), true
	}
	if r, ok := e.history.Get(id); ok {
		return r.Snapshot(), true
	}
	e.inboxMu.Lock()
	defer e.inboxMu.Unlock()
	for _, waiting := range [][]*request.Request{e.inbox, e.backlog} {
		for _, r := range waiting {
			if r.ID == id {
				return r.Snapshot(), true
			}
		}
	}
	return types.RequestSnapshot{}, false
}

func (e *Engine) snapshot() types.Snapshot {
	s := types.Snapshot{
		Elevators: make([]types.ElevatorSnapshot, 0, len(e.elevators)),
		Requests:  make([]types.RequestSnapshot, 0, len(e.requests)),
		Running:   e.running,
		ElapsedMs: e.elapsed.Milliseconds(),
		Algorithm: e.active.Name(),
		Config: types.ConfigSnapshot{
			NumElevators:     e.cfg.NumElevators,
			NumFloors:        e.cfg.NumFloors,
			Capacity:         e.cfg.Capacity,
			Speed:            e.cfg.Speed,
			RequestFrequency: e.cfg.RequestFrequency,
		},
	}
	for _, el := range e.elevators {
		s.Elevators = append(s.Elevators, e.elevatorSnapshot(el))
	}
	for _, r := range e.requests {
		s.Requests = append(s.Requests, r.Snapshot())
	}
	for _, c := range e.floorCalls {
		s.FloorCalls = append(s.FloorCalls, c.Snapshot())
	}
	e.inboxMu.Lock()
	s.Backlog = len(e.backlog) + len(e.inbox)
	e.inboxMu.Unlock()
	return s
}

// elevatorSnapshot copies the matching fields of el by name. Riders and the
// scan direction have no counterpart on the car and are filled in here.
func (e *Engine) elevatorSnapshot(el *elev.Elevator) types.ElevatorSnapshot {
	var snap types.ElevatorSnapshot
	if err := deepcopy.Copy(&snap, el); err != nil {
		e.log.Error("Elevator snapshot copy failed", "id", el.ID, "err", err)
		snap = types.ElevatorSnapshot{ID: el.ID, Floor: el.Floor, Behaviour: el.Behaviour, Dir: el.Dir}
	}
	snap.Riders = make([]types.PassengerSnapshot, 0, len(el.Passengers))
	for _, p := range el.Passengers {
		snap.Riders = append(snap.Riders, types.PassengerSnapshot{
			RequestID:   p.RequestID,
			Origin:      p.Origin,
			Destination: p.Destination,
			BoardedAtMs: p.BoardTime.UnixMilli(),
			WaitMs:      p.WaitTime.Milliseconds(),
		})
	}
	if e.active.Name() == types.AlgorithmScan {
		snap.ScanDir = e.scan.ScanDirection(el.ID)
	} else {
		snap.ScanDir = el.Dir
	}
	return snap
}

// metrics summarises waits over the served history and the active set.
func (e *Engine) metrics() types.Metrics {
	m := types.Metrics{
		ActiveRequests:       len(e.requests),
		ServedTotal:          e.servedTotal,
		StarvingByLevel:      make(map[string]int),
		Repairs:              e.repairs,
		EmergencyAssignments: e.emergencyAssignments,
		RefusedBoardings:     e.refusedBoardings,
		DroppedUpdates:       e.dropped.Load(),
		Repositions:          e.positioner.Moves(),
		Scheduler:            e.active.GetMetrics(),
	}
	m.PriorityCacheHits, m.PriorityCacheMisses = e.calc.CacheStats()
	e.inboxMu.Lock()
	m.Backlog = len(e.backlog) + len(e.inbox)
	e.inboxMu.Unlock()

	var total, longest time.Duration
	served := e.history.All()
	for _, r := range served {
		total += r.FinalWaitTime
		longest = max(longest, r.FinalWaitTime)
	}
	if len(served) > 0 {
		m.AverageWaitMs = (total / time.Duration(len(served))).Milliseconds()
	}
	for _, r := range e.requests {
		longest = max(longest, r.CurrentWait())
		if r.Starvation > 0 {
			m.StarvingByLevel[r.Starvation.String()]++
		}
	}
	m.MaxWaitMs = longest.Milliseconds()

	if len(e.elevators) > 0 {
		var busy int
		for _, el := range e.elevators {
			busy += el.Utilization()
		}
		m.Utilization = float64(busy) / float64(len(e.elevators))
	}
	return m
}
