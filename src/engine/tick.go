package engine

import (
	"cmp"
	"slices"
	"time"

	"elevsim/src/config"
	"elevsim/src/dispatcher"
	"elevsim/src/elev"
	"elevsim/src/request"
	"elevsim/src/types"
	"elevsim/src/utils"
)

const emergencyAfter = 60 * time.Second

// tick advances the simulation to now. Callers hold mu. The phases run in
// this order and each one sees the result of the previous:
//  1. admit arrivals and drain the backlog
//  2. refresh waits, repair stuck assignments, emergency override
//  3. the active strategy's assignment pass, then queue sync
//  4. move every car, then alight and board at open doors
//  5. idle positioning in SCAN mode, purge, publish
func (e *Engine) tick(now time.Time) {
	if !e.lastTick.IsZero() && now.After(e.lastTick) {
		e.elapsed += now.Sub(e.lastTick)
	}
	e.lastTick = now

	e.admit(now)
	e.refreshWaits(now)
	e.repairAssignments()
	e.emergencyOverride()

	e.active.Assign(dispatcher.Input{
		Elevators:         e.elevators,
		Requests:          e.requests,
		Now:               now,
		NumFloors:         e.cfg.NumFloors,
		GenerationEnabled: e.cfg.RequestFrequency > 0,
	})
	e.syncQueues(now)

	for _, el := range e.elevators {
		el.Update(now)
	}
	for _, el := range e.elevators {
		if el.DoorsOpen() {
			e.exchange(el, now)
		}
	}

	if e.active.Name() == types.AlgorithmScan && e.cfg.RequestFrequency > 0 && !e.anyPending() {
		e.positioner.Reposition(e.elevators, e.cfg.NumFloors, now)
	}
	e.purge(now)
	e.publish()
}

// admit moves arrivals into the active set.
//  1. drain the backlog first, in batches that grow with load, up to the hard ceiling
//  2. then admit new arrivals directly while under the admit limit and the backlog is empty
//  3. anything left over waits in the backlog
func (e *Engine) admit(now time.Time) {
	n := len(e.elevators)
	admitLimit := config.AdmitFactor * n
	ceiling := config.MaxActiveFactor * n

	e.inboxMu.Lock()
	arrivals := e.inbox
	e.inbox = nil

	if len(e.backlog) > 0 {
		take := min(backlogBatch(len(e.requests), admitLimit), len(e.backlog), max(0, ceiling-len(e.requests)))
		for _, r := range e.backlog[:take] {
			e.activate(r, now)
		}
		e.backlog = slices.Delete(e.backlog, 0, take)
		if take > 0 {
			e.log.Debug("Backlog drained", "admitted", take, "remaining", len(e.backlog))
		}
	}
	for _, r := range arrivals {
		if len(e.backlog) == 0 && len(e.requests) < admitLimit {
			e.activate(r, now)
			continue
		}
		e.backlog = append(e.backlog, r)
	}
	backlog := len(e.backlog)
	e.inboxMu.Unlock()

	if backlog > 0 && len(arrivals) > 0 {
		e.log.Debug("Arrivals backlogged", "backlog", backlog, "active", len(e.requests))
	}
}

// backlogBatch grows with the ratio of active requests to the admit limit.
func backlogBatch(active, admitLimit int) int {
	load := float64(active) / float64(max(1, admitLimit))
	switch {
	case load < 0.5:
		return 5
	case load < 1:
		return 10
	}
	return 20
}

func (e *Engine) activate(r *request.Request, now time.Time) {
	e.requests = append(e.requests, r)
	e.index[r.ID] = r
	if r.IsFloorCall() {
		e.floorCalls.Register(r, now)
	}
}

func (e *Engine) refreshWaits(now time.Time) {
	for _, r := range e.requests {
		if r.UpdateWaitTime(now) {
			e.log.Info("Request starving", "id", r.ID, "level", r.Starvation, "wait", r.WaitTime.Round(time.Millisecond), "assigned", r.AssignedElevator)
		}
	}
}

// repairAssignments clears assignments whose car no longer heads for the
// origin and is not loading there.
func (e *Engine) repairAssignments() {
	for _, r := range e.requests {
		if !r.Assigned() {
			continue
		}
		if r.AssignedElevator >= len(e.elevators) {
			r.Unassign()
			e.repairs++
			continue
		}
		el := e.elevators[r.AssignedElevator]
		loadingHere := el.Floor == r.Origin && el.DoorsOpen()
		if el.Maintenance || (!el.HasFloor(r.Origin) && !loadingHere) {
			e.log.Warn("Stuck assignment cleared", "request", r.ID, "elevator", el.ID, "origin", r.Origin, "queue", el.Queue)
			r.Unassign()
			e.repairs++
		}
	}
}

// emergencyOverride hands requests waiting over a minute straight to the
// closest fully idle car, ahead of the strategy.
func (e *Engine) emergencyOverride() {
	var urgent []*request.Request
	for _, r := range e.requests {
		if r.Pending() && r.CurrentWait() > emergencyAfter {
			urgent = append(urgent, r)
		}
	}
	slices.SortStableFunc(urgent, func(a, b *request.Request) int {
		return cmp.Compare(b.CurrentWait(), a.CurrentWait())
	})
	taken := make(map[int]bool)
	for _, r := range urgent {
		var best *elev.Elevator
		for _, el := range e.elevators {
			if !el.Idle() || taken[el.ID] {
				continue
			}
			if best == nil || utils.Abs(el.Floor-r.Origin) < utils.Abs(best.Floor-r.Origin) {
				best = el
			}
		}
		if best == nil {
			return
		}
		taken[best.ID] = true
		r.Assign(best.ID)
		best.AddRequest(r.Origin)
		e.emergencyAssignments++
		e.log.Warn("Emergency assignment", "request", r.ID, "elevator", best.ID, "wait", r.CurrentWait().Round(time.Millisecond))
	}
}

// syncQueues makes sure every assigned origin is queued on its car, or holds
// the doors open when the car is already there so it cannot leave before boarding.
func (e *Engine) syncQueues(now time.Time) {
	for _, r := range e.requests {
		if !r.Assigned() || r.AssignedElevator >= len(e.elevators) {
			continue
		}
		el := e.elevators[r.AssignedElevator]
		switch {
		case el.Maintenance:
		case el.Floor == r.Origin && el.Room() < r.PassengerCount:
			e.refuse(r, el)
		case el.Floor == r.Origin:
			el.OpenDoors(now)
		case !el.HasFloor(r.Origin):
			el.AddRequest(r.Origin)
			e.active.SortQueue(el)
		}
	}
}

// exchange lets riders off, then boards every request assigned to el at this
// floor whose whole party fits. A party that does not fit goes back to the pool.
func (e *Engine) exchange(el *elev.Elevator, now time.Time) {
	if out := el.Alight(); len(out) > 0 {
		e.log.Debug("Passengers alighted", "elevator", el.ID, "floor", el.Floor, "count", len(out))
	}

	var boarding []*request.Request
	for _, r := range e.requests {
		if r.AssignedElevator == el.ID && r.Origin == el.Floor && !r.IsServed {
			boarding = append(boarding, r)
		}
	}
	slices.SortStableFunc(boarding, func(a, b *request.Request) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	for _, r := range boarding {
		if el.Room() < r.PassengerCount {
			e.refuse(r, el)
			continue
		}
		if r.IsFloorCall() {
			r.Destination = e.chooseDestination(r.Origin, r.Dir)
		}
		r.Serve(now)
		for range r.PassengerCount {
			p := elev.Passenger{RequestID: r.ID, Origin: r.Origin, Destination: r.Destination, BoardTime: now, WaitTime: r.FinalWaitTime}
			if err := el.Board(p); err != nil {
				e.log.Error("Board failed after room check", "request", r.ID, "elevator", el.ID, "err", err)
				break
			}
		}
		el.AddRequest(r.Destination)
		e.servedTotal++
		e.log.Debug("Request boarded", "request", r.ID, "elevator", el.ID, "destination", r.Destination, "wait", r.FinalWaitTime.Round(time.Millisecond))
	}
	e.active.SortQueue(el)
}

// refuse sends a party that does not fit back to the pool.
func (e *Engine) refuse(r *request.Request, el *elev.Elevator) {
	r.Unassign()
	e.refusedBoardings++
	e.log.Warn("Boarding refused, party does not fit", "request", r.ID, "elevator", el.ID, "party", r.PassengerCount, "room", el.Room())
}

// chooseDestination picks where a floor call's rider is going.
func (e *Engine) chooseDestination(origin int, dir types.Direction) int {
	if dir == types.DirDown && origin > 1 {
		return 1 + e.rng.IntN(origin-1)
	}
	if origin >= e.cfg.NumFloors {
		return 1 + e.rng.IntN(e.cfg.NumFloors-1)
	}
	return origin + 1 + e.rng.IntN(e.cfg.NumFloors-origin)
}

func (e *Engine) anyPending() bool {
	return slices.ContainsFunc(e.requests, (*request.Request).Pending)
}

// purge moves served requests into the history and expires floor calls.
func (e *Engine) purge(now time.Time) {
	e.requests = slices.DeleteFunc(e.requests, func(r *request.Request) bool {
		if !r.IsServed {
			return false
		}
		delete(e.index, r.ID)
		e.history.Add(r)
		return true
	})
	e.history.Prune(now, config.HistoryMaxAge)

	waiting := make(map[request.FloorCallKey]bool)
	for _, r := range e.requests {
		if r.IsFloorCall() {
			waiting[request.FloorCallKey{Floor: r.Origin, Dir: r.Dir}] = true
		}
	}
	e.floorCalls.Expire(now, waiting)
}

func (e *Engine) publish() {
	u := types.Update{State: e.snapshot(), Metrics: e.metrics()}
	select {
	case e.updates <- u:
	default:
		e.dropped.Add(1)
	}
}
