// Package dispatcher decides which elevator serves which request. Strategies
// share the Scheduler interface and keep their bookkeeping private.
package dispatcher

import (
	"log/slog"
	"slices"
	"time"

	"elevsim/src/elev"
	"elevsim/src/request"
	"elevsim/src/types"
	"elevsim/src/utils"
)

// StarvingAfter is the wait beyond which a request is placed ahead of the rest.
const StarvingAfter = 30 * time.Second

// Scheduler is implemented by every strategy the engine can switch between.
type Scheduler interface {
	Name() types.Algorithm
	// Assign places pending requests on elevators. It may mutate the
	// elevators' queues and the requests' assignment, and nothing else.
	Assign(in Input) []Assignment
	SortQueue(e *elev.Elevator)
	GetMetrics() types.SchedulerMetrics
	// Reset drops all per-elevator bookkeeping.
	Reset()
}

// Input is lent to a strategy for the duration of one Assign call.
type Input struct {
	Elevators         []*elev.Elevator
	Requests          []*request.Request // active and unserved
	Now               time.Time
	NumFloors         int
	GenerationEnabled bool
}

type Assignment struct {
	RequestID  string
	ElevatorID int
	Starving   bool
}

// assign ties r to e and queues its origin.
func assign(r *request.Request, e *elev.Elevator) Assignment {
	r.Assign(e.ID)
	e.AddRequest(r.Origin)
	slog.Debug("Request assigned", "request", r.ID, "elevator", e.ID, "origin", r.Origin)
	return Assignment{RequestID: r.ID, ElevatorID: e.ID, Starving: r.CurrentWait() > StarvingAfter}
}

func pendingRequests(requests []*request.Request) []*request.Request {
	var out []*request.Request
	for _, r := range requests {
		if r.Pending() {
			out = append(out, r)
		}
	}
	return out
}

// closest returns the car nearest floor among those ok accepts. The lowest id
// wins on equal distance.
func closest(elevators []*elev.Elevator, floor int, ok func(*elev.Elevator) bool) *elev.Elevator {
	var best *elev.Elevator
	bestDist := 0
	for _, e := range elevators {
		if !ok(e) {
			continue
		}
		d := utils.Abs(e.Floor - floor)
		if best == nil || d < bestDist || (d == bestDist && e.ID < best.ID) {
			best, bestDist = e, d
		}
	}
	return best
}

// OnTheWay reports whether a car sweeping dir from its floor will pass origin.
func OnTheWay(e *elev.Elevator, dir types.Direction, origin int) bool {
	switch dir {
	case types.DirUp:
		return e.Floor <= origin
	case types.DirDown:
		return e.Floor >= origin
	}
	return false
}

// byID returns the elevators in id order without touching the caller's slice.
func byID(elevators []*elev.Elevator) []*elev.Elevator {
	out := slices.Clone(elevators)
	slices.SortFunc(out, func(a, b *elev.Elevator) int { return a.ID - b.ID })
	return out
}
