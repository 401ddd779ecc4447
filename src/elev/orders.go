package elev

import (
	"slices"

	"elevsim/src/types"
	"elevsim/src/utils"
)

func (e *Elevator) ValidFloor(floor int) bool {
	return floor >= 1 && floor <= e.NumFloors
}

// AddRequest queues a destination floor.
//   - rejects invalid floors, the current floor and duplicates
//   - re-sorts the queue in sweep order for the current direction
func (e *Elevator) AddRequest(floor int) bool {
	if e.Maintenance || !e.ValidFloor(floor) || floor == e.Floor || e.HasFloor(floor) {
		return false
	}
	e.Queue = append(e.Queue, floor)
	e.SortQueue(e.Dir)
	return true
}

func (e *Elevator) HasFloor(floor int) bool {
	return slices.Contains(e.Queue, floor)
}

func (e *Elevator) RemoveFloor(floor int) bool {
	i := slices.Index(e.Queue, floor)
	if i < 0 {
		return false
	}
	e.Queue = slices.Delete(e.Queue, i, i+1)
	return true
}

// SortQueue re-orders the queue for a sweep in dir.
func (e *Elevator) SortQueue(dir types.Direction) {
	e.Queue = SweepOrder(e.Floor, dir, e.Queue)
}

// HasRiderFor reports whether a rider on board is going to floor.
func (e *Elevator) HasRiderFor(floor int) bool {
	for _, p := range e.Passengers {
		if p.Destination == floor {
			return true
		}
	}
	return false
}

// FurthestFloor returns the queued floor furthest from the car that is not a
// rider's destination.
func (e *Elevator) FurthestFloor() (int, bool) {
	best, bestDist := 0, -1
	for _, f := range e.Queue {
		if e.HasRiderFor(f) {
			continue
		}
		if d := utils.Abs(f - e.Floor); d > bestDist {
			best, bestDist = f, d
		}
	}
	return best, bestDist >= 0
}

// AheadIn reports whether any queued floor lies beyond the car in dir.
func (e *Elevator) AheadIn(dir types.Direction) bool {
	for _, f := range e.Queue {
		if (dir == types.DirUp && f > e.Floor) || (dir == types.DirDown && f < e.Floor) {
			return true
		}
	}
	return false
}

// SweepOrder returns floors in the order a car at floor would visit them.
//  1. Up: floors above ascending, then floors below descending.
//  2. Down: floors below descending, then floors above ascending.
//  3. Idle: nearest first, lower floor first on equal distance.
func SweepOrder(floor int, dir types.Direction, floors []int) []int {
	var above, below, here []int
	for _, f := range floors {
		switch {
		case f > floor:
			above = append(above, f)
		case f < floor:
			below = append(below, f)
		default:
			here = append(here, f)
		}
	}
	slices.Sort(above)
	slices.Sort(below)
	slices.Reverse(below)

	out := make([]int, 0, len(floors))
	out = append(out, here...)
	switch dir {
	case types.DirUp:
		out = append(out, above...)
		out = append(out, below...)
	case types.DirDown:
		out = append(out, below...)
		out = append(out, above...)
	default:
		out = append(out, above...)
		out = append(out, below...)
		slices.SortStableFunc(out, func(a, b int) int {
			da, db := utils.Abs(a-floor), utils.Abs(b-floor)
			if da != db {
				return da - db
			}
			return a - b
		})
	}
	return out
}
