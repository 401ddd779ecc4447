package elev

import (
	"log/slog"
	"time"

	"github.com/tiendc/go-deepcopy"

	"elevsim/src/types"
	"elevsim/src/utils"
)

// TravelEstimate is the time for the car to reach floor if it were queued now.
//   - simulates on a deep copy so the real queue is untouched
//   - walks the sweep-ordered queue, adding travel per floor and a dwell per stop
//   - a car already loading at floor costs nothing
func (e *Elevator) TravelEstimate(floor int) time.Duration {
	if e.Floor == floor && (e.Behaviour == types.Idle || e.Behaviour == types.Loading) {
		return 0
	}

	simElev := new(Elevator)
	if err := deepcopy.Copy(simElev, e); err != nil {
		slog.Error("TravelEstimate: copy failed", "id", e.ID, "err", err)
		return time.Duration(e.NumFloors) * (e.MoveInterval() + e.DwellInterval())
	}
	simElev.Maintenance = false
	simElev.AddRequest(floor)

	var duration time.Duration
	if simElev.Behaviour == types.Loading {
		duration += simElev.DwellInterval() / 2
	}
	pos := simElev.Floor
	for _, stop := range simElev.Queue {
		duration += time.Duration(utils.Abs(stop-pos)) * simElev.MoveInterval()
		pos = stop
		if stop == floor {
			return duration
		}
		duration += simElev.DwellInterval()
	}
	return duration
}
