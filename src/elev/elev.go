// Package elev models a single elevator car: its motion state machine, its
// destination queue and the riders on board.
package elev

import (
	"errors"
	"log/slog"
	"time"

	"elevsim/src/config"
	"elevsim/src/types"
	"elevsim/src/utils"
)

const NoTarget = 0

var (
	ErrFull        = errors.New("elevator full")
	ErrMaintenance = errors.New("elevator in maintenance")
)

var labels = []string{"red", "blue", "green", "orange", "purple", "teal", "amber", "slate"}

// Passenger is a rider on board. WaitTime is the request's captured wait.
type Passenger struct {
	RequestID   string
	Origin      int
	Destination int
	BoardTime   time.Time
	WaitTime    time.Duration
}

// Elevator represents the state of one car. Exported fields are read by the
// schedulers and by snapshots; only the methods below mutate them.
type Elevator struct {
	ID            int
	Label         string
	Capacity      int
	NumFloors     int
	Speed         float64
	Floor         int
	TargetFloor   int
	Behaviour     types.ElevBehaviour
	Dir           types.Direction
	Queue         []int
	Passengers    []Passenger
	TotalDistance int
	TotalTrips    int
	Maintenance   bool

	lastMove      time.Time
	doorsOpenedAt time.Time
}

func New(id, capacity, numFloors int, speed float64) *Elevator {
	e := &Elevator{
		ID:        id,
		Label:     labels[id%len(labels)],
		Capacity:  capacity,
		NumFloors: numFloors,
		Speed:     speed,
		Floor:     config.LobbyFloor,
		Behaviour: types.Idle,
		Dir:       types.DirIdle,
	}
	slog.Debug("Elevator initialized", "id", id, "capacity", capacity, "floors", numFloors)
	return e
}

func (e *Elevator) MoveInterval() time.Duration {
	return time.Duration(float64(config.BaseMoveInterval) / e.Speed)
}

func (e *Elevator) DwellInterval() time.Duration {
	return time.Duration(float64(config.DoorDwellTime) / e.Speed)
}

func (e *Elevator) SetSpeed(speed float64) {
	if speed > 0 {
		e.Speed = speed
	}
}

// Update advances the elevator by at most one step.
//   - loading: close doors once the dwell interval has passed, then depart
//   - idle: depart towards the head of the queue
//   - moving: advance one floor per move interval, stop at any queued floor
func (e *Elevator) Update(now time.Time) {
	switch e.Behaviour {
	case types.Maintenance:
		return
	case types.Loading:
		if now.Sub(e.doorsOpenedAt) < e.DwellInterval() {
			return
		}
		e.Behaviour = types.Idle
		e.TargetFloor = NoTarget
		if len(e.Queue) == 0 {
			e.Dir = types.DirIdle
		}
		e.depart(now)
	case types.Idle:
		e.depart(now)
	case types.MovingUp, types.MovingDown:
		if now.Sub(e.lastMove) < e.MoveInterval() {
			return
		}
		e.step(now)
	}
}

func (e *Elevator) depart(now time.Time) {
	if len(e.Queue) == 0 {
		return
	}
	if e.Queue[0] == e.Floor {
		e.OpenDoors(now)
		return
	}
	pair := e.chooseDirection()
	e.TargetFloor = e.Queue[0]
	e.Dir = pair.Dir
	e.Behaviour = pair.Behaviour
	e.lastMove = now
	slog.Debug("Elevator departing", "id", e.ID, "floor", e.Floor, "target", e.TargetFloor)
}

func (e *Elevator) step(now time.Time) {
	if e.Behaviour == types.MovingUp {
		e.Floor++
	} else {
		e.Floor--
	}
	e.Floor = utils.Clamp(e.Floor, 1, e.NumFloors)
	e.TotalDistance++
	e.lastMove = now

	if e.HasFloor(e.Floor) {
		e.OpenDoors(now)
		return
	}

	// The queue may have been re-sorted or trimmed since departure
	if len(e.Queue) == 0 {
		e.Behaviour = types.Idle
		e.TargetFloor = NoTarget
		e.Dir = types.DirIdle
		return
	}
	pair := e.chooseDirection()
	e.TargetFloor = e.Queue[0]
	e.Dir = pair.Dir
	e.Behaviour = pair.Behaviour
}

// chooseDirection heads for the first queued floor. The queue is kept in sweep
// order, so its head is always the next stop.
func (e *Elevator) chooseDirection() types.DirnBehaviourPair {
	if len(e.Queue) == 0 {
		return types.DirnBehaviourPair{Dir: types.DirIdle, Behaviour: types.Idle}
	}
	switch types.DirectionBetween(e.Floor, e.Queue[0]) {
	case types.DirUp:
		return types.DirnBehaviourPair{Dir: types.DirUp, Behaviour: types.MovingUp}
	case types.DirDown:
		return types.DirnBehaviourPair{Dir: types.DirDown, Behaviour: types.MovingDown}
	}
	return types.DirnBehaviourPair{Dir: e.Dir, Behaviour: types.Loading}
}

// OpenDoors stops at the current floor and starts the dwell interval.
// Reopening while already loading only restarts the dwell.
func (e *Elevator) OpenDoors(now time.Time) {
	if e.Maintenance {
		return
	}
	e.doorsOpenedAt = now
	if e.Behaviour == types.Loading {
		return
	}
	e.Behaviour = types.Loading
	e.TotalTrips++
	e.RemoveFloor(e.Floor)
	slog.Debug("Doors open", "id", e.ID, "floor", e.Floor)
}

func (e *Elevator) DoorsOpen() bool {
	return e.Behaviour == types.Loading
}

// Alight removes and returns the riders whose destination is the current floor.
func (e *Elevator) Alight() []Passenger {
	var out []Passenger
	kept := e.Passengers[:0]
	for _, p := range e.Passengers {
		if p.Destination == e.Floor {
			out = append(out, p)
		} else {
			kept = append(kept, p)
		}
	}
	e.Passengers = kept
	return out
}

// Board adds one rider. Overflow is refused, never clamped by dropping riders.
func (e *Elevator) Board(p Passenger) error {
	if e.Maintenance {
		return ErrMaintenance
	}
	if e.IsFull() {
		return ErrFull
	}
	e.Passengers = append(e.Passengers, p)
	return nil
}

func (e *Elevator) Room() int {
	return max(0, e.Capacity-len(e.Passengers))
}

func (e *Elevator) IsFull() bool {
	return len(e.Passengers) >= e.Capacity
}

// Load is the occupied fraction of capacity.
func (e *Elevator) Load() float64 {
	return float64(len(e.Passengers)) / float64(e.Capacity)
}

// Utilization is binary: busy or not.
func (e *Elevator) Utilization() int {
	if e.Maintenance || e.Behaviour != types.Idle || len(e.Queue) > 0 || len(e.Passengers) > 0 {
		return 1
	}
	return 0
}

// Idle reports a fully idle car: stopped, nothing queued, nobody aboard.
func (e *Elevator) Idle() bool {
	return !e.Maintenance && e.Behaviour == types.Idle && len(e.Queue) == 0 && len(e.Passengers) == 0
}

// Available reports whether the car may take new work at all.
func (e *Elevator) Available() bool {
	return !e.Maintenance && !e.IsFull()
}

// SetMaintenance takes the car out of service, discarding its queue and riders.
func (e *Elevator) SetMaintenance(on bool) {
	e.Maintenance = on
	if !on {
		e.Behaviour = types.Idle
		return
	}
	e.Queue = nil
	e.Passengers = nil
	e.Behaviour = types.Maintenance
	e.Dir = types.DirIdle
	e.TargetFloor = NoTarget
	slog.Info("Elevator entered maintenance", "id", e.ID, "floor", e.Floor)
}

// ForceSafe is the emergency stop: the car halts where it is, empty and idle.
func (e *Elevator) ForceSafe() {
	e.Queue = nil
	e.Passengers = nil
	e.Dir = types.DirIdle
	e.TargetFloor = NoTarget
	if e.Maintenance {
		e.Behaviour = types.Maintenance
		return
	}
	e.Behaviour = types.Idle
}
