// Package request holds the passenger request entity: its validation boundary,
// wait tracking and starvation escalation.
package request

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"elevsim/src/config"
	"elevsim/src/priority"
	"elevsim/src/types"
)

// Unassigned is the AssignedElevator value of a request no car has taken.
const Unassigned = -1

var ErrInvalidRequest = errors.New("invalid request")

// Data is a request as it arrives from outside the core.
// Destination 0 makes it a floor call, which then needs Dir.
type Data struct {
	Origin         int
	Destination    int
	Dir            types.Direction
	PassengerCount int
	Priority       int
	Source         types.Source
	Accessible     bool
}

// Escalation records one step up the starvation ladder.
type Escalation struct {
	Level types.StarvationLevel
	At    time.Time
	Wait  time.Duration
}

type Request struct {
	ID             string
	CreatedAt      time.Time
	Origin         int
	Destination    int
	Dir            types.Direction
	PassengerCount int
	Priority       int
	Source         types.Source
	Accessible     bool

	IsActive         bool
	IsServed         bool
	AssignedElevator int
	WaitTime         time.Duration
	FinalWaitTime    time.Duration

	Starvation           types.StarvationLevel
	History              []Escalation
	EmergencyPrioritySet bool
}

// New validates d and builds an active, unassigned request.
//   - floors must lie in 1..numFloors and origin must differ from destination
//   - the direction is derived from the destination when there is one
//   - priority defaults to 2 and passenger count to 1
func New(d Data, now time.Time, numFloors int) (*Request, error) {
	if d.Origin < 1 || d.Origin > numFloors {
		return nil, fmt.Errorf("%w: origin %d outside 1..%d", ErrInvalidRequest, d.Origin, numFloors)
	}
	dir := d.Dir
	switch {
	case d.Destination == 0:
		if dir != types.DirUp && dir != types.DirDown {
			return nil, fmt.Errorf("%w: floor call at %d needs a direction", ErrInvalidRequest, d.Origin)
		}
		if (dir == types.DirUp && d.Origin == numFloors) || (dir == types.DirDown && d.Origin == 1) {
			return nil, fmt.Errorf("%w: no floor %s from %d", ErrInvalidRequest, dir, d.Origin)
		}
	case d.Destination < 1 || d.Destination > numFloors:
		return nil, fmt.Errorf("%w: destination %d outside 1..%d", ErrInvalidRequest, d.Destination, numFloors)
	case d.Destination == d.Origin:
		return nil, fmt.Errorf("%w: origin and destination are both %d", ErrInvalidRequest, d.Origin)
	default:
		dir = types.DirectionBetween(d.Origin, d.Destination)
	}
	if d.PassengerCount < 0 || d.Priority < 0 {
		return nil, fmt.Errorf("%w: negative passenger count or priority", ErrInvalidRequest)
	}

	r := &Request{
		ID:               uuid.NewString(),
		CreatedAt:        now,
		Origin:           d.Origin,
		Destination:      d.Destination,
		Dir:              dir,
		PassengerCount:   max(1, d.PassengerCount),
		Priority:         d.Priority,
		Source:           d.Source,
		Accessible:       d.Accessible,
		IsActive:         true,
		AssignedElevator: Unassigned,
	}
	if r.Priority == 0 {
		r.Priority = config.DefaultPriority
	}
	if r.Source == "" {
		r.Source = types.SourceManual
	}
	return r, nil
}

// UpdateWaitTime refreshes the wait and escalates the starvation level.
// It returns true when the level changed. Served requests are left alone.
func (r *Request) UpdateWaitTime(now time.Time) bool {
	if r.IsServed {
		return false
	}
	r.WaitTime = max(0, now.Sub(r.CreatedAt))

	level := priority.StarvationLevelFor(r.WaitTime)
	if level <= r.Starvation {
		return false
	}
	r.Starvation = level
	r.History = append(r.History, Escalation{Level: level, At: now, Wait: r.WaitTime})
	if level >= types.StarvationSevere && !r.EmergencyPrioritySet {
		r.EmergencyPrioritySet = true
		r.Priority = max(r.Priority, config.EmergencyPriority)
		slog.Warn("Request escalated to emergency priority", "id", r.ID, "level", level, "wait", r.WaitTime)
	}
	return true
}

// Serve marks the request boarded and freezes its wait.
func (r *Request) Serve(now time.Time) {
	if r.IsServed {
		return
	}
	r.UpdateWaitTime(now)
	r.IsServed = true
	r.IsActive = false
	r.FinalWaitTime = r.WaitTime
}

// CurrentWait is the authoritative wait: the captured one once served.
func (r *Request) CurrentWait() time.Duration {
	if r.IsServed {
		return r.FinalWaitTime
	}
	return r.WaitTime
}

func (r *Request) Assign(elevatorID int) {
	r.AssignedElevator = elevatorID
}

func (r *Request) Unassign() {
	r.AssignedElevator = Unassigned
}

func (r *Request) Assigned() bool {
	return r.AssignedElevator != Unassigned
}

// Pending reports an active request still waiting for a car.
func (r *Request) Pending() bool {
	return r.IsActive && !r.IsServed && !r.Assigned()
}

// IsFloorCall reports a pickup with no chosen destination yet.
func (r *Request) IsFloorCall() bool {
	return r.Destination == 0
}

// Input is the request as seen by the priority calculator.
func (r *Request) Input() priority.RequestInput {
	return priority.RequestInput{
		Wait:           r.CurrentWait(),
		Origin:         r.Origin,
		Destination:    r.Destination,
		Dir:            r.Dir,
		BasePriority:   r.Priority,
		PassengerCount: r.PassengerCount,
		Accessible:     r.Accessible,
	}
}

// CalculatePriority is the request's own priority:
//
//	base × LevelFactor(level) × TimeOfDayMultiplier + StarvationBonus + TrafficBonus
func (r *Request) CalculatePriority(now time.Time) float64 {
	in := r.Input()
	p := float64(r.Priority) * priority.LevelFactor(r.Starvation, in.Wait) * priority.TimeOfDayMultiplier(now)
	p += priority.StarvationBonus(in.Wait)
	p += priority.TrafficBonus(now.Hour(), in)
	return max(priority.MinPriority, p)
}

// Snapshot is the outward view of the request.
func (r *Request) Snapshot() types.RequestSnapshot {
	return types.RequestSnapshot{
		ID:               r.ID,
		Origin:           r.Origin,
		Destination:      r.Destination,
		Dir:              r.Dir,
		PassengerCount:   r.PassengerCount,
		Priority:         r.Priority,
		Source:           r.Source,
		AssignedElevator: r.AssignedElevator,
		IsActive:         r.IsActive,
		IsServed:         r.IsServed,
		WaitMs:           r.CurrentWait().Milliseconds(),
		Starvation:       r.Starvation.String(),
		Emergency:        r.EmergencyPrioritySet,
		CreatedAtMs:      r.CreatedAt.UnixMilli(),
	}
}
