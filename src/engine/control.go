package engine

import (
	"fmt"
	"math"
	"slices"

	"elevsim/src/config"
	"elevsim/src/request"
	"elevsim/src/timer"
	"elevsim/src/types"
)

// AddRequest validates d and queues it for admission on the next tick.
//   - a party larger than one car is rejected
//   - once the inbox and backlog hold MaxBacklog arrivals, ErrOverloaded
func (e *Engine) AddRequest(d request.Data) (string, error) {
	floors := int(e.numFloors.Load())
	capacity := int(e.capacity.Load())
	r, err := request.New(d, e.clock.Now(), floors)
	if err != nil {
		return "", err
	}
	if r.PassengerCount > capacity {
		return "", fmt.Errorf("%w: %d passengers exceed capacity %d", request.ErrInvalidRequest, r.PassengerCount, capacity)
	}

	e.inboxMu.Lock()
	defer e.inboxMu.Unlock()
	if len(e.inbox)+len(e.backlog) >= config.MaxBacklog {
		return "", fmt.Errorf("%w: %d waiting", ErrOverloaded, len(e.inbox)+len(e.backlog))
	}
	e.inbox = append(e.inbox, r)
	e.log.Debug("Request received", "id", r.ID, "origin", r.Origin, "destination", r.Destination, "source", r.Source)
	return r.ID, nil
}

// SwitchAlgorithm makes name the active strategy. Every assignment is cleared
// and queues are trimmed to rider destinations so the new strategy starts clean.
func (e *Engine) SwitchAlgorithm(name string) error {
	algo, ok := types.ParseAlgorithm(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.requests {
		r.Unassign()
	}
	for _, el := range e.elevators {
		el.Queue = slices.DeleteFunc(el.Queue, func(f int) bool { return !el.HasRiderFor(f) })
	}
	prev := e.active.Name()
	e.active = e.scheduler(algo)
	e.active.Reset()
	for _, el := range e.elevators {
		e.active.SortQueue(el)
	}
	e.cfg.Algorithm = string(algo)
	e.log.Info("Algorithm switched", "from", prev, "to", algo, "unassigned", len(e.requests))
	return nil
}

// UpdateConfig applies a partial config.
//   - while running only speed and request frequency may change
//   - speed is pushed to every car
//   - frequency to or from zero starts or stops the generator; dropping to zero
//     also purges unassigned generated requests
//   - a roster change while stopped rebuilds the roster and discards requests
func (e *Engine) UpdateConfig(u config.Update) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && u.Structural() {
		return fmt.Errorf("update config: %w", ErrImmutableWhileRunning)
	}
	next := e.cfg.Apply(u)
	if err := next.Validate(); err != nil {
		return err
	}
	prev := e.cfg
	e.cfg = next
	e.storeLimits()

	if u.Structural() {
		e.resetState()
		e.log.Info("Roster rebuilt", "elevators", next.NumElevators, "floors", next.NumFloors, "capacity", next.Capacity)
		return nil
	}
	if u.Speed != nil {
		for _, el := range e.elevators {
			el.SetSpeed(next.Speed)
		}
	}
	if u.RequestFrequency != nil {
		switch {
		case prev.RequestFrequency > 0 && next.RequestFrequency == 0:
			e.sendGenAction(timer.Stop)
			purged := e.purgeGenerated()
			e.log.Info("Request generation stopped", "purged", purged)
		case next.RequestFrequency > 0:
			e.sendGenAction(timer.Start)
			e.log.Info("Request generation rate set", "perMinute", next.RequestFrequency)
		}
	}
	return nil
}

func (e *Engine) sendGenAction(a timer.TimerAction) {
	if !e.running {
		return
	}
	select {
	case e.genAction <- a:
	default:
		e.log.Warn("Generator action dropped", "action", a)
	}
}

// purgeGenerated drops unassigned automatic requests. Callers hold mu.
func (e *Engine) purgeGenerated() int {
	unassignedAuto := func(r *request.Request) bool {
		return r.Source == types.SourceAuto && !r.Assigned() && !r.IsServed
	}
	var purged int
	e.requests = slices.DeleteFunc(e.requests, func(r *request.Request) bool {
		if unassignedAuto(r) {
			delete(e.index, r.ID)
			purged++
			return true
		}
		return false
	})
	e.inboxMu.Lock()
	before := len(e.inbox) + len(e.backlog)
	e.inbox = slices.DeleteFunc(e.inbox, unassignedAuto)
	e.backlog = slices.DeleteFunc(e.backlog, unassignedAuto)
	purged += before - len(e.inbox) - len(e.backlog)
	e.inboxMu.Unlock()
	return purged
}

// SetMaintenance takes a car in or out of service. Requests assigned to it go
// back to the pool.
func (e *Engine) SetMaintenance(id int, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id < 0 || id >= len(e.elevators) {
		return fmt.Errorf("%w: %d", ErrNoSuchElevator, id)
	}
	e.elevators[id].SetMaintenance(on)
	if on {
		for _, r := range e.requests {
			if r.AssignedElevator == id {
				r.Unassign()
			}
		}
	}
	return nil
}

func (e *Engine) setFrequency(perMinute float64) {
	e.frequency.Store(math.Float64bits(perMinute))
}

func (e *Engine) requestFrequency() float64 {
	return math.Float64frombits(e.frequency.Load())
}
