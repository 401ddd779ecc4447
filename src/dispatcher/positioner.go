package dispatcher

import (
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"elevsim/src/config"
	"elevsim/src/elev"
	"elevsim/src/utils"
)

// Positioner parks idle cars where traffic is expected next.
type Positioner struct {
	log   *slog.Logger
	rng   *rand.Rand
	last  time.Time
	moves int
}

func NewPositioner(rng *rand.Rand) *Positioner {
	return &Positioner{log: slog.Default().With("component", "positioner"), rng: rng}
}

// TargetFloors spreads n parking floors for the hour.
//   - 07-09: lower third, starting at the lobby
//   - 11-13: around the middle floor
//   - 16-18: upper third, starting at the top
//   - otherwise: evenly over the building
func TargetFloors(hour, numFloors, n int) []int {
	targets := make([]int, n)
	third := max(1, numFloors/3)
	switch {
	case hour >= 7 && hour <= 9:
		for i := range targets {
			targets[i] = config.LobbyFloor + i*third/n
		}
	case hour >= 16 && hour <= 18:
		for i := range targets {
			targets[i] = numFloors - i*third/n
		}
	case hour >= 11 && hour <= 13:
		mid := (numFloors + 1) / 2
		for i := range targets {
			// mid, mid+1, mid-1, mid+2, ...
			off := (i + 1) / 2
			if i%2 == 0 {
				off = -off
			}
			targets[i] = mid + off
		}
	default:
		for i := range targets {
			if n == 1 {
				targets[i] = config.LobbyFloor
				continue
			}
			targets[i] = 1 + i*(numFloors-1)/(n-1)
		}
	}
	for i := range targets {
		targets[i] = utils.Clamp(targets[i], 1, numFloors)
	}
	return targets
}

// Reposition sends idle cars to jittered target floors, at most once per
// reposition interval. No two cars get the same floor. It returns the number
// of cars sent.
func (p *Positioner) Reposition(elevators []*elev.Elevator, numFloors int, now time.Time) int {
	if !p.last.IsZero() && now.Sub(p.last) < config.RepositionInterval {
		return 0
	}
	var idle []*elev.Elevator
	for _, e := range elevators {
		if e.Idle() {
			idle = append(idle, e)
		}
	}
	if len(idle) == 0 {
		return 0
	}
	p.last = now

	targets := TargetFloors(now.Hour(), numFloors, len(idle))
	taken := make([]int, 0, len(targets))
	for i := range targets {
		f := utils.Clamp(targets[i]+p.rng.IntN(3)-1, 1, numFloors)
		targets[i] = freeFloor(f, numFloors, taken)
		taken = append(taken, targets[i])
	}

	// Nearest car to the lowest target first
	slices.Sort(targets)
	var sent int
	for _, target := range targets {
		e := closest(idle, target, (*elev.Elevator).Idle)
		if e == nil {
			break
		}
		if e.Floor == target {
			// Already parked here
			idle = slices.DeleteFunc(idle, func(x *elev.Elevator) bool { return x == e })
			continue
		}
		if e.AddRequest(target) {
			sent++
		}
	}
	p.moves += sent
	if sent > 0 {
		p.log.Debug("Repositioned idle elevators", "count", sent, "targets", targets)
	}
	return sent
}

// freeFloor walks outward from f to the nearest floor not in taken.
func freeFloor(f, numFloors int, taken []int) int {
	for d := 0; d < numFloors; d++ {
		for _, c := range []int{f - d, f + d} {
			if c >= 1 && c <= numFloors && !slices.Contains(taken, c) {
				return c
			}
		}
	}
	return f
}

// Moves is the number of repositioning trips issued so far.
func (p *Positioner) Moves() int {
	return p.moves
}

func (p *Positioner) Reset() {
	p.last = time.Time{}
	p.moves = 0
}
