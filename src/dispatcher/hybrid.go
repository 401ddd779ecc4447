package dispatcher

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"elevsim/src/config"
	"elevsim/src/elev"
	"elevsim/src/priority"
	"elevsim/src/request"
	"elevsim/src/types"
)

const (
	predictedLoadDecay  = 0.9
	predictedLoadWeight = 0.5
	highVolumeBusy      = 0.8
	highVolumeMeanWait  = 45 * time.Second
	lightlyLoadedQueue  = 2
)

// HybridScheduler scores every pairing with the priority calculator and places
// starving requests first through an escalating search.
type HybridScheduler struct {
	log        *slog.Logger
	calc       *priority.Calculator
	positioner *Positioner

	lastRun       time.Time
	highVolume    bool
	lastAssigned  map[int]time.Time
	predictedLoad map[int]float64
	batchCursor   int
	metrics       types.SchedulerMetrics
}

func NewHybridScheduler(calc *priority.Calculator, positioner *Positioner) *HybridScheduler {
	return &HybridScheduler{
		log:           slog.Default().With("component", "hybrid"),
		calc:          calc,
		positioner:    positioner,
		lastAssigned:  make(map[int]time.Time),
		predictedLoad: make(map[int]float64),
	}
}

func (h *HybridScheduler) Name() types.Algorithm {
	return types.AlgorithmHybrid
}

func (h *HybridScheduler) throttle() time.Duration {
	if h.highVolume {
		return config.HybridThrottleHighVolume
	}
	return config.HybridThrottle
}

// Assign runs one optimisation pass unless throttled.
//  1. refresh waits and detect high-volume mode
//  2. place starving requests through the escalating search
//  3. place the rest by score, or batched by origin under high volume
//  4. re-sort every queue, then reposition idle cars when nothing is pending
func (h *HybridScheduler) Assign(in Input) []Assignment {
	if !h.lastRun.IsZero() && in.Now.Sub(h.lastRun) < h.throttle() {
		h.metrics.Throttled++
		return nil
	}
	h.lastRun = in.Now
	h.metrics.Runs++

	for _, r := range in.Requests {
		r.UpdateWaitTime(in.Now)
	}
	for id := range h.predictedLoad {
		h.predictedLoad[id] *= predictedLoadDecay
	}
	h.detectHighVolume(in)

	elevators := byID(in.Elevators)
	var starving, pending []*request.Request
	for _, r := range pendingRequests(in.Requests) {
		if r.CurrentWait() > StarvingAfter {
			starving = append(starving, r)
		} else {
			pending = append(pending, r)
		}
	}
	h.byPriority(in.Now, starving)
	h.byPriority(in.Now, pending)

	var out []Assignment
	for _, r := range starving {
		if !r.Pending() {
			continue
		}
		e := h.placeStarving(elevators, in.Requests, r)
		if e == nil {
			h.metrics.Unplaceable++
			h.log.Error("critical: no elevator can take starving request", "request", r.ID, "origin", r.Origin, "wait", r.CurrentWait())
			continue
		}
		out = append(out, h.commit(r, e, in.Now))
		h.metrics.StarvingAssignments++
	}

	if h.highVolume && len(pending) > config.BatchThreshold {
		out = append(out, h.assignBatched(elevators, pending, in.Now)...)
	} else {
		for _, r := range pending {
			if !r.Pending() {
				continue
			}
			if e := h.bestElevator(elevators, r); e != nil {
				out = append(out, h.commit(r, e, in.Now))
			}
		}
	}

	for _, e := range elevators {
		h.SortQueue(e)
	}

	if len(pendingRequests(in.Requests)) == 0 && in.GenerationEnabled && h.positioner != nil {
		h.positioner.Reposition(elevators, in.NumFloors, in.Now)
	}
	return out
}

func (h *HybridScheduler) commit(r *request.Request, e *elev.Elevator, now time.Time) Assignment {
	a := assign(r, e)
	h.lastAssigned[e.ID] = now
	h.predictedLoad[e.ID] += float64(r.PassengerCount)
	h.metrics.Assignments++
	return a
}

// byPriority orders requests most urgent first, oldest first on equal priority.
func (h *HybridScheduler) byPriority(now time.Time, requests []*request.Request) {
	scores := make(map[string]float64, len(requests))
	for _, r := range requests {
		scores[r.ID] = h.calc.RequestPriority(now, r.Input())
	}
	slices.SortStableFunc(requests, func(a, b *request.Request) int {
		if c := cmp.Compare(scores[b.ID], scores[a.ID]); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func (h *HybridScheduler) detectHighVolume(in Input) {
	if len(in.Elevators) == 0 {
		return
	}
	var busy int
	for _, e := range in.Elevators {
		busy += e.Utilization()
	}
	var meanWait time.Duration
	if len(in.Requests) > 0 {
		var total time.Duration
		for _, r := range in.Requests {
			total += r.CurrentWait()
		}
		meanWait = total / time.Duration(len(in.Requests))
	}

	hv := len(in.Requests) > config.AdmitFactor*len(in.Elevators) ||
		float64(busy)/float64(len(in.Elevators)) > highVolumeBusy ||
		meanWait > highVolumeMeanWait
	if hv != h.highVolume {
		h.log.Info("High-volume mode changed", "on", hv, "active", len(in.Requests), "busy", busy, "meanWait", meanWait)
	}
	h.highVolume = hv
}

// placeStarving searches, in order, for
//  1. the closest fully idle car
//  2. a lightly loaded car, by travel estimate
//  3. a car already sweeping past the origin
//  4. the closest car with spare capacity
//  5. the closest in-service car, after evicting its furthest queued floor
func (h *HybridScheduler) placeStarving(elevators []*elev.Elevator, requests []*request.Request, r *request.Request) *elev.Elevator {
	if e := closest(elevators, r.Origin, (*elev.Elevator).Idle); e != nil {
		return e
	}

	var light *elev.Elevator
	var lightETA time.Duration
	for _, e := range elevators {
		if !e.Available() || len(e.Queue) > lightlyLoadedQueue {
			continue
		}
		if eta := e.TravelEstimate(r.Origin); light == nil || eta < lightETA {
			light, lightETA = e, eta
		}
	}
	if light != nil {
		return light
	}

	compatible := func(e *elev.Elevator) bool {
		return e.Available() && e.Dir == r.Dir && OnTheWay(e, r.Dir, r.Origin)
	}
	if e := closest(elevators, r.Origin, compatible); e != nil {
		return e
	}
	if e := closest(elevators, r.Origin, (*elev.Elevator).Available); e != nil {
		return e
	}

	inService := func(e *elev.Elevator) bool { return !e.Maintenance }
	e := closest(elevators, r.Origin, inService)
	if e == nil {
		return nil
	}
	if floor, ok := e.FurthestFloor(); ok {
		e.RemoveFloor(floor)
		for _, other := range requests {
			if other.AssignedElevator == e.ID && other.Origin == floor && !other.IsServed {
				other.Unassign()
			}
		}
		h.metrics.Evictions++
		h.log.Warn("Evicted queued floor for starving request", "elevator", e.ID, "floor", floor, "request", r.ID)
	}
	return e
}

// bestElevator is the lowest scoring available car. Ties go to the lowest id.
func (h *HybridScheduler) bestElevator(elevators []*elev.Elevator, r *request.Request) *elev.Elevator {
	var best *elev.Elevator
	bestScore := 0.0
	in := r.Input()
	for _, e := range elevators {
		if !e.Available() {
			continue
		}
		score := h.calc.ElevatorScore(e, in, h.highVolume) + predictedLoadWeight*h.predictedLoad[e.ID]
		if best == nil || score < bestScore {
			best, bestScore = e, score
		}
	}
	return best
}

// assignBatched groups requests by origin floor and hands whole groups to
// available cars round-robin. The cursor persists across runs.
func (h *HybridScheduler) assignBatched(elevators []*elev.Elevator, pending []*request.Request, now time.Time) []Assignment {
	var available []*elev.Elevator
	for _, e := range elevators {
		if e.Available() {
			available = append(available, e)
		}
	}
	if len(available) == 0 {
		return nil
	}

	var origins []int
	groups := make(map[int][]*request.Request)
	for _, r := range pending {
		if _, ok := groups[r.Origin]; !ok {
			origins = append(origins, r.Origin)
		}
		groups[r.Origin] = append(groups[r.Origin], r)
	}

	var out []Assignment
	for _, origin := range origins {
		e := available[h.batchCursor%len(available)]
		h.batchCursor++
		for _, r := range groups[origin] {
			out = append(out, h.commit(r, e, now))
			h.metrics.BatchAssignments++
		}
	}
	h.log.Debug("Batch assignment", "groups", len(origins), "requests", len(pending))
	return out
}

func (h *HybridScheduler) SortQueue(e *elev.Elevator) {
	e.SortQueue(e.Dir)
}

func (h *HybridScheduler) GetMetrics() types.SchedulerMetrics {
	m := h.metrics
	m.Algorithm = types.AlgorithmHybrid
	m.HighVolume = h.highVolume
	m.LastAssignedMs = make(map[int]int64, len(h.lastAssigned))
	for id, t := range h.lastAssigned {
		m.LastAssignedMs[id] = t.UnixMilli()
	}
	return m
}

// Reset also clears the throttle so the next pass runs immediately.
func (h *HybridScheduler) Reset() {
	h.lastRun = time.Time{}
	h.highVolume = false
	h.batchCursor = 0
	clear(h.lastAssigned)
	clear(h.predictedLoad)
}
