package dispatcher

import (
	"log/slog"
	"slices"
	"time"

	"elevsim/src/config"
	"elevsim/src/elev"
	"elevsim/src/request"
	"elevsim/src/types"
)

type scanState struct {
	Dir          types.Direction
	LastReversal time.Time
}

// ScanAlgorithm commits every car to a sweep direction and only hands it
// requests it will pass on that sweep.
type ScanAlgorithm struct {
	log     *slog.Logger
	state   map[int]*scanState
	metrics types.SchedulerMetrics
}

func NewScanAlgorithm() *ScanAlgorithm {
	return &ScanAlgorithm{
		log:   slog.Default().With("component", "scan"),
		state: make(map[int]*scanState),
	}
}

func (s *ScanAlgorithm) Name() types.Algorithm {
	return types.AlgorithmScan
}

func (s *ScanAlgorithm) stateFor(id int) *scanState {
	st, ok := s.state[id]
	if !ok {
		st = &scanState{Dir: types.DirUp}
		s.state[id] = st
	}
	return st
}

// ScanDirection is the sweep direction of car id, up before its first reversal.
func (s *ScanAlgorithm) ScanDirection(id int) types.Direction {
	return s.stateFor(id).Dir
}

// Assign reverses cars that are done with their sweep, then places pending
// requests oldest first.
//  1. a car sweeping in the request's direction that has not passed the origin
//  2. otherwise an idle car, which adopts the request's direction
//  3. otherwise the closest available car, served on a later sweep
func (s *ScanAlgorithm) Assign(in Input) []Assignment {
	s.metrics.Runs++
	elevators := byID(in.Elevators)
	for _, e := range elevators {
		s.maybeReverse(e, in.Now)
	}

	pending := pendingRequests(in.Requests)
	slices.SortStableFunc(pending, func(a, b *request.Request) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	var out []Assignment
	for _, r := range pending {
		matches := func(e *elev.Elevator) bool {
			return e.Available() && s.stateFor(e.ID).Dir == r.Dir && OnTheWay(e, r.Dir, r.Origin)
		}
		e := closest(elevators, r.Origin, matches)
		if e == nil {
			if e = closest(elevators, r.Origin, (*elev.Elevator).Idle); e != nil {
				s.adopt(e, r.Dir, in.Now)
			}
		}
		if e == nil {
			e = closest(elevators, r.Origin, (*elev.Elevator).Available)
		}
		if e == nil {
			s.metrics.Unplaceable++
			continue
		}
		out = append(out, assign(r, e))
		s.metrics.Assignments++
		if r.CurrentWait() > StarvingAfter {
			s.metrics.StarvingAssignments++
		}
	}

	for _, e := range elevators {
		s.SortQueue(e)
	}
	return out
}

// maybeReverse flips the sweep at the boundary or when nothing is queued
// ahead, never twice within the minimum dwell.
func (s *ScanAlgorithm) maybeReverse(e *elev.Elevator, now time.Time) {
	if e.Maintenance {
		return
	}
	st := s.stateFor(e.ID)
	atBoundary := (st.Dir == types.DirUp && e.Floor == e.NumFloors) ||
		(st.Dir == types.DirDown && e.Floor == 1)
	exhausted := len(e.Queue) > 0 && !e.AheadIn(st.Dir)
	if !atBoundary && !exhausted {
		return
	}
	if !st.LastReversal.IsZero() && now.Sub(st.LastReversal) < config.MinReversalDwell {
		return
	}
	st.Dir = st.Dir.Opposite()
	st.LastReversal = now
	s.metrics.Reversals++
	s.log.Debug("Scan direction reversed", "elevator", e.ID, "floor", e.Floor, "dir", st.Dir)
}

func (s *ScanAlgorithm) adopt(e *elev.Elevator, dir types.Direction, now time.Time) {
	st := s.stateFor(e.ID)
	if st.Dir == dir {
		return
	}
	st.Dir = dir
	st.LastReversal = now
	s.metrics.Reversals++
}

func (s *ScanAlgorithm) SortQueue(e *elev.Elevator) {
	e.SortQueue(s.stateFor(e.ID).Dir)
}

func (s *ScanAlgorithm) GetMetrics() types.SchedulerMetrics {
	m := s.metrics
	m.Algorithm = types.AlgorithmScan
	return m
}

// Reset puts every car back to an upward sweep.
func (s *ScanAlgorithm) Reset() {
	clear(s.state)
}
