package types

import "fmt"

type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
	DirIdle Direction = "idle"
)

// Opposite returns the reversed sweep direction. Idle stays idle.
func (d Direction) Opposite() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	}
	return DirIdle
}

// DirectionBetween returns the direction of travel from one floor to another.
func DirectionBetween(from, to int) Direction {
	if from < to {
		return DirUp
	}
	if from > to {
		return DirDown
	}
	return DirIdle
}

type ElevBehaviour string

const (
	Idle        ElevBehaviour = "idle"
	MovingUp    ElevBehaviour = "moving_up"
	MovingDown  ElevBehaviour = "moving_down"
	Loading     ElevBehaviour = "loading"
	Maintenance ElevBehaviour = "maintenance"
)

// Moving reports whether the behaviour is one of the travel states.
func (b ElevBehaviour) Moving() bool {
	return b == MovingUp || b == MovingDown
}

// Stores direction and behaviour so the direction survives while the elevator is idle
type DirnBehaviourPair struct {
	Dir       Direction
	Behaviour ElevBehaviour
}

// StarvationLevel is ordered: a higher value is a later stage.
type StarvationLevel int

const (
	StarvationNone StarvationLevel = iota
	StarvationEarly
	StarvationModerate
	StarvationSevere
	StarvationCritical
)

func (l StarvationLevel) String() string {
	switch l {
	case StarvationNone:
		return "none"
	case StarvationEarly:
		return "early"
	case StarvationModerate:
		return "moderate"
	case StarvationSevere:
		return "severe"
	case StarvationCritical:
		return "critical"
	}
	return fmt.Sprintf("StarvationLevel(%d)", int(l))
}

type Algorithm string

const (
	AlgorithmHybrid Algorithm = "hybrid"
	AlgorithmScan   Algorithm = "scan"
)

// ParseAlgorithm accepts the names exposed to the control surface.
func ParseAlgorithm(name string) (Algorithm, bool) {
	switch Algorithm(name) {
	case AlgorithmHybrid, AlgorithmScan:
		return Algorithm(name), true
	}
	return "", false
}

type Source string

const (
	SourceManual Source = "manual"
	SourceAuto   Source = "auto"
)
