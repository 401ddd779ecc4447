package types

// Snapshot types are what the engine hands to the outside. Times are unix
// milliseconds and durations are milliseconds so the values copy and encode cleanly.

type PassengerSnapshot struct {
	RequestID   string
	Origin      int
	Destination int
	BoardedAtMs int64
	WaitMs      int64
}

type ElevatorSnapshot struct {
	ID            int
	Label         string
	Capacity      int
	Floor         int
	TargetFloor   int
	Behaviour     ElevBehaviour
	Dir           Direction
	Queue         []int
	Riders        []PassengerSnapshot
	TotalDistance int
	TotalTrips    int
	Maintenance   bool
	ScanDir       Direction
}

type RequestSnapshot struct {
	ID               string
	Origin           int
	Destination      int
	Dir              Direction
	PassengerCount   int
	Priority         int
	Source           Source
	AssignedElevator int
	IsActive         bool
	IsServed         bool
	WaitMs           int64
	Starvation       string
	Emergency        bool
	CreatedAtMs      int64
}

type FloorCallSnapshot struct {
	Floor       int
	Dir         Direction
	TimestampMs int64
	Active      bool
}

type ConfigSnapshot struct {
	NumElevators     int
	NumFloors        int
	Capacity         int
	Speed            float64
	RequestFrequency float64
}

type Snapshot struct {
	Elevators  []ElevatorSnapshot
	Requests   []RequestSnapshot
	FloorCalls []FloorCallSnapshot
	Running    bool
	ElapsedMs  int64
	Config     ConfigSnapshot
	Algorithm  Algorithm
	Backlog    int
}

// SchedulerMetrics is reported by every scheduling strategy.
type SchedulerMetrics struct {
	Algorithm           Algorithm
	Runs                int
	Throttled           int
	Assignments         int
	StarvingAssignments int
	BatchAssignments    int
	Evictions           int
	Reversals           int
	Unplaceable         int
	HighVolume          bool
	LastAssignedMs      map[int]int64 // unix ms of the latest assignment per elevator
}

type Metrics struct {
	ActiveRequests       int
	Backlog              int
	ServedTotal          int
	AverageWaitMs        int64
	MaxWaitMs            int64
	StarvingByLevel      map[string]int
	Utilization          float64
	Repairs              int
	EmergencyAssignments int
	RefusedBoardings     int
	DroppedUpdates       uint64
	Repositions          int
	PriorityCacheHits    int
	PriorityCacheMisses  int
	Scheduler            SchedulerMetrics
}

// Update is published once per tick.
type Update struct {
	State   Snapshot
	Metrics Metrics
}
