package request

import (
	"time"

	"elevsim/src/config"
	"elevsim/src/types"
)

type FloorCall struct {
	Floor     int
	Dir       types.Direction
	Timestamp time.Time
	Active    bool
}

type FloorCallKey struct {
	Floor int
	Dir   types.Direction
}

// FloorCalls is the set of lit hall calls, one per floor and direction.
type FloorCalls map[FloorCallKey]*FloorCall

// Register lights the call for r. A repeated press refreshes the timestamp.
func (fc FloorCalls) Register(r *Request, now time.Time) {
	key := FloorCallKey{Floor: r.Origin, Dir: r.Dir}
	if call, ok := fc[key]; ok {
		call.Timestamp = now
		call.Active = true
		return
	}
	fc[key] = &FloorCall{Floor: r.Origin, Dir: r.Dir, Timestamp: now, Active: true}
}

// Expire drops calls older than the TTL and calls with no waiting request left.
// waiting holds the keys of active, unserved requests. It returns the number dropped.
func (fc FloorCalls) Expire(now time.Time, waiting map[FloorCallKey]bool) int {
	var dropped int
	for key, call := range fc {
		if now.Sub(call.Timestamp) > config.FloorCallTTL || !waiting[key] {
			delete(fc, key)
			dropped++
		}
	}
	return dropped
}

func (c *FloorCall) Snapshot() types.FloorCallSnapshot {
	return types.FloorCallSnapshot{
		Floor:       c.Floor,
		Dir:         c.Dir,
		TimestampMs: c.Timestamp.UnixMilli(),
		Active:      c.Active,
	}
}
