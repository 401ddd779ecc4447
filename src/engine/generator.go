package engine

import (
	"errors"
	"time"

	"elevsim/src/config"
	"elevsim/src/request"
	"elevsim/src/types"
)

// generationInterval is the period between generated requests. The timer is
// stopped while the frequency is zero, so the fallback is never waited on.
func (e *Engine) generationInterval() time.Duration {
	perMinute := e.requestFrequency()
	if perMinute <= 0 {
		return time.Hour
	}
	return time.Duration(float64(time.Minute) / perMinute)
}

// generate adds one automatic request shaped by the time of day.
//   - mornings favour trips up from the lobby
//   - evenings favour trips down to the lobby
//   - otherwise origin and destination are uniform
func (e *Engine) generate() {
	floors := int(e.numFloors.Load())
	if floors < 2 {
		return
	}
	capacity := int(e.capacity.Load())
	d := e.randomTrip(e.clock.Now().Hour(), floors, capacity)
	if _, err := e.AddRequest(d); err != nil {
		if errors.Is(err, ErrOverloaded) {
			e.log.Debug("Generated request dropped", "err", err)
			return
		}
		e.log.Warn("Generated request rejected", "err", err)
	}
}

func (e *Engine) randomTrip(hour, floors, capacity int) request.Data {
	rng := e.genRng
	d := request.Data{Source: types.SourceAuto, PassengerCount: 1 + rng.IntN(max(1, min(3, capacity)))}
	peak := rng.Float64() < 0.6
	switch {
	case hour >= 7 && hour <= 9 && peak:
		d.Origin = config.LobbyFloor
		d.Destination = 2 + rng.IntN(floors-1)
	case hour >= 16 && hour <= 18 && peak:
		d.Origin = 2 + rng.IntN(floors-1)
		d.Destination = config.LobbyFloor
	default:
		d.Origin = 1 + rng.IntN(floors)
		d.Destination = 1 + rng.IntN(floors-1)
		if d.Destination >= d.Origin {
			d.Destination++
		}
	}
	return d
}
