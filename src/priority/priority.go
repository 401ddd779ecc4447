// Package priority scores requests and request/elevator pairings. The
// functions are pure; the Calculator only adds per-minute caching.
package priority

import (
	"math"
	"sync"
	"time"

	"elevsim/src/config"
	"elevsim/src/elev"
	"elevsim/src/types"
	"elevsim/src/utils"
)

const MinPriority = 0.1

// RequestInput is the part of a request the calculator needs.
type RequestInput struct {
	Wait           time.Duration
	Origin         int
	Destination    int // 0 for a floor call
	Dir            types.Direction
	BasePriority   int
	PassengerCount int
	Accessible     bool
}

// StarvationLevelFor maps a wait to its starvation stage.
func StarvationLevelFor(wait time.Duration) types.StarvationLevel {
	s := wait.Seconds()
	switch {
	case s > 90:
		return types.StarvationCritical
	case s > 60:
		return types.StarvationSevere
	case s > 45:
		return types.StarvationModerate
	case s > 30:
		return types.StarvationEarly
	}
	return types.StarvationNone
}

// LevelFactor is the exponential escalation curve for a stage.
func LevelFactor(level types.StarvationLevel, wait time.Duration) float64 {
	s := wait.Seconds()
	switch level {
	case types.StarvationCritical:
		return math.Pow(5, (s-90)/15)
	case types.StarvationSevere:
		return math.Pow(3, (s-60)/10)
	case types.StarvationModerate:
		return math.Pow(2, (s-45)/10)
	case types.StarvationEarly:
		return math.Pow(1.8, (s-30)/10)
	}
	if s > 15 {
		return math.Pow(1.2, (s-15)/10)
	}
	return 1
}

// WaitTimeMultiplier applies the escalation curve by wait alone.
func WaitTimeMultiplier(wait time.Duration) float64 {
	return LevelFactor(StarvationLevelFor(wait), wait)
}

func UrgencyMultiplier(wait time.Duration) float64 {
	s := wait.Seconds()
	switch {
	case s > 120:
		return 8
	case s > 90:
		return 6
	case s > 60:
		return 4
	case s > 45:
		return 3
	case s > 30:
		return 2.5
	}
	return 1
}

func StarvationBonus(wait time.Duration) float64 {
	s := wait.Seconds()
	switch {
	case s > 120:
		return 500
	case s > 90:
		return 300
	case s > 60:
		return 200
	case s > 45:
		return 100
	case s > 30:
		return 50
	}
	return 0
}

func towardsUpper(in RequestInput) bool {
	return in.Origin == config.LobbyFloor && (in.Destination > config.LobbyFloor || (in.Destination == 0 && in.Dir == types.DirUp))
}

func towardsLobby(in RequestInput) bool {
	return in.Origin > config.LobbyFloor && (in.Destination == config.LobbyFloor || (in.Destination == 0 && in.Dir == types.DirDown))
}

// TrafficBonus rewards requests that match the peak flow of the hour.
//   - 08-10: lobby to upper floors, highest at 09
//   - 12-14: any trip touching the lobby
//   - 17-19: upper floors to lobby, highest at 18
func TrafficBonus(hour int, in RequestInput) float64 {
	switch hour {
	case 8, 9:
		if towardsUpper(in) {
			if hour == 9 {
				return 40
			}
			return 25
		}
	case 12, 13:
		if in.Origin == config.LobbyFloor || in.Destination == config.LobbyFloor {
			return 15
		}
	case 17, 18:
		if towardsLobby(in) {
			if hour == 18 {
				return 40
			}
			return 25
		}
	}
	return 0
}

type window struct {
	from, to int // minutes of day, half open
	bonus    float64
}

var peakWindows = []window{
	{8*60 + 30, 9*60 + 30, 15},
	{12 * 60, 12*60 + 30, 8},
	{12*60 + 30, 13 * 60, 10},
	{17*60 + 30, 18*60 + 30, 15},
}

// TimeOfDayBonus is keyed to half-hour peak windows only.
func TimeOfDayBonus(hour, minute int) float64 {
	m := hour*60 + minute
	for _, w := range peakWindows {
		if m >= w.from && m < w.to {
			return w.bonus
		}
	}
	return 0
}

// TimeOfDayMultiplier scales base priority by the hour.
func TimeOfDayMultiplier(t time.Time) float64 {
	switch h := t.Hour(); {
	case h == 8 || h == 9 || h == 17 || h == 18:
		return 1.5
	case h == 12 || h == 13:
		return 1.2
	case h >= 23 || h < 6:
		return 0.8
	}
	return 1
}

// UserExperienceBias overlaps the starvation and rush-hour bonuses with its own
// constants and adds VIP, accessibility and group bonuses.
func UserExperienceBias(hour int, in RequestInput) float64 {
	var bias float64
	switch s := in.Wait.Seconds(); {
	case s > 90:
		bias += 250
	case s > 60:
		bias += 150
	case s > 30:
		bias += 40
	}
	if TrafficBonus(hour, in) > 0 {
		bias += 20
	}
	if in.BasePriority >= 4 {
		bias += 30
	}
	if in.Accessible {
		bias += 25
	}
	if in.PassengerCount >= 4 {
		bias += 15
	}
	return bias
}

type cacheKey struct {
	hour, minute, origin, destination int
	dir                               types.Direction // floor calls have no destination
}

// Calculator caches the clock-dependent bonuses within one minute.
type Calculator struct {
	mu     sync.Mutex
	minute [2]int
	cache  map[cacheKey]float64
	hits   int
	misses int
}

func NewCalculator() *Calculator {
	return &Calculator{minute: [2]int{-1, -1}, cache: make(map[cacheKey]float64)}
}

// contextBonus is TrafficBonus + TimeOfDayBonus for the minute of now.
func (c *Calculator) contextBonus(now time.Time, in RequestInput) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, m := now.Hour(), now.Minute()
	if c.minute != [2]int{h, m} {
		clear(c.cache)
		c.minute = [2]int{h, m}
	}
	key := cacheKey{h, m, in.Origin, in.Destination, in.Dir}
	if v, ok := c.cache[key]; ok {
		c.hits++
		return v
	}
	c.misses++
	v := TrafficBonus(h, in) + TimeOfDayBonus(h, m)
	c.cache[key] = v
	return v
}

// CacheStats returns hit and miss counts.
func (c *Calculator) CacheStats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// RequestPriority is the scheduler-side priority of a request.
//
//	max(0.1, base × WaitTimeMultiplier × UrgencyMultiplier
//	         + StarvationBonus + TrafficBonus + TimeOfDayBonus + UserExperienceBias)
func (c *Calculator) RequestPriority(now time.Time, in RequestInput) float64 {
	base := float64(in.BasePriority)
	score := base * WaitTimeMultiplier(in.Wait) * UrgencyMultiplier(in.Wait)
	score += StarvationBonus(in.Wait)
	score += c.contextBonus(now, in)
	score += UserExperienceBias(now.Hour(), in)
	return math.Max(MinPriority, score)
}

// Dampening shrinks the distance and direction terms as a request starves.
// It is computed once per pairing and multiplies each term independently.
func Dampening(wait time.Duration) float64 {
	s := wait.Seconds()
	switch {
	case s > 90:
		return 0.05
	case s > 60:
		return 0.25
	case s > 45:
		return 0.5
	case s > 30:
		return 0.75
	}
	return 1
}

// DistancePenalty steps up per floor the further the car is.
func DistancePenalty(distance int) float64 {
	d := float64(distance)
	switch {
	case distance <= 2:
		return 5 * d
	case distance <= 5:
		return 10 + 10*(d-2)
	case distance <= 10:
		return 40 + 20*(d-5)
	}
	return 140 + 40*(d-10)
}

// CapacityPenalty is convex in load fraction, with a wall at full.
func CapacityPenalty(e *elev.Elevator) float64 {
	load := e.Load()
	p := 50 * load * load
	if e.IsFull() {
		p += 1000
	}
	return p
}

// DirectionPenalty is negative when the car will pass the origin on its way.
func DirectionPenalty(e *elev.Elevator, in RequestInput) float64 {
	if e.Dir == types.DirIdle {
		return 0
	}
	onTheWay := (e.Dir == types.DirUp && in.Dir == types.DirUp && in.Origin >= e.Floor) ||
		(e.Dir == types.DirDown && in.Dir == types.DirDown && in.Origin <= e.Floor)
	if onTheWay {
		return -20
	}
	return 30
}

func LoadBalancePenalty(queueLen int, highVolume bool) float64 {
	k := 2.0
	if highVolume {
		k = 4
	}
	q := float64(queueLen)
	return k * q * q
}

// HistoryPenalty lightly penalises cars that travel far per trip.
func HistoryPenalty(e *elev.Elevator) float64 {
	perTrip := float64(e.TotalDistance) / float64(max(1, e.TotalTrips))
	return math.Min(5, 0.1*perTrip)
}

// ElevatorScore rates a car for a request. Lower is better.
func (c *Calculator) ElevatorScore(e *elev.Elevator, in RequestInput, highVolume bool) float64 {
	damp := Dampening(in.Wait)
	score := DistancePenalty(utils.Abs(e.Floor-in.Origin)) * damp
	score += CapacityPenalty(e)
	score += DirectionPenalty(e, in) * damp
	score += LoadBalancePenalty(len(e.Queue), highVolume)
	score += HistoryPenalty(e)
	return score
}
