// Package engine owns the elevator roster and the request set and advances
// them one tick at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"elevsim/src/config"
	"elevsim/src/dispatcher"
	"elevsim/src/elev"
	"elevsim/src/priority"
	"elevsim/src/request"
	"elevsim/src/timer"
	"elevsim/src/types"
)

var (
	ErrUnknownAlgorithm      = errors.New("unknown algorithm")
	ErrImmutableWhileRunning = errors.New("setting cannot change while running")
	ErrOverloaded            = errors.New("request backlog full")
	ErrNoSuchElevator        = errors.New("no such elevator")
)

// Engine is safe for concurrent use. Ticks and control operations are
// serialised by mu; arrivals only take inboxMu and are admitted on the next tick.
type Engine struct {
	mu    sync.Mutex
	log   *slog.Logger
	cfg   config.Config
	clock timer.Clock
	rng   *rand.Rand

	calc       *priority.Calculator
	positioner *dispatcher.Positioner
	hybrid     *dispatcher.HybridScheduler
	scan       *dispatcher.ScanAlgorithm
	active     dispatcher.Scheduler

	elevators  []*elev.Elevator
	requests   []*request.Request // admitted, unserved
	index      map[string]*request.Request
	history    *History
	floorCalls request.FloorCalls

	inboxMu sync.Mutex
	inbox   []*request.Request
	backlog []*request.Request

	// Read by AddRequest and the generator without mu
	numFloors atomic.Int64
	capacity  atomic.Int64
	frequency atomic.Uint64 // math.Float64bits of requests per minute

	running   bool
	lastTick  time.Time
	elapsed   time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	genAction chan timer.TimerAction
	genRng    *rand.Rand

	updates chan types.Update
	dropped atomic.Uint64

	servedTotal          int
	repairs              int
	emergencyAssignments int
	refusedBoardings     int
}

// New validates cfg and builds an idle engine.
func New(cfg config.Config, clock timer.Clock) (*Engine, error) {
	if clock == nil {
		clock = timer.RealClock{}
	}
	seed := uint64(clock.Now().UnixNano())
	calc := priority.NewCalculator()
	positioner := dispatcher.NewPositioner(rand.New(rand.NewPCG(seed, 1)))
	e := &Engine{
		log:        slog.Default().With("component", "engine"),
		clock:      clock,
		rng:        rand.New(rand.NewPCG(seed, 2)),
		genRng:     rand.New(rand.NewPCG(seed, 3)),
		calc:       calc,
		positioner: positioner,
		hybrid:     dispatcher.NewHybridScheduler(calc, positioner),
		scan:       dispatcher.NewScanAlgorithm(),
		updates:    make(chan types.Update, config.UpdateBufferSize),
		genAction:  make(chan timer.TimerAction, 8),
	}
	if err := e.Initialize(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Initialize applies cfg and rebuilds the roster. It is refused while running.
func (e *Engine) Initialize(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	algo, ok := types.ParseAlgorithm(cfg.Algorithm)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("initialize: %w", ErrImmutableWhileRunning)
	}
	e.cfg = cfg
	e.storeLimits()
	e.active = e.scheduler(algo)
	e.resetState()
	e.log.Info("Engine initialized", "elevators", cfg.NumElevators, "floors", cfg.NumFloors,
		"capacity", cfg.Capacity, "speed", cfg.Speed, "algorithm", algo)
	return nil
}

func (e *Engine) scheduler(algo types.Algorithm) dispatcher.Scheduler {
	if algo == types.AlgorithmScan {
		return e.scan
	}
	return e.hybrid
}

func (e *Engine) storeLimits() {
	e.numFloors.Store(int64(e.cfg.NumFloors))
	e.capacity.Store(int64(e.cfg.Capacity))
	e.setFrequency(e.cfg.RequestFrequency)
}

// resetState discards every elevator and request. Callers hold mu.
func (e *Engine) resetState() {
	e.elevators = make([]*elev.Elevator, e.cfg.NumElevators)
	for i := range e.elevators {
		e.elevators[i] = elev.New(i, e.cfg.Capacity, e.cfg.NumFloors, e.cfg.Speed)
	}
	e.requests = nil
	e.index = make(map[string]*request.Request)
	e.history = NewHistory(config.HistoryLimit)
	e.floorCalls = request.FloorCalls{}

	e.inboxMu.Lock()
	e.inbox = nil
	e.backlog = nil
	e.inboxMu.Unlock()

	e.hybrid.Reset()
	e.scan.Reset()
	e.positioner.Reset()
	e.lastTick = time.Time{}
	e.elapsed = 0
	e.servedTotal = 0
	e.repairs = 0
	e.emergencyAssignments = 0
	e.refusedBoardings = 0
}

// Start launches the tick loop and the request generator. It returns false
// if the engine is already running.
func (e *Engine) Start(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	e.lastTick = e.clock.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		timer.Periodic(gctx, func() time.Duration { return config.TickInterval }, e.fireTick, nil, true)
		return nil
	})
	g.Go(func() error {
		timer.Periodic(gctx, e.generationInterval, e.generate, e.genAction, e.cfg.RequestFrequency > 0)
		return nil
	})
	done := e.done
	go func() {
		_ = g.Wait()
		close(done)
	}()

	e.log.Info("Simulation started", "algorithm", e.active.Name())
	return true
}

func (e *Engine) fireTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.tick(e.clock.Now())
}

// Stop halts the tick loop and the generator and keeps all state. It returns
// false if the engine was not running.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}
	e.running = false
	e.lastTick = time.Time{}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
	e.drainActions()
	e.log.Info("Simulation stopped")
	return true
}

func (e *Engine) drainActions() {
	for {
		select {
		case <-e.genAction:
		default:
			return
		}
	}
}

// Reset stops the simulation and discards all state.
func (e *Engine) Reset() {
	e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetState()
	e.log.Info("Simulation reset")
}

// EmergencyStop stops the simulation, discards every request and brings each
// car to a safe idle halt where it is.
func (e *Engine) EmergencyStop() {
	e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()

	dropped := len(e.requests)
	e.requests = nil
	e.index = make(map[string]*request.Request)
	clear(e.floorCalls)
	e.inboxMu.Lock()
	dropped += len(e.inbox) + len(e.backlog)
	e.inbox = nil
	e.backlog = nil
	e.inboxMu.Unlock()

	for _, el := range e.elevators {
		el.ForceSafe()
	}
	e.hybrid.Reset()
	e.scan.Reset()
	e.log.Warn("Emergency stop", "droppedRequests", dropped)
}

// Step runs one tick at the clock's current time, whether or not the loop runs.
func (e *Engine) Step() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick(e.clock.Now())
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Updates delivers one state and metrics update per tick. Updates are dropped
// rather than blocking the tick when nobody reads.
func (e *Engine) Updates() <-chan types.Update {
	return e.updates
}
