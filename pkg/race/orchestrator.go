package race

import (
	"context"
	"sync"
	"time"

	"github.com/tortuga-racing/tortuga/pkg/log"
	"github.com/tortuga-racing/tortuga/pkg/race/types"
)

const (
	// DefaultBroadcastHz is the snapshot fan-out rate when the options
	// leave it zero. It is deliberately lower than any physics rate.
	DefaultBroadcastHz = 10
	// loopYield keeps the main loop from busy-spinning between frames.
	loopYield = time.Millisecond
)

// validSpeeds is the closed set of accepted speed multipliers.
var validSpeeds = map[int]bool{1: true, 2: true, 4: true}

// SnapshotBroadcaster fans a snapshot out to every connected observer and
// returns the number of observers reached.
type SnapshotBroadcaster interface {
	BroadcastSnapshot(snapshot *types.RaceSnapshot) int
}

// ResultSaver persists one racer's final result. Implementations must not
// block the race loop; failures are logged and never abort the pass.
type ResultSaver interface {
	SaveResult(result *types.RaceResult) error
}

// SyncData is the self-contained payload a late-joining observer needs to
// render an in-progress race immediately.
type SyncData struct {
	TrackLength float64
	PhysicsHz   int
	BroadcastHz int
	CurrentTick int64
	Snapshot    *types.RaceSnapshot
}

// Orchestrator runs one engine to completion, decoupling the physics tick
// rate from the broadcast rate. It is the sole writer of its engine and
// racer list for the race's duration.
type Orchestrator struct {
	engine      *Engine
	broadcaster SnapshotBroadcaster
	saver       ResultSaver
	raceID      string
	physicsHz   int
	broadcastHz int

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	speed    int
	snapshot *types.RaceSnapshot
}

type NewOrchestratorOptions struct {
	Engine      *Engine
	Broadcaster SnapshotBroadcaster
	Saver       ResultSaver
	RaceID      string
	BroadcastHz int
}

func NewOrchestrator(opts NewOrchestratorOptions) *Orchestrator {
	broadcastHz := opts.BroadcastHz
	if broadcastHz <= 0 {
		broadcastHz = DefaultBroadcastHz
	}
	return &Orchestrator{
		engine:      opts.Engine,
		broadcaster: opts.Broadcaster,
		saver:       opts.Saver,
		raceID:      opts.RaceID,
		physicsHz:   opts.Engine.Config().TickRate,
		broadcastHz: broadcastHz,
		speed:       1,
	}
}

// Start launches the race loop. Starting a running orchestrator, or one
// whose race already finished, is a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running || o.engine.IsFinished() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.running = true
	go o.run(ctx)
}

// Stop cancels the race loop and waits for its final broadcast and
// persistence pass. A second stop is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	cancel()
	<-done
}

// Wait blocks until the race loop has exited. It returns immediately if
// the orchestrator was never started.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}

// IsRunning reports whether the race loop is active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// SetSpeed sets the race speed multiplier. Only 1, 2 and 4 are accepted;
// anything else is ignored and the previous multiplier is retained.
func (o *Orchestrator) SetSpeed(multiplier int) {
	if !validSpeeds[multiplier] {
		log.Warn("Ignoring invalid speed multiplier %d", multiplier)
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.speed = multiplier
}

// Speed returns the current speed multiplier.
func (o *Orchestrator) Speed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.speed
}

// LatestSnapshot returns the most recently produced snapshot, or nil
// before the first tick.
func (o *Orchestrator) LatestSnapshot() *types.RaceSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot
}

// GetSyncData returns everything a newly connected observer needs to
// render the in-progress race without waiting for the next broadcast.
func (o *Orchestrator) GetSyncData() SyncData {
	data := SyncData{
		TrackLength: o.engine.Config().TrackLength,
		PhysicsHz:   o.physicsHz,
		BroadcastHz: o.broadcastHz,
		Snapshot:    o.LatestSnapshot(),
	}
	if data.Snapshot != nil {
		data.CurrentTick = data.Snapshot.Tick
	}
	return data
}

// run is the main loop: a wall-clock-fed accumulator drives fixed physics
// steps, capped at the speed multiplier per iteration, while broadcasts
// follow their own independent cadence.
func (o *Orchestrator) run(ctx context.Context) {
	defer o.shutdown()

	physicsInterval := 1.0 / float64(o.physicsHz)
	broadcastInterval := 1.0 / float64(o.broadcastHz)

	last := time.Now()
	accumulator := 0.0
	sinceBroadcast := 0.0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		frame := now.Sub(last).Seconds()
		last = now
		accumulator += frame
		sinceBroadcast += frame

		steps := 0
		for accumulator >= physicsInterval && steps < o.Speed() {
			snapshot := o.engine.Advance(physicsInterval)
			if snapshot == nil {
				log.Error("Race %s produced no snapshot at tick %d, keeping previous", o.raceID, o.engine.Tick())
			} else {
				o.setLatest(snapshot)
			}
			accumulator -= physicsInterval
			steps++
		}

		if sinceBroadcast >= broadcastInterval {
			if snapshot := o.LatestSnapshot(); snapshot != nil {
				o.broadcaster.BroadcastSnapshot(snapshot)
			}
			sinceBroadcast = 0
		}

		if o.engine.IsFinished() {
			return
		}

		time.Sleep(loopYield)
	}
}

// shutdown performs the final unconditional broadcast and the persistence
// pass, then releases the loop.
func (o *Orchestrator) shutdown() {
	if snapshot := o.LatestSnapshot(); snapshot != nil {
		o.broadcaster.BroadcastSnapshot(snapshot)
	}
	o.persistResults()

	o.mu.Lock()
	o.running = false
	close(o.done)
	o.mu.Unlock()
}

// persistResults saves one result per persistent racer in standings order.
// A failed save logs and moves on to the next racer.
func (o *Orchestrator) persistResults() {
	if o.saver == nil {
		return
	}

	racersByID := make(map[string]types.Racer, len(o.engine.Racers()))
	for _, racer := range o.engine.Racers() {
		racersByID[racer.ID()] = racer
	}

	for position, state := range o.engine.Standings() {
		racer, ok := racersByID[state.ID]
		if !ok || !racer.Persistent() {
			continue
		}

		result := &types.RaceResult{
			RaceID:       o.raceID,
			RacerID:      state.ID,
			Name:         state.Name,
			Rank:         position + 1,
			Distance:     state.X,
			FinishTimeMS: o.engine.FinishTime(state.ID),
			Finished:     state.Finished,
		}
		if err := o.saver.SaveResult(result); err != nil {
			log.Error("Failed to save result for racer %s in race %s: %v", state.ID, o.raceID, err)
			continue
		}
	}
}

func (o *Orchestrator) setLatest(snapshot *types.RaceSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshot = snapshot
}
