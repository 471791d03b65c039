package race

import (
	"fmt"
	"sort"
	"time"

	"github.com/tortuga-racing/tortuga/pkg/race/types"
	"github.com/tortuga-racing/tortuga/pkg/terrain"
)

const (
	// MinTickRate and MaxTickRate bound the physics rate in Hz.
	MinTickRate = 1
	MaxTickRate = 120
	// DefaultLookaheadSegments is the size of the terrain window included
	// in snapshots, measured from the slowest unfinished racer.
	DefaultLookaheadSegments = 5
)

// Engine is the deterministic single-race simulation. It owns no
// goroutines and no transport; callers drive it one fixed tick at a time.
type Engine struct {
	racers   []types.Racer
	config   types.RaceConfig
	track    *terrain.Track
	courseID string

	tick        int64
	anchor      time.Time
	finished    bool
	finishOrder []string
	ranks       map[string]int
	finishedIDs map[string]bool
	finishTimes map[string]float64
}

type NewEngineOptions struct {
	Racers   []types.Racer
	Config   types.RaceConfig
	CourseID string
	// Track is the pre-generated course. When nil a deterministic looping
	// track covering the configured length is used.
	Track *terrain.Track
}

// NewEngine validates the configuration and resets every racer to its
// initial race state.
func NewEngine(opts NewEngineOptions) (*Engine, error) {
	if opts.Config.TrackLength <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("track length must be positive, got %f", opts.Config.TrackLength)}
	}
	if opts.Config.TickRate < MinTickRate || opts.Config.TickRate > MaxTickRate {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("tick rate must be in [%d, %d], got %d", MinTickRate, MaxTickRate, opts.Config.TickRate)}
	}
	if opts.Config.MaxTicks <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("max ticks must be positive, got %d", opts.Config.MaxTicks)}
	}

	track := opts.Track
	if track == nil {
		track = terrain.NewLoopTrack(opts.Config.TrackLength, terrain.DefaultSegmentLength)
	}

	for _, racer := range opts.Racers {
		racer.Reset()
	}

	return &Engine{
		racers:      opts.Racers,
		config:      opts.Config,
		track:       track,
		courseID:    opts.CourseID,
		ranks:       make(map[string]int),
		finishedIDs: make(map[string]bool),
		finishTimes: make(map[string]float64),
	}, nil
}

// Advance runs one fixed physics tick and returns the snapshot of the
// now-current tick. Once the race is finished it is a no-op that returns
// the final snapshot.
func (e *Engine) Advance(dt float64) *types.RaceSnapshot {
	if e.finished {
		return e.Snapshot()
	}

	if e.anchor.IsZero() {
		e.anchor = time.Now()
	}
	e.tick++

	for _, racer := range e.racers {
		if e.finishedIDs[racer.ID()] {
			continue
		}

		tr := e.track.At(racer.Distance())
		speed := racer.PhysicsUpdate(tr)
		distance := racer.Distance() + speed*dt*float64(e.config.TickRate)

		if distance >= e.config.TrackLength {
			distance = e.config.TrackLength
			e.finishedIDs[racer.ID()] = true
			e.finishOrder = append(e.finishOrder, racer.ID())
			e.ranks[racer.ID()] = len(e.finishOrder)
			e.finishTimes[racer.ID()] = e.elapsedMS()
		}
		racer.SetDistance(distance)
	}

	if len(e.finishOrder) == len(e.racers) || e.tick >= e.config.MaxTicks {
		e.finished = true
	}

	return e.Snapshot()
}

// Snapshot builds an immutable view of the current engine state. Repeated
// calls without an Advance in between differ only in elapsed time.
func (e *Engine) Snapshot() *types.RaceSnapshot {
	turtles := make([]types.RacerState, 0, len(e.racers))
	for _, racer := range e.racers {
		turtles = append(turtles, e.racerState(racer))
	}

	snapshot := &types.RaceSnapshot{
		Tick:         e.tick,
		ElapsedMS:    e.elapsedMS(),
		CourseID:     e.courseID,
		TrackLength:  e.config.TrackLength,
		Turtles:      turtles,
		TerrainAhead: e.terrainLookahead(),
		Finished:     e.finished,
	}
	if e.finished && len(e.finishOrder) > 0 {
		snapshot.WinnerID = e.finishOrder[0]
	}
	return snapshot
}

// IsFinished reports whether the race has reached a terminal state.
func (e *Engine) IsFinished() bool {
	return e.finished
}

// Winner returns the first finisher's identity. ok is false before the
// race finishes and for a forced draw.
func (e *Engine) Winner() (string, bool) {
	if !e.finished || len(e.finishOrder) == 0 {
		return "", false
	}
	return e.finishOrder[0], true
}

// Racers returns the racer list in construction order.
func (e *Engine) Racers() []types.Racer {
	return e.racers
}

// Tick returns the current tick counter.
func (e *Engine) Tick() int64 {
	return e.tick
}

// Config returns the immutable race configuration.
func (e *Engine) Config() types.RaceConfig {
	return e.config
}

// CourseID returns the course identifier the engine was built with.
func (e *Engine) CourseID() string {
	return e.courseID
}

// FinishTime returns a racer's finish time in milliseconds since the
// first tick, or zero if the racer never finished.
func (e *Engine) FinishTime(racerID string) float64 {
	return e.finishTimes[racerID]
}

// Standings orders racers by descending distance, tie-broken by ascending
// rank with unranked racers sorting after ranked ones.
func (e *Engine) Standings() []types.RacerState {
	standings := make([]types.RacerState, 0, len(e.racers))
	for _, racer := range e.racers {
		standings = append(standings, e.racerState(racer))
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].X != standings[j].X {
			return standings[i].X > standings[j].X
		}
		return rankLess(standings[i].Rank, standings[j].Rank)
	})
	return standings
}

// rankLess orders 1-indexed ranks ascending, with zero (unranked) last.
func rankLess(a, b int) bool {
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	return a < b
}

func (e *Engine) racerState(racer types.Racer) types.RacerState {
	return types.RacerState{
		ID:            racer.ID(),
		Name:          racer.Name(),
		X:             racer.Distance(),
		Y:             racer.Lane(),
		Angle:         racer.Heading(),
		CurrentEnergy: racer.Energy(),
		MaxEnergy:     racer.MaxEnergy(),
		IsResting:     racer.IsResting(),
		Finished:      e.finishedIDs[racer.ID()],
		Rank:          e.ranks[racer.ID()],
		Genome:        racer.Genome(),
	}
}

// terrainLookahead projects the track window ahead of the slowest
// unfinished racer. With no unfinished racers the window is empty.
func (e *Engine) terrainLookahead() []types.TerrainSegment {
	minDistance := -1.0
	for _, racer := range e.racers {
		if e.finishedIDs[racer.ID()] {
			continue
		}
		if minDistance < 0 || racer.Distance() < minDistance {
			minDistance = racer.Distance()
		}
	}
	if minDistance < 0 {
		return nil
	}

	segments := e.track.SegmentsAhead(minDistance, DefaultLookaheadSegments)
	ahead := make([]types.TerrainSegment, 0, len(segments))
	for _, seg := range segments {
		ahead = append(ahead, types.TerrainSegment{
			StartDistance: seg.Start,
			EndDistance:   seg.End,
			TerrainType:   seg.Type.String(),
		})
	}
	return ahead
}

func (e *Engine) elapsedMS() float64 {
	if e.anchor.IsZero() {
		return 0
	}
	return float64(time.Since(e.anchor)) / float64(time.Millisecond)
}
