package types

import (
	"github.com/tortuga-racing/tortuga/pkg/terrain"
)

// Racer is a mutable physics-bearing entity owned by game logic and
// borrowed by the race engine for one race's duration. The engine drives
// PhysicsUpdate once per tick and integrates the returned raw speed;
// finish bookkeeping (rank, finish order) stays in the engine.
type Racer interface {
	ID() string
	Name() string
	Genome() string
	Distance() float64
	SetDistance(distance float64)
	Energy() float64
	MaxEnergy() float64
	IsResting() bool
	Lane() float64
	Heading() float64
	// PhysicsUpdate advances the racer's internal energy/resting state for
	// one tick on the given terrain and returns the raw speed.
	PhysicsUpdate(t terrain.Terrain) float64
	// Reset restores the racer to its initial race state: full energy,
	// zero distance, not resting.
	Reset()
	// Persistent reports whether results for this racer should be saved.
	// Synthetic fillers return false.
	Persistent() bool
}

// RacerState is the per-tick immutable snapshot of one racer. Rank is
// 1-indexed and set exactly once, the first time Finished becomes true;
// zero means unranked and is omitted on the wire.
type RacerState struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	X             float64 `json:"x"`
	Y             float64 `json:"y,omitempty"`
	Angle         float64 `json:"angle,omitempty"`
	CurrentEnergy float64 `json:"current_energy"`
	MaxEnergy     float64 `json:"max_energy"`
	IsResting     bool    `json:"is_resting,omitempty"`
	Finished      bool    `json:"finished,omitempty"`
	Rank          int     `json:"rank,omitempty"`
	Genome        string  `json:"genome,omitempty"`
}

// TerrainSegment is the snapshot projection of one track segment inside
// the lookahead window.
type TerrainSegment struct {
	StartDistance float64 `json:"start_distance"`
	EndDistance   float64 `json:"end_distance"`
	TerrainType   string  `json:"terrain_type"`
}

// RaceSnapshot is the immutable per-tick view of a race. Racer order is
// the order supplied at engine construction, not rank order.
type RaceSnapshot struct {
	Tick         int64            `json:"tick"`
	ElapsedMS    float64          `json:"elapsed_ms"`
	CourseID     string           `json:"course_id"`
	TrackLength  float64          `json:"track_length"`
	Turtles      []RacerState     `json:"turtles"`
	TerrainAhead []TerrainSegment `json:"terrain_ahead,omitempty"`
	Finished     bool             `json:"finished,omitempty"`
	WinnerID     string           `json:"winner_id,omitempty"`
}

// RaceConfig is immutable for the lifetime of one race.
type RaceConfig struct {
	TrackLength float64
	TickRate    int
	MaxTicks    int64
}

// RaceResult is one racer's final record, handed to the persistence
// collaborator once per non-filler racer at race end.
type RaceResult struct {
	RaceID       string  `json:"race_id"`
	RacerID      string  `json:"racer_id"`
	Name         string  `json:"name"`
	Rank         int     `json:"rank"`
	Distance     float64 `json:"distance"`
	FinishTimeMS float64 `json:"finish_time_ms"`
	Finished     bool    `json:"finished"`
}
