// Package turtle implements the racer entity: a mutable, physics-bearing
// turtle whose per-tick speed depends on its stats, its energy, and the
// terrain under it.
package turtle

import (
	"math/rand"

	"github.com/tortuga-racing/tortuga/pkg/terrain"
)

const (
	// restRecoveryThreshold is the fraction of max energy at which a
	// resting turtle wakes up.
	restRecoveryThreshold = 0.5
	// restRecoveryRate is the base energy regained per resting tick,
	// before the recovery and stamina scaling.
	restRecoveryRate = 2.0
	// tickEnergyCost is the base energy spent per moving tick, before the
	// terrain drain scaling.
	tickEnergyCost = 0.8
	// boostSpeedMultiplier is the flat multiplier applied on boost pads.
	boostSpeedMultiplier = 1.5
	// DefaultMaxEnergy is the energy pool used when options leave it zero.
	DefaultMaxEnergy = 100.0
)

// Stats are a turtle's fixed physical attributes. Skill values are in
// [0, 1]; BaseSpeed is in track units per second.
type Stats struct {
	BaseSpeed float64
	Swim      float64
	Climb     float64
	Recovery  float64
	Stamina   float64
	MaxEnergy float64
}

// RandomStats rolls a plausible stat line from the given source.
func RandomStats(r *rand.Rand) Stats {
	return Stats{
		BaseSpeed: 30 + r.Float64()*30,
		Swim:      r.Float64(),
		Climb:     r.Float64(),
		Recovery:  r.Float64(),
		Stamina:   r.Float64(),
		MaxEnergy: DefaultMaxEnergy,
	}
}

// Turtle is one racer. It satisfies the race/types.Racer interface.
type Turtle struct {
	id         string
	name       string
	genome     string
	stats      Stats
	lane       float64
	heading    float64
	persistent bool

	distance float64
	energy   float64
	resting  bool
}

type NewTurtleOptions struct {
	ID     string
	Name   string
	Genome string
	Stats  Stats
	Lane   float64
	// Filler marks a synthetic racer whose results are not persisted.
	Filler bool
}

func NewTurtle(opts NewTurtleOptions) *Turtle {
	stats := opts.Stats
	if stats.MaxEnergy <= 0 {
		stats.MaxEnergy = DefaultMaxEnergy
	}
	return &Turtle{
		id:         opts.ID,
		name:       opts.Name,
		genome:     opts.Genome,
		stats:      stats,
		lane:       opts.Lane,
		persistent: !opts.Filler,
		energy:     stats.MaxEnergy,
	}
}

func (t *Turtle) ID() string {
	return t.id
}

func (t *Turtle) Name() string {
	return t.name
}

func (t *Turtle) Genome() string {
	return t.genome
}

func (t *Turtle) Distance() float64 {
	return t.distance
}

func (t *Turtle) SetDistance(distance float64) {
	t.distance = distance
}

func (t *Turtle) Energy() float64 {
	return t.energy
}

func (t *Turtle) MaxEnergy() float64 {
	return t.stats.MaxEnergy
}

func (t *Turtle) IsResting() bool {
	return t.resting
}

func (t *Turtle) Lane() float64 {
	return t.lane
}

func (t *Turtle) Heading() float64 {
	return t.heading
}

func (t *Turtle) Persistent() bool {
	return t.persistent
}

// Reset restores the turtle to its initial race state.
func (t *Turtle) Reset() {
	t.distance = 0
	t.energy = t.stats.MaxEnergy
	t.resting = false
}

// PhysicsUpdate advances the turtle's energy and resting state for one
// tick on the given terrain and returns the raw speed in track units per
// second. A resting turtle regenerates instead of moving; running the
// energy pool dry forces a rest on the next tick.
func (t *Turtle) PhysicsUpdate(tr terrain.Terrain) float64 {
	if t.resting {
		regen := restRecoveryRate * t.stats.Recovery * (1 + t.stats.Stamina*0.5)
		t.energy += regen
		if t.energy > t.stats.MaxEnergy {
			t.energy = t.stats.MaxEnergy
		}
		if t.energy >= restRecoveryThreshold*t.stats.MaxEnergy {
			t.resting = false
		}
		return 0
	}

	speed := t.terrainSpeed(tr)

	cost := tickEnergyCost * tr.Modifiers.EnergyDrain
	t.energy -= cost
	if t.energy <= 0 {
		t.energy = 0
		t.resting = true
	}

	return speed
}

func (t *Turtle) terrainSpeed(tr terrain.Terrain) float64 {
	base := t.stats.BaseSpeed
	switch tr.Type {
	case terrain.TypeWater:
		return base * (0.5 + 0.6*t.stats.Swim)
	case terrain.TypeRock:
		return base * (0.4 + 0.5*t.stats.Climb)
	case terrain.TypeSand:
		return base * (0.7 + 0.3*t.stats.Recovery)
	case terrain.TypeMud:
		return base * (0.4 + 0.4*t.energy/t.stats.MaxEnergy)
	case terrain.TypeBoost:
		return base * boostSpeedMultiplier
	default:
		return base * tr.Modifiers.Speed
	}
}
