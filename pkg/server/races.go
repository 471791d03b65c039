package server

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/tortuga-racing/tortuga/pkg/genome"
	"github.com/tortuga-racing/tortuga/pkg/log"
	"github.com/tortuga-racing/tortuga/pkg/race"
	racetypes "github.com/tortuga-racing/tortuga/pkg/race/types"
	"github.com/tortuga-racing/tortuga/pkg/turtle"
)

const (
	// FieldSize is the number of lanes in a race.
	FieldSize = 6
)

var turtleNames = []string{
	"Sheldon", "Crush", "Myrtle", "Tank", "Pokey", "Zippy",
	"Donatello", "Shelly", "Bruno", "Pearl", "Flash", "Gustave",
}

// RaceManager owns at most one active race at a time and bridges observer
// commands to its orchestrator. Races created here borrow the shared
// connection manager as their broadcaster.
type RaceManager struct {
	broadcaster race.SnapshotBroadcaster
	saver       race.ResultSaver
	config      racetypes.RaceConfig
	broadcastHz int

	mu        sync.Mutex
	rng       *rand.Rand
	current   *race.Orchestrator
	currentID string
}

type NewRaceManagerOptions struct {
	Broadcaster race.SnapshotBroadcaster
	Saver       race.ResultSaver
	Config      racetypes.RaceConfig
	BroadcastHz int
	// Seed makes roster generation reproducible; zero seeds from entropy.
	Seed int64
}

func NewRaceManager(opts NewRaceManagerOptions) *RaceManager {
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &RaceManager{
		broadcaster: opts.Broadcaster,
		saver:       opts.Saver,
		config:      opts.Config,
		broadcastHz: opts.BroadcastHz,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// StartRace starts the current race, creating a fresh one if the previous
// race has finished. Starting an already running race is a no-op.
func (rm *RaceManager) StartRace(entrants []racetypes.Racer) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.current != nil && rm.current.IsRunning() {
		return nil
	}

	raceID := uuid.NewString()
	roster := rm.buildRoster(entrants)
	engine, err := race.NewEngine(race.NewEngineOptions{
		Racers:   roster,
		Config:   rm.config,
		CourseID: raceID,
	})
	if err != nil {
		return fmt.Errorf("failed to create race engine: %v", err)
	}

	rm.current = race.NewOrchestrator(race.NewOrchestratorOptions{
		Engine:      engine,
		Broadcaster: rm.broadcaster,
		Saver:       rm.saver,
		RaceID:      raceID,
		BroadcastHz: rm.broadcastHz,
	})
	rm.currentID = raceID
	rm.current.Start()

	log.Info("Race %s started with %d racers over %.0f units", raceID, len(roster), rm.config.TrackLength)
	return nil
}

// StopRace stops the current race if one is running.
func (rm *RaceManager) StopRace() {
	rm.mu.Lock()
	current := rm.current
	rm.mu.Unlock()

	if current != nil {
		current.Stop()
	}
}

// SetSpeed forwards a speed multiplier to the current race.
func (rm *RaceManager) SetSpeed(multiplier int) {
	rm.mu.Lock()
	current := rm.current
	rm.mu.Unlock()

	if current != nil {
		current.SetSpeed(multiplier)
	}
}

// SyncData returns the late-joiner payload for the current race. ok is
// false when no race has been created yet.
func (rm *RaceManager) SyncData() (race.SyncData, bool) {
	rm.mu.Lock()
	current := rm.current
	rm.mu.Unlock()

	if current == nil {
		return race.SyncData{}, false
	}
	return current.GetSyncData(), true
}

// CurrentRaceID returns the identifier of the current race, or empty
// before the first race.
func (rm *RaceManager) CurrentRaceID() string {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.currentID
}

// buildRoster returns the entrants padded to the field size with
// synthetic fillers, or a full house roster when nobody entered.
func (rm *RaceManager) buildRoster(entrants []racetypes.Racer) []racetypes.Racer {
	roster := append([]racetypes.Racer{}, entrants...)

	house := len(roster) == 0
	nameOrder := rm.rng.Perm(len(turtleNames))
	for i := 0; len(roster) < FieldSize; i++ {
		name := turtleNames[nameOrder[i%len(turtleNames)]]
		if !house {
			name = fmt.Sprintf("%s (filler)", name)
		}
		roster = append(roster, turtle.NewTurtle(turtle.NewTurtleOptions{
			ID:     uuid.NewString(),
			Name:   name,
			Genome: rm.rollGenome(),
			Stats:  turtle.RandomStats(rm.rng),
			Lane:   float64(len(roster)),
			Filler: !house,
		}))
	}
	return roster
}

func (rm *RaceManager) rollGenome() string {
	bodies := genome.BodyNames()
	shells := genome.ShellNames()
	limbs := genome.LimbNames()

	encoded, err := genome.Encode(genome.Traits{
		Body:  bodies[rm.rng.Intn(len(bodies))],
		Shell: shells[rm.rng.Intn(len(shells))],
		Limb:  limbs[rm.rng.Intn(len(limbs))],
		Color: genome.Color{
			R: uint8(rm.rng.Intn(256)),
			G: uint8(rm.rng.Intn(256)),
			B: uint8(rm.rng.Intn(256)),
		},
	})
	if err != nil {
		log.Error("Failed to encode rolled genome: %v", err)
		return ""
	}
	return encoded
}
