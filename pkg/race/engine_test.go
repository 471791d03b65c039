package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tortuga-racing/tortuga/pkg/race/types"
	"github.com/tortuga-racing/tortuga/pkg/terrain"
)

// stubRacer moves at a constant raw speed regardless of terrain.
type stubRacer struct {
	id       string
	speed    float64
	distance float64
	filler   bool
}

func (s *stubRacer) ID() string                 { return s.id }
func (s *stubRacer) Name() string               { return "stub-" + s.id }
func (s *stubRacer) Genome() string             { return "B0-S0-P0-C000000" }
func (s *stubRacer) Distance() float64          { return s.distance }
func (s *stubRacer) SetDistance(d float64)      { s.distance = d }
func (s *stubRacer) Energy() float64            { return 100 }
func (s *stubRacer) MaxEnergy() float64         { return 100 }
func (s *stubRacer) IsResting() bool            { return false }
func (s *stubRacer) Lane() float64              { return 0 }
func (s *stubRacer) Heading() float64           { return 0 }
func (s *stubRacer) Reset()                     { s.distance = 0 }
func (s *stubRacer) Persistent() bool           { return !s.filler }
func (s *stubRacer) PhysicsUpdate(_ terrain.Terrain) float64 {
	return s.speed
}

func testConfig() types.RaceConfig {
	return types.RaceConfig{
		TrackLength: 1500,
		TickRate:    30,
		MaxTicks:    10000,
	}
}

func TestNewEngine_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  types.RaceConfig
		wantErr bool
	}{
		{
			name:   "valid config",
			config: types.RaceConfig{TrackLength: 1000, TickRate: 30, MaxTicks: 100},
		},
		{
			name:    "zero track length",
			config:  types.RaceConfig{TrackLength: 0, TickRate: 30, MaxTicks: 100},
			wantErr: true,
		},
		{
			name:    "negative track length",
			config:  types.RaceConfig{TrackLength: -10, TickRate: 30, MaxTicks: 100},
			wantErr: true,
		},
		{
			name:    "tick rate below minimum",
			config:  types.RaceConfig{TrackLength: 1000, TickRate: 0, MaxTicks: 100},
			wantErr: true,
		},
		{
			name:    "tick rate above maximum",
			config:  types.RaceConfig{TrackLength: 1000, TickRate: 121, MaxTicks: 100},
			wantErr: true,
		},
		{
			name:   "tick rate at boundaries",
			config: types.RaceConfig{TrackLength: 1000, TickRate: 120, MaxTicks: 100},
		},
		{
			name:    "zero max ticks",
			config:  types.RaceConfig{TrackLength: 1000, TickRate: 30, MaxTicks: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewEngine(NewEngineOptions{
				Racers: []types.Racer{&stubRacer{id: "a", speed: 10}},
				Config: tt.config,
			})
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, IsConfigurationError(err))
				assert.Nil(t, engine)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, engine)
		})
	}
}

func TestNewEngine_ResetsRacers(t *testing.T) {
	racer := &stubRacer{id: "a", speed: 10, distance: 777}
	_, err := NewEngine(NewEngineOptions{
		Racers: []types.Racer{racer},
		Config: testConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, racer.Distance())
}

func TestEngine_TicksIncreaseByOne(t *testing.T) {
	engine, err := NewEngine(NewEngineOptions{
		Racers: []types.Racer{&stubRacer{id: "a", speed: 1}},
		Config: testConfig(),
	})
	require.NoError(t, err)

	dt := 1.0 / 30
	for want := int64(1); want <= 10; want++ {
		snapshot := engine.Advance(dt)
		assert.Equal(t, want, snapshot.Tick)
	}
}

// A single racer at constant raw speed 50 on a 1500-unit track at 30 Hz
// gains exactly 50 units per tick (50 * 1/30 * 30) and finishes at tick 30.
func TestEngine_ConstantSpeedFinish(t *testing.T) {
	racer := &stubRacer{id: "a", speed: 50}
	engine, err := NewEngine(NewEngineOptions{
		Racers:   []types.Racer{racer},
		Config:   testConfig(),
		CourseID: "course-1",
	})
	require.NoError(t, err)

	dt := 1.0 / 30
	var snapshot *types.RaceSnapshot
	for i := 0; i < 29; i++ {
		snapshot = engine.Advance(dt)
		assert.False(t, snapshot.Finished, "tick %d", snapshot.Tick)
	}

	snapshot = engine.Advance(dt)
	assert.Equal(t, int64(30), snapshot.Tick)
	assert.True(t, snapshot.Finished)
	assert.Equal(t, "a", snapshot.WinnerID)
	require.Len(t, snapshot.Turtles, 1)
	assert.Equal(t, 1500.0, snapshot.Turtles[0].X)
	assert.True(t, snapshot.Turtles[0].Finished)
	assert.Equal(t, 1, snapshot.Turtles[0].Rank)

	winner, ok := engine.Winner()
	assert.True(t, ok)
	assert.Equal(t, "a", winner)
}

func TestEngine_ForcedDraw(t *testing.T) {
	config := types.RaceConfig{TrackLength: 1500, TickRate: 30, MaxTicks: 25}
	engine, err := NewEngine(NewEngineOptions{
		Racers: []types.Racer{
			&stubRacer{id: "a", speed: 1},
			&stubRacer{id: "b", speed: 2},
		},
		Config: config,
	})
	require.NoError(t, err)

	dt := 1.0 / 30
	var snapshot *types.RaceSnapshot
	for i := 0; i < 25; i++ {
		snapshot = engine.Advance(dt)
	}
	assert.True(t, snapshot.Finished)
	assert.Empty(t, snapshot.WinnerID)

	_, ok := engine.Winner()
	assert.False(t, ok)
}

func TestEngine_AdvanceAfterFinishIsNoop(t *testing.T) {
	config := types.RaceConfig{TrackLength: 100, TickRate: 30, MaxTicks: 5}
	engine, err := NewEngine(NewEngineOptions{
		Racers: []types.Racer{&stubRacer{id: "a", speed: 0}},
		Config: config,
	})
	require.NoError(t, err)

	dt := 1.0 / 30
	for i := 0; i < 5; i++ {
		engine.Advance(dt)
	}
	assert.True(t, engine.IsFinished())

	snapshot := engine.Advance(dt)
	assert.Equal(t, int64(5), snapshot.Tick)
	assert.True(t, snapshot.Finished)
}

func TestEngine_FinishedAndRankAreStable(t *testing.T) {
	fast := &stubRacer{id: "fast", speed: 100}
	slow := &stubRacer{id: "slow", speed: 10}
	engine, err := NewEngine(NewEngineOptions{
		Racers: []types.Racer{fast, slow},
		Config: testConfig(),
	})
	require.NoError(t, err)

	dt := 1.0 / 30
	sawFastFinished := false
	for !engine.IsFinished() {
		snapshot := engine.Advance(dt)
		for _, state := range snapshot.Turtles {
			if state.ID != "fast" {
				continue
			}
			if sawFastFinished {
				assert.True(t, state.Finished, "finished must never revert")
				assert.Equal(t, 1, state.Rank, "rank must never change")
			}
			if state.Finished {
				sawFastFinished = true
			}
		}
	}

	assert.True(t, sawFastFinished)
	winner, ok := engine.Winner()
	assert.True(t, ok)
	assert.Equal(t, "fast", winner)
	assert.Greater(t, engine.FinishTime("fast"), 0.0)
	assert.GreaterOrEqual(t, engine.FinishTime("slow"), engine.FinishTime("fast"))
}

func TestEngine_Standings(t *testing.T) {
	a := &stubRacer{id: "a", speed: 100}
	b := &stubRacer{id: "b", speed: 40}
	c := &stubRacer{id: "c", speed: 10}
	config := types.RaceConfig{TrackLength: 1500, TickRate: 30, MaxTicks: 20}
	engine, err := NewEngine(NewEngineOptions{
		Racers: []types.Racer{c, a, b},
		Config: config,
	})
	require.NoError(t, err)

	dt := 1.0 / 30
	for !engine.IsFinished() {
		engine.Advance(dt)
	}

	standings := engine.Standings()
	require.Len(t, standings, 3)
	assert.Equal(t, "a", standings[0].ID)
	assert.Equal(t, 1, standings[0].Rank)
	assert.Equal(t, "b", standings[1].ID)
	assert.Equal(t, "c", standings[2].ID)
	assert.Equal(t, 0, standings[2].Rank)
}

func TestEngine_StandingsTieBreaksOnRank(t *testing.T) {
	// Both racers clamp to the track length on the same tick; the one
	// updated first takes rank 1 and must sort first.
	a := &stubRacer{id: "a", speed: 200}
	b := &stubRacer{id: "b", speed: 200}
	config := types.RaceConfig{TrackLength: 100, TickRate: 30, MaxTicks: 100}
	engine, err := NewEngine(NewEngineOptions{
		Racers: []types.Racer{a, b},
		Config: config,
	})
	require.NoError(t, err)

	for !engine.IsFinished() {
		engine.Advance(1.0 / 30)
	}

	standings := engine.Standings()
	require.Len(t, standings, 2)
	assert.Equal(t, "a", standings[0].ID)
	assert.Equal(t, 1, standings[0].Rank)
	assert.Equal(t, "b", standings[1].ID)
	assert.Equal(t, 2, standings[1].Rank)
}

func TestEngine_TerrainLookahead(t *testing.T) {
	track := terrain.NewLoopTrack(1500, 100)
	fast := &stubRacer{id: "fast", speed: 100}
	slow := &stubRacer{id: "slow", speed: 10}
	engine, err := NewEngine(NewEngineOptions{
		Racers: []types.Racer{fast, slow},
		Config: testConfig(),
		Track:  track,
	})
	require.NoError(t, err)

	snapshot := engine.Advance(1.0 / 30)
	require.NotEmpty(t, snapshot.TerrainAhead)
	assert.Len(t, snapshot.TerrainAhead, DefaultLookaheadSegments)
	// The window starts at the slowest unfinished racer's segment.
	assert.LessOrEqual(t, snapshot.TerrainAhead[0].StartDistance, slow.Distance())
	assert.Greater(t, snapshot.TerrainAhead[0].EndDistance, slow.Distance())

	// Once everyone has finished the window is empty, not an error.
	for !engine.IsFinished() {
		engine.Advance(1.0 / 30)
	}
	if _, ok := engine.Winner(); ok {
		final := engine.Snapshot()
		assert.Empty(t, final.TerrainAhead)
	}
}

// Elapsed time is wall-clock anchored, so driving ticks without sleeping
// reports near-zero elapsed time. Only monotonicity is asserted here.
func TestEngine_ElapsedIsMonotonic(t *testing.T) {
	engine, err := NewEngine(NewEngineOptions{
		Racers: []types.Racer{&stubRacer{id: "a", speed: 1}},
		Config: testConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, engine.Snapshot().ElapsedMS)

	previous := -1.0
	for i := 0; i < 5; i++ {
		snapshot := engine.Advance(1.0 / 30)
		assert.GreaterOrEqual(t, snapshot.ElapsedMS, previous)
		previous = snapshot.ElapsedMS
	}
}
