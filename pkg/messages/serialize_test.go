package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tortuga-racing/tortuga/pkg/race/types"
)

func TestSerializeSnapshot_OmitsDefaults(t *testing.T) {
	snapshot := &types.RaceSnapshot{
		Tick:        12,
		ElapsedMS:   400,
		CourseID:    "course-1",
		TrackLength: 1500,
		Turtles: []types.RacerState{
			{
				ID:            "t1",
				Name:          "Sheldon",
				X:             250,
				CurrentEnergy: 80,
				MaxEnergy:     100,
			},
		},
	}

	b, err := SerializeSnapshot(snapshot)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &raw))

	// Unset/false/zero fields are left off the wire entirely.
	assert.NotContains(t, raw, "finished")
	assert.NotContains(t, raw, "winner_id")
	assert.NotContains(t, raw, "terrain_ahead")

	turtle := raw["turtles"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, turtle, "rank")
	assert.NotContains(t, turtle, "is_resting")
	assert.NotContains(t, turtle, "finished")
	assert.Equal(t, "t1", turtle["id"])
	assert.Equal(t, 250.0, turtle["x"])
}

func TestSnapshotRoundTrip(t *testing.T) {
	snapshot := &types.RaceSnapshot{
		Tick:        30,
		ElapsedMS:   1000,
		CourseID:    "course-1",
		TrackLength: 1500,
		Turtles: []types.RacerState{
			{
				ID:            "t1",
				Name:          "Sheldon",
				X:             1500,
				CurrentEnergy: 12.5,
				MaxEnergy:     100,
				Finished:      true,
				Rank:          1,
				Genome:        "B1-S1-P2-CFF00FF",
			},
		},
		TerrainAhead: []types.TerrainSegment{
			{StartDistance: 1400, EndDistance: 1500, TerrainType: "boost"},
		},
		Finished: true,
		WinnerID: "t1",
	}

	b, err := SerializeSnapshot(snapshot)
	require.NoError(t, err)
	decoded, err := DeserializeSnapshot(b)
	require.NoError(t, err)
	assert.Equal(t, snapshot, decoded)
}

func TestParseClientCommand(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    *ClientCommand
		wantErr bool
	}{
		{
			name:  "start",
			frame: `{"action":"start"}`,
			want:  &ClientCommand{Action: ActionStart},
		},
		{
			name:  "set_speed with value",
			frame: `{"action":"set_speed","speed":4}`,
			want:  &ClientCommand{Action: ActionSetSpeed, Speed: 4},
		},
		{
			name:  "unknown action parses fine",
			frame: `{"action":"dance"}`,
			want:  &ClientCommand{Action: "dance"},
		},
		{
			name:    "invalid json",
			frame:   `{"action":`,
			wantErr: true,
		},
		{
			name:    "missing action",
			frame:   `{"speed":2}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientCommand([]byte(tt.frame))
			if tt.wantErr {
				assert.Error(t, err)
				assert.IsType(t, &MalformedCommandError{}, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompressRoundTrip(t *testing.T) {
	payload := []byte(`{"tick":42,"turtles":[{"id":"t1","x":100}]}`)

	compressed, err := Compress(payload)
	require.NoError(t, err)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, decompressed)
}
