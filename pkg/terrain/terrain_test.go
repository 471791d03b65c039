package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrack_At(t *testing.T) {
	track := NewTrack([]Segment{
		{Start: 0, End: 100, Type: TypeGrass},
		{Start: 100, End: 200, Type: TypeWater},
		{Start: 200, End: 300, Type: TypeBoost},
	})

	tests := []struct {
		name     string
		distance float64
		want     Type
	}{
		{name: "start of track", distance: 0, want: TypeGrass},
		{name: "inside first segment", distance: 99.9, want: TypeGrass},
		{name: "segment boundary belongs to next segment", distance: 100, want: TypeWater},
		{name: "inside last segment", distance: 250, want: TypeBoost},
		{name: "past the end clamps to last segment", distance: 1000, want: TypeBoost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := track.At(tt.distance)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, ModifiersFor(tt.want), got.Modifiers)
		})
	}
}

func TestTrack_SegmentsAhead(t *testing.T) {
	track := NewLoopTrack(1000, 100)

	ahead := track.SegmentsAhead(250, 5)
	assert.Len(t, ahead, 5)
	// The segment containing the position is included.
	assert.Equal(t, 200.0, ahead[0].Start)
	assert.Equal(t, 600.0, ahead[4].Start)

	// Near the finish the window shrinks instead of wrapping.
	ahead = track.SegmentsAhead(950, 5)
	assert.Len(t, ahead, 1)
	assert.Equal(t, 1000.0, ahead[0].End)
}

func TestNewLoopTrack(t *testing.T) {
	track := NewLoopTrack(250, 100)
	assert.Equal(t, 250.0, track.Length())

	// Final partial segment is clipped to the track length.
	ahead := track.SegmentsAhead(0, 10)
	assert.Len(t, ahead, 3)
	assert.Equal(t, 250.0, ahead[2].End)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "grass", TypeGrass.String())
	assert.Equal(t, "boost", TypeBoost.String())
	assert.Equal(t, "unknown", Type(42).String())
}
