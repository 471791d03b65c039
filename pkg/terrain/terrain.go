// Package terrain models a race course as an ordered list of fixed-width
// segments, each carrying a terrain type and the numeric modifiers the
// physics step needs. Course generation itself lives outside the engine;
// the engine only ever asks "what terrain is at distance d".
package terrain

// Type is the closed set of terrain types.
type Type int

const (
	TypeGrass Type = iota
	TypeWater
	TypeRock
	TypeSand
	TypeMud
	TypeBoost
)

func (t Type) String() string {
	switch t {
	case TypeGrass:
		return "grass"
	case TypeWater:
		return "water"
	case TypeRock:
		return "rock"
	case TypeSand:
		return "sand"
	case TypeMud:
		return "mud"
	case TypeBoost:
		return "boost"
	default:
		return "unknown"
	}
}

// DefaultSegmentLength is the track-unit width of one generated segment.
const DefaultSegmentLength = 100.0

// Modifiers are the numeric knobs a terrain type applies to the physics
// step. Speed scales raw movement, EnergyDrain scales the per-tick cost.
type Modifiers struct {
	Speed       float64
	EnergyDrain float64
}

// defaultModifiers maps each terrain type to its modifiers. Resolved once
// per lookup so callers never touch string-keyed data.
var defaultModifiers = map[Type]Modifiers{
	TypeGrass: {Speed: 1.0, EnergyDrain: 1.0},
	TypeWater: {Speed: 0.8, EnergyDrain: 1.2},
	TypeRock:  {Speed: 0.6, EnergyDrain: 1.5},
	TypeSand:  {Speed: 0.7, EnergyDrain: 1.1},
	TypeMud:   {Speed: 0.5, EnergyDrain: 1.4},
	TypeBoost: {Speed: 1.5, EnergyDrain: 0.8},
}

// ModifiersFor returns the modifiers for a terrain type. Unknown types get
// neutral modifiers.
func ModifiersFor(t Type) Modifiers {
	if m, ok := defaultModifiers[t]; ok {
		return m
	}
	return Modifiers{Speed: 1.0, EnergyDrain: 1.0}
}

// Terrain is one resolved lookup result: the type at a distance plus its
// modifiers.
type Terrain struct {
	Type      Type
	Modifiers Modifiers
}

// Segment is one contiguous stretch of a single terrain type.
type Segment struct {
	Start float64
	End   float64
	Type  Type
}

// Track is an immutable, ordered list of segments covering [0, Length).
type Track struct {
	segments []Segment
	length   float64
}

// NewTrack builds a track from pre-generated segments. Segments are
// assumed contiguous and ordered; the track length is the last segment end.
func NewTrack(segments []Segment) *Track {
	t := &Track{
		segments: append([]Segment{}, segments...),
	}
	if len(t.segments) > 0 {
		t.length = t.segments[len(t.segments)-1].End
	}
	return t
}

// NewLoopTrack builds a deterministic track of fixed-width segments cycling
// through the terrain types in order. It exists so races can be wired up
// without a course generator; it is not a generation algorithm.
func NewLoopTrack(length float64, segmentLength float64) *Track {
	if segmentLength <= 0 {
		segmentLength = DefaultSegmentLength
	}
	cycle := []Type{TypeGrass, TypeSand, TypeWater, TypeGrass, TypeRock, TypeMud, TypeBoost}

	var segments []Segment
	for start := 0.0; start < length; start += segmentLength {
		end := start + segmentLength
		if end > length {
			end = length
		}
		segments = append(segments, Segment{
			Start: start,
			End:   end,
			Type:  cycle[len(segments)%len(cycle)],
		})
	}
	return NewTrack(segments)
}

// Length returns the total track length.
func (t *Track) Length() float64 {
	return t.length
}

// At returns the terrain at the given distance. Distances past the end
// clamp to the final segment; an empty track is all grass.
func (t *Track) At(distance float64) Terrain {
	typ := TypeGrass
	if n := len(t.segments); n > 0 {
		typ = t.segments[n-1].Type
		for _, seg := range t.segments {
			if distance < seg.End {
				typ = seg.Type
				break
			}
		}
	}
	return Terrain{
		Type:      typ,
		Modifiers: ModifiersFor(typ),
	}
}

// SegmentsAhead returns up to limit segments at or beyond the given
// distance, for the snapshot lookahead window.
func (t *Track) SegmentsAhead(distance float64, limit int) []Segment {
	var ahead []Segment
	for _, seg := range t.segments {
		if seg.End <= distance {
			continue
		}
		ahead = append(ahead, seg)
		if len(ahead) == limit {
			break
		}
	}
	return ahead
}
