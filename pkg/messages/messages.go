// Package messages defines the wire contract between the race server and
// its observers. Every payload is a single JSON object; fields carrying
// null/default values are omitted to keep frames small.
package messages

import (
	"github.com/tortuga-racing/tortuga/pkg/race/types"
)

// Client command actions.
const (
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionSetSpeed = "set_speed"
	ActionPing     = "ping"
)

// Server message types. Snapshot broadcasts carry no type field; they are
// identified by their tick field.
const (
	TypePong = "pong"
	TypeSync = "sync"
)

// ClientCommand is one observer command received over the websocket.
type ClientCommand struct {
	Action string `json:"action"`
	Speed  int    `json:"speed,omitempty"`
}

// ServerPong answers a ping.
type ServerPong struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

// ServerSync is the catch-up payload for late joiners.
type ServerSync struct {
	Type        string              `json:"type"`
	TrackLength float64             `json:"track_length"`
	PhysicsHz   int                 `json:"physics_hz"`
	BroadcastHz int                 `json:"broadcast_hz"`
	CurrentTick int64               `json:"current_tick"`
	Snapshot    *types.RaceSnapshot `json:"snapshot,omitempty"`
}
