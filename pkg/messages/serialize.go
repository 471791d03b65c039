package messages

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/tortuga-racing/tortuga/pkg/race/types"
)

// MalformedCommandError indicates a client frame that could not be parsed
// into a known command. The connection stays open; the frame is dropped.
type MalformedCommandError struct {
	Reason string
}

func (e *MalformedCommandError) Error() string {
	return fmt.Sprintf("malformed client command: %s", e.Reason)
}

// SerializeSnapshot serializes a race snapshot into its broadcast frame.
func SerializeSnapshot(snapshot *types.RaceSnapshot) ([]byte, error) {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %v", err)
	}
	return b, nil
}

// DeserializeSnapshot parses a broadcast frame back into a snapshot.
func DeserializeSnapshot(b []byte) (*types.RaceSnapshot, error) {
	snapshot := &types.RaceSnapshot{}
	if err := json.Unmarshal(b, snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}
	return snapshot, nil
}

// ParseClientCommand parses one client frame. Unknown actions parse fine
// and are the dispatcher's business; structurally bad frames are rejected
// with a MalformedCommandError.
func ParseClientCommand(b []byte) (*ClientCommand, error) {
	command := &ClientCommand{}
	if err := json.Unmarshal(b, command); err != nil {
		return nil, &MalformedCommandError{Reason: err.Error()}
	}
	if command.Action == "" {
		return nil, &MalformedCommandError{Reason: "missing action"}
	}
	return command, nil
}

// Compress zstd-frames a payload for connections that negotiated
// compression at handshake time.
func Compress(b []byte) ([]byte, error) {
	compressed := bytes.NewBuffer(nil)
	writer, err := zstd.NewWriter(compressed, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	if _, err := writer.Write(b); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %v", err)
	}
	return compressed.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(b []byte) ([]byte, error) {
	reader, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed payload: %v", err)
	}
	return out, nil
}
