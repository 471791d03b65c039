package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tortuga-racing/tortuga/pkg/connections"
	"github.com/tortuga-racing/tortuga/pkg/queue"
	racetypes "github.com/tortuga-racing/tortuga/pkg/race/types"
	"github.com/tortuga-racing/tortuga/pkg/repositories"
)

type fakeSaver struct {
	mu      sync.Mutex
	results []*racetypes.RaceResult
}

func (s *fakeSaver) SaveResult(result *racetypes.RaceResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *fakeSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

type fakeRepository struct {
	results []*racetypes.RaceResult
}

func (r *fakeRepository) Close(_ context.Context) error {
	return nil
}

func (r *fakeRepository) SaveRaceResult(_ context.Context, result *racetypes.RaceResult) error {
	r.results = append(r.results, result)
	return nil
}

func (r *fakeRepository) ListRaceResults(_ context.Context, raceID string) ([]*racetypes.RaceResult, error) {
	var matched []*racetypes.RaceResult
	for _, result := range r.results {
		if result.RaceID == raceID {
			matched = append(matched, result)
		}
	}
	if len(matched) == 0 {
		return nil, &repositories.ErrNotFound{}
	}
	return matched, nil
}

type testHarness struct {
	server     *Server
	races      *RaceManager
	saver      *fakeSaver
	repository *fakeRepository
	httpServer *httptest.Server
	cancel     context.CancelFunc
}

func newTestHarness(t *testing.T, config racetypes.RaceConfig) *testHarness {
	t.Helper()

	manager := connections.NewManager()
	saver := &fakeSaver{}
	repository := &fakeRepository{}
	races := NewRaceManager(NewRaceManagerOptions{
		Broadcaster: manager,
		Saver:       saver,
		Config:      config,
		BroadcastHz: 20,
		Seed:        42,
	})
	server := NewServer(NewServerOptions{
		Manager:      manager,
		Races:        races,
		Repository:   repository,
		CommandQueue: queue.NewInMemoryQueue(16),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go server.dispatchCommands(ctx)

	httpServer := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		races.StopRace()
		cancel()
		httpServer.Close()
	})

	return &testHarness{
		server:     server,
		races:      races,
		saver:      saver,
		repository: repository,
		httpServer: httpServer,
		cancel:     cancel,
	}
}

func (h *testHarness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.httpServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &frame))
	return frame
}

func defaultConfig() racetypes.RaceConfig {
	return racetypes.RaceConfig{
		TrackLength: 1000,
		TickRate:    30,
		MaxTicks:    10000,
	}
}

func TestServer_SyncOnConnect(t *testing.T) {
	h := newTestHarness(t, defaultConfig())

	conn := h.dial(t)
	frame := readFrame(t, conn)

	assert.Equal(t, "sync", frame["type"])
	assert.Equal(t, float64(1000), frame["track_length"])
	assert.Equal(t, float64(30), frame["physics_hz"])
	assert.Equal(t, float64(20), frame["broadcast_hz"])
}

func TestServer_PingPong(t *testing.T) {
	h := newTestHarness(t, defaultConfig())

	conn := h.dial(t)
	readFrame(t, conn) // sync

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))
	frame := readFrame(t, conn)

	assert.Equal(t, "pong", frame["type"])
	assert.Greater(t, frame["timestamp"].(float64), float64(0))
}

func TestServer_MalformedCommandKeepsConnection(t *testing.T) {
	h := newTestHarness(t, defaultConfig())

	conn := h.dial(t)
	readFrame(t, conn) // sync

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))

	frame := readFrame(t, conn)
	assert.Equal(t, "pong", frame["type"])
}

func TestServer_StartRaceBroadcastsToCompletion(t *testing.T) {
	config := racetypes.RaceConfig{
		TrackLength: 20,
		TickRate:    30,
		MaxTicks:    10000,
	}
	h := newTestHarness(t, config)

	conn := h.dial(t)
	readFrame(t, conn) // sync

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"start"}`)))

	var lastTick float64
	for {
		frame := readFrame(t, conn)
		if _, isTyped := frame["type"]; isTyped {
			continue
		}
		tick := frame["tick"].(float64)
		assert.GreaterOrEqual(t, tick, lastTick)
		lastTick = tick
		if finished, ok := frame["finished"].(bool); ok && finished {
			break
		}
	}

	assert.NotEmpty(t, h.races.CurrentRaceID())
	assert.Eventually(t, func() bool {
		return h.saver.count() == FieldSize
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_CommandBurstIsAppliedInOrder(t *testing.T) {
	h := newTestHarness(t, defaultConfig())

	conn := h.dial(t)
	readFrame(t, conn) // sync

	// Back-to-back commands pile up in the queue; every one is applied.
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))
	}
	for i := 0; i < 3; i++ {
		frame := readFrame(t, conn)
		assert.Equal(t, "pong", frame["type"])
	}
}

func TestServer_StartWhileRunningIsNoop(t *testing.T) {
	h := newTestHarness(t, defaultConfig())

	require.NoError(t, h.races.StartRace(nil))
	firstID := h.races.CurrentRaceID()
	require.NoError(t, h.races.StartRace(nil))

	assert.Equal(t, firstID, h.races.CurrentRaceID())
}

func TestServer_ResultsEndpoint(t *testing.T) {
	h := newTestHarness(t, defaultConfig())

	resp, err := http.Get(h.httpServer.URL + "/races/current/results")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	h.races.mu.Lock()
	h.races.currentID = "race-1"
	h.races.mu.Unlock()
	h.repository.results = []*racetypes.RaceResult{
		{RaceID: "race-1", RacerID: "t1", Name: "Sheldon", Rank: 1, Distance: 1000, FinishTimeMS: 20000, Finished: true},
		{RaceID: "race-1", RacerID: "t2", Name: "Crush", Rank: 2, Distance: 980, Finished: false},
	}

	resp, err = http.Get(h.httpServer.URL + "/races/current/results")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var results []*racetypes.RaceResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 2)
	assert.Equal(t, "Sheldon", results[0].Name)
	assert.Equal(t, 1, results[0].Rank)
}

func TestServer_Healthz(t *testing.T) {
	h := newTestHarness(t, defaultConfig())

	resp, err := http.Get(h.httpServer.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRaceManager_RosterPadding(t *testing.T) {
	rm := NewRaceManager(NewRaceManagerOptions{Seed: 7})

	house := rm.buildRoster(nil)
	require.Len(t, house, FieldSize)
	for _, racer := range house {
		assert.True(t, racer.Persistent())
		assert.NotEmpty(t, racer.Genome())
	}

	entrant := house[0]
	padded := rm.buildRoster([]racetypes.Racer{entrant})
	require.Len(t, padded, FieldSize)
	assert.True(t, padded[0].Persistent())
	for _, racer := range padded[1:] {
		assert.False(t, racer.Persistent())
	}
}
