package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/tortuga-racing/tortuga/pkg/connections"
	"github.com/tortuga-racing/tortuga/pkg/log"
	"github.com/tortuga-racing/tortuga/pkg/messages"
	"github.com/tortuga-racing/tortuga/pkg/queue"
	"github.com/tortuga-racing/tortuga/pkg/repositories"
)

// Server exposes the race over HTTP: a websocket endpoint for live
// observers, a health check, and a results endpoint backed by the
// repository.
type Server struct {
	port         int
	tls          *TLSConfig
	manager      *connections.Manager
	races        *RaceManager
	repository   repositories.Repository
	commandQueue queue.Queue
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewServerOptions struct {
	Port         int
	TLS          *TLSConfig
	Manager      *connections.Manager
	Races        *RaceManager
	Repository   repositories.Repository
	CommandQueue queue.Queue
}

func NewServer(opts NewServerOptions) *Server {
	return &Server{
		port:         opts.Port,
		tls:          opts.TLS,
		manager:      opts.Manager,
		races:        opts.Races,
		repository:   opts.Repository,
		commandQueue: opts.CommandQueue,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// queuedCommand pairs a parsed command with the connection it came from.
type queuedCommand struct {
	conn    *connections.Connection
	command *messages.ClientCommand
}

// Router returns the HTTP handler serving all server routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/races/current/results", s.handleResults).Methods(http.MethodGet)
	return r
}

// Start serves HTTP until ctx is canceled. The command dispatch loop runs
// for the same lifetime.
func (s *Server) Start(ctx context.Context) error {
	go s.dispatchCommands(ctx)

	addr := fmt.Sprintf(":%d", s.port)
	server := &http.Server{Addr: addr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	var listenAndServe func() error
	if s.tls != nil {
		log.Info("Server listening on %s with TLS", addr)
		listenAndServe = func() error {
			return server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("Server listening on %s", addr)
		listenAndServe = server.ListenAndServe
	}
	if err := listenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %v", err)
	}
	log.Info("Server closed")
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	raceID := s.races.CurrentRaceID()
	if raceID == "" {
		http.Error(w, "no race yet", http.StatusNotFound)
		return
	}

	results, err := s.repository.ListRaceResults(r.Context(), raceID)
	if err != nil {
		if repositories.IsNotFound(err) {
			http.Error(w, "no results for current race", http.StatusNotFound)
			return
		}
		log.Error("Failed to list race results: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		log.Error("Failed to encode race results: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	compressed := r.URL.Query().Get("compress") == "1"

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	log.Debug("New WebSocket connection from %s", wsConn.RemoteAddr().String())

	conn := s.manager.Connect(connections.NewWSTransport(wsConn), compressed)
	defer s.manager.Disconnect(conn.ID)

	s.sendSync(conn)

	for {
		_, b, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading WebSocket message from %s: %v", wsConn.RemoteAddr().String(), err)
			}
			log.Trace("Connection %s closed", conn.ID)
			return
		}
		conn.Touch()

		command, err := messages.ParseClientCommand(b)
		if err != nil {
			log.Warn("Ignoring malformed command from %s: %v", conn.ID, err)
			continue
		}

		if err := s.commandQueue.Enqueue(&queuedCommand{conn: conn, command: command}); err != nil {
			log.Error("Failed to enqueue command from %s (queue size %d): %v", conn.ID, s.commandQueue.Size(), err)
		}
	}
}

// sendSync sends the late-joiner payload. Before the first race the
// payload still carries the configured rates so clients can render an
// empty course.
func (s *Server) sendSync(conn *connections.Connection) {
	payload := messages.ServerSync{Type: messages.TypeSync}
	if data, ok := s.races.SyncData(); ok {
		payload.TrackLength = data.TrackLength
		payload.PhysicsHz = data.PhysicsHz
		payload.BroadcastHz = data.BroadcastHz
		payload.CurrentTick = data.CurrentTick
		payload.Snapshot = data.Snapshot
	} else {
		payload.TrackLength = s.races.config.TrackLength
		payload.PhysicsHz = s.races.config.TickRate
		payload.BroadcastHz = s.races.broadcastHz
	}

	b, err := json.Marshal(payload)
	if err != nil {
		log.Error("Failed to marshal sync payload: %v", err)
		return
	}
	if err := s.manager.SendTo(conn, b); err != nil {
		log.Warn("Failed to send sync payload to %s: %v", conn.ID, err)
	}
}

// dispatchCommands drains the command queue for the server's lifetime.
// Commands are applied one at a time so racing start/stop requests from
// different observers serialize cleanly.
func (s *Server) dispatchCommands(ctx context.Context) {
	for {
		item, err := s.commandQueue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Failed to dequeue command: %v", err)
			continue
		}

		s.applyQueued(item)
		// Apply whatever accumulated behind the first command in order
		// without re-entering the blocking dequeue.
		for _, pending := range s.commandQueue.ReadAllMessages() {
			s.applyQueued(pending)
		}
	}
}

func (s *Server) applyQueued(item interface{}) {
	queued, ok := item.(*queuedCommand)
	if !ok {
		log.Error("Unexpected item type in command queue: %T", item)
		return
	}
	s.handleCommand(queued.conn, queued.command)
}

func (s *Server) handleCommand(conn *connections.Connection, command *messages.ClientCommand) {
	switch command.Action {
	case messages.ActionStart:
		if err := s.races.StartRace(nil); err != nil {
			log.Error("Failed to start race: %v", err)
		}
	case messages.ActionStop:
		s.races.StopRace()
	case messages.ActionSetSpeed:
		s.races.SetSpeed(command.Speed)
	case messages.ActionPing:
		s.sendPong(conn)
	default:
		log.Warn("Unknown action %q from %s", command.Action, conn.ID)
	}
}

func (s *Server) sendPong(conn *connections.Connection) {
	b, err := json.Marshal(messages.ServerPong{
		Type:      messages.TypePong,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Millisecond),
	})
	if err != nil {
		log.Error("Failed to marshal pong: %v", err)
		return
	}
	if err := s.manager.SendTo(conn, b); err != nil {
		log.Warn("Failed to send pong to %s: %v", conn.ID, err)
	}
}
