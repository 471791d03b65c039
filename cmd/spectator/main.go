package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"nhooyr.io/websocket"

	"github.com/tortuga-racing/tortuga/pkg/log"
	"github.com/tortuga-racing/tortuga/pkg/messages"
	"github.com/tortuga-racing/tortuga/pkg/race/types"
)

// spectator is a headless race observer: it connects to a race server,
// optionally starts a race, and prints the standings as frames arrive.
func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "Race server websocket URL")
	logLevel := flag.String("log-level", "info", "Log level")
	compress := flag.Bool("compress", false, "Request zstd-compressed snapshot frames")
	autostart := flag.Bool("start", false, "Send a start command after connecting")
	sendStop := flag.Bool("stop", false, "Send a stop command after connecting")
	speed := flag.Int("speed", 0, "Speed multiplier to request (1, 2 or 4; 0 leaves it alone)")
	pingInterval := flag.Duration("ping-interval", 15*time.Second, "Keepalive ping interval")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	log.SetDefaultLogger(log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := *serverURL
	if *compress {
		url += "?compress=1"
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		log.Error("Failed to dial %s: %v", url, err)
		os.Exit(1)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	log.Info("Connected to %s", url)

	if *autostart {
		if err := sendCommand(ctx, conn, messages.ClientCommand{Action: messages.ActionStart}); err != nil {
			log.Error("Failed to send start command: %v", err)
			os.Exit(1)
		}
	}
	if *sendStop {
		if err := sendCommand(ctx, conn, messages.ClientCommand{Action: messages.ActionStop}); err != nil {
			log.Error("Failed to send stop command: %v", err)
			os.Exit(1)
		}
	}
	if *speed != 0 {
		if err := sendCommand(ctx, conn, messages.ClientCommand{Action: messages.ActionSetSpeed, Speed: *speed}); err != nil {
			log.Error("Failed to send set_speed command: %v", err)
			os.Exit(1)
		}
	}

	go keepalive(ctx, conn, *pingInterval)

	for {
		_, b, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Spectator stopped")
				return
			}
			log.Error("Read error: %v", err)
			os.Exit(1)
		}

		// Only snapshot broadcasts are compressed; sync and pong frames
		// arrive as plain JSON either way.
		if *compress {
			if decompressed, err := messages.Decompress(b); err == nil {
				b = decompressed
			}
		}

		if done := handleFrame(b); done {
			return
		}
	}
}

func sendCommand(ctx context.Context, conn *websocket.Conn, command messages.ClientCommand) error {
	b, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %v", err)
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func keepalive(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sendCommand(ctx, conn, messages.ClientCommand{Action: messages.ActionPing}); err != nil {
				log.Debug("Keepalive ping failed: %v", err)
				return
			}
		}
	}
}

// handleFrame prints one server frame. It returns true once the final
// snapshot of a race has been seen.
func handleFrame(b []byte) bool {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		log.Warn("Unreadable frame: %v", err)
		return false
	}

	switch envelope.Type {
	case messages.TypeSync:
		var payload messages.ServerSync
		if err := json.Unmarshal(b, &payload); err != nil {
			log.Warn("Bad sync frame: %v", err)
			return false
		}
		log.Info("Synced: track %.0f units, physics %d Hz, broadcast %d Hz, at tick %d",
			payload.TrackLength, payload.PhysicsHz, payload.BroadcastHz, payload.CurrentTick)
		return false
	case messages.TypePong:
		log.Debug("Pong received")
		return false
	}

	snapshot, err := messages.DeserializeSnapshot(b)
	if err != nil {
		log.Warn("Bad snapshot frame: %v", err)
		return false
	}
	printStandings(snapshot)
	return snapshot.Finished
}

func printStandings(snapshot *types.RaceSnapshot) {
	standings := append([]types.RacerState{}, snapshot.Turtles...)
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].X > standings[j].X
	})

	fmt.Printf("tick %6d  %7.1fs  ", snapshot.Tick, snapshot.ElapsedMS/1000)
	for i, racer := range standings {
		if i > 0 {
			fmt.Print(" | ")
		}
		marker := ""
		if racer.IsResting {
			marker = " (resting)"
		}
		if racer.Finished {
			marker = fmt.Sprintf(" (#%d)", racer.Rank)
		}
		fmt.Printf("%s %.0f%s", racer.Name, racer.X, marker)
	}
	fmt.Println()

	if snapshot.Finished {
		if snapshot.WinnerID != "" {
			log.Info("Race %s finished, winner %s", snapshot.CourseID, snapshot.WinnerID)
		} else {
			log.Info("Race %s finished in a draw", snapshot.CourseID)
		}
	}
}
