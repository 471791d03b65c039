package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tortuga-racing/tortuga/pkg/connections"
	"github.com/tortuga-racing/tortuga/pkg/log"
	"github.com/tortuga-racing/tortuga/pkg/queue"
	racetypes "github.com/tortuga-racing/tortuga/pkg/race/types"
	"github.com/tortuga-racing/tortuga/pkg/repositories"
	"github.com/tortuga-racing/tortuga/pkg/server"
	"github.com/tortuga-racing/tortuga/pkg/workers"
)

func main() {
	port := flag.Int("port", 8080, "HTTP port to listen on")
	logLevel := flag.String("log-level", "info", "Log level")
	trackLength := flag.Float64("track-length", 1000, "Track length in course units")
	tickRate := flag.Int("tick-rate", 30, "Physics ticks per second")
	broadcastHz := flag.Int("broadcast-hz", 10, "Snapshot broadcasts per second")
	maxTicks := flag.Int64("max-ticks", 30*60*30, "Tick ceiling before a race is declared a draw")
	sqlitePath := flag.String("sqlite-path", "tortuga.db", "SQLite database path (used when DATABASE_URL is unset)")
	cleanupInterval := flag.Duration("cleanup-interval", workers.DefaultCleanupInterval, "Zombie connection sweep interval")
	zombieTimeout := flag.Duration("zombie-timeout", workers.DefaultZombieTimeout, "Idle duration after which a connection is evicted")
	certFile := flag.String("cert-file", "", "TLS certificate file")
	keyFile := flag.String("key-file", "", "TLS key file")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repository repositories.Repository
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		repository, err = repositories.NewPostgresRepository(ctx, connStr)
	} else {
		repository, err = repositories.NewSQLiteRepository(ctx, *sqlitePath)
	}
	if err != nil {
		panic(fmt.Sprintf("Failed to open repository: %v", err))
	}
	defer repository.Close(ctx)

	manager := connections.NewManager()

	resultChan := make(chan *racetypes.RaceResult, 100)
	saveWorker := workers.NewSaveResultsWorker(workers.NewSaveResultsWorkerOptions{
		Repository: repository,
		ResultChan: resultChan,
	})
	cleanupWorker := workers.NewZombieCleanupWorker(workers.NewZombieCleanupWorkerOptions{
		Manager:  manager,
		Interval: *cleanupInterval,
		Timeout:  *zombieTimeout,
	})

	races := server.NewRaceManager(server.NewRaceManagerOptions{
		Broadcaster: manager,
		Saver:       workers.NewChannelResultSaver(resultChan),
		Config: racetypes.RaceConfig{
			TrackLength: *trackLength,
			TickRate:    *tickRate,
			MaxTicks:    *maxTicks,
		},
		BroadcastHz: *broadcastHz,
	})

	var tlsConfig *server.TLSConfig
	if *certFile != "" && *keyFile != "" {
		tlsConfig = &server.TLSConfig{CertFile: *certFile, KeyFile: *keyFile}
	}
	srv := server.NewServer(server.NewServerOptions{
		Port:         *port,
		TLS:          tlsConfig,
		Manager:      manager,
		Races:        races,
		Repository:   repository,
		CommandQueue: queue.NewInMemoryQueue(1000),
	})

	// The save worker outlives the errgroup context: it is released only
	// after StopRace has completed the final persistence pass, and it
	// drains the channel on its way out, so shutdown never loses results.
	saveCtx, stopSaver := context.WithCancel(context.Background())
	defer stopSaver()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		saveWorker.Start(saveCtx)
		return nil
	})
	g.Go(func() error {
		cleanupWorker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		races.StopRace()
		stopSaver()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error: %v", err)
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}
