package workers

import (
	"context"
	"time"

	"github.com/tortuga-racing/tortuga/pkg/connections"
	"github.com/tortuga-racing/tortuga/pkg/log"
)

const (
	// DefaultCleanupInterval is how often the zombie scan runs.
	DefaultCleanupInterval = 10 * time.Second
	// DefaultZombieTimeout is the inactivity span after which a
	// connection is considered dead.
	DefaultZombieTimeout = 60 * time.Second
)

// ZombieCleanupWorker periodically evicts connections that have gone
// silent. One instance runs server-wide, independent of any race.
type ZombieCleanupWorker struct {
	manager  *connections.Manager
	interval time.Duration
	timeout  time.Duration
}

type NewZombieCleanupWorkerOptions struct {
	Manager  *connections.Manager
	Interval time.Duration
	Timeout  time.Duration
}

func NewZombieCleanupWorker(opts NewZombieCleanupWorkerOptions) *ZombieCleanupWorker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultZombieTimeout
	}
	return &ZombieCleanupWorker{
		manager:  opts.Manager,
		interval: interval,
		timeout:  timeout,
	}
}

func (w *ZombieCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := w.manager.CleanupZombies(w.timeout); removed > 0 {
				log.Info("Evicted %d zombie connections", removed)
			}
		}
	}
}
