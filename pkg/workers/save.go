package workers

import (
	"context"
	"fmt"

	"github.com/tortuga-racing/tortuga/pkg/log"
	racetypes "github.com/tortuga-racing/tortuga/pkg/race/types"
	"github.com/tortuga-racing/tortuga/pkg/repositories"
)

// SaveResultsWorker drains race results off a channel and persists them,
// keeping repository latency out of the race loop.
type SaveResultsWorker struct {
	repository repositories.Repository
	resultChan <-chan *racetypes.RaceResult
}

type NewSaveResultsWorkerOptions struct {
	Repository repositories.Repository
	ResultChan <-chan *racetypes.RaceResult
}

func NewSaveResultsWorker(opts NewSaveResultsWorkerOptions) *SaveResultsWorker {
	return &SaveResultsWorker{
		repository: opts.Repository,
		resultChan: opts.ResultChan,
	}
}

func (w *SaveResultsWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case result := <-w.resultChan:
			w.save(result)
		}
	}
}

// drain persists whatever is still buffered when the worker is told to
// stop, so results handed off during shutdown reach the repository.
func (w *SaveResultsWorker) drain() {
	for {
		select {
		case result := <-w.resultChan:
			w.save(result)
		default:
			return
		}
	}
}

// save runs to completion once a result is dequeued, independent of the
// worker's lifecycle context, so a cancellation mid-save loses nothing.
func (w *SaveResultsWorker) save(result *racetypes.RaceResult) {
	if err := w.repository.SaveRaceResult(context.Background(), result); err != nil {
		log.Error("Failed to save result for racer %s in race %s: %v", result.RacerID, result.RaceID, err)
	}
}

// ChannelResultSaver satisfies the orchestrator's ResultSaver by handing
// results to the save worker's channel without blocking.
type ChannelResultSaver struct {
	resultChan chan<- *racetypes.RaceResult
}

func NewChannelResultSaver(resultChan chan<- *racetypes.RaceResult) *ChannelResultSaver {
	return &ChannelResultSaver{
		resultChan: resultChan,
	}
}

func (s *ChannelResultSaver) SaveResult(result *racetypes.RaceResult) error {
	select {
	case s.resultChan <- result:
		return nil
	default:
		return fmt.Errorf("result channel is full")
	}
}
