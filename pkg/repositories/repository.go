package repositories

import (
	"context"

	racetypes "github.com/tortuga-racing/tortuga/pkg/race/types"
)

type Repository interface {
	Close(ctx context.Context) error
	SaveRaceResult(ctx context.Context, result *racetypes.RaceResult) error
	ListRaceResults(ctx context.Context, raceID string) ([]*racetypes.RaceResult, error)
}
