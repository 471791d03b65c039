package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	racetypes "github.com/tortuga-racing/tortuga/pkg/race/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS race_results (
	race_id        TEXT NOT NULL,
	racer_id       TEXT NOT NULL,
	name           TEXT NOT NULL,
	rank           INTEGER NOT NULL,
	distance       DOUBLE PRECISION NOT NULL,
	finish_time_ms DOUBLE PRECISION NOT NULL,
	finished       BOOLEAN NOT NULL,
	PRIMARY KEY (race_id, racer_id)
);
`

type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository connects to Postgres and ensures the results
// schema exists. The caller is responsible for calling Close.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) SaveRaceResult(ctx context.Context, result *racetypes.RaceResult) error {
	q := `
	INSERT INTO race_results (race_id, racer_id, name, rank, distance, finish_time_ms, finished)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (race_id, racer_id) DO UPDATE
	SET name = $3, rank = $4, distance = $5, finish_time_ms = $6, finished = $7;
	`
	_, err := r.conn.Exec(ctx, q, result.RaceID, result.RacerID, result.Name, result.Rank, result.Distance, result.FinishTimeMS, result.Finished)
	if err != nil {
		return fmt.Errorf("failed to insert race result: %v", err)
	}

	return nil
}

func (r *PostgresRepository) ListRaceResults(ctx context.Context, raceID string) ([]*racetypes.RaceResult, error) {
	q := `
	SELECT racer_id, name, rank, distance, finish_time_ms, finished
	FROM race_results WHERE race_id = $1 ORDER BY rank;
	`
	rows, err := r.conn.Query(ctx, q, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query race results: %v", err)
	}
	defer rows.Close()

	var results []*racetypes.RaceResult
	for rows.Next() {
		result := &racetypes.RaceResult{RaceID: raceID}
		if err := rows.Scan(&result.RacerID, &result.Name, &result.Rank, &result.Distance, &result.FinishTimeMS, &result.Finished); err != nil {
			return nil, fmt.Errorf("failed to scan race result: %v", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate race results: %v", err)
	}

	if len(results) == 0 {
		return nil, &ErrNotFound{}
	}

	return results, nil
}
