package repositories

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	racetypes "github.com/tortuga-racing/tortuga/pkg/race/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS race_results (
	race_id        TEXT NOT NULL,
	racer_id       TEXT NOT NULL,
	name           TEXT NOT NULL,
	rank           INTEGER NOT NULL,
	distance       REAL NOT NULL,
	finish_time_ms REAL NOT NULL,
	finished       INTEGER NOT NULL,
	PRIMARY KEY (race_id, racer_id)
);
`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveRaceResult(ctx context.Context, result *racetypes.RaceResult) error {
	q := `
	INSERT OR REPLACE INTO race_results (race_id, racer_id, name, rank, distance, finish_time_ms, finished)
	VALUES (?, ?, ?, ?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, q, result.RaceID, result.RacerID, result.Name, result.Rank, result.Distance, result.FinishTimeMS, result.Finished)
	if err != nil {
		return fmt.Errorf("failed to insert race result: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) ListRaceResults(ctx context.Context, raceID string) ([]*racetypes.RaceResult, error) {
	q := `
	SELECT racer_id, name, rank, distance, finish_time_ms, finished
	FROM race_results WHERE race_id = ? ORDER BY rank;
	`
	rows, err := r.db.QueryContext(ctx, q, raceID)
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
