package skim

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// LoadSQLite reads a skim database with a travel_times(origin, destination,
// seconds) table and an optional accessibility(zone, score) table.
func LoadSQLite(ctx context.Context, path string, defaultSeconds float64) (*Matrix, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open skim db: %w", err)
	}
	defer db.Close()

	var entries []Entry
	if err := db.SelectContext(ctx, &entries,
		`SELECT origin, destination, seconds FROM travel_times ORDER BY origin, destination`); err != nil {
		return nil, fmt.Errorf("select travel times: %w", err)
	}
	var scores []Score
	if err := db.SelectContext(ctx, &scores, `SELECT zone, score FROM accessibility ORDER BY zone`); err != nil {
		if !strings.Contains(err.Error(), "no such table") {
			return nil, fmt.Errorf("select accessibility: %w", err)
		}
		scores = nil
	}
	m := NewMatrix(defaultSeconds)
	m.Replace(entries, scores)
	return m, nil
}
