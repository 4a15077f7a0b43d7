// Package store caches tide and level predictions in SQLite so the display
// keeps working across restarts and short network outages.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/tide-display/internal/logic"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when the cache holds nothing for a query.
var ErrNotFound = errors.New("not cached")

const schema = `
CREATE TABLE IF NOT EXISTS tide_predictions (
	station TEXT NOT NULL,
	t INTEGER NOT NULL,
	kind TEXT NOT NULL,
	PRIMARY KEY (station, t)
);
CREATE TABLE IF NOT EXISTS tide_ranges (
	station TEXT NOT NULL,
	begin_t INTEGER NOT NULL,
	end_t INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS level_predictions (
	station TEXT NOT NULL,
	day TEXT NOT NULL,
	idx INTEGER NOT NULL,
	level REAL NOT NULL,
	PRIMARY KEY (station, day, idx)
);
`

// Store is a prediction cache backed by a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; also keeps ":memory:" to a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTides records the hi/lo predictions fetched for [begin, end).
// Predictions already cached for the same times are replaced.
func (s *Store) SaveTides(station string, begin, end time.Time, events []logic.TideEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO tide_predictions (station, t, kind) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if !e.Available() {
			continue
		}
		if _, err := stmt.Exec(station, e.Time.Unix(), e.Kind.String()); err != nil {
			return fmt.Errorf("saving tide at %s: %w", e.Time.Format(time.RFC3339), err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO tide_ranges (station, begin_t, end_t) VALUES (?, ?, ?)`,
		station, begin.Unix(), end.Unix()); err != nil {
		return fmt.Errorf("saving tide range: %w", err)
	}
	return tx.Commit()
}

// TidesAfter returns cached predictions strictly after t, earliest first.
// Only predictions from a fetched range covering t are returned, so a gap
// in the cache never hides a tide.
func (s *Store) TidesAfter(station string, t time.Time) ([]logic.TideEvent, error) {
	var end sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(end_t) FROM tide_ranges WHERE station = ? AND begin_t <= ? AND end_t > ?`,
		station, t.Unix(), t.Unix()).Scan(&end)
	if err != nil {
		return nil, fmt.Errorf("querying tide ranges: %w", err)
	}
	if !end.Valid {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(
		`SELECT t, kind FROM tide_predictions WHERE station = ? AND t > ? AND t < ? ORDER BY t`,
		station, t.Unix(), end.Int64)
	if err != nil {
		return nil, fmt.Errorf("querying tides: %w", err)
	}
	defer rows.Close()

	var events []logic.TideEvent
	for rows.Next() {
		var unix int64
		var kind string
		if err := rows.Scan(&unix, &kind); err != nil {
			return nil, fmt.Errorf("scanning tide: %w", err)
		}
		e := logic.TideEvent{Time: time.Unix(unix, 0).UTC()}
		switch kind {
		case logic.TideHigh.String():
			e.Kind = logic.TideHigh
		case logic.TideLow.String():
			e.Kind = logic.TideLow
		default:
			continue
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading tides: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events, nil
}

// SaveLevels records a day's six-minute level predictions for station.
func (s *Store) SaveLevels(station string, day time.Time, levels []float64) error {
	key := dayKey(day)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM level_predictions WHERE station = ? AND day = ?`, station, key); err != nil {
		return fmt.Errorf("clearing levels for %s: %w", key, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO level_predictions (station, day, idx, level) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, v := range levels {
		if _, err := stmt.Exec(station, key, i, v); err != nil {
			return fmt.Errorf("saving level %d for %s: %w", i, key, err)
		}
	}
	return tx.Commit()
}

// Levels returns the cached six-minute predictions for day, in index order.
func (s *Store) Levels(station string, day time.Time) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT level FROM level_predictions WHERE station = ? AND day = ? ORDER BY idx`,
		station, dayKey(day))
	if err != nil {
		return nil, fmt.Errorf("querying levels: %w", err)
	}
	defer rows.Close()

	var levels []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning level: %w", err)
		}
		levels = append(levels, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading levels: %w", err)
	}
	if len(levels) == 0 {
		return nil, ErrNotFound
	}
	return levels, nil
}

// Prune drops predictions older than before.
func (s *Store) Prune(before time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM tide_predictions WHERE t < ?`, before.Unix()); err != nil {
		return fmt.Errorf("pruning tides: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM tide_ranges WHERE end_t < ?`, before.Unix()); err != nil {
		return fmt.Errorf("pruning tide ranges: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM level_predictions WHERE day < ?`, dayKey(before)); err != nil {
		return fmt.Errorf("pruning levels: %w", err)
	}
	return nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
