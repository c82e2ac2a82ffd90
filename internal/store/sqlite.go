package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/hourlyagg/internal/models"
)

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the SQLite database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		log.Printf("store: set busy timeout: %v", err)
	}

	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertDailyAggregates records the aggregates for sourceURL, replacing any
// earlier values for the same dates.
func (s *Store) UpsertDailyAggregates(runID int64, sourceURL string, aggs []models.DailyAggregate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_aggregates (source_url, date, temperature, rain, showers, visibility, hours, ingest_run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_url, date) DO UPDATE SET
			temperature = excluded.temperature,
			rain = excluded.rain,
			showers = excluded.showers,
			visibility = excluded.visibility,
			hours = excluded.hours,
			ingest_run_id = excluded.ingest_run_id,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	var ingestRunID sql.NullInt64
	if runID > 0 {
		ingestRunID = sql.NullInt64{Int64: runID, Valid: true}
	}
	now := time.Now().UTC()
	for _, a := range aggs {
		if _, err := stmt.Exec(sourceURL, a.Date.String(), a.Temperature, a.Rain, a.Showers, a.Visibility, a.Hours, ingestRunID, now); err != nil {
			return fmt.Errorf("upsert %s: %w", a.Date, err)
		}
	}

	return tx.Commit()
}

// GetDailyAggregates returns the stored aggregates for sourceURL in date order.
func (s *Store) GetDailyAggregates(sourceURL string) ([]models.DailyAggregate, error) {
	rows, err := s.db.Query(`
		SELECT date, temperature, rain, showers, visibility, hours
		FROM daily_aggregates
		WHERE source_url = ?
		ORDER BY date ASC
	`, sourceURL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggs []models.DailyAggregate
	for rows.Next() {
		var a models.DailyAggregate
		var date string
		if err := rows.Scan(&date, &a.Temperature, &a.Rain, &a.Showers, &a.Visibility, &a.Hours); err != nil {
			return nil, err
		}
		t, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", date, err)
		}
		a.Date = models.DateOf(t)
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}
