// Package db caches fitted activities and the split plans made for them in
// SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"

	"github.com/jrgparkinson/tracksplits/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// Store is a handle on the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at dbPath and sets up
// the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	schema := `
    CREATE TABLE IF NOT EXISTS activities (
        id INTEGER PRIMARY KEY,       -- Strava activity id
        name TEXT NOT NULL,
        fetched_at DATETIME NOT NULL,
        race TEXT NOT NULL,           -- display name of the fitted race
        payload_json TEXT NOT NULL    -- FitResult as returned by the fitting service
    );
    CREATE TABLE IF NOT EXISTS split_plans (
        id TEXT PRIMARY KEY,
        activity_id INTEGER NOT NULL,
        race TEXT NOT NULL,
        interval REAL NOT NULL,
        start_at_finish INTEGER NOT NULL,
        distances_json TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS split_plans_activity ON split_plans (activity_id, created_at);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.WithField("path", dbPath).Info("Database initialized successfully")
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertActivity stores a fit result, replacing any earlier copy. Results
// without an activity id (uploads) are not cached.
func (s *Store) InsertActivity(ctx context.Context, res *models.FitResult) error {
	if res.ActivityID == nil {
		return nil
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode activity: %w", err)
	}
	stmt := `INSERT OR REPLACE INTO activities (id, name, fetched_at, race, payload_json) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt, *res.ActivityID, res.ActivityName,
		time.Now().UTC().Format(timeLayout), res.Race.DisplayName, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// GetActivities returns every cached activity, newest first. Payloads are
// not loaded.
func (s *Store) GetActivities(ctx context.Context) ([]models.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, fetched_at, race FROM activities ORDER BY fetched_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var act models.Activity
		var ts string
		if err := rows.Scan(&act.ID, &act.Name, &ts, &act.Race); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		act.FetchedAt = parseTime(ts)
		activities = append(activities, act)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activities: %w", err)
	}
	return activities, nil
}

// GetActivityByID returns a cached fit result, or nil if the activity has
// not been cached.
func (s *Store) GetActivityByID(ctx context.Context, id int64) (*models.FitResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload_json FROM activities WHERE id = ?`, id)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil // Not cached
	} else if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}

	var res models.FitResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("failed to decode cached activity %d: %w", id, err)
	}
	return &res, nil
}

// SavePlan records a split plan made for an activity.
func (s *Store) SavePlan(ctx context.Context, p models.StoredPlan) (models.StoredPlan, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	distances, err := json.Marshal(p.Distances)
	if err != nil {
		return p, fmt.Errorf("failed to encode plan: %w", err)
	}
	stmt := `INSERT INTO split_plans (id, activity_id, race, interval, start_at_finish, distances_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt, p.ID, p.ActivityID, p.Race, p.Interval, p.StartAtFinish,
		string(distances), p.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return p, fmt.Errorf("failed to insert plan: %w", err)
	}
	return p, nil
}

// LatestPlan returns the most recent plan saved for an activity, or nil.
func (s *Store) LatestPlan(ctx context.Context, activityID int64) (*models.StoredPlan, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, activity_id, race, interval, start_at_finish, distances_json, created_at
        FROM split_plans WHERE activity_id = ?
        ORDER BY created_at DESC, rowid DESC LIMIT 1`, activityID)

	var p models.StoredPlan
	var distances, ts string
	err := row.Scan(&p.ID, &p.ActivityID, &p.Race, &p.Interval, &p.StartAtFinish, &distances, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if err := json.Unmarshal([]byte(distances), &p.Distances); err != nil {
		return nil, fmt.Errorf("failed to decode plan %s: %w", p.ID, err)
	}
	p.CreatedAt = parseTime(ts)
	return &p, nil
}

func parseTime(ts string) time.Time {
	// go-sqlite3 hands DATETIME columns back as RFC 3339 text.
	for _, layout := range []string{time.RFC3339Nano, timeLayout} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Time{}
}
