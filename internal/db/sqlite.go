package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"testlab/internal/testlab"
)

const sqliteTimeLayout = time.RFC3339Nano

var _ Store = (*SQLite)(nil)

// SQLite is a Store backed by a local SQLite file
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// NewSQLite opens (creating if needed) the database at path
func NewSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLite, error) {
	if path == "" {
		path = "testlab.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, log: log, now: time.Now}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init creates the schema
func (s *SQLite) init(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS "match" (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			test_group_id INTEGER NOT NULL,
			start_timestamp TEXT NOT NULL,
			end_timestamp TEXT,
			map_name TEXT NOT NULL,
			opponent_race TEXT NOT NULL,
			opponent_difficulty TEXT NOT NULL,
			opponent_build TEXT NOT NULL,
			result TEXT NOT NULL,
			duration_in_game_time INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_match_group ON "match" (test_group_id);

		CREATE TABLE IF NOT EXISTS match_event (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id INTEGER NOT NULL REFERENCES "match" (id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			message TEXT NOT NULL,
			game_timestamp REAL NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_match_event_type ON match_event (type, match_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

const sqliteMatchColumns = `id, test_group_id, start_timestamp, end_timestamp, map_name,
	opponent_race, opponent_difficulty, opponent_build, result, duration_in_game_time`

func scanSQLiteMatch(scan func(dest ...any) error) (matchRow, error) {
	var r matchRow
	var start string
	var end sql.NullString
	if err := scan(&r.ID, &r.Group, &start, &end, &r.MapName,
		&r.Race, &r.Difficulty, &r.Build, &r.Result, &r.Duration); err != nil {
		return r, err
	}

	t, err := time.Parse(sqliteTimeLayout, start)
	if err != nil {
		return r, fmt.Errorf("match %d start_timestamp: %w", r.ID, err)
	}
	r.Start = t
	if end.Valid && end.String != "" {
		t, err := time.Parse(sqliteTimeLayout, end.String)
		if err != nil {
			return r, fmt.Errorf("match %d end_timestamp: %w", r.ID, err)
		}
		r.End = &t
	}
	return r, nil
}

// ListMatches returns matches passing filter, ordered by id
func (s *SQLite) ListMatches(ctx context.Context, filter testlab.MatchFilter) ([]*testlab.Match, error) {
	var where []string
	var args []any
	if filter.ExcludeGroup != nil {
		where = append(where, "test_group_id != ?")
		args = append(args, *filter.ExcludeGroup)
	}
	if filter.Difficulty != "" {
		where = append(where, "opponent_difficulty = ?")
		args = append(args, string(filter.Difficulty))
	}

	query := `SELECT ` + sqliteMatchColumns + ` FROM "match"`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []*testlab.Match
	for rows.Next() {
		raw, err := scanSQLiteMatch(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m, err := raw.decode()
		if err != nil {
			s.log.Warn("Skipping match with unknown value", zap.Int64("match_id", raw.ID), zap.Error(err))
			continue
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ListBuildingEvents returns Building events with their match's group and result
func (s *SQLite) ListBuildingEvents(ctx context.Context) ([]testlab.BuildingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.test_group_id, e.match_id, m.result, e.message, e.game_timestamp
		FROM match_event e
		JOIN "match" m ON m.id = e.match_id
		WHERE e.type = ?
		ORDER BY m.test_group_id, e.message, e.match_id
	`, testlab.BuildingEventType)
	if err != nil {
		return nil, fmt.Errorf("failed to query building events: %w", err)
	}
	defer rows.Close()

	var events []testlab.BuildingEvent
	for rows.Next() {
		var r buildingRow
		if err := rows.Scan(&r.Group, &r.MatchID, &r.Result, &r.Building, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan building event: %w", err)
		}
		ev, err := r.decode()
		if err != nil {
			s.log.Warn("Skipping building event with unknown result", zap.Int64("match_id", r.MatchID), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// FindMatch returns the match with id
func (s *SQLite) FindMatch(ctx context.Context, id int64) (*testlab.Match, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteMatchColumns+` FROM "match" WHERE id = ?`, id)
	raw, err := scanSQLiteMatch(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %d: %w", id, err)
	}
	return raw.decode()
}

// NextTestGroupID returns 0 when no match has finished yet
func (s *SQLite) NextTestGroupID(ctx context.Context) (int, error) {
	var maxGroup sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(test_group_id) FROM "match" WHERE end_timestamp IS NOT NULL`).Scan(&maxGroup)
	if err != nil {
		return 0, fmt.Errorf("failed to query max test group: %w", err)
	}
	if !maxGroup.Valid {
		return 0, nil
	}
	return int(maxGroup.Int64) + 1, nil
}

// CreatePendingMatch inserts a Pending match with no map yet
func (s *SQLite) CreatePendingMatch(ctx context.Context, p PendingMatch) (int64, error) {
	if err := p.Normalize(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO "match" (test_group_id, start_timestamp, map_name, opponent_race,
			opponent_difficulty, opponent_build, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.TestGroupID, s.now().UTC().Format(sqliteTimeLayout), testlab.UnassignedMap,
		string(p.Race), string(p.Difficulty), string(p.Build), string(testlab.Pending))
	if err != nil {
		return 0, fmt.Errorf("failed to insert pending match: %w", err)
	}
	return res.LastInsertId()
}

// RecordResult updates a match with its outcome
func (s *SQLite) RecordResult(ctx context.Context, r MatchResult) error {
	end := r.EndTime
	if end.IsZero() {
		end = s.now()
	}
	var duration any
	if r.DurationSeconds != nil {
		duration = *r.DurationSeconds
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE "match"
		SET result = ?, map_name = COALESCE(NULLIF(?, ''), map_name),
			duration_in_game_time = ?, end_timestamp = ?
		WHERE id = ?
	`, string(r.Result), r.MapName, duration, end.UTC().Format(sqliteTimeLayout), r.MatchID)
	if err != nil {
		return fmt.Errorf("failed to record result for match %d: %w", r.MatchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("match %d: %w", r.MatchID, ErrNotFound)
	}
	return nil
}

// InsertEvents bulk inserts events using a single transaction
func (s *SQLite) InsertEvents(ctx context.Context, events []testlab.MatchEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after Commit()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO match_event (match_id, type, message, game_timestamp)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare match_event statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.MatchID, ev.Type, ev.Message, ev.GameTimestamp); err != nil {
			return 0, fmt.Errorf("failed to insert event for match %d: %w", ev.MatchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(events), nil
}
