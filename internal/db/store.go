// Package db persists test lab matches and events.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"testlab/internal/testlab"
)

// ErrNotFound is returned when a match id does not exist
var ErrNotFound = errors.New("match not found")

// Store is the record store the reports read from
type Store interface {
	// ListMatches returns matches ordered by id
	ListMatches(ctx context.Context, filter testlab.MatchFilter) ([]*testlab.Match, error)

	// ListBuildingEvents returns every Building event joined with its match
	ListBuildingEvents(ctx context.Context) ([]testlab.BuildingEvent, error)

	// FindMatch returns one match or ErrNotFound
	FindMatch(ctx context.Context, id int64) (*testlab.Match, error)

	// NextTestGroupID is one past the newest group with a finished match
	NextTestGroupID(ctx context.Context) (int, error)

	// CreatePendingMatch queues a match that a runner will play
	CreatePendingMatch(ctx context.Context, p PendingMatch) (int64, error)

	// RecordResult stores the outcome of a queued match
	RecordResult(ctx context.Context, r MatchResult) error

	// InsertEvents stores events in one transaction and returns how many were written
	InsertEvents(ctx context.Context, events []testlab.MatchEvent) (int, error)

	Close() error
}

// PendingMatch describes a match about to be launched
type PendingMatch struct {
	TestGroupID int
	Race        testlab.Race
	Build       testlab.Build
	Difficulty  testlab.Difficulty
}

// MatchResult is what the runner reports when a match ends
type MatchResult struct {
	MatchID         int64
	Result          testlab.Result
	MapName         string
	DurationSeconds *int
	EndTime         time.Time
}

// Normalize fills the default difficulty and canonicalizes casing, so
// "zerg"/"rush" from a runner become Zerg/Rush.
func (p *PendingMatch) Normalize() error {
	race, err := testlab.ParseRace(string(p.Race))
	if err != nil {
		return err
	}
	build, err := testlab.ParseBuild(string(p.Build))
	if err != nil {
		return err
	}
	if p.Difficulty == "" {
		p.Difficulty = testlab.DefaultDifficulty
	}
	difficulty, err := testlab.ParseDifficulty(string(p.Difficulty))
	if err != nil {
		return err
	}
	p.Race, p.Build, p.Difficulty = race, build, difficulty
	return nil
}

// Config selects and configures a backend
type Config struct {
	Driver     string // "sqlite" or "postgres"
	URL        string // postgres connection string
	SQLitePath string
}

// Open connects to the configured backend and makes sure the schema exists
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql", "pgx":
		return NewPostgres(ctx, cfg.URL, log)
	case "", "sqlite", "sqlite3":
		return NewSQLite(ctx, cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// matchRow is a match as scanned, before enum validation
type matchRow struct {
	ID         int64
	Group      int
	Start      time.Time
	End        *time.Time
	MapName    string
	Race       string
	Difficulty string
	Build      string
	Result     string
	Duration   any
}

// decode validates the enum columns. Difficulty is kept as stored so the
// map report can place unknown levels after the known ones.
func (r matchRow) decode() (*testlab.Match, error) {
	race, err := testlab.ParseRace(r.Race)
	if err != nil {
		return nil, err
	}
	build, err := testlab.ParseBuild(r.Build)
	if err != nil {
		return nil, err
	}
	result, err := testlab.ParseResult(r.Result)
	if err != nil {
		return nil, err
	}
	difficulty := testlab.Difficulty(r.Difficulty)
	if d, err := testlab.ParseDifficulty(r.Difficulty); err == nil {
		difficulty = d
	}
	return &testlab.Match{
		ID:                 r.ID,
		TestGroupID:        r.Group,
		StartTime:          r.Start,
		EndTime:            r.End,
		MapName:            r.MapName,
		OpponentRace:       race,
		OpponentDifficulty: difficulty,
		OpponentBuild:      build,
		Result:             result,
		DurationSeconds:    testlab.ParseDuration(r.Duration),
	}, nil
}

// buildingRow is a Building event as scanned
type buildingRow struct {
	Group     int
	MatchID   int64
	Result    string
	Building  string
	Timestamp float64
}

func (r buildingRow) decode() (testlab.BuildingEvent, error) {
	result, err := testlab.ParseResult(r.Result)
	if err != nil {
		return testlab.BuildingEvent{}, err
	}
	return testlab.BuildingEvent{
		MatchID:       r.MatchID,
		TestGroupID:   r.Group,
		Result:        result,
		Building:      r.Building,
		GameTimestamp: r.Timestamp,
	}, nil
}
