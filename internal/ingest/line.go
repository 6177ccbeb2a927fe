// Package ingest moves match results and events exported by the bot runner
// as JSONL into the record store.
package ingest

import (
	"errors"
	"fmt"
	"time"

	"testlab/internal/db"
	"testlab/internal/testlab"
)

// Line kinds
const (
	KindResult = "result"
	KindEvent  = "event"
)

var errMalformed = errors.New("malformed line")

// Line is one JSONL record. Result lines carry the outcome fields, event
// lines carry Type/Message/GameTimestamp.
type Line struct {
	Kind    string `json:"kind"`
	MatchID int64  `json:"matchId"`

	Result          string     `json:"result,omitempty"`
	MapName         string     `json:"mapName,omitempty"`
	DurationSeconds any        `json:"durationSeconds,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`

	Type          string  `json:"type,omitempty"`
	Message       string  `json:"message,omitempty"`
	GameTimestamp float64 `json:"gameTimestamp,omitempty"`
}

func resultLine(r db.MatchResult) Line {
	l := Line{
		Kind:    KindResult,
		MatchID: r.MatchID,
		Result:  string(r.Result),
		MapName: r.MapName,
	}
	if r.DurationSeconds != nil {
		l.DurationSeconds = *r.DurationSeconds
	}
	if !r.EndTime.IsZero() {
		end := r.EndTime
		l.EndTime = &end
	}
	return l
}

func eventLine(ev testlab.MatchEvent) Line {
	return Line{
		Kind:          KindEvent,
		MatchID:       ev.MatchID,
		Type:          ev.Type,
		Message:       ev.Message,
		GameTimestamp: ev.GameTimestamp,
	}
}

func (l Line) matchResult() (db.MatchResult, error) {
	if l.MatchID <= 0 {
		return db.MatchResult{}, fmt.Errorf("%w: missing matchId", errMalformed)
	}
	result, err := testlab.ParseResult(l.Result)
	if err != nil {
		return db.MatchResult{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	r := db.MatchResult{
		MatchID:         l.MatchID,
		Result:          result,
		MapName:         l.MapName,
		DurationSeconds: testlab.ParseDuration(l.DurationSeconds),
	}
	if l.EndTime != nil {
		r.EndTime = *l.EndTime
	}
	return r, nil
}

func (l Line) matchEvent() (testlab.MatchEvent, error) {
	if l.MatchID <= 0 || l.Type == "" {
		return testlab.MatchEvent{}, fmt.Errorf("%w: event needs matchId and type", errMalformed)
	}
	return testlab.MatchEvent{
		MatchID:       l.MatchID,
		Type:          l.Type,
		Message:       l.Message,
		GameTimestamp: l.GameTimestamp,
	}, nil
}

// dedupKey identifies an event line across files
func (l Line) dedupKey() string {
	return fmt.Sprintf("%d|%s|%s|%g", l.MatchID, l.Type, l.Message, l.GameTimestamp)
}
