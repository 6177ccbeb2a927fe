package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"testlab/internal/db"
	"testlab/internal/ingest"
	"testlab/internal/live"
	"testlab/internal/report"
	"testlab/internal/testlab"
)

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	difficulty, ok := s.difficultyParam(w, r)
	if !ok {
		return
	}

	matches, err := s.store.ListMatches(r.Context(), testlab.ReportFilter(difficulty))
	if err != nil {
		s.internalError(w, r, "Failed to load matches", err)
		return
	}

	writeJSON(w, http.StatusOK, report.GroupPivot(matches, difficulty))
}

func (s *Server) handleMaps(w http.ResponseWriter, r *http.Request) {
	difficulty, ok := s.difficultyParam(w, r)
	if !ok {
		return
	}

	matches, err := s.store.ListMatches(r.Context(), testlab.ReportFilter(difficulty))
	if err != nil {
		s.internalError(w, r, "Failed to load matches", err)
		return
	}

	writeJSON(w, http.StatusOK, report.MapBreakdown(matches, difficulty))
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListBuildingEvents(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to load building events", err)
		return
	}

	writeJSON(w, http.StatusOK, report.BuildingTiming(events))
}

func (s *Server) handleNextGroup(w http.ResponseWriter, r *http.Request) {
	next, err := s.store.NextTestGroupID(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to compute next test group", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"testGroupId": next})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Match ID must be an integer", http.StatusBadRequest)
		return
	}

	match, err := s.store.FindMatch(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to load match", err)
		return
	}

	writeJSON(w, http.StatusOK, match)
}

type pendingRequest struct {
	TestGroupID *int   `json:"testGroupId"`
	Race        string `json:"race"`
	Build       string `json:"build"`
	Difficulty  string `json:"difficulty"`
}

// handlePending queues a match. Without a group the match is a single run.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	var req pendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	group := testlab.SingleRunGroup
	if req.TestGroupID != nil {
		group = *req.TestGroupID
	}

	id, err := s.store.CreatePendingMatch(r.Context(), db.PendingMatch{
		TestGroupID: group,
		Race:        testlab.Race(req.Race),
		Build:       testlab.Build(req.Build),
		Difficulty:  testlab.Difficulty(req.Difficulty),
	})
	if errors.Is(err, testlab.ErrUnknownValue) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to create pending match", err)
		return
	}

	s.hub.Broadcast(live.Event{Type: live.EventMatchPending, TestGroupID: &group})
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		http.Error(w, "Import is disabled", http.StatusNotImplemented)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.opts.MaxImportBytes)
	stats, err := s.importer.Import(r.Context(), body)

	// Lines read before a failure are already stored
	s.publishImport(stats)

	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.log.Warn("Import body too large",
				zap.String("request_id", RequestID(r.Context())),
				zap.Int64("limit", tooLarge.Limit),
				zap.Int("results", stats.Results),
				zap.Int("events", stats.Events))
			writeJSON(w, http.StatusRequestEntityTooLarge, importResponse{Stats: stats, Error: "Import body too large"})
			return
		}
		s.internalError(w, r, "Import failed", err)
		return
	}

	s.log.Info("Import finished",
		zap.String("request_id", RequestID(r.Context())),
		zap.Int("results", stats.Results),
		zap.Int("events", stats.Events),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("malformed", stats.Malformed))

	writeJSON(w, http.StatusOK, importResponse{Stats: stats})
}

// importResponse reports what was stored, including on a rejected body
type importResponse struct {
	ingest.Stats
	Error string `json:"error,omitempty"`
}

// handleLog serves the newest-named "<id>_*.log" file from the log directory.
// Runners name logs "<id>_<race>_<build>.log".
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 0 {
		http.Error(w, "Log ID must be a non-negative integer", http.StatusBadRequest)
		return
	}

	paths, err := filepath.Glob(filepath.Join(s.opts.LogDir, strconv.FormatInt(id, 10)+"_*.log"))
	if err != nil || len(paths) == 0 {
		http.Error(w, "Log file not found", http.StatusNotFound)
		return
	}
	sort.Strings(paths)

	data, err := os.ReadFile(paths[len(paths)-1])
	if err != nil {
		s.internalError(w, r, "Failed to read log file", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

// difficultyParam reads ?difficulty=. Empty means every difficulty.
func (s *Server) difficultyParam(w http.ResponseWriter, r *http.Request) (testlab.Difficulty, bool) {
	raw := r.URL.Query().Get("difficulty")
	if raw == "" {
		return "", true
	}
	d, err := testlab.ParseDifficulty(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return d, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.Error(msg,
		zap.String("request_id", RequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
