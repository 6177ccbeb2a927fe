package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"testlab/internal/db"
	"testlab/internal/ingest"
	"testlab/internal/report"
	"testlab/internal/testlab"
)

type fixture struct {
	store  *db.SQLite
	srv    *Server
	logDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := db.NewSQLite(context.Background(), filepath.Join(dir, "testlab.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logDir := filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(logDir, 0755))

	srv := New(store, ingest.NewImporter(store, nil), nil, zap.NewNop(), Options{LogDir: logDir})
	return &fixture{store: store, srv: srv, logDir: logDir}
}

// played records a finished match and returns its id
func (f *fixture) played(t *testing.T, group int, race, build string, result testlab.Result, mapName string, duration int) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.CreatePendingMatch(ctx, db.PendingMatch{TestGroupID: group, Race: testlab.Race(race), Build: testlab.Build(build)})
	require.NoError(t, err)
	require.NoError(t, f.store.RecordResult(ctx, db.MatchResult{
		MatchID:         id,
		Result:          result,
		MapName:         mapName,
		DurationSeconds: &duration,
	}))
	return id
}

func (f *fixture) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGroups(t *testing.T) {
	f := newFixture(t)
	f.played(t, 1, "Zerg", "Rush", testlab.Victory, "Equilibrium", 300)
	f.played(t, 1, "Terran", "Macro", testlab.Defeat, "Equilibrium", 400)
	f.played(t, testlab.SingleRunGroup, "Zerg", "Rush", testlab.Defeat, "Equilibrium", 100)

	rec := f.do(t, http.MethodGet, "/api/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var got report.GroupReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Rows, 1, "single runs are excluded")
	assert.Equal(t, 1, got.Rows[0].TestGroupID)
	assert.Equal(t, "50.0%", got.Rows[0].WinPercentage)
	require.NotNil(t, got.Rows[0].AvgDuration)
	assert.Equal(t, 350, *got.Rows[0].AvgDuration)
	assert.Equal(t, []string{"Terran-Macro", "Zerg-Rush"}, got.Opponents)
}

func TestGroups_DifficultyFilter(t *testing.T) {
	f := newFixture(t)
	f.played(t, 1, "Zerg", "Rush", testlab.Victory, "Equilibrium", 300)

	rec := f.do(t, http.MethodGet, "/api/groups?difficulty=hard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got report.GroupReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Rows)
	assert.Equal(t, testlab.Hard, got.SelectedDifficulty)

	rec = f.do(t, http.MethodGet, "/api/groups?difficulty=Impossible", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMaps(t *testing.T) {
	f := newFixture(t)
	f.played(t, 2, "Protoss", "Air", testlab.Victory, "Equilibrium", 500)
	f.played(t, 2, "Protoss", "Air", testlab.Defeat, "Gresvan", 600)

	rec := f.do(t, http.MethodGet, "/api/maps", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got report.MapReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "Equilibrium", got.Rows[0].MapName)
	assert.Equal(t, "Gresvan", got.Rows[1].MapName)
}

func TestBuildings(t *testing.T) {
	f := newFixture(t)
	id := f.played(t, 3, "Zerg", "Rush", testlab.Victory, "Equilibrium", 300)
	_, err := f.store.InsertEvents(context.Background(), []testlab.MatchEvent{
		{MatchID: id, Type: testlab.BuildingEventType, Message: "Pylon", GameTimestamp: 18},
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/buildings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got report.TimingReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"Pylon"}, got.Buildings)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, 3, got.Rows[0].TestGroupID)
}

func TestNextGroup(t *testing.T) {
	f := newFixture(t)
	f.played(t, 4, "Zerg", "Rush", testlab.Victory, "Equilibrium", 300)

	rec := f.do(t, http.MethodGet, "/api/next-group", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"testGroupId":5}`, rec.Body.String())
}

func TestMatch(t *testing.T) {
	f := newFixture(t)
	id := f.played(t, 4, "Zerg", "Rush", testlab.Victory, "Equilibrium", 300)

	rec := f.do(t, http.MethodGet, "/api/match/"+strconv.FormatInt(id, 10), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m testlab.Match
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, id, m.ID)
	assert.Equal(t, testlab.Victory, m.Result)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/match/999", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/match/abc", "").Code)
}

func TestPending(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/pending", `{"race":"zerg","build":"timing","testGroupId":7}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	m, err := f.store.FindMatch(context.Background(), body.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, m.TestGroupID)
	assert.Equal(t, testlab.Timing, m.OpponentBuild)
	assert.Equal(t, testlab.Pending, m.Result)

	rec = f.do(t, http.MethodPost, "/api/pending", `{"race":"zerg","build":"timing"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	m, err = f.store.FindMatch(context.Background(), body.ID)
	require.NoError(t, err)
	assert.Equal(t, testlab.SingleRunGroup, m.TestGroupID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/pending", `{"race":"elf","build":"rush"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/pending", `{`).Code)
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	id, err := f.store.CreatePendingMatch(context.Background(), db.PendingMatch{TestGroupID: 1, Race: "Zerg", Build: "Rush"})
	require.NoError(t, err)

	sid := strconv.FormatInt(id, 10)
	body := `{"kind":"event","matchId":` + sid + `,"type":"Building","message":"Pylon","gameTimestamp":18}
{"kind":"result","matchId":` + sid + `,"result":"Victory","mapName":"Equilibrium","durationSeconds":420}
garbage
`
	rec := f.do(t, http.MethodPost, "/api/import", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats ingest.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, ingest.Stats{Results: 1, Events: 1, Malformed: 1}, stats)

	m, err := f.store.FindMatch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Equilibrium", m.MapName)
}

func TestImport_Disabled(t *testing.T) {
	f := newFixture(t)
	srv := New(f.store, nil, nil, nil, Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("")))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestLog(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.logDir, "17_2025-03-01.log"), []byte("game started\n"), 0644))

	rec := f.do(t, http.MethodGet, "/log/17", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "game started\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/log/18", "").Code)

	// Another match's log sharing the id prefix is not served
	require.NoError(t, os.WriteFile(filepath.Join(f.logDir, "170_zerg_air.log"), []byte("other match\n"), 0644))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/log/1", "").Code)
	rec = f.do(t, http.MethodGet, "/log/17", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "game started\n", rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/log/x", "").Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/next-group", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

type failingStore struct {
	db.Store
}

func (failingStore) ListMatches(context.Context, testlab.MatchFilter) ([]*testlab.Match, error) {
	return nil, errors.New("connection refused")
}

func TestStoreErrorIs500(t *testing.T) {
	srv := New(failingStore{}, nil, nil, nil, Options{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/maps", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/next-group")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type notification struct {
	stats  ingest.Stats
	latest *report.GroupRow
}

type chanNotifier chan notification

func (c chanNotifier) ResultsImported(_ context.Context, stats ingest.Stats, latest *report.GroupRow) error {
	c <- notification{stats, latest}
	return nil
}

func TestImport_Notifies(t *testing.T) {
	f := newFixture(t)
	notes := make(chanNotifier, 1)
	srv := New(f.store, ingest.NewImporter(f.store, nil), nil, nil, Options{Notifier: notes})

	f.played(t, 3, "Zerg", "Rush", testlab.Victory, "Equilibrium", 300)
	id, err := f.store.CreatePendingMatch(context.Background(), db.PendingMatch{TestGroupID: 3, Race: "Terran", Build: "Air"})
	require.NoError(t, err)

	body := `{"kind":"result","matchId":` + strconv.FormatInt(id, 10) + `,"result":"Defeat","mapName":"Equilibrium","durationSeconds":500}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case n := <-notes:
		assert.Equal(t, 1, n.stats.Results)
		require.NotNil(t, n.latest)
		assert.Equal(t, 3, n.latest.TestGroupID)
		assert.Equal(t, "50.0%", n.latest.WinPercentage)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
	}
}

func TestImport_TooLargeReportsStoredLines(t *testing.T) {
	f := newFixture(t)
	notes := make(chanNotifier, 1)
	srv := New(f.store, ingest.NewImporter(f.store, nil), nil, nil, Options{Notifier: notes, MaxImportBytes: 256})

	id, err := f.store.CreatePendingMatch(context.Background(), db.PendingMatch{TestGroupID: 2, Race: "Zerg", Build: "Rush"})
	require.NoError(t, err)

	body := `{"kind":"result","matchId":` + strconv.FormatInt(id, 10) + `,"result":"Victory","mapName":"Equilibrium","durationSeconds":300}` +
		strings.Repeat("\n", 4096)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(body)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var got struct {
		ingest.Stats
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Results, "lines before the limit were stored")
	assert.NotEmpty(t, got.Error)

	m, err := f.store.FindMatch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, testlab.Victory, m.Result)

	select {
	case n := <-notes:
		assert.Equal(t, 1, n.stats.Results)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification for the stored result")
	}
}

// blockingNotifier holds ResultsImported until release is closed
type blockingNotifier struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingNotifier) ResultsImported(context.Context, ingest.Stats, *report.GroupRow) error {
	close(b.started)
	<-b.release
	return nil
}

func TestServe_WaitsForNotifications(t *testing.T) {
	f := newFixture(t)
	notifier := &blockingNotifier{started: make(chan struct{}), release: make(chan struct{})}
	srv := New(f.store, ingest.NewImporter(f.store, nil), nil, nil, Options{Notifier: notifier})

	id, err := f.store.CreatePendingMatch(context.Background(), db.PendingMatch{TestGroupID: 1, Race: "Zerg", Build: "Rush"})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	body := `{"kind":"result","matchId":` + strconv.FormatInt(id, 10) + `,"result":"Victory","mapName":"Equilibrium"}`
	resp, err := http.Post("http://"+ln.Addr().String()+"/api/import", "application/x-ndjson", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case <-notifier.started:
	case <-time.After(2 * time.Second):
		t.Fatal("notification never started")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("Serve returned while a notification was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(notifier.release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
