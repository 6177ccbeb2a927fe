// Package server exposes the test lab reports over HTTP for the dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"testlab/internal/db"
	"testlab/internal/ingest"
	"testlab/internal/live"
	"testlab/internal/report"
	"testlab/internal/testlab"
)

const shutdownTimeout = 10 * time.Second

const notifyTimeout = 30 * time.Second

// DefaultMaxImportBytes caps a POST /api/import body
const DefaultMaxImportBytes = 64 << 20

// Notifier is told about imports that recorded results
type Notifier interface {
	ResultsImported(ctx context.Context, stats ingest.Stats, latest *report.GroupRow) error
}

// Options configures file-backed routes and notifications
type Options struct {
	LogDir   string   // match logs served by /log/{id}
	WebDir   string   // static dashboard files
	Notifier Notifier // optional

	MaxImportBytes int64 // 0 means DefaultMaxImportBytes
}

// Server wires the store, importer and live hub to HTTP routes
type Server struct {
	store    db.Store
	importer *ingest.Importer
	hub      *live.Hub
	log      *zap.Logger
	opts     Options
	mux      *http.ServeMux

	// in-flight notifications, drained by Serve
	notifying sync.WaitGroup
}

// New creates a server. A nil importer disables POST /api/import.
func New(store db.Store, importer *ingest.Importer, hub *live.Hub, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if hub == nil {
		hub = live.NewHub(log)
	}
	if opts.MaxImportBytes <= 0 {
		opts.MaxImportBytes = DefaultMaxImportBytes
	}
	s := &Server{
		store:    store,
		importer: importer,
		hub:      hub,
		log:      log,
		opts:     opts,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Report routes
	s.mux.HandleFunc("GET /api/groups", s.handleGroups)
	s.mux.HandleFunc("GET /api/maps", s.handleMaps)
	s.mux.HandleFunc("GET /api/buildings", s.handleBuildings)

	// Match routes
	s.mux.HandleFunc("GET /api/next-group", s.handleNextGroup)
	s.mux.HandleFunc("GET /api/match/{id}", s.handleMatch)
	s.mux.HandleFunc("POST /api/pending", s.handlePending)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("GET /log/{id}", s.handleLog)

	s.mux.Handle("GET /ws", s.hub)

	if s.opts.WebDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.opts.WebDir)))
	}
}

// Handler returns the routes wrapped with request logging
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.mux)
}

// Hub returns the live update hub
func (s *Server) Hub() *live.Hub {
	return s.hub
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server starting", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("Server shutting down")
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.notifying.Wait()
	if err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// publishImport tells live clients and the notifier about stored data
func (s *Server) publishImport(stats ingest.Stats) {
	if stats.Results > 0 || stats.Events > 0 {
		s.hub.Broadcast(live.Event{Type: live.EventResultsUpdated})
	}
	if stats.Results > 0 && s.opts.Notifier != nil {
		s.notifying.Add(1)
		go func() {
			defer s.notifying.Done()
			s.notifyResults(stats)
		}()
	}
}

// notifyResults reports an import with the newest group's summary row
func (s *Server) notifyResults(stats ingest.Stats) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	var latest *report.GroupRow
	matches, err := s.store.ListMatches(ctx, testlab.ReportFilter(""))
	if err != nil {
		s.log.Warn("Failed to load matches for notification", zap.Error(err))
	} else if rep := report.GroupPivot(matches, ""); len(rep.Rows) > 0 {
		latest = &rep.Rows[0]
	}

	if err := s.opts.Notifier.ResultsImported(ctx, stats, latest); err != nil {
		s.log.Warn("Failed to send notification", zap.Error(err))
	}
}
