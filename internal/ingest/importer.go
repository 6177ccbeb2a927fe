package ingest

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"testlab/internal/db"
	"testlab/internal/testlab"
)

const (
	// DefaultBatchSize is how many events are written per transaction
	DefaultBatchSize = 500

	// Bloom filter sizing: a long session of bot games produces a few
	// hundred thousand events at most
	expectedEvents = 500000
	falsePositive  = 0.001

	maxLineSize = 1024 * 1024
)

// Stats counts what one import did
type Stats struct {
	Results    int `json:"results"`
	Events     int `json:"events"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
}

// Add accumulates o into s
func (s *Stats) Add(o Stats) {
	s.Results += o.Results
	s.Events += o.Events
	s.Duplicates += o.Duplicates
	s.Malformed += o.Malformed
}

// Importer writes JSONL exports to a store. Event lines already seen by
// this importer are skipped, so re-importing an overlapping export is safe.
type Importer struct {
	store     db.Store
	log       *zap.Logger
	batchSize int

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewImporter creates an importer writing to store
func NewImporter(store db.Store, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{
		store:     store,
		log:       log,
		batchSize: DefaultBatchSize,
		seen:      bloom.NewWithEstimates(expectedEvents, falsePositive),
	}
}

// SetBatchSize changes how many events are buffered before a write
func (im *Importer) SetBatchSize(n int) {
	if n > 0 {
		im.batchSize = n
	}
}

// ImportFile imports path, decompressing it when it ends in .gz
func (im *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	stats, err := im.Import(ctx, r)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", path, err)
	}
	im.log.Info("Imported file",
		zap.String("path", path),
		zap.Int("results", stats.Results),
		zap.Int("events", stats.Events),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("malformed", stats.Malformed))
	return stats, nil
}

// Import reads JSONL from r. Results are applied as they are read; events
// are written in batches. Imports through one Importer are serialized.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Stats, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var stats Stats
	batch := make([]testlab.MatchEvent, 0, im.batchSize)
	pending := make(map[string]struct{}, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.store.InsertEvents(ctx, batch)
		if err != nil {
			return err
		}
		// Only mark events once they are stored so a failed batch can be retried
		for k := range pending {
			im.seen.AddString(k)
		}
		stats.Events += n
		batch = batch[:0]
		clear(pending)
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var l Line
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			im.log.Warn("Skipping malformed line", zap.Int("line", lineNo), zap.Error(err))
			stats.Malformed++
			continue
		}

		switch l.Kind {
		case KindResult:
			res, err := l.matchResult()
			if err != nil {
				im.log.Warn("Skipping malformed result", zap.Int("line", lineNo), zap.Error(err))
				stats.Malformed++
				continue
			}
			if err := im.store.RecordResult(ctx, res); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					im.log.Warn("Skipping result for unknown match", zap.Int64("match_id", res.MatchID))
					stats.Malformed++
					continue
				}
				return stats, fmt.Errorf("line %d: %w", lineNo, err)
			}
			stats.Results++

		case KindEvent:
			ev, err := l.matchEvent()
			if err != nil {
				im.log.Warn("Skipping malformed event", zap.Int("line", lineNo), zap.Error(err))
				stats.Malformed++
				continue
			}
			key := l.dedupKey()
			if _, dup := pending[key]; dup || im.seen.TestString(key) {
				stats.Duplicates++
				continue
			}
			batch = append(batch, ev)
			pending[key] = struct{}{}
			if len(batch) >= im.batchSize {
				if err := flush(); err != nil {
					return stats, fmt.Errorf("line %d: %w", lineNo, err)
				}
			}

		default:
			im.log.Warn("Skipping line with unknown kind", zap.Int("line", lineNo), zap.String("kind", l.Kind))
			stats.Malformed++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}
